package pool

import (
	"fmt"
	"log/slog"
)

// ID is an opaque handle issued by a single Pool instance.
// It pairs a slot index with the slot generation at insert time, so an ID whose slot
// has been reclaimed and reused never resolves to the newer entry.
// The zero ID is never issued.
type ID struct {
	index uint32
	gen   uint32
}

// IsZero reports whether the id was never issued by a pool.
func (id ID) IsZero() bool { return id.gen == 0 }

func (id ID) String() string { return fmt.Sprintf("%dv%d", id.index, id.gen) }

// LogValue keeps ids readable in structured logs.
func (id ID) LogValue() slog.Value { return slog.StringValue(id.String()) }
