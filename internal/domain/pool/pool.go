/*
Package pool keeps the most recent danmaku submitted to the relay.

Storage is a dense slot arena addressed by generation-tagged IDs, paired with a fixed-capacity
history ring of the newest IDs. Insert only appends: an ID that falls out of the history window stays
physically stored until GarbageCollect reconciles the arena with the window. This keeps the write-locked
insert path constant-time and moves cleanup to a background janitor.
*/
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/webitel/danmaku-relay/internal/domain/model"
)

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("pool: capacity must be greater than zero")

// Entry is a stored danmaku together with its handle.
type Entry struct {
	ID      ID
	Danmaku model.Danmaku
}

type slot struct {
	gen      uint32
	occupied bool
	value    model.Danmaku
}

// Pool is safe for concurrent use: any number of readers (Get, Snapshot) or a single
// writer (Insert, GarbageCollect) at a time.
type Pool struct {
	mu       sync.RWMutex
	capacity int

	// [ARENA]
	slots  []slot
	free   []uint32
	stored int

	// [WINDOW] the capacity newest ids, oldest first
	history *history
}

// New creates a pool retaining the capacity most recent entries.
func New(capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w (%d)", ErrInvalidCapacity, capacity)
	}
	return &Pool{
		capacity: capacity,
		slots:    make([]slot, 0, capacity),
		history:  newHistory(capacity),
	}, nil
}

// Insert stores d and records its id as the newest in the window.
// When the window is full the oldest id leaves it; its entry is reclaimed by the next GarbageCollect.
func (p *Pool) Insert(d model.Danmaku) ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.alloc(d)
	p.history.write(id)
	return id
}

func (p *Pool) alloc(d model.Danmaku) ID {
	p.stored++

	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]

		s := &p.slots[idx]
		s.occupied = true
		s.value = d
		return ID{index: idx, gen: s.gen}
	}

	p.slots = append(p.slots, slot{gen: 1, occupied: true, value: d})
	return ID{index: uint32(len(p.slots) - 1), gen: 1}
}

// lookup must be called with p.mu held.
func (p *Pool) lookup(id ID) (*slot, bool) {
	if id.IsZero() || int(id.index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[id.index]
	if !s.occupied || s.gen != id.gen {
		return nil, false
	}
	return s, true
}

// Get resolves id. It succeeds for every id in the window and for evicted ids not yet collected.
func (p *Pool) Get(id ID) (model.Danmaku, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.lookup(id)
	if !ok {
		return model.Danmaku{}, false
	}
	return s.value, true
}

// Snapshot copies the window, oldest to newest.
func (p *Pool) Snapshot() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, 0, p.history.len())
	p.history.ordered(func(id ID) {
		if s, ok := p.lookup(id); ok {
			out = append(out, Entry{ID: id, Danmaku: s.value})
		}
	})
	return out
}

// Iterate returns the danmaku in the window, oldest to newest.
func (p *Pool) Iterate() []model.Danmaku {
	entries := p.Snapshot()
	out := make([]model.Danmaku, len(entries))
	for i, e := range entries {
		out[i] = e.Danmaku
	}
	return out
}

// GarbageCollect reclaims every stored entry whose id is no longer in the window and
// returns how many were removed. Reclaimed slots get a new generation, so stale ids stay dead.
func (p *Pool) GarbageCollect() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	keep := make(map[ID]struct{}, p.history.len())
	p.history.ordered(func(id ID) { keep[id] = struct{}{} })

	removed := 0
	for i := range p.slots {
		s := &p.slots[i]
		if !s.occupied {
			continue
		}
		if _, ok := keep[ID{index: uint32(i), gen: s.gen}]; ok {
			continue
		}

		s.occupied = false
		s.value = model.Danmaku{}
		s.gen++
		if s.gen == 0 {
			s.gen = 1 // the zero generation marks never-issued ids
		}
		p.free = append(p.free, uint32(i))
		removed++
	}
	p.stored -= removed
	return removed
}

// RunJanitor calls GarbageCollect every interval until ctx is done.
// A non-positive interval disables collection.
func (p *Pool) RunJanitor(ctx context.Context, interval time.Duration, onCollect func(removed int)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := p.GarbageCollect()
			if onCollect != nil {
				onCollect(removed)
			}
		}
	}
}

// Len is the number of physically stored entries, which may exceed Capacity until the next collection.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stored
}

// Window is the number of ids currently in the history window.
func (p *Pool) Window() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.len()
}

func (p *Pool) Capacity() int { return p.capacity }
