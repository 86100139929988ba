package lp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	lpmarshaller "github.com/webitel/danmaku-relay/internal/handler/marshaller/lp"
	"github.com/webitel/danmaku-relay/internal/service"
)

// maxBatch caps how many danmaku one poll response carries.
const maxBatch = 16

// LPHandler serves clients that cannot hold a WebSocket open.
// It is read-only: danmaku are submitted over WebSocket.
type LPHandler struct {
	relayer service.Relayer
	logger  *slog.Logger
	timeout time.Duration
}

func NewLPHandler(relayer service.Relayer, logger *slog.Logger, cfg *config.Config) *LPHandler {
	return &LPHandler{
		relayer: relayer,
		logger:  logger,
		timeout: cfg.Server.PollTimeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until a danmaku is published or the poll timeout passes.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Temporary Subscription, alive only for the duration of this request.
	sub, _, err := h.relayer.Subscribe(r.Context())
	if err != nil {
		http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// 2. Wait for data or timeout.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	first, ok := sub.Next(ctx)
	if !ok {
		switch {
		case r.Context().Err() != nil:
			// client disconnected
		case ctx.Err() != nil:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		}
		return
	}

	// 3. Drain what is already buffered to provide batching.
	ids := []pool.ID{first}
	for len(ids) < maxBatch {
		id, ok := sub.TryNext()
		if !ok {
			break
		}
		ids = append(ids, id)
	}

	h.write(w, h.resolve(ids))
}

// History returns the retention window, oldest first.
func (h *LPHandler) History(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.relayer.History())
}

func (h *LPHandler) resolve(ids []pool.ID) []pool.Entry {
	entries := make([]pool.Entry, 0, len(ids))
	for _, id := range ids {
		d, ok := h.relayer.Resolve(id)
		if !ok {
			h.logger.Warn("DANMAKU_MISSING", slog.Any("id", id))
			continue
		}
		entries = append(entries, pool.Entry{ID: id, Danmaku: d})
	}
	return entries
}

func (h *LPHandler) write(w http.ResponseWriter, entries []pool.Entry) {
	data, err := lpmarshaller.MarshallEntries(entries)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
