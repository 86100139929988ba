package status

import (
	"encoding/json"
	"net/http"

	"github.com/webitel/danmaku-relay/internal/service"
)

// Handler reports the shared relay state as JSON.
type Handler struct {
	relayer service.Relayer
}

func NewHandler(relayer service.Relayer) *Handler {
	return &Handler{relayer: relayer}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(h.relayer.Stats())
}
