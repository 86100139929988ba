package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/danmaku-relay/infra/metrics"
	httpsrv "github.com/webitel/danmaku-relay/infra/server/http"
	"github.com/webitel/danmaku-relay/internal/domain/registry"
	"github.com/webitel/danmaku-relay/internal/handler/lp"
	"github.com/webitel/danmaku-relay/internal/handler/status"
	"github.com/webitel/danmaku-relay/internal/handler/ws"
	"go.uber.org/fx"
)

// NewRouter mounts every HTTP surface of the relay on one listener.
func NewRouter(
	relay *ws.RelayHandler,
	poll *lp.LPHandler,
	st *status.Handler,
	m *metrics.Metrics,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)

	// [WEBSOCKET] the bare path keeps plain ws://host:port clients working
	r.Method(http.MethodGet, "/", relay)
	r.Method(http.MethodGet, "/ws", relay)

	// [LONG_POLLING]
	r.Get("/poll", poll.Poll)
	r.Get("/history", poll.History)

	// [OPERATIONS]
	r.Method(http.MethodGet, "/healthz", st)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	logger.Debug("HTTP_ROUTES_MOUNTED", "routes", []string{"/", "/ws", "/poll", "/history", "/healthz", "/metrics"})
	return r
}

var Module = fx.Module("http-handler",
	ws.Module,
	lp.Module,
	fx.Provide(
		status.NewHandler,
		NewRouter,
	),
	fx.Invoke(RegisterShutdown),
)

// RegisterShutdown closes the hub when the server starts shutting down, so upgraded sessions and
// pending polls end instead of holding the shutdown until its deadline.
func RegisterShutdown(server *httpsrv.Server, hub registry.Hubber) {
	server.OnShutdown(hub.Close)
}
