package cmd

import (
	"log/slog"

	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/infra/logger"
	"github.com/webitel/danmaku-relay/infra/metrics"
	httpsrv "github.com/webitel/danmaku-relay/infra/server/http"
	"github.com/webitel/danmaku-relay/infra/tracing"
	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"github.com/webitel/danmaku-relay/internal/domain/registry"
	"github.com/webitel/danmaku-relay/internal/handler"
	"github.com/webitel/danmaku-relay/internal/handler/audit"
	"github.com/webitel/danmaku-relay/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config, loader *config.Loader, info model.BuildInfo) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			func() *config.Loader { return loader },
			func() model.BuildInfo { return info },
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l.With("component", "fx")}
		}),
		fx.Invoke(func(l *slog.Logger) {
			l.Info("RELAY_STARTING", "build", info.String(), "addr", cfg.Server.Addr())
		}),
		logger.Module,
		metrics.Module,
		tracing.Module,
		pool.Module,
		registry.Module,
		pubsub.Module,
		service.Module,
		handler.Module,
		audit.Module,
		httpsrv.Module,
	)
}
