package tracing

import (
	"context"
	"log/slog"

	"github.com/webitel/danmaku-relay/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("tracing",
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) trace.TracerProvider {
		tp, shutdown := NewProvider(cfg.Tracing, logger)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return shutdown(ctx) },
		})
		return tp
	}),
)
