package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*Provider, error) {
			p, err := NewProvider(cfg.Export, watermill.NewSlogLogger(logger))
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return p.Close() },
			})
			return p, nil
		},
		func(cfg *config.Config, p *Provider, logger *slog.Logger) service.Exporter {
			return NewDispatcher(cfg.Export, p, logger)
		},
	),
)
