package audit

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("audit-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(RegisterHandlers),
)

func RegisterHandlers(lc fx.Lifecycle, cfg *config.Config, h *MessageHandler, router *message.Router, provider *pubsub.Provider, logger *slog.Logger) error {
	if !cfg.Export.Enabled() || !cfg.Export.Audit {
		return nil
	}

	if err := h.RegisterHandlers(router, provider, cfg.Export.Topic); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := Run(ctx, router); err != nil {
					logger.Error("AUDIT_ROUTER_STOPPED", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return router.Close()
		},
	})
	return nil
}
