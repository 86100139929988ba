package ws

import (
	"github.com/webitel/danmaku-relay/config"
	wsmarshaller "github.com/webitel/danmaku-relay/internal/handler/marshaller/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("relay-ws",
	fx.Provide(
		// one cache per process: a frame is encoded once however many sessions deliver it
		func(cfg *config.Config) (*wsmarshaller.FrameCache, error) {
			return wsmarshaller.NewFrameCache(cfg.Pool.Capacity + cfg.Broadcast.MailboxSize)
		},
		NewRelayHandler,
	),
)
