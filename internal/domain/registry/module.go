package registry

import (
	"context"
	"time"

	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/infra/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config, m *metrics.Metrics) *Hub {
			return NewHub(
				WithMailboxSize(cfg.Broadcast.MailboxSize),
				WithSendTimeout(cfg.Broadcast.SendTimeout),
				WithPublishObserver(func(d time.Duration) { m.PublishDuration.Observe(d.Seconds()) }),
			)
		},
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber, m *metrics.Metrics) error {
		if err := m.Observe("registry", "subscribers", "Live fan-out subscriptions.", func() float64 { return float64(h.Len()) }); err != nil {
			return err
		}
		if err := m.ObserveCounter("registry", "dropped_total", "Deliveries dropped on full mailboxes.", func() float64 { return float64(h.Dropped()) }); err != nil {
			return err
		}

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Close() // [GRACEFUL_SHUTDOWN] ends every subscription, so every handler unwinds
				return nil
			},
		})
		return nil
	}),
)
