package pool

import (
	"context"
	"log/slog"

	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/infra/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("pool",
	fx.Provide(
		func(cfg *config.Config) (*Pool, error) {
			return New(cfg.Pool.Capacity)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Pool, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) error {
		if err := m.Observe("pool", "stored", "Entries physically held by the pool.", func() float64 { return float64(p.Len()) }); err != nil {
			return err
		}
		if err := m.Observe("pool", "window", "Entries in the retention window.", func() float64 { return float64(p.Window()) }); err != nil {
			return err
		}

		// [JANITOR] reconciles the arena with the history window in the background
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					p.RunJanitor(ctx, cfg.Pool.GCInterval, func(removed int) {
						m.Collected.Add(float64(removed))
						if removed > 0 {
							logger.Debug("POOL_COLLECTED", "removed", removed, "stored", p.Len())
						}
					})
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
				return nil
			},
		})
		return nil
	}),
)
