package pubsub

import (
	"log/slog"

	"github.com/sony/gobreaker"
	"github.com/webitel/danmaku-relay/config"
)

// newBreaker opens after BreakerFailures consecutive publish failures and
// probes the broker again after BreakerTimeout.
func newBreaker(cfg config.ExportConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "export:" + cfg.Topic,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("EXPORT_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
