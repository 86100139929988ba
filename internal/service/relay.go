package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/infra/metrics"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"github.com/webitel/danmaku-relay/internal/domain/registry"
)

// [RELAY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS
type Relayer interface {
	// Submit stores d and broadcasts its id. The id is valid even when the error is non-nil:
	// a publish error only means some subscribers missed the broadcast.
	Submit(ctx context.Context, d model.Danmaku) (pool.ID, error)
	// Subscribe opens a subscription. With replay enabled it also returns the current window, oldest first.
	Subscribe(ctx context.Context) (registry.Subscriber, []pool.Entry, error)
	Resolve(id pool.ID) (model.Danmaku, bool)
	// History is the current retention window, oldest first.
	History() []pool.Entry
	Stats() model.RelayStats
}

// Exporter mirrors accepted danmaku outside the process. It never influences delivery.
type Exporter interface {
	Export(ctx context.Context, id pool.ID, d model.Danmaku) error
}

type RelayService struct {
	pool     *pool.Pool
	hub      registry.Hubber
	exporter Exporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	replay    bool
	version   string
	startedAt time.Time
}

func NewRelayService(
	cfg *config.Config,
	p *pool.Pool,
	hub registry.Hubber,
	exporter Exporter,
	m *metrics.Metrics,
	logger *slog.Logger,
	build model.BuildInfo,
) *RelayService {
	return &RelayService{
		pool:      p,
		hub:       hub,
		exporter:  exporter,
		metrics:   m,
		logger:    logger,
		replay:    cfg.Pool.ReplayOnJoin,
		version:   build.Version,
		startedAt: time.Now(),
	}
}

func (s *RelayService) Submit(ctx context.Context, d model.Danmaku) (pool.ID, error) {
	// 1. [STORE] never fails; eviction is deferred to the janitor
	id := s.pool.Insert(d)
	s.metrics.Submitted.Inc()

	// 2. [EXPORT] best effort, off the delivery path's error channel
	if err := s.exporter.Export(ctx, id, d); err != nil {
		s.metrics.ExportFailures.Inc()
		s.logger.Warn("EXPORT_FAILED", "id", id, "err", err)
	}

	// 3. [BROADCAST]
	if err := s.hub.Publish(id); err != nil {
		return id, fmt.Errorf("relay: broadcast: %w", err)
	}
	return id, nil
}

func (s *RelayService) Subscribe(ctx context.Context) (registry.Subscriber, []pool.Entry, error) {
	// [ORDER] subscribe before snapshotting so nothing published in between is lost;
	// the handler skips ids it already replayed
	sub, err := s.hub.Subscribe(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("relay: subscribe: %w", err)
	}

	if !s.replay {
		return sub, nil, nil
	}
	return sub, s.pool.Snapshot(), nil
}

func (s *RelayService) Resolve(id pool.ID) (model.Danmaku, bool) {
	return s.pool.Get(id)
}

func (s *RelayService) History() []pool.Entry {
	return s.pool.Snapshot()
}

func (s *RelayService) Stats() model.RelayStats {
	return model.RelayStats{
		PoolCapacity:  s.pool.Capacity(),
		PoolStored:    s.pool.Len(),
		PoolWindow:    s.pool.Window(),
		Subscribers:   s.hub.Len(),
		DroppedTotal:  s.hub.Dropped(),
		Uptime:        time.Since(s.startedAt).Truncate(time.Second),
		ServerVersion: s.version,
	}
}
