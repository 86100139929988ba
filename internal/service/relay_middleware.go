package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"github.com/webitel/danmaku-relay/internal/domain/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/webitel/danmaku-relay/internal/service"

// relayMiddleware implements [DECORATOR_PATTERN] to add tracing and logging
// to the relay without touching its logic.
type relayMiddleware struct {
	next   Relayer
	logger *slog.Logger
	tracer trace.Tracer
}

func NewRelayMiddleware(next Relayer, logger *slog.Logger, tp trace.TracerProvider) Relayer {
	return &relayMiddleware{
		next:   next,
		logger: logger,
		tracer: tp.Tracer(tracerName),
	}
}

func (m *relayMiddleware) Submit(ctx context.Context, d model.Danmaku) (pool.ID, error) {
	start := time.Now()

	ctx, span := m.tracer.Start(ctx, "relay.Submit", trace.WithAttributes(
		attribute.String("danmaku.sender", d.Sender),
		attribute.Int("danmaku.text_len", len(d.Text)),
	))
	defer span.End()

	id, err := m.next.Submit(ctx, d)
	span.SetAttributes(attribute.String("danmaku.id", id.String()))

	if err != nil {
		span.RecordError(err)
		if errors.Is(err, registry.ErrSlowSubscriber) {
			// delivered to everyone else; not a failure of the submit itself
			span.AddEvent("partial_broadcast")
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
		return id, err
	}

	m.logger.Debug("DANMAKU_RELAYED",
		"id", id,
		"sender", d.Sender,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return id, nil
}

func (m *relayMiddleware) Subscribe(ctx context.Context) (registry.Subscriber, []pool.Entry, error) {
	_, span := m.tracer.Start(ctx, "relay.Subscribe")
	defer span.End()

	sub, replay, err := m.next.Subscribe(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("SUBSCRIBE_FAILED", "err", err)
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("subscription.id", sub.ID().String()),
		attribute.Int("subscription.replay", len(replay)),
	)
	return sub, replay, nil
}

func (m *relayMiddleware) Resolve(id pool.ID) (model.Danmaku, bool) {
	return m.next.Resolve(id)
}

func (m *relayMiddleware) History() []pool.Entry {
	return m.next.History()
}

func (m *relayMiddleware) Stats() model.RelayStats {
	return m.next.Stats()
}
