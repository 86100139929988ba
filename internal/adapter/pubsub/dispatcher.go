package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MetadataDanmakuID carries the pool id of an exported danmaku.
	MetadataDanmakuID = "danmaku_id"
	// MetadataTraceID carries the trace of the submit that accepted it, when there was one.
	MetadataTraceID = "trace_id"
)

// ExportedDanmaku is the payload mirrored to the export topic.
type ExportedDanmaku struct {
	ID string `json:"id"`
	model.Danmaku
	AcceptedAt time.Time `json:"accepted_at"`
}

// Dispatcher mirrors accepted danmaku to the export topic.
type Dispatcher interface {
	Export(ctx context.Context, id pool.ID, d model.Danmaku) error
}

// NewDispatcher returns a no-op dispatcher when the provider has no publisher.
func NewDispatcher(cfg config.ExportConfig, p *Provider, logger *slog.Logger) Dispatcher {
	if p.Publisher() == nil {
		return noopDispatcher{}
	}
	return &eventDispatcher{
		publisher: p.Publisher(),
		topic:     cfg.Topic,
		breaker:   newBreaker(cfg, logger),
		now:       time.Now,
	}
}

type eventDispatcher struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time
}

func (d *eventDispatcher) Export(ctx context.Context, id pool.ID, dm model.Danmaku) error {
	payload, err := json.Marshal(ExportedDanmaku{ID: id.String(), Danmaku: dm, AcceptedAt: d.now().UTC()})
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataDanmakuID, id.String())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata.Set(MetadataTraceID, sc.TraceID().String())
	}
	msg.SetContext(ctx)

	_, err = d.breaker.Execute(func() (any, error) {
		return nil, d.publisher.Publish(d.topic, msg)
	})
	if err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", d.topic, err)
	}
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Export(context.Context, pool.ID, model.Danmaku) error { return nil }
