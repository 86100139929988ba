package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"go.opentelemetry.io/otel/trace"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func insert(t *testing.T, d model.Danmaku) pool.ID {
	t.Helper()
	p, err := pool.New(1)
	require.NoError(t, err)
	return p.Insert(d)
}

func TestDisabledExportIsNoop(t *testing.T) {
	p, err := NewProvider(config.ExportConfig{Driver: config.ExportNone}, watermill.NopLogger{})
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.Publisher())
	_, err = p.Subscriber("audit")
	assert.ErrorIs(t, err, ErrExportDisabled)

	d := NewDispatcher(config.ExportConfig{}, p, discard)
	assert.NoError(t, d.Export(context.Background(), insert(t, model.Danmaku{}), model.Danmaku{}))
}

func TestUnknownDriver(t *testing.T) {
	_, err := NewProvider(config.ExportConfig{Driver: "kafka"}, watermill.NopLogger{})
	assert.Error(t, err)
}

func TestGoChannelExport(t *testing.T) {
	cfg := config.ExportConfig{Driver: config.ExportGoChannel, Topic: "danmaku", BreakerFailures: 3, BreakerTimeout: time.Second}
	p, err := NewProvider(cfg, watermill.NopLogger{})
	require.NoError(t, err)
	defer p.Close()

	sub, err := p.Subscriber("audit")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	messages, err := sub.Subscribe(ctx, cfg.Topic)
	require.NoError(t, err)

	dm := model.Danmaku{Sender: "a", Text: "hi", Color: "#fff", Size: 24}
	id := insert(t, dm)
	require.NoError(t, NewDispatcher(cfg, p, discard).Export(context.Background(), id, dm))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, id.String(), msg.Metadata.Get(MetadataDanmakuID))

		var got ExportedDanmaku
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, id.String(), got.ID)
		assert.Equal(t, dm, got.Danmaku)
		assert.False(t, got.AcceptedAt.IsZero())
	case <-ctx.Done():
		t.Fatal("exported message not received")
	}
}

type failingPublisher struct {
	calls int
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.calls++
	return errors.New("broker unreachable")
}

func (f *failingPublisher) Close() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := config.ExportConfig{Driver: config.ExportAMQP, Topic: "danmaku", BreakerFailures: 2, BreakerTimeout: time.Minute}
	pub := &failingPublisher{}
	d := &eventDispatcher{
		publisher: pub,
		topic:     cfg.Topic,
		breaker:   newBreaker(cfg, discard),
		now:       time.Now,
	}

	dm := model.Danmaku{Text: "x"}
	id := insert(t, dm)

	for range 2 {
		assert.Error(t, d.Export(context.Background(), id, dm))
	}
	assert.Equal(t, 2, pub.calls)

	err := d.Export(context.Background(), id, dm)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls, "open breaker short-circuits the publisher")
}

type recordingPublisher struct {
	msgs []*message.Message
}

func (r *recordingPublisher) Publish(_ string, msgs ...*message.Message) error {
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestExportCarriesSubmitTrace(t *testing.T) {
	cfg := config.ExportConfig{Topic: "danmaku", BreakerFailures: 1, BreakerTimeout: time.Second}
	pub := &recordingPublisher{}
	d := &eventDispatcher{publisher: pub, topic: cfg.Topic, breaker: newBreaker(cfg, discard), now: time.Now}

	dm := model.Danmaku{Text: "x"}
	id := insert(t, dm)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	require.NoError(t, d.Export(trace.ContextWithSpanContext(context.Background(), sc), id, dm))
	require.NoError(t, d.Export(context.Background(), id, dm))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, sc.TraceID().String(), pub.msgs[0].Metadata.Get(MetadataTraceID))
	assert.Equal(t, id.String(), pub.msgs[0].Metadata.Get(MetadataDanmakuID))
	assert.Empty(t, pub.msgs[1].Metadata.Get(MetadataTraceID), "untraced submits carry no trace id")
}
