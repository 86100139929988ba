package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditLogsExportedDanmaku(t *testing.T) {
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, nil))

	cfg := config.ExportConfig{Driver: config.ExportGoChannel, Topic: "danmaku", Audit: true}
	provider, err := pubsub.NewProvider(cfg, watermill.NopLogger{})
	require.NoError(t, err)
	defer provider.Close()

	router, err := NewWatermillRouter(logger)
	require.NoError(t, err)
	require.NoError(t, NewMessageHandler(logger).RegisterHandlers(router, provider, cfg.Topic))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Run(ctx, router) }()
	defer router.Close()
	<-router.Running()

	p, err := pool.New(1)
	require.NoError(t, err)
	dm := model.Danmaku{Sender: "alice", Text: "hello relay", Color: "#fff", Size: 24}
	id := p.Insert(dm)
	require.NoError(t, pubsub.NewDispatcher(cfg, provider, logger).Export(context.Background(), id, dm))

	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "msg="+HandlerName) && strings.Contains(s, "sender=alice")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBindAcksUndecodablePayload(t *testing.T) {
	out := &syncBuffer{}
	h := NewMessageHandler(slog.New(slog.NewTextHandler(out, nil)))

	called := false
	handler := Bind(h, func(context.Context, *pubsub.ExportedDanmaku) error {
		called = true
		return nil
	})

	err := handler(message.NewMessage(watermill.NewUUID(), []byte("not json")))
	assert.NoError(t, err)
	assert.False(t, called)
	assert.Contains(t, out.String(), "DECODE_FAILED")
}

func TestBindRecoversPanics(t *testing.T) {
	h := NewMessageHandler(slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))
	handler := Bind(h, func(context.Context, *pubsub.ExportedDanmaku) error {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		assert.NoError(t, handler(message.NewMessage(watermill.NewUUID(), []byte(`{"id":"1v1"}`))))
	})
}

func TestTraceIDMiddleware(t *testing.T) {
	t.Run("keeps the submit trace", func(t *testing.T) {
		var trace, danmakuID string
		h := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
			trace = TraceIDFromContext(msg.Context())
			danmakuID = DanmakuIDFromContext(msg.Context())
			return nil, nil
		})

		msg := message.NewMessage(watermill.NewUUID(), nil)
		msg.Metadata.Set(pubsub.MetadataTraceID, "0a0b")
		msg.Metadata.Set(pubsub.MetadataDanmakuID, "3v1")
		_, err := h(msg)
		require.NoError(t, err)
		assert.Equal(t, "0a0b", trace)
		assert.Equal(t, "3v1", danmakuID)
	})

	t.Run("generates one when missing", func(t *testing.T) {
		var seen string
		h := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
			seen = TraceIDFromContext(msg.Context())
			return nil, nil
		})

		msg := message.NewMessage(watermill.NewUUID(), nil)
		_, err := h(msg)
		require.NoError(t, err)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, msg.Metadata.Get(pubsub.MetadataTraceID))
	})
}

func TestLoggingMiddlewareRecordsDanmaku(t *testing.T) {
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fail := errors.New("sink down")
	calls := 0
	h := TraceIDMiddleware(LoggingMiddleware(logger)(func(*message.Message) ([]*message.Message, error) {
		calls++
		if calls == 1 {
			return nil, fail
		}
		return nil, nil
	}))

	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(pubsub.MetadataDanmakuID, "7v2")

	_, err := h(msg)
	assert.ErrorIs(t, err, fail)
	_, err = h(msg)
	assert.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "msg=AUDIT_ATTEMPT_FAILED")
	assert.Contains(t, s, "msg=AUDIT_RECORDED")
	assert.Contains(t, s, "danmaku_id=7v2")
	assert.Contains(t, s, `err="sink down"`)
}
