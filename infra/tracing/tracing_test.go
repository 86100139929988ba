package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/danmaku-relay/config"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown := NewProvider(config.TracingConfig{}, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
	assert.Zero(t, buf.Len())
}

func TestEnabledTracingLogsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown := NewProvider(
		config.TracingConfig{Enabled: true, SampleRatio: 1},
		slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "relay.Submit")
	span.SetAttributes(attribute.String("danmaku.sender", "alice"))
	span.End()
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "SPAN_ENDED")
	assert.Contains(t, out, "span=relay.Submit")
	assert.Contains(t, out, "danmaku.sender=alice")
}
