package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
)

// exportOrigin ties an audit record back to the submit that produced it.
type exportOrigin struct {
	traceID   string
	danmakuID string
}

type originKey struct{}

func originFrom(ctx context.Context) exportOrigin {
	o, _ := ctx.Value(originKey{}).(exportOrigin)
	return o
}

// TraceIDFromContext returns the submit trace id, or a generated one when the export carried none.
func TraceIDFromContext(ctx context.Context) string { return originFrom(ctx).traceID }

// DanmakuIDFromContext returns the pool id of the exported danmaku.
func DanmakuIDFromContext(ctx context.Context) string { return originFrom(ctx).danmakuID }

// [ORIGIN_MIDDLEWARE]
// Exports published outside a traced submit get a fresh trace id so retries still correlate.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get(pubsub.MetadataTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
			msg.Metadata.Set(pubsub.MetadataTraceID, traceID)
		}

		msg.SetContext(context.WithValue(msg.Context(), originKey{}, exportOrigin{
			traceID:   traceID,
			danmakuID: msg.Metadata.Get(pubsub.MetadataDanmakuID),
		}))
		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			o := originFrom(msg.Context())
			attrs := []any{
				"danmaku_id", o.danmakuID,
				"trace_id", o.traceID,
				"topic", message.SubscribeTopicFromCtx(msg.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("AUDIT_ATTEMPT_FAILED", append(attrs, "err", err)...)
				return msgs, err
			}
			logger.Debug("AUDIT_RECORDED", attrs...)
			return msgs, nil
		}
	}
}

// [RETRY_MIDDLEWARE]
// An audit record is worth a few quick retries; the export topic keeps anything that still fails.
func NewRetryMiddleware(logger *slog.Logger) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Logger:          watermill.NewSlogLogger(logger),
	}
}
