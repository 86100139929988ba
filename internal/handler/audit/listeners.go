package audit

import (
	"context"

	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
)

// [ON_DANMAKU_EXPORTED]
func (h *MessageHandler) OnDanmakuExported(ctx context.Context, ev *pubsub.ExportedDanmaku) error {
	h.logger.Info(HandlerName,
		"id", ev.ID,
		"sender", ev.Sender,
		"text", ev.Text,
		"color", ev.Color,
		"size", ev.Size,
		"accepted_at", ev.AcceptedAt,
		"trace_id", TraceIDFromContext(ctx),
	)
	return nil
}
