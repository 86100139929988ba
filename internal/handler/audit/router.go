/*
Package audit consumes the export stream and writes every exported danmaku to the log.

It runs only when export is enabled and export.audit is set, which gives an operator a record of
what was said on the relay without touching the delivery path.
*/
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/danmaku-relay/internal/adapter/pubsub"
)

const (
	HandlerName = "DANMAKU_AUDIT"
	QueueSuffix = "audit"
)

type MessageHandler struct {
	logger *slog.Logger
}

func NewMessageHandler(logger *slog.Logger) *MessageHandler {
	return &MessageHandler{logger: logger}
}

func NewWatermillRouter(logger *slog.Logger) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, watermill.NewSlogLogger(logger))
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, provider *pubsub.Provider, topic string) error {
	sub, err := provider.Subscriber(QueueSuffix)
	if err != nil {
		return fmt.Errorf("audit: subscriber: %w", err)
	}

	router.AddConsumerHandler(HandlerName, topic, sub, Bind(h, h.OnDanmakuExported)).AddMiddleware(
		middleware.Recoverer,
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
		NewRetryMiddleware(h.logger).Middleware,
		middleware.Timeout(10*time.Second),
	)

	h.logger.Info("AUDIT_PIPELINE_READY", "topic", topic, "queue_suffix", QueueSuffix)
	return nil
}

// Run blocks until ctx is done or the router is closed.
func Run(ctx context.Context, router *message.Router) error {
	return router.Run(ctx)
}
