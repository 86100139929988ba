package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/infra/metrics"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
	"github.com/webitel/danmaku-relay/internal/domain/registry"
	wsmarshaller "github.com/webitel/danmaku-relay/internal/handler/marshaller/ws"
	"github.com/webitel/danmaku-relay/internal/service"
	"golang.org/x/sync/errgroup"
)

type RelayHandler struct {
	logger   *slog.Logger
	relayer  service.Relayer
	frames   *wsmarshaller.FrameCache
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	idleTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64
}

func NewRelayHandler(
	logger *slog.Logger,
	relayer service.Relayer,
	frames *wsmarshaller.FrameCache,
	m *metrics.Metrics,
	cfg *config.Config,
) *RelayHandler {
	return &RelayHandler{
		logger:  logger,
		relayer: relayer,
		frames:  frames,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // anonymous public relay
		},
		idleTimeout:  cfg.Server.IdleTimeout,
		writeTimeout: cfg.Server.WriteTimeout,
		readLimit:    cfg.Server.ReadLimit,
	}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		h.logger.Warn("[STREAM] upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}

	_ = h.Serve(r.Context(), conn)
}

// Serve runs one relay session on an upgraded connection and always closes it.
// Inbound and outbound halves race; whichever ends first cancels the other.
// The returned error is the reason the session ended, nil for a clean close.
func (h *RelayHandler) Serve(ctx context.Context, conn *websocket.Conn) error {
	l := h.logger.With(
		slog.String("session_id", uuid.NewString()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	// [SUBSCRIBE_FIRST] nothing published after this point can be missed
	sub, replay, err := h.relayer.Subscribe(ctx)
	if err != nil {
		l.Error("[HUB] subscription rejected", slog.Any("err", err))
		conn.Close()
		return err
	}

	h.metrics.Connections.Inc()
	h.metrics.ConnectionsTotal.Inc()
	l.Info("[STREAM] session established", slog.String("conn_id", sub.ID().String()), slog.Int("replay", len(replay)))

	// [RESOURCE_RECLAMATION]
	defer func() {
		sub.Close()
		conn.Close()
		h.metrics.Connections.Dec()
	}()

	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// [WATCHER] the reader only unblocks when the socket closes
	go func() {
		<-gctx.Done()
		conn.Close()
	}()

	g.Go(func() error {
		defer cancel()
		return h.inbound(gctx, conn, l)
	})
	g.Go(func() error {
		defer cancel()
		return h.outbound(gctx, conn, sub, replay, l)
	})

	if err := g.Wait(); err != nil {
		l.Warn("[STREAM] connection terminated", slog.Any("reason", err))
		return err
	}

	l.Info("[STREAM] connection closed and resources reclaimed")
	return nil
}

// inbound decodes client frames and hands them to the relay until the client goes away.
func (h *RelayHandler) inbound(ctx context.Context, conn *websocket.Conn, l *slog.Logger) error {
	for {
		if h.idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
				return fmt.Errorf("inbound: %w", err)
			}
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// [PEER_CLOSED] or the other half already ended the session
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("inbound: read: %w", err)
		}

		d, err := wsmarshaller.Decode(msgType, data)
		if err != nil {
			h.metrics.DecodeFailures.Inc()
			l.Warn("DECODE_FAILED", slog.Any("err", err), slog.Int("bytes", len(data)))
			continue
		}

		id, err := h.relayer.Submit(ctx, d)
		if err != nil {
			h.metrics.BroadcastFailures.Inc()
			l.Warn("BROADCAST_FAILED", slog.Any("id", id), slog.Any("err", err))
			if errors.Is(err, registry.ErrHubClosed) {
				return nil
			}
		}
	}
}

// outbound writes every published danmaku to the client until the subscription ends.
func (h *RelayHandler) outbound(ctx context.Context, conn *websocket.Conn, sub registry.Subscriber, replay []pool.Entry, l *slog.Logger) error {
	// [REPLAY] ids published between subscribe and snapshot arrive twice; skip the second copy
	var replayed map[pool.ID]struct{}
	if len(replay) > 0 {
		replayed = make(map[pool.ID]struct{}, len(replay))
		for _, e := range replay {
			if err := h.write(conn, e.ID, e.Danmaku); err != nil {
				return ignoreIfCanceled(ctx, err)
			}
			replayed[e.ID] = struct{}{}
		}
	}

	for {
		id, ok := sub.Next(ctx)
		if !ok {
			return nil
		}

		if _, dup := replayed[id]; dup {
			delete(replayed, id)
			continue
		}

		d, ok := h.relayer.Resolve(id)
		if !ok {
			h.metrics.Misses.Inc()
			l.Warn("DANMAKU_MISSING", slog.Any("id", id))
			continue
		}

		if err := h.write(conn, id, d); err != nil {
			return ignoreIfCanceled(ctx, err)
		}
	}
}

func (h *RelayHandler) write(conn *websocket.Conn, id pool.ID, d model.Danmaku) error {
	frame, err := h.frames.Frame(id, d)
	if err != nil {
		return fmt.Errorf("outbound: encode %s: %w", id, err)
	}

	if h.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return fmt.Errorf("outbound: %w", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("outbound: write: %w", err)
	}

	h.metrics.Delivered.Inc()
	return nil
}

// ignoreIfCanceled drops errors caused by the watcher closing the socket under a half that lost the race.
func ignoreIfCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
