package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/webitel/danmaku-relay/config"
)

const shutdownGrace = 5 * time.Second

// Server binds eagerly so a bad address fails app start instead of a background goroutine.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
	addr   string

	ln   net.Listener
	done chan struct{}
}

func New(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
		addr:   cfg.Server.Addr(),
		done:   make(chan struct{}),
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}
	s.ln = ln

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVER_FAILED", "err", err)
		}
	}()

	s.logger.Info("HTTP_SERVER_LISTENING", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// OnShutdown registers f to run as soon as Stop begins, before in-flight requests drain.
func (s *Server) OnShutdown(f func()) {
	s.srv.RegisterOnShutdown(f)
}

// Stop stops accepting connections and waits for in-flight HTTP requests.
// Upgraded WebSocket sessions are not tracked by net/http; they end when the hub closes.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	<-s.done
	if err != nil {
		return fmt.Errorf("http server: shutdown: %w", err)
	}
	s.logger.Info("HTTP_SERVER_STOPPED")
	return nil
}
