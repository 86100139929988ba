package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/webitel/danmaku-relay/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. The returned LevelVar is shared with the handler,
// so setting it changes the level of every derived logger at once.
// The closer releases the log file when file output is configured.
func New(cfg config.LogConfig, stdout io.Writer) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, nil, err
	}

	level := new(slog.LevelVar)
	level.Set(lvl)

	var (
		out    = stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(stdout, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	return slog.New(h), level, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Stdout is the default sink for the process logger.
func Stdout() io.Writer { return os.Stdout }
