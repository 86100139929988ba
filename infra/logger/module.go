package logger

import (
	"context"
	"io"
	"log/slog"

	"github.com/webitel/danmaku-relay/config"
	"go.uber.org/fx"
)

type Result struct {
	fx.Out

	Logger *slog.Logger
	Level  *slog.LevelVar
	Closer io.Closer `name:"log_closer"`
}

func ProvideLogger(cfg *config.Config) (Result, error) {
	l, level, closer, err := New(cfg.Log, Stdout())
	if err != nil {
		return Result{}, err
	}
	slog.SetDefault(l)
	return Result{Logger: l, Level: level, Closer: closer}, nil
}

type lifecycleParams struct {
	fx.In

	LC     fx.Lifecycle
	Logger *slog.Logger
	Level  *slog.LevelVar
	Loader *config.Loader
	Closer io.Closer `name:"log_closer"`
}

var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
	fx.Invoke(func(p lifecycleParams) {
		// [HOT_RELOAD] only the level is applied live; everything else needs a restart
		p.Loader.Watch(func(cfg *config.Config, err error) {
			if err != nil {
				p.Logger.Warn("CONFIG_RELOAD_FAILED", "error", err)
				return
			}
			lvl, _ := cfg.Log.SlogLevel()
			if lvl != p.Level.Level() {
				p.Logger.Info("LOG_LEVEL_CHANGED", "from", p.Level.Level(), "to", lvl)
				p.Level.Set(lvl)
			}
		})

		p.LC.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return p.Closer.Close()
			},
		})
	}),
)
