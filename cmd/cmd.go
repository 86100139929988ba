package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/webitel/danmaku-relay/config"
	"github.com/webitel/danmaku-relay/internal/domain/model"
)

const (
	ServiceName      = "danmaku-relay"
	ServiceNamespace = "webitel"
)

// Set via -ldflags "-X github.com/webitel/danmaku-relay/cmd.version=..."
var (
	version        = "0.0.0"
	commit         = "hash"
	branch         = "branch"
	buildTimestamp = ""
)

func buildInfo() model.BuildInfo {
	info := model.BuildInfo{
		Name:      ServiceName,
		Version:   version,
		Commit:    commit,
		Branch:    branch,
		BuiltAt:   buildTimestamp,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "hash" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuiltAt == "" {
					info.BuiltAt = s.Value
				}
			}
		}
	}
	if info.BuiltAt == "" {
		info.BuiltAt = "unknown"
	}
	return info
}

func Run() error {
	return newApp().Run(os.Args)
}

func newApp() *cli.App {
	info := buildInfo()

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print build information and exit",
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, info.String())
	}

	return &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time danmaku relay over WebSocket",
		Version: info.Version,
		Commands: []*cli.Command{
			serverCmd(info),
			versionCmd(info),
		},
	}
}

func versionCmd(info model.BuildInfo) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, info.String())
			return err
		},
	}
}

func serverCmd(info model.BuildInfo) *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the relay server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"DANMAKU_CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Value:   "127.0.0.1",
				Usage:   "Address to listen on",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   9000,
				Usage:   "Port to listen on",
			},
			&cli.IntFlag{
				Name:    "threads",
				Aliases: []string{"t"},
				Usage:   "Worker threads (GOMAXPROCS), 0 for the number of CPUs",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			loader := config.NewLoader(c.String("config_file"))
			applyFlags(c, loader)

			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			if cfg.Server.Threads > 0 {
				runtime.GOMAXPROCS(cfg.Server.Threads)
			}

			app := NewApp(cfg, loader, info)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

// applyFlags pins explicitly set flags above the file and environment.
func applyFlags(c *cli.Context, loader *config.Loader) {
	overrides := []struct {
		flag string
		key  string
		val  func(string) any
	}{
		{"address", "server.address", func(n string) any { return c.String(n) }},
		{"port", "server.port", func(n string) any { return c.Int(n) }},
		{"threads", "server.threads", func(n string) any { return c.Int(n) }},
		{"verbose", "log.verbose", func(n string) any { return c.Bool(n) }},
	}
	for _, o := range overrides {
		if c.IsSet(o.flag) {
			loader.Override(o.key, o.val(o.flag))
		}
	}
}
