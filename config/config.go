package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const EnvPrefix = "DANMAKU"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Export    ExportConfig    `mapstructure:"export"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	// Threads caps GOMAXPROCS. Zero keeps the runtime default (number of CPUs).
	Threads int `mapstructure:"threads"`
	// IdleTimeout closes a connection that sent nothing for this long. Zero disables it.
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// PollTimeout bounds how long a long-poll request waits for the next danmaku.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// Addr is the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

type LogConfig struct {
	Verbose    bool   `mapstructure:"verbose"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SlogLevel resolves the effective level. Verbose always wins.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	if l.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

type PoolConfig struct {
	Capacity     int           `mapstructure:"capacity"`
	GCInterval   time.Duration `mapstructure:"gc_interval"`
	ReplayOnJoin bool          `mapstructure:"replay_on_join"`
}

type BroadcastConfig struct {
	MailboxSize int           `mapstructure:"mailbox_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

const (
	ExportNone      = "none"
	ExportGoChannel = "gochannel"
	ExportAMQP      = "amqp"
)

type ExportConfig struct {
	Driver          string        `mapstructure:"driver"`
	Topic           string        `mapstructure:"topic"`
	AMQPURL         string        `mapstructure:"amqp_url"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	// Audit logs every exported danmaku by consuming the export stream.
	Audit bool `mapstructure:"audit"`
}

// Enabled reports whether accepted danmaku are mirrored to an external publisher.
func (e ExportConfig) Enabled() bool {
	return e.Driver != "" && e.Driver != ExportNone
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.Threads < 0 {
		errs = append(errs, fmt.Errorf("server.threads: must not be negative, got %d", c.Server.Threads))
	}
	if c.Server.IdleTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.PollTimeout < 0 {
		errs = append(errs, errors.New("server: timeouts must not be negative"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if c.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.capacity: must be positive, got %d", c.Pool.Capacity))
	}
	if c.Broadcast.MailboxSize <= 0 {
		errs = append(errs, fmt.Errorf("broadcast.mailbox_size: must be positive, got %d", c.Broadcast.MailboxSize))
	}
	if c.Broadcast.SendTimeout < 0 {
		errs = append(errs, errors.New("broadcast.send_timeout: must not be negative"))
	}

	switch c.Export.Driver {
	case ExportNone, ExportGoChannel:
	case ExportAMQP:
		if c.Export.AMQPURL == "" {
			errs = append(errs, errors.New("export.amqp_url: required for the amqp driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("export.driver: unknown driver %q", c.Export.Driver))
	}
	if c.Export.Enabled() && c.Export.Topic == "" {
		errs = append(errs, errors.New("export.topic: required when export is enabled"))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio: %v not in [0, 1]", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}
