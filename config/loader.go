package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var defaults = map[string]any{
	"server.address":       "127.0.0.1",
	"server.port":          9000,
	"server.threads":       0,
	"server.idle_timeout":  "0s",
	"server.write_timeout": "10s",
	"server.read_limit":    64 * 1024,
	"server.poll_timeout":  "30s",

	"log.verbose":      false,
	"log.level":        "info",
	"log.format":       "text",
	"log.file":         "",
	"log.max_size_mb":  100,
	"log.max_backups":  3,
	"log.max_age_days": 28,

	"pool.capacity":       100,
	"pool.gc_interval":    "1m",
	"pool.replay_on_join": false,

	"broadcast.mailbox_size": 20,
	"broadcast.send_timeout": "500ms",

	"export.driver":           ExportNone,
	"export.topic":            "danmaku",
	"export.amqp_url":         "",
	"export.breaker_failures": 5,
	"export.breaker_timeout":  "30s",
	"export.audit":            false,

	"tracing.enabled":      false,
	"tracing.sample_ratio": 1.0,
}

// Loader layers defaults, an optional config file, DANMAKU_* environment variables
// and explicit overrides (CLI flags), lowest to highest precedence.
type Loader struct {
	v    *viper.Viper
	file string

	mu       sync.Mutex
	watching bool
}

func NewLoader(file string) *Loader {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	}

	return &Loader{v: v, file: file}
}

// Override pins key to value above every other source.
func (l *Loader) Override(key string, value any) {
	l.v.Set(key, value)
}

// Load reads the file (if any), decodes and validates the result.
func (l *Loader) Load() (*Config, error) {
	if l.file != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.file, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Watch calls fn with the re-decoded config every time the config file changes.
// It is a no-op without a config file. Only the first call registers a watcher.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.file == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watching {
		return
	}
	l.watching = true

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.decode())
	})
	l.v.WatchConfig()
}

// LoadConfig is a shortcut for NewLoader(file).Load().
func LoadConfig(file string) (*Config, error) {
	return NewLoader(file).Load()
}
