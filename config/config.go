// Package config loads a worker process configuration from a file, the
// environment and command-line flags.
//
// Precedence is flags > FAKTORY_* environment > file > defaults. The
// server URL is never read from the environment here; an empty URL lets
// the client resolve FAKTORY_PROVIDER and FAKTORY_URL itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xraph/faktory"
	"github.com/xraph/faktory/queue"
)

// EnvPrefix prefixes every environment override, e.g. FAKTORY_CONCURRENCY.
const EnvPrefix = "FAKTORY"

// File is the on-disk configuration.
type File struct {
	URL               string         `mapstructure:"url"`
	Concurrency       int            `mapstructure:"concurrency"`
	Queues            []string       `mapstructure:"queues"`
	Weights           map[string]int `mapstructure:"weights"`
	Strict            bool           `mapstructure:"strict"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout"`
	HeartbeatInterval time.Duration  `mapstructure:"heartbeat_interval"`
	ReadTimeout       time.Duration  `mapstructure:"read_timeout"`
	PoolSize          int            `mapstructure:"pool_size"`
	PoolTimeout       time.Duration  `mapstructure:"pool_timeout"`
	Tag               string         `mapstructure:"tag"`
	Labels            []string       `mapstructure:"labels"`
	Limits            []queue.Config `mapstructure:"limits"`
	Log               LogConfig      `mapstructure:"log"`
}

// LogConfig selects the process log handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Option configures Load.
type Option func(*viper.Viper) error

// WithFlags binds flags whose names match configuration keys, with "."
// and "_" written as "-" (e.g. --shutdown-timeout, --log-level).
// Only flags the user actually set override lower layers.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(v *viper.Viper) error {
		for _, key := range keys() {
			f := fs.Lookup(flagName(key))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		}
		return nil
	}
}

// Load reads path (YAML, JSON or TOML by extension; empty means no
// file) and applies environment and option overrides on top of
// faktory.DefaultConfig.
func Load(path string, opts ...Option) (*File, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys() {
		if key == "url" {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("faktory/config: bind env %s: %w", key, err)
		}
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("faktory/config: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("faktory/config: read %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("faktory/config: unmarshal: %w", err)
	}
	return &f, nil
}

// Config converts f into a validated faktory.Config.
func (f *File) Config() (faktory.Config, error) {
	cfg := faktory.Config{
		URL:               f.URL,
		Concurrency:       f.Concurrency,
		Queues:            f.Queues,
		Weights:           f.Weights,
		Strict:            f.Strict,
		ShutdownTimeout:   f.ShutdownTimeout,
		HeartbeatInterval: f.HeartbeatInterval,
		ReadTimeout:       f.ReadTimeout,
		PoolSize:          f.PoolSize,
		PoolTimeout:       f.PoolTimeout,
		Tag:               f.Tag,
		Labels:            f.Labels,
	}
	if err := cfg.Validate(); err != nil {
		return faktory.Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := faktory.DefaultConfig()
	v.SetDefault("url", "")
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("queues", d.Queues)
	v.SetDefault("strict", d.Strict)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("pool_timeout", d.PoolTimeout)
	v.SetDefault("tag", "")
	v.SetDefault("labels", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// keys lists the scalar and list keys that env and flags may override.
// Weights and limits are file-only.
func keys() []string {
	return []string{
		"url", "concurrency", "queues", "strict",
		"shutdown_timeout", "heartbeat_interval", "read_timeout",
		"pool_size", "pool_timeout", "tag", "labels",
		"log.level", "log.format",
	}
}

func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}
