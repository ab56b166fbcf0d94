package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the flat, env-parsed configuration surface described in
// spec.md §6. It is parsed once at process start and never mutated;
// per-session overrides are taken as a value copy, not a pointer into
// this struct.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MaxBufferBytes    int `env:"MAX_BUFFER_BYTES" envDefault:"1048576"`
	SessionTTLSeconds int `env:"SESSION_TTL_SECONDS" envDefault:"3600"`
	MaxSessions       int `env:"MAX_SESSIONS" envDefault:"1000"`

	DefaultStrategy             string `env:"DEFAULT_STRATEGY" envDefault:"smart"`
	AdaptiveEnabled             bool   `env:"ADAPTIVE_ENABLED" envDefault:"true"`
	ConsecutiveFailureThreshold int    `env:"CONSECUTIVE_FAILURE_THRESHOLD" envDefault:"3"`
	MinSwitchIntervalSeconds    int    `env:"MIN_SWITCH_INTERVAL_SECONDS" envDefault:"60"`

	DiffMode string `env:"DIFF_MODE" envDefault:"smart"`

	CoalesceEnabled     bool `env:"COALESCE_ENABLED" envDefault:"true"`
	CoalesceWindowMs    int  `env:"COALESCE_WINDOW_MS" envDefault:"100"`
	CoalesceStability   int  `env:"COALESCE_STABILITY" envDefault:"3"`
	CoalesceMaxBuffered int  `env:"COALESCE_MAX_BUFFERED" envDefault:"10"`

	SubscriberQueueCap int `env:"SUBSCRIBER_QUEUE_CAP" envDefault:"1024"`

	PathStyle string `env:"PATH_STYLE" envDefault:"dot"`

	CleanupPeriodSeconds int `env:"CLEANUP_PERIOD_SECONDS" envDefault:"60"`
}

// Load parses Config from the process environment, applying envDefault
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Default returns Config with every envDefault applied and the real
// environment ignored — used by tests and by callers embedding the core
// as a library rather than running it as a standalone process.
func Default() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}
