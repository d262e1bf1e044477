package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the troupe supervisor.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"TROUPE_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Spec file describing the ensemble
	SpecPath string `env:"TROUPE_SPEC_PATH" envDefault:"troupe.yaml"`

	// Plugin repositories
	Plugins PluginConfig

	// Supervision policy
	Supervision SupervisionConfig

	// Elastic pool tuning
	Pool PoolConfig

	// Redis configuration (telemetry stream)
	Redis RedisConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// PluginConfig holds the repository roots artifacts are resolved against.
type PluginConfig struct {
	StaticRoot  string `env:"TROUPE_STATIC_REPO" envDefault:"/var/lib/troupe/plugins"`
	DynamicRoot string `env:"TROUPE_DYNAMIC_REPO" envDefault:"/var/lib/troupe/dynamic"`

	// VerifyArtifacts requires the resolved artifact file to exist at load time.
	VerifyArtifacts bool `env:"TROUPE_VERIFY_ARTIFACTS" envDefault:"false"`
}

// SupervisionConfig holds the bounded-retry restart policy.
type SupervisionConfig struct {
	MaxRestarts   int           `env:"TROUPE_MAX_RESTARTS" envDefault:"3"`
	RestartWindow time.Duration `env:"TROUPE_RESTART_WINDOW" envDefault:"1m"`

	// RebuildDelay is how long the host waits before rebuilding the ensemble
	// after an escalation.
	RebuildDelay time.Duration `env:"TROUPE_REBUILD_DELAY" envDefault:"5s"`
}

// PoolConfig holds elastic pool tuning.
type PoolConfig struct {
	// SampleEvery is the number of dispatched messages between resize decisions.
	SampleEvery int `env:"TROUPE_POOL_SAMPLE_EVERY" envDefault:"64"`
	// QueueCapacity is the per-worker mailbox capacity.
	QueueCapacity int `env:"TROUPE_POOL_QUEUE_CAPACITY" envDefault:"128"`
	// BacklogFactor is the occupancy fraction past which a worker counts as
	// backlogged, and the backlogged-worker fraction past which the pool grows.
	BacklogFactor float64 `env:"TROUPE_POOL_BACKLOG_FACTOR" envDefault:"0.4"`
	// ShrinkFraction is the backlogged-worker fraction below which the pool
	// shrinks.
	ShrinkFraction float64 `env:"TROUPE_POOL_SHRINK_FRACTION" envDefault:"0.1"`
}

// RedisConfig holds Redis connection configuration. An empty Addr disables
// the Redis telemetry sink.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// TimeoutConfig holds shutdown timing.
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Supervision.MaxRestarts < 1 {
		return fmt.Errorf("max restarts must be at least 1")
	}
	if c.Supervision.RestartWindow <= 0 {
		return fmt.Errorf("restart window must be positive")
	}

	if c.Pool.SampleEvery < 1 {
		return fmt.Errorf("pool sample interval must be at least 1")
	}
	if c.Pool.QueueCapacity < 1 {
		return fmt.Errorf("pool queue capacity must be at least 1")
	}
	if c.Pool.BacklogFactor <= 0 || c.Pool.BacklogFactor >= 1 {
		return fmt.Errorf("pool backlog factor must be in (0, 1): %f", c.Pool.BacklogFactor)
	}
	if c.Pool.ShrinkFraction < 0 || c.Pool.ShrinkFraction >= c.Pool.BacklogFactor {
		return fmt.Errorf("pool shrink fraction must be below the backlog factor: %f", c.Pool.ShrinkFraction)
	}

	if c.Plugins.StaticRoot == "" {
		return fmt.Errorf("static plugin repository root is required")
	}
	if c.Plugins.DynamicRoot == "" {
		return fmt.Errorf("dynamic plugin repository root is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
