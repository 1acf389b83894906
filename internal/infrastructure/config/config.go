package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Kernel    KernelConfig
	Jobs      JobsConfig
	Stream    StreamConfig
	Webhooks  WebhookConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// KernelConfig holds kernel-wide configuration.
type KernelConfig struct {
	AppsDir          string `envconfig:"KERNEL_APPS_DIR" default:"./apps"`
	StatePath        string `envconfig:"KERNEL_STATE_PATH" default:"/tmp/promptforge/kernel-state.json"`
	ReplayCapacity   int    `envconfig:"KERNEL_REPLAY_CAPACITY" default:"200"`
	AuditCapacity    int    `envconfig:"KERNEL_AUDIT_CAPACITY" default:"1000"`
	LegacyOpenAccess bool   `envconfig:"KERNEL_LEGACY_OPEN_ACCESS" default:"false"`
	PublishTokenHash string `envconfig:"KERNEL_PUBLISH_TOKEN_HASH" default:""`
	// RequestTimeout bounds synchronous bus requests made over HTTP.
	RequestTimeout time.Duration `envconfig:"KERNEL_REQUEST_TIMEOUT" default:"30s"`
}

// JobsConfig holds job scheduler configuration. Queue depth is unbounded;
// History caps how many terminal job records are retained.
type JobsConfig struct {
	MaxWorkers int `envconfig:"KERNEL_JOB_WORKERS" default:"4"`
	History    int `envconfig:"KERNEL_QUEUE_HISTORY" default:"10000"`
}

// StreamConfig holds stream-bridge configuration.
type StreamConfig struct {
	KeepaliveInterval time.Duration `envconfig:"KERNEL_STREAM_KEEPALIVE" default:"30s"`
	SendBuffer        int           `envconfig:"KERNEL_STREAM_BUFFER" default:"64"`
}

// WebhookConfig holds event webhook forwarding configuration.
type WebhookConfig struct {
	Targets []string      `envconfig:"KERNEL_WEBHOOK_TARGETS" default:""`
	Timeout time.Duration `envconfig:"KERNEL_WEBHOOK_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Kernel: KernelConfig{
			AppsDir:        "./apps",
			StatePath:      "/tmp/promptforge/kernel-state.json",
			ReplayCapacity: 200,
			AuditCapacity:  1000,
			RequestTimeout: 30 * time.Second,
		},
		Jobs: JobsConfig{
			MaxWorkers: 4,
			History:    10000,
		},
		Stream: StreamConfig{
			KeepaliveInterval: 30 * time.Second,
			SendBuffer:        64,
		},
		Webhooks: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
