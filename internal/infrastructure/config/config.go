package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Backend   BackendConfig
	Intercept InterceptConfig
	Detect    DetectConfig
	Inject    InjectConfig
	Logging   LogConfig
}

// ServerConfig holds the control-plane HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// RedisConfig selects the shared settings store. An empty URL keeps the
// store in process memory.
type RedisConfig struct {
	URL    string `envconfig:"REDIS_URL" default:""`
	Prefix string `envconfig:"REDIS_PREFIX" default:"frevo"`
}

// BackendConfig holds the collaboration API client configuration.
type BackendConfig struct {
	BaseURL   string        `envconfig:"BACKEND_URL" default:"https://api.frevo.app"`
	Timeout   time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	RetryMax  int           `envconfig:"BACKEND_RETRY_MAX" default:"3"`
	RateLimit float64       `envconfig:"BACKEND_RATE_LIMIT" default:"0"`
}

// InterceptConfig holds the request interception configuration.
type InterceptConfig struct {
	WatchedPath        string `envconfig:"WATCHED_PATH" default:"/api/projects/0.1/projects/active"`
	DefaultJobsPerPage int    `envconfig:"DEFAULT_JOBS_PER_PAGE" default:"20"`
}

// DetectConfig holds the navigation detector cadence.
type DetectConfig struct {
	PollInterval time.Duration `envconfig:"NAV_POLL_INTERVAL" default:"1s"`
	SettleDelay  time.Duration `envconfig:"NAV_SETTLE_DELAY" default:"1s"`
}

// InjectConfig holds the injection manager timing.
type InjectConfig struct {
	PollInterval  time.Duration `envconfig:"INJECT_POLL_INTERVAL" default:"500ms"`
	AnchorTimeout time.Duration `envconfig:"INJECT_ANCHOR_TIMEOUT" default:"20s"`
	Debounce      time.Duration `envconfig:"INJECT_DEBOUNCE" default:"250ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
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
			Port: "8090",
			Host: "0.0.0.0",
		},
		Redis: RedisConfig{
			Prefix: "frevo",
		},
		Backend: BackendConfig{
			BaseURL:  "https://api.frevo.app",
			Timeout:  30 * time.Second,
			RetryMax: 3,
		},
		Intercept: InterceptConfig{
			WatchedPath:        "/api/projects/0.1/projects/active",
			DefaultJobsPerPage: 20,
		},
		Detect: DetectConfig{
			PollInterval: time.Second,
			SettleDelay:  time.Second,
		},
		Inject: InjectConfig{
			PollInterval:  500 * time.Millisecond,
			AnchorTimeout: 20 * time.Second,
			Debounce:      250 * time.Millisecond,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
