package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DataDir      string        `env:"DATA_DIR" default:"data"`
	LogSource    string        `env:"LOG_SOURCE" default:"readings"`
	PollInterval time.Duration `env:"POLL_INTERVAL" default:"500ms"`

	SubscriberQueueSize int `env:"SUBSCRIBER_QUEUE_SIZE" default:"16"`
	MaxSubscribers      int `env:"MAX_SUBSCRIBERS" default:"1000"`

	DefaultTail int `env:"DEFAULT_TAIL" default:"100"`
	MaxTail     int `env:"MAX_TAIL" default:"10000"`

	AppendFailureThreshold uint32        `env:"APPEND_FAILURE_THRESHOLD" default:"5"`
	AppendBreakerTimeout   time.Duration `env:"APPEND_BREAKER_TIMEOUT" default:"30s"`

	// SerialPort starts ingestion at boot when set.
	SerialPort string `env:"SERIAL_PORT"`
	Baud       int    `env:"BAUD" default:"9600"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"5"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"10"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("DATA_DIR is required")
	}
	if strings.TrimSpace(cfg.LogSource) == "" {
		return errors.New("LOG_SOURCE is required")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("POLL_INTERVAL must be at least 10ms, got %s", cfg.PollInterval)
	}
	if cfg.SubscriberQueueSize < 1 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be positive, got %d", cfg.SubscriberQueueSize)
	}
	if cfg.MaxSubscribers < 0 {
		return fmt.Errorf("MAX_SUBSCRIBERS must not be negative, got %d", cfg.MaxSubscribers)
	}
	if cfg.DefaultTail < 1 || cfg.MaxTail < 1 {
		return errors.New("DEFAULT_TAIL and MAX_TAIL must be positive")
	}
	if cfg.DefaultTail > cfg.MaxTail {
		return fmt.Errorf("DEFAULT_TAIL (%d) must not exceed MAX_TAIL (%d)", cfg.DefaultTail, cfg.MaxTail)
	}
	if cfg.AppendFailureThreshold == 0 {
		return errors.New("APPEND_FAILURE_THRESHOLD must be positive")
	}
	if cfg.SerialPort != "" && cfg.Baud <= 0 {
		return fmt.Errorf("BAUD must be positive when SERIAL_PORT is set, got %d", cfg.Baud)
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst < 1 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}

	return nil
}
