package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	MediaDir       string        `envconfig:"MEDIA_DIR" required:"true"`
	SystemName     string        `envconfig:"SYSTEM_NAME" default:"unknown"`
	OverwriteMedia bool          `envconfig:"OVERWRITE_MEDIA" default:"false"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"100ms"`
	MaxWorkers     int           `envconfig:"MAX_WORKERS" default:"4"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"openretro-scraper/1.0"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"INFO"`
	JournalPath    string        `envconfig:"JOURNAL_PATH" default:"scrapes.db"`
	WebhookURL     string        `envconfig:"WEBHOOK_URL"`

	KeepMediaFor    time.Duration `envconfig:"KEEP_MEDIA_FOR" default:"0"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`

	Image struct {
		MaxWidth  int `split_words:"true" default:"640"`
		MaxHeight int `split_words:"true" default:"640"`
	}

	Retry struct {
		MaxAttempts int           `split_words:"true" default:"5"`
		BaseDelay   time.Duration `split_words:"true" default:"15s"`
		MaxDelay    time.Duration `split_words:"true" default:"60s"`
	}

	IGDB struct {
		ClientID          string  `split_words:"true"`
		ClientSecret      string  `split_words:"true"`
		RequestsPerSecond float64 `split_words:"true" default:"4"`
	}

	GamesDB struct {
		APIKey            string  `envconfig:"GAMESDB_API_KEY"`
		RequestsPerSecond float64 `envconfig:"GAMESDB_REQUESTS_PER_SECOND" default:"2"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"false"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT" default:"localhost:4317"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
