package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken    string `envconfig:"BOT_TOKEN" required:"true"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"` // sqlite|bolt|postgres
	DBPath      string `envconfig:"DB_PATH" default:"./data/reminder.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"` // enables the multi-instance day lock

	ReminderTZ     string `envconfig:"REMINDER_TZ" default:"Asia/Bishkek"`
	ReminderHour   int    `envconfig:"REMINDER_HOUR" default:"10"`
	ReminderMinute int    `envconfig:"REMINDER_MINUTE" default:"0"`

	SendConcurrency int     `envconfig:"SEND_CONCURRENCY" default:"4"`
	SendRatePerSec  float64 `envconfig:"SEND_RATE_PER_SEC" default:"25"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz
}

// Load reads an optional .env file, then environment variables into Config,
// and validates the result.
func Load() (Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("%w: BOT_TOKEN is empty", domain.ErrConfig)
	}
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("%w: REMINDER_HOUR must be 0..23, got %d", domain.ErrConfig, c.ReminderHour)
	}
	if c.ReminderMinute < 0 || c.ReminderMinute > 59 {
		return fmt.Errorf("%w: REMINDER_MINUTE must be 0..59, got %d", domain.ErrConfig, c.ReminderMinute)
	}
	if c.SendConcurrency < 1 {
		return fmt.Errorf("%w: SEND_CONCURRENCY must be >= 1", domain.ErrConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves ReminderTZ as an IANA zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReminderTZ)
	if err != nil {
		return nil, fmt.Errorf("%w: REMINDER_TZ %q: %v", domain.ErrConfig, c.ReminderTZ, err)
	}
	return loc, nil
}
