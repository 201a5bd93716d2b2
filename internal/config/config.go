// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/utilities"
)

type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:"0.0.0.0:8431" validate:"required"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	// AllowedOrigins restricts websocket upgrades; empty allows same-origin only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

type Reminder struct {
	Lead     time.Duration `env:"LEAD" envDefault:"15m" validate:"gt=0"`
	TimeZone string        `env:"TIMEZONE" envDefault:"Local"`
}

type Scan struct {
	Cooldown       time.Duration `env:"COOLDOWN" envDefault:"2s" validate:"gt=0"`
	MaxSurfaceEdge int           `env:"MAX_SURFACE_EDGE" envDefault:"1024" validate:"gte=64"`
}

type Config struct {
	HTTP     HTTP                `envPrefix:"HTTP_"`
	Log      utilities.LogConfig `envPrefix:"LOG_"`
	Database database.Config     `envPrefix:"DATABASE_"`
	Auth     auth.Config         `envPrefix:"AUTH_"`
	Reminder Reminder            `envPrefix:"REMINDER_"`
	Scan     Scan                `envPrefix:"SCAN_"`

	CatalogPath        string        `env:"CATALOG_PATH"`
	BadgeNoticeDelay   time.Duration `env:"BADGE_NOTICE_DELAY" envDefault:"1s" validate:"gte=0"`
	NotificationIcon   string        `env:"NOTIFICATION_ICON" envDefault:"/icons/icon-192x192.png"`
	SnowflakeNode      int64         `env:"SNOWFLAKE_NODE" envDefault:"1" validate:"gte=0,lte=1023"`
	RefreshPrunePeriod time.Duration `env:"REFRESH_PRUNE_PERIOD" envDefault:"1h" validate:"gt=0"`
}

// Load reads .env files when present, then the process environment.
func Load(files ...string) (*Config, error) {
	// best-effort: a missing .env is not an error
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Location resolves the reminder time zone.
func (r Reminder) Location() (*time.Location, error) {
	if r.TimeZone == "" || r.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(r.TimeZone)
}
