// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string        `env:"AVALON_ADDR" envDefault:":8080"`
	LogLevel         string        `env:"AVALON_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"AVALON_LOG_FORMAT" envDefault:"json"`
	MaxRounds        int           `env:"AVALON_MAX_ROUNDS" envDefault:"5"`
	SubscriberBuffer int           `env:"AVALON_SUBSCRIBER_BUFFER" envDefault:"64"`
	ArchiveDriver    string        `env:"AVALON_ARCHIVE_DRIVER"`
	ArchiveDSN       string        `env:"AVALON_ARCHIVE_DSN"`
	ArchiveBuffer    int           `env:"AVALON_ARCHIVE_BUFFER" envDefault:"256"`
	ShutdownTimeout  time.Duration `env:"AVALON_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads files (".env" when none are given) into the environment, then
// parses it. Missing files are fine; variables already set win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxRounds < 1 {
		return fmt.Errorf("AVALON_MAX_ROUNDS must be at least 1, got %d", c.MaxRounds)
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("AVALON_SUBSCRIBER_BUFFER must be at least 1, got %d", c.SubscriberBuffer)
	}
	switch c.ArchiveDriver {
	case "":
	case "sqlite", "postgres":
		if c.ArchiveDSN == "" {
			return fmt.Errorf("AVALON_ARCHIVE_DSN is required for driver %q", c.ArchiveDriver)
		}
		if c.ArchiveBuffer < 1 {
			return fmt.Errorf("AVALON_ARCHIVE_BUFFER must be at least 1, got %d", c.ArchiveBuffer)
		}
	default:
		return fmt.Errorf("unknown AVALON_ARCHIVE_DRIVER %q", c.ArchiveDriver)
	}
	return nil
}
