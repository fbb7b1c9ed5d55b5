// Package config loads engine configuration from the environment.
//
// A .env file is honored when present (local development); real
// environments set variables directly.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Storage
	DatabasePath string `env:"DATABASE_PATH" envDefault:"attendance.db"`

	// Engine
	// ReferenceTimezone is the fixed civil timezone every day-boundary
	// decision uses, regardless of host or caller locale.
	ReferenceTimezone string  `env:"REFERENCE_TIMEZONE" envDefault:"Asia/Kolkata"`
	FullDayThreshold  float64 `env:"FULL_DAY_THRESHOLD_HOURS" envDefault:"8"`
	AppendMaxRetries  int     `env:"APPEND_MAX_RETRIES" envDefault:"3"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
