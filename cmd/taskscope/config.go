package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the demo settings. Every field is read from a TASKSCOPE_
// prefixed environment variable, optionally seeded from a .env file.
type Config struct {
	Workers   int           `env:"WORKERS" envDefault:"4"`
	Tasks     int           `env:"TASKS" envDefault:"10000"`
	Deadline  time.Duration `env:"DEADLINE" envDefault:"300ms"`
	Grace     time.Duration `env:"GRACE" envDefault:"1s"`
	LogLevel  string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string        `env:"LOG_FORMAT" envDefault:"text"`
	FailRate  float64       `env:"FAIL_RATE" envDefault:"0.5"`
	Seed      uint64        `env:"SEED"`
}

func loadConfig() (Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TASKSCOPE_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("TASKSCOPE_WORKERS must be positive, got %d", c.Workers)
	case c.Tasks < 0:
		return fmt.Errorf("TASKSCOPE_TASKS must not be negative, got %d", c.Tasks)
	case c.Deadline <= 0:
		return fmt.Errorf("TASKSCOPE_DEADLINE must be positive, got %s", c.Deadline)
	case c.Grace < 0:
		return fmt.Errorf("TASKSCOPE_GRACE must not be negative, got %s", c.Grace)
	case c.FailRate < 0 || c.FailRate > 1:
		return fmt.Errorf("TASKSCOPE_FAIL_RATE must be within [0, 1], got %g", c.FailRate)
	}
	return nil
}
