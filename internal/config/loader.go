package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig builds the Config from the process environment:
//
//  1. Enforce UTC so calendar math never drifts with the host timezone.
//  2. Load a .env file via godotenv (non-fatal if absent; never overrides
//     existing environment variables).
//  3. Process envconfig tags to populate the struct.
//  4. Validate the populated struct with go-playground/validator.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
