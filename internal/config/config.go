// Package config defines the global configuration for the Upkeep backend.
// Configuration is loaded once at process initialization and is immutable
// thereafter; code and configuration stay strictly separated.
//
// Values are resolved from the OS environment, with a .env file as a
// development convenience. Any missing required value or invalid format
// fails the process immediately on startup.
package config

import (
	"time"

	"upkeep/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"upkeep"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Jobs     JobsConfig
}

// IsLocal reports whether the process runs in local development mode, where
// webhook signature checking may be stubbed.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Queue consumed by downstream assignment/notification workers.
	TicketQueueURL string `envconfig:"SQS_TICKET_EVENTS" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds the signing secrets for the three providers. The App
// Store root certificate is the PEM-encoded trust anchor for notification
// JWS chains.
type BillingConfig struct {
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PaddleWebhookSecret SecretString `envconfig:"PADDLE_WEBHOOK_SECRET"`
	AppStoreRootCertPEM SecretString `envconfig:"APP_STORE_ROOT_CERT_PEM"`

	// AdminToken authorizes the administrative entitlement override
	// endpoint.
	AdminToken SecretString `envconfig:"ADMIN_API_TOKEN"`
}

// JobsConfig tunes the scheduled jobs.
type JobsConfig struct {
	BatchLimit int `envconfig:"JOB_BATCH_LIMIT" default:"100"`
}
