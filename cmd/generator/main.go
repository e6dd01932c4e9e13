// Package main is the entrypoint for the recurring generator Lambda.
//
// The generator runs on a fixed EventBridge schedule. Each invocation lists
// templates whose next occurrence is due, materializes one ticket per due
// template inside a tenant-locked transaction, and publishes a creation
// event for downstream assignment workers. This file handles dependency
// wiring (cold start); the sweep logic lives in internal/scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"upkeep/internal/billing"
	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/queue"
	"upkeep/internal/scheduler"
)

// GeneratorInput is the optional EventBridge invocation payload.
type GeneratorInput struct {
	// Limit overrides the configured batch limit for this invocation.
	Limit int `json:"limit"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("generator Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := queue.NewTicketPublisher(sqsClient, cfg.AWS.TicketQueueURL, logger)

	catalog := billing.NewStaticCatalog()
	enforcer := billing.NewQuotaEnforcer(billing.NewResolver(catalog))

	generator := scheduler.NewGenerator(db.NewGeneratorStore(pool), enforcer, publisher, logger)
	generator.BatchLimit = cfg.Jobs.BatchLimit

	logger.Info("generator Lambda initialized",
		"batch_limit", cfg.Jobs.BatchLimit,
		"queue_url", cfg.AWS.TicketQueueURL,
	)

	lambda.Start(newHandler(generator, logger))
}

// newHandler wraps Generator.Run with input parsing and result reporting.
func newHandler(generator *scheduler.Generator, logger *slog.Logger) func(ctx context.Context, input GeneratorInput) (string, error) {
	return func(ctx context.Context, input GeneratorInput) (string, error) {
		if input.Limit > 0 {
			generator.BatchLimit = input.Limit
		}

		result, err := generator.Run(ctx, time.Now().UTC())
		if err != nil {
			logger.ErrorContext(ctx, "generation sweep failed", "error", err)
			return "", err
		}

		summary := fmt.Sprintf("processed=%d created=%d skipped=%d failed=%d",
			result.Processed, result.Created, result.Skipped, result.Failed)
		logger.InfoContext(ctx, "generation sweep complete",
			"processed", result.Processed,
			"created", result.Created,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
		return summary, nil
	}
}
