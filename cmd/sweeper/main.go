// Package main is the entrypoint for the entitlement sweeper Lambda.
//
// The sweeper runs on a slower EventBridge schedule than the generator. It
// pauses generated tickets for demo organizations whose expiry has passed
// and for organizations whose subscription no longer grants entitlement.
// This file handles dependency wiring (cold start); the sweep logic lives
// in internal/scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"upkeep/internal/billing"
	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/scheduler"
)

// SweeperInput selects which sweeps an invocation runs. Both default to on.
type SweeperInput struct {
	SkipDemos  bool `json:"skip_demos"`
	SkipLapsed bool `json:"skip_lapsed"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("sweeper Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	sweeper := scheduler.NewEntitlementSweeper(db.NewSweepStore(pool), billing.NewStaticCatalog(), logger)

	lambda.Start(newHandler(sweeper, logger))
}

// newHandler runs the demo-expiry and entitlement-lapse sweeps in sequence.
// A failure in the first sweep does not prevent the second; both errors are
// reported so the invocation is marked failed and retried.
func newHandler(sweeper *scheduler.EntitlementSweeper, logger *slog.Logger) func(ctx context.Context, input SweeperInput) (string, error) {
	return func(ctx context.Context, input SweeperInput) (string, error) {
		now := time.Now().UTC()
		var (
			demoRes, lapsedRes scheduler.SweepResult
			demoErr, lapsedErr error
		)

		if !input.SkipDemos {
			demoRes, demoErr = sweeper.PauseExpiredDemos(ctx, now)
			if demoErr != nil {
				logger.ErrorContext(ctx, "demo expiry sweep failed", "error", demoErr)
			}
		}
		if !input.SkipLapsed {
			lapsedRes, lapsedErr = sweeper.PauseEntitlementLapsed(ctx, now)
			if lapsedErr != nil {
				logger.ErrorContext(ctx, "entitlement lapse sweep failed", "error", lapsedErr)
			}
		}

		summary := fmt.Sprintf("demo_orgs=%d demo_tickets=%d lapsed_orgs=%d lapsed_tickets=%d",
			demoRes.Organizations, demoRes.TicketsPaused,
			lapsedRes.Organizations, lapsedRes.TicketsPaused)
		logger.InfoContext(ctx, "entitlement sweep complete",
			"demo_organizations", demoRes.Organizations,
			"demo_tickets_paused", demoRes.TicketsPaused,
			"lapsed_organizations", lapsedRes.Organizations,
			"lapsed_tickets_paused", lapsedRes.TicketsPaused,
			"failed_organizations", demoRes.Failed+lapsedRes.Failed,
		)

		if demoErr != nil {
			return "", demoErr
		}
		if lapsedErr != nil {
			return "", lapsedErr
		}
		return summary, nil
	}
}
