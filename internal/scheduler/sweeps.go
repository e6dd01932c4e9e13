package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"upkeep/internal/billing"
	"upkeep/internal/types"
)

const (
	// PausePageSize bounds each ticket-pause UPDATE so a sweep that dies
	// mid-tenant only delays progress, never corrupts it.
	PausePageSize = 200

	// sweepConcurrency bounds how many tenants are paused in parallel.
	sweepConcurrency = 4
)

// SweepDB defines the database operations needed by the entitlement sweeps.
type SweepDB interface {
	// ListExpiredDemoOrgIDs returns demo organizations whose expiry has
	// passed, in stable order.
	//
	// SQL: SELECT id FROM organizations
	//      WHERE org_type = 'demo' AND deleted_at IS NULL
	//        AND demo_expires_at <= $1
	//      ORDER BY id LIMIT $2
	ListExpiredDemoOrgIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ListNonGrantingOrgIDs returns non-demo organizations whose stored
	// primary entitlement no longer grants recurring generation: status
	// lapsed, trial expired, or plan outside grantingPlans (the set of
	// plans whose catalog features include the capability).
	ListNonGrantingOrgIDs(ctx context.Context, now time.Time, grantingPlans []string, limit int) ([]string, error)

	// PauseGeneratedBatch puts up to limit open generated tickets on hold,
	// keyset-scanning upward from afterID, and returns the paused IDs.
	// Re-running it over already-paused tickets is a no-op.
	PauseGeneratedBatch(ctx context.Context, orgID, afterID string, limit int) ([]string, error)
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Organizations int // tenants whose tickets were examined
	TicketsPaused int
	Failed        int // tenants that errored; retried on the next tick
}

// EntitlementSweeper runs the periodic jobs that take generated tickets out
// of circulation when a tenant loses its entitlement: demo expiry and
// subscription lapse. Pausing is idempotent, so overlapping or retried
// sweeps converge on the same state.
type EntitlementSweeper struct {
	db     SweepDB
	logger *slog.Logger

	// grantingPlans holds the plans whose catalog features include
	// recurring generation; organizations on any other plan are swept.
	grantingPlans []string
}

// NewEntitlementSweeper creates an EntitlementSweeper. The catalog decides
// which plans keep an organization out of the feature-loss sweep.
func NewEntitlementSweeper(db SweepDB, catalog billing.PlanCatalog, logger *slog.Logger) *EntitlementSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	var granting []string
	for _, plan := range catalog.Plans() {
		if catalog.Features(plan)[types.FeatureRecurringGeneration] {
			granting = append(granting, string(plan))
		}
	}
	return &EntitlementSweeper{db: db, logger: logger, grantingPlans: granting}
}

// PauseExpiredDemos pauses the generated tickets of demo organizations
// whose expiry has passed.
func (s *EntitlementSweeper) PauseExpiredDemos(ctx context.Context, now time.Time) (SweepResult, error) {
	ids, err := s.db.ListExpiredDemoOrgIDs(ctx, now, DefaultBatchLimit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing expired demo organizations: %w", err)
	}
	return s.pauseAll(ctx, "demo_expiry", ids)
}

// PauseEntitlementLapsed pauses the generated tickets of organizations that
// lost recurring generation: subscription lapsed (canceled, past due, trial
// expired) or downgraded to a plan without the feature.
func (s *EntitlementSweeper) PauseEntitlementLapsed(ctx context.Context, now time.Time) (SweepResult, error) {
	ids, err := s.db.ListNonGrantingOrgIDs(ctx, now, s.grantingPlans, DefaultBatchLimit)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing lapsed organizations: %w", err)
	}
	return s.pauseAll(ctx, "entitlement_lapse", ids)
}

// pauseAll fans the per-tenant pause loop out over a bounded worker group.
// One tenant's failure never blocks the others; it is logged, counted and
// retried on the next tick since the listing predicate still matches.
func (s *EntitlementSweeper) pauseAll(ctx context.Context, reason string, orgIDs []string) (SweepResult, error) {
	var (
		mu     sync.Mutex
		result SweepResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, orgID := range orgIDs {
		g.Go(func() error {
			paused, err := s.pauseOrg(gctx, orgID)

			mu.Lock()
			defer mu.Unlock()
			result.Organizations++
			result.TicketsPaused += paused
			if err != nil {
				result.Failed++
				s.logger.ErrorContext(gctx, "failed to pause tickets for organization",
					"org_id", orgID,
					"reason", reason,
					"error", err,
				)
			} else if paused > 0 {
				s.logger.InfoContext(gctx, "paused tickets for organization",
					"org_id", orgID,
					"reason", reason,
					"count", paused,
				)
			}
			return nil
		})
	}

	// Workers swallow their own errors, so Wait only propagates context
	// cancellation.
	if err := g.Wait(); err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "entitlement sweep complete",
		"reason", reason,
		"organizations", result.Organizations,
		"tickets_paused", result.TicketsPaused,
		"failed", result.Failed,
	)
	return result, nil
}

// pauseOrg walks one tenant's open generated tickets keyset-style until a
// page comes back empty.
func (s *EntitlementSweeper) pauseOrg(ctx context.Context, orgID string) (int, error) {
	total := 0
	afterID := ""
	for {
		ids, err := s.db.PauseGeneratedBatch(ctx, orgID, afterID, PausePageSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		total += len(ids)
		// RETURNING gives no ordering guarantee; advance past the highest
		// ID actually touched.
		for _, id := range ids {
			if id > afterID {
				afterID = id
			}
		}
	}
}
