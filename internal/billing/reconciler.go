package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upkeep/internal/types"
)

// ReconcilerDB is the persistence surface the reconciler needs: a per-
// organization transaction with the row locked for update. Mutations fn
// makes to the organization are persisted before commit; an error from fn
// rolls the transaction back.
type ReconcilerDB interface {
	RunInOrgTx(ctx context.Context, orgID string, fn func(org *types.Organization) error) error
}

// TicketResumer un-pauses tickets that were paused by entitlement once an
// organization regains a granting subscription. Implemented by the ticket
// repository; may be nil when auto-resume is not wired.
type TicketResumer interface {
	ResumePausedByEntitlement(ctx context.Context, orgID string) (int, error)
}

// Reconciler applies normalized billing events to tenant entitlement state.
//
// Webhook delivery may duplicate or reorder events, and the three providers
// deliver independently, so the reconciler relies on two mechanisms only:
// last-write-wins on the per-provider UpdatedAt timestamp, and the provider
// precedence rule -- an event from a provider other than the primary one is
// recorded but not applied while the primary provider's status is still
// granting. Event ordering is never assumed.
type Reconciler struct {
	db      ReconcilerDB
	catalog PlanCatalog
	resumer TicketResumer
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. The resumer may be nil.
func NewReconciler(db ReconcilerDB, catalog PlanCatalog, resumer TicketResumer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{db: db, catalog: catalog, resumer: resumer, logger: logger}
}

// Apply reconciles one normalized billing event under a tenant-scoped
// transaction. Safe to call twice with the same event: stale and duplicate
// deliveries are idempotent no-ops.
func (r *Reconciler) Apply(ctx context.Context, event types.BillingEvent) error {
	var regained bool

	err := r.db.RunInOrgTx(ctx, event.OrganizationID, func(org *types.Organization) error {
		// Billing updates for deleted organizations are rejected loudly so
		// Ops can cancel the subscription at the provider.
		if org.DeletedAt != nil || org.Status == types.OrgStatusDeleted {
			r.logger.ErrorContext(ctx, "billing event received for deleted organization",
				"org_id", org.ID,
				"provider", string(event.Provider),
				"event_id", event.EventID,
			)
			return types.NewAppError(types.ErrCodeConflictConcurrent,
				fmt.Sprintf("organization %s is deleted; billing update rejected", org.ID), nil).
				WithDetails(map[string]any{
					"provider": string(event.Provider),
					"event_id": event.EventID,
				})
		}

		// Last-write-wins per provider: an event at or before the stored
		// record's timestamp is a duplicate or arrived out of order.
		if prev, ok := org.BillingProviders[event.Provider]; ok {
			if !event.OccurredAt.After(prev.UpdatedAt) {
				r.logger.InfoContext(ctx, "stale billing event ignored",
					"org_id", org.ID,
					"provider", string(event.Provider),
					"event_id", event.EventID,
				)
				return nil
			}
		}

		// Renewal and payment-failure events carry no plan; keep the
		// provider's current plan in that case.
		plan := event.PlanID
		if plan == "" {
			if prev, ok := org.BillingProviders[event.Provider]; ok && prev.PlanID != "" {
				plan = prev.PlanID
			} else if org.Entitlement.Provider == event.Provider && org.Entitlement.PlanID != "" {
				plan = org.Entitlement.PlanID
			} else {
				plan = types.PlanFree
			}
		}

		record := types.BillingProviderRecord{
			PlanID:           plan,
			Status:           event.Status,
			TrialEndsAt:      event.TrialEndsAt,
			CurrentPeriodEnd: event.CurrentPeriodEnd,
			UpdatedAt:        event.OccurredAt,
		}

		primary := &org.Entitlement

		// Provider precedence: while a different provider's primary
		// entitlement is still granting (and its trial, if any, has not
		// lapsed), the incoming event must not flap the primary record. It
		// is stored under its own provider with a machine-readable
		// conflict reason instead.
		if primary.Provider != "" && primary.Provider != event.Provider &&
			primary.Status.Granting() && !primary.Expired(event.OccurredAt) {
			record.Conflict = true
			record.ConflictReason = fmt.Sprintf("blocked_by_active_%s", primary.Provider)
			if org.BillingProviders == nil {
				org.BillingProviders = types.ProviderRecords{}
			}
			org.BillingProviders[event.Provider] = record

			r.logger.WarnContext(ctx, "billing provider conflict recorded",
				"org_id", org.ID,
				"provider", string(event.Provider),
				"blocking_provider", string(primary.Provider),
				"event_id", event.EventID,
			)
			return nil
		}

		if org.BillingProviders == nil {
			org.BillingProviders = types.ProviderRecords{}
		}
		org.BillingProviders[event.Provider] = record

		wasGranting := primary.Status.Granting()

		// Replace the primary entitlement: limits recomputed from the
		// catalog for the new plan, usage preserved.
		usage := primary.Usage
		*primary = types.Entitlement{
			PlanID:           plan,
			Status:           event.Status,
			Provider:         event.Provider,
			TrialEndsAt:      event.TrialEndsAt,
			CurrentPeriodEnd: event.CurrentPeriodEnd,
			Limits:           r.catalog.Limits(plan),
			Usage:            usage,
			UpdatedAt:        event.OccurredAt,
		}

		regained = !wasGranting && event.Status.Granting() &&
			r.catalog.Features(plan)[types.FeatureRecurringGeneration]

		r.logger.InfoContext(ctx, "entitlement updated from billing event",
			"org_id", org.ID,
			"provider", string(event.Provider),
			"plan", string(plan),
			"status", string(event.Status),
			"event_id", event.EventID,
		)
		return nil
	})
	if err != nil {
		return err
	}

	// Auto-resume runs after commit: a failure here leaves tickets paused,
	// which the next granting event or a manual action can correct, and
	// never rolls back the entitlement update.
	if regained && r.resumer != nil {
		resumed, err := r.resumer.ResumePausedByEntitlement(ctx, event.OrganizationID)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to resume tickets after entitlement recovery",
				"org_id", event.OrganizationID,
				"error", err,
			)
			return nil
		}
		if resumed > 0 {
			r.logger.InfoContext(ctx, "resumed tickets paused by entitlement",
				"org_id", event.OrganizationID,
				"count", resumed,
			)
		}
	}

	return nil
}

// ApplyOverride force-sets the primary entitlement from a privileged
// administrative action, bypassing provider precedence. It still goes
// through the catalog merge so limits are never stale for the new plan:
// explicit overrides win field-by-field over catalog defaults.
func (r *Reconciler) ApplyOverride(ctx context.Context, orgID string, plan types.PlanID, status types.SubscriptionStatus, overrides types.EntitlementLimits, now time.Time) error {
	return r.db.RunInOrgTx(ctx, orgID, func(org *types.Organization) error {
		if org.DeletedAt != nil || org.Status == types.OrgStatusDeleted {
			return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}

		usage := org.Entitlement.Usage
		provider := org.Entitlement.Provider

		org.Entitlement = types.Entitlement{
			PlanID:    plan,
			Status:    status,
			Provider:  provider,
			Limits:    mergeLimits(r.catalog.Limits(plan), overrides),
			Usage:     usage,
			UpdatedAt: now,
		}

		r.logger.InfoContext(ctx, "entitlement overridden by administrative action",
			"org_id", org.ID,
			"plan", string(plan),
			"status", string(status),
		)
		return nil
	})
}
