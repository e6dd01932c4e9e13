// Package scheduler implements the periodic jobs of the Upkeep backend: the
// recurring work-order generator and the entitlement sweeps. Jobs take an
// explicit reference time so Lambda invocations and tests share one code
// path, process bounded batches, and isolate per-item failures so one bad
// tenant never blocks the rest of a sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"upkeep/internal/billing"
	"upkeep/internal/schedule"
	"upkeep/internal/types"
)

// DefaultBatchLimit is the maximum number of due templates processed per
// invocation to prevent Lambda timeouts during large backlogs.
const DefaultBatchLimit = 100

// ticketNamespace seeds the deterministic ticket IDs derived from
// (template, occurrence). Never change it: doing so would re-generate
// past occurrences.
var ticketNamespace = uuid.MustParse("7b9f12e4-83c6-4f6e-9a01-2f64cc1db0aa")

// TicketIDFor derives the deterministic ticket ID for one occurrence of a
// template. The same (template, occurrence) pair always maps to the same ID,
// which is what makes retried and concurrent sweeps unable to duplicate a
// ticket.
func TicketIDFor(templateID string, occurrence time.Time) string {
	seed := fmt.Sprintf("%s:%d", templateID, occurrence.UTC().Unix())
	return "tkt_" + uuid.NewSHA1(ticketNamespace, []byte(seed)).String()
}

// TemplateRef identifies one candidate template for the generation sweep.
type TemplateRef struct {
	OrganizationID string
	TemplateID     string
}

// GeneratorDB defines the database operations needed by the generator.
//
// The transactional flow per template is:
//  1. ListDueTemplates identifies candidates outside any transaction.
//  2. RunInOrgTx locks the organization row and opens the per-tenant
//     transaction; everything below happens inside it.
//  3. GetTemplateForUpdate re-reads and locks the template.
//  4. Reference checks (site/department/asset) against current rows.
//  5. InsertTicket with the deterministic ID (ON CONFLICT DO NOTHING).
//  6. UpdateTemplateSchedule advances last_run_at/next_run_at.
//  7. Commit persists the organization (usage counter) and the rest.
type GeneratorDB interface {
	// ListDueTemplates returns active automatic templates whose
	// schedule.next_run_at is missing or at/before now, excluding consumed
	// single-shot templates (type=date with last_run_at set), which stay
	// at next_run_at NULL forever and must not occupy batch slots.
	//
	// SQL: SELECT organization_id, id FROM preventive_templates
	//      WHERE automatic AND status = 'active'
	//        AND (schedule->>'next_run_at' IS NULL
	//             OR (schedule->>'next_run_at')::timestamptz <= $1)
	//        AND NOT (schedule->>'type' = 'date'
	//             AND schedule->>'last_run_at' IS NOT NULL)
	//      ORDER BY organization_id, id LIMIT $2
	ListDueTemplates(ctx context.Context, now time.Time, limit int) ([]TemplateRef, error)

	// RunInOrgTx locks the organization row FOR UPDATE and runs fn inside
	// the transaction. Mutations to org are persisted before commit.
	RunInOrgTx(ctx context.Context, orgID string, fn func(tx GeneratorTx, org *types.Organization) error) error
}

// GeneratorTx defines the transactional operations for processing a single
// template. All methods operate within the transaction started by
// GeneratorDB.RunInOrgTx.
type GeneratorTx interface {
	GetTemplateForUpdate(ctx context.Context, orgID, templateID string) (*types.PreventiveTemplate, error)
	SiteExists(ctx context.Context, orgID, siteID string) (bool, error)
	DepartmentExists(ctx context.Context, orgID, departmentID string) (bool, error)
	AssetExists(ctx context.Context, orgID, assetID string) (bool, error)

	// TicketExists reports whether a ticket with the given deterministic
	// ID was already generated.
	TicketExists(ctx context.Context, orgID, ticketID string) (bool, error)

	// InsertTicket creates the ticket; returns false when a ticket with
	// the same deterministic ID already exists.
	InsertTicket(ctx context.Context, tk *types.Ticket) (bool, error)

	UpdateTemplateSchedule(ctx context.Context, orgID, templateID string, spec types.ScheduleSpec) error
}

// TicketNotifier publishes ticket-created events for downstream assignment
// and notification workers. May be nil when no queue is wired.
type TicketNotifier interface {
	PublishTicketCreated(ctx context.Context, event types.TicketCreatedEvent) error
}

// EntitlementGate is the slice of the billing layer the generator needs:
// feature resolution and preventive-quota enforcement against the locked
// organization row.
type EntitlementGate interface {
	ResolveFeature(org *types.Organization, feature types.Feature, now time.Time) (types.EffectiveEntitlement, bool)
	Enforce(org *types.Organization, kind types.ResourceKind, now time.Time) error
	Release(org *types.Organization, kind types.ResourceKind, now time.Time)
}

// GenerationResult summarizes one generator run.
type GenerationResult struct {
	Processed int // templates examined
	Created   int // tickets created
	Skipped   int // due templates that produced no ticket (already generated, not yet due, ineligible)
	Failed    int // templates whose transaction failed
}

// Generator is the recurring work-order generation sweep.
type Generator struct {
	db       GeneratorDB
	gate     EntitlementGate
	notifier TicketNotifier
	logger   *slog.Logger

	// BatchLimit caps due templates per run; zero means DefaultBatchLimit.
	BatchLimit int
}

// NewGenerator creates a Generator. The notifier may be nil.
func NewGenerator(db GeneratorDB, gate EntitlementGate, notifier TicketNotifier, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{db: db, gate: gate, notifier: notifier, logger: logger}
}

// Run executes one generation sweep against the given reference time.
// Each due template is processed in its own tenant-scoped transaction;
// failures are logged and counted but never abort the sweep, since the
// failed template stays due and the next tick retries it.
func (g *Generator) Run(ctx context.Context, now time.Time) (GenerationResult, error) {
	var result GenerationResult

	limit := g.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	refs, err := g.db.ListDueTemplates(ctx, now, limit)
	if err != nil {
		return result, fmt.Errorf("listing due templates: %w", err)
	}

	for _, ref := range refs {
		created, event, err := g.processTemplate(ctx, ref, now)
		result.Processed++
		if err != nil {
			result.Failed++
			if types.IsQuotaExceeded(err, types.ResourcePreventives) {
				// Expected backpressure: the schedule stays due and the
				// template retries once the tenant frees or raises quota.
				g.logger.WarnContext(ctx, "template deferred, preventive quota exhausted",
					"org_id", ref.OrganizationID,
					"template_id", ref.TemplateID,
				)
			} else {
				g.logger.ErrorContext(ctx, "failed to process due template",
					"org_id", ref.OrganizationID,
					"template_id", ref.TemplateID,
					"error", err,
				)
			}
			continue
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created++

		// Publish after commit. A lost event only delays assignment; the
		// ticket row is already durable.
		if g.notifier != nil {
			if err := g.notifier.PublishTicketCreated(ctx, event); err != nil {
				g.logger.ErrorContext(ctx, "failed to publish ticket created event",
					"org_id", ref.OrganizationID,
					"ticket_id", event.TicketID,
					"error", err,
				)
			}
		}
	}

	g.logger.InfoContext(ctx, "generation sweep complete",
		"processed", result.Processed,
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// processTemplate handles one template inside a single tenant transaction.
// Returns whether a ticket was created and, if so, the event to publish.
func (g *Generator) processTemplate(ctx context.Context, ref TemplateRef, now time.Time) (bool, types.TicketCreatedEvent, error) {
	var (
		created bool
		event   types.TicketCreatedEvent
	)

	err := g.db.RunInOrgTx(ctx, ref.OrganizationID, func(tx GeneratorTx, org *types.Organization) error {
		if org.DeletedAt != nil || org.Status != types.OrgStatusActive {
			return nil
		}

		// Feature gate first: without recurring generation there is
		// nothing to do, and the schedule must not advance.
		if _, ok := g.gate.ResolveFeature(org, types.FeatureRecurringGeneration, now); !ok {
			g.logger.InfoContext(ctx, "template skipped, recurring generation not granted",
				"org_id", org.ID,
				"template_id", ref.TemplateID,
			)
			return nil
		}

		tpl, err := tx.GetTemplateForUpdate(ctx, org.ID, ref.TemplateID)
		if err != nil {
			return err
		}

		// The candidate listing is unlocked, so re-check eligibility on
		// the locked row: a concurrent edit may have paused the template
		// or stripped its placement.
		if !tpl.Automatic || tpl.Status != types.TemplateActive {
			return nil
		}
		if tpl.SiteID == "" || tpl.DepartmentID == "" {
			return nil
		}

		// Single-shot templates generate exactly once, ever.
		if tpl.Schedule.Type == types.ScheduleDate && tpl.Schedule.LastRunAt != nil {
			return nil
		}

		// next_run_at is authoritative once computed; recompute only when
		// missing.
		nextRun := tpl.Schedule.NextRunAt
		if nextRun == nil {
			nextRun = schedule.NextOccurrence(tpl.Schedule, now)
			if nextRun == nil {
				tpl.Schedule.NextRunAt = nil
				return tx.UpdateTemplateSchedule(ctx, org.ID, tpl.ID, tpl.Schedule)
			}
		}

		// Not yet due: persist the computed slot so future sweeps skip the
		// recomputation.
		if nextRun.After(now) {
			tpl.Schedule.NextRunAt = nextRun
			return tx.UpdateTemplateSchedule(ctx, org.ID, tpl.ID, tpl.Schedule)
		}

		// Placement references may have been deleted since the template
		// was written; generating against them would orphan the ticket.
		if ok, err := tx.SiteExists(ctx, org.ID, tpl.SiteID); err != nil {
			return err
		} else if !ok {
			return nil
		}
		if ok, err := tx.DepartmentExists(ctx, org.ID, tpl.DepartmentID); err != nil {
			return err
		} else if !ok {
			return nil
		}
		if tpl.AssetID != "" {
			if ok, err := tx.AssetExists(ctx, org.ID, tpl.AssetID); err != nil {
				return err
			} else if !ok {
				return nil
			}
		}

		occurrence := nextRun.UTC()
		ticketID := TicketIDFor(tpl.ID, occurrence)

		// An earlier sweep may have generated this occurrence and then
		// failed before advancing the schedule. The existence check runs
		// before the quota gate so such a template still advances past the
		// consumed occurrence even when usage sits at the ceiling.
		exists, err := tx.TicketExists(ctx, org.ID, ticketID)
		if err != nil {
			return err
		}

		inserted := false
		if !exists {
			tk := buildTicket(org.ID, tpl, ticketID, occurrence)

			// The quota check mutates org usage; it runs only on the
			// create path so a denial leaves both the ticket and the
			// schedule untouched for the next tick.
			if err := g.gate.Enforce(org, types.ResourcePreventives, now); err != nil {
				return err
			}

			inserted, err = tx.InsertTicket(ctx, tk)
			if err != nil {
				return err
			}
			if !inserted {
				// A concurrent sweep generated the occurrence between the
				// existence check and the insert. The usage increment from
				// Enforce must not stick.
				g.gate.Release(org, types.ResourcePreventives, now)
			}
		}

		// Mark the occurrence consumed before computing the follow-up so a
		// single-shot spec yields no further run.
		tpl.Schedule.LastRunAt = &occurrence
		tpl.Schedule.NextRunAt = schedule.NextOccurrence(tpl.Schedule, occurrence.Add(time.Minute))
		if err := tx.UpdateTemplateSchedule(ctx, org.ID, tpl.ID, tpl.Schedule); err != nil {
			return err
		}

		if inserted {
			created = true
			event = types.TicketCreatedEvent{
				TicketID:       ticketID,
				OrganizationID: org.ID,
				TemplateID:     tpl.ID,
				Title:          tpl.Name,
				Priority:       tpl.Priority,
				SiteID:         tpl.SiteID,
				DepartmentID:   tpl.DepartmentID,
				AssetID:        tpl.AssetID,
				ScheduledFor:   occurrence,
			}
		}
		return nil
	})
	if err != nil {
		return false, types.TicketCreatedEvent{}, err
	}
	return created, event, nil
}

// buildTicket materializes the ticket document for one occurrence, freezing
// the template fields the mobile clients render offline.
func buildTicket(orgID string, tpl *types.PreventiveTemplate, ticketID string, occurrence time.Time) *types.Ticket {
	return &types.Ticket{
		ID:             ticketID,
		OrganizationID: orgID,
		TemplateID:     tpl.ID,
		Title:          tpl.Name,
		Status:         types.TicketOpen,
		Priority:       tpl.Priority,
		SiteID:         tpl.SiteID,
		DepartmentID:   tpl.DepartmentID,
		AssetID:        tpl.AssetID,
		ScheduledFor:   &occurrence,
		TemplateSnapshot: types.TemplateSnapshot{
			Name:         tpl.Name,
			Priority:     tpl.Priority,
			SiteID:       tpl.SiteID,
			DepartmentID: tpl.DepartmentID,
			AssetID:      tpl.AssetID,
			Checklist:    tpl.Checklist,
		},
	}
}

var _ EntitlementGate = (*billing.QuotaEnforcer)(nil)
