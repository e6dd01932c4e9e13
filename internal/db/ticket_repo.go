package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// TicketRepository provides data access for the tickets table. Generated
// tickets carry a deterministic ID derived from (template, occurrence), so
// duplicate generation reduces to an ON CONFLICT no-op.
type TicketRepository struct {
	db DBTX
}

// NewTicketRepository creates a new TicketRepository backed by the given
// database connection (pool or transaction).
func NewTicketRepository(db DBTX) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `tk.id, tk.organization_id, tk.template_id, tk.title,
	tk.status, tk.priority, tk.site_id, tk.department_id, tk.asset_id,
	tk.scheduled_for, tk.paused_by_entitlement, tk.template_snapshot,
	tk.created_at, tk.updated_at`

func scanTicket(row pgx.Row) (*types.Ticket, error) {
	var tk types.Ticket
	var templateID, siteID, departmentID, assetID *string

	err := row.Scan(
		&tk.ID,
		&tk.OrganizationID,
		&templateID,
		&tk.Title,
		&tk.Status,
		&tk.Priority,
		&siteID,
		&departmentID,
		&assetID,
		&tk.ScheduledFor,
		&tk.PausedByEntitlement,
		&tk.TemplateSnapshot,
		&tk.CreatedAt,
		&tk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if templateID != nil {
		tk.TemplateID = *templateID
	}
	if siteID != nil {
		tk.SiteID = *siteID
	}
	if departmentID != nil {
		tk.DepartmentID = *departmentID
	}
	if assetID != nil {
		tk.AssetID = *assetID
	}
	return &tk, nil
}

// Insert creates a ticket. Returns false without error when a ticket with
// the same ID already exists; the generator treats that as "occurrence
// already generated".
func (r *TicketRepository) Insert(ctx context.Context, tk *types.Ticket) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO tickets (id, organization_id, template_id, title, status,
		 priority, site_id, department_id, asset_id, scheduled_for,
		 paused_by_entitlement, template_snapshot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		 COALESCE($13, NOW()), COALESCE($14, NOW()))
		 ON CONFLICT (id) DO NOTHING`,
		tk.ID,
		tk.OrganizationID,
		nilIfEmpty(tk.TemplateID),
		tk.Title,
		tk.Status,
		tk.Priority,
		nilIfEmpty(tk.SiteID),
		nilIfEmpty(tk.DepartmentID),
		nilIfEmpty(tk.AssetID),
		tk.ScheduledFor,
		tk.PausedByEntitlement,
		tk.TemplateSnapshot,
		nilIfZeroTime(tk.CreatedAt),
		nilIfZeroTime(tk.UpdatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create ticket", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExistsByID reports whether a ticket with the given ID exists in the
// organization.
func (r *TicketRepository) ExistsByID(ctx context.Context, orgID, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM tickets WHERE id = $1 AND organization_id = $2
		 )`, id, orgID).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check ticket existence", err)
	}
	return exists, nil
}

// GetByID retrieves a ticket scoped to an organization.
func (r *TicketRepository) GetByID(ctx context.Context, orgID, id string) (*types.Ticket, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets tk
		 WHERE tk.id = $1 AND tk.organization_id = $2`,
		id, orgID)

	tk, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTicket, "ticket not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve ticket", err)
	}
	return tk, nil
}

// pausableStatuses holds the ticket states the entitlement sweeps may act
// on, derived from TicketStatus.Terminal so the two stay in sync.
var pausableStatuses = func() []string {
	all := []types.TicketStatus{
		types.TicketOpen,
		types.TicketInProgress,
		types.TicketOnHold,
		types.TicketDone,
		types.TicketCanceled,
	}
	var out []string
	for _, s := range all {
		if !s.Terminal() {
			out = append(out, string(s))
		}
	}
	return out
}()

// PauseGeneratedBatch marks up to limit non-terminal generated tickets as
// paused by entitlement, scanning keyset-style from afterID. Returns the IDs
// it paused; the caller loops with the last returned ID until the batch
// comes back empty. Already-flagged and terminal tickets are skipped, which
// makes re-running the sweep a no-op.
func (r *TicketRepository) PauseGeneratedBatch(ctx context.Context, orgID, afterID string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE tickets
		 SET status = $4, paused_by_entitlement = TRUE, updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM tickets
		   WHERE organization_id = $1
		     AND id > $2
		     AND template_id IS NOT NULL
		     AND paused_by_entitlement = FALSE
		     AND status = ANY($5)
		   ORDER BY id
		   LIMIT $3
		 )
		 RETURNING id`,
		orgID, afterID, limit,
		types.TicketOnHold,
		pausableStatuses)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to pause tickets", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan paused ticket id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate paused tickets", err)
	}
	return ids, nil
}

// ResumePausedByEntitlement reopens all tickets the entitlement sweeps put
// on hold for the organization. Returns the number of tickets resumed.
func (r *TicketRepository) ResumePausedByEntitlement(ctx context.Context, orgID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE tickets
		 SET status = $2, paused_by_entitlement = FALSE, updated_at = NOW()
		 WHERE organization_id = $1
		   AND paused_by_entitlement = TRUE
		   AND status = $3`,
		orgID, types.TicketOpen, types.TicketOnHold)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to resume tickets", err)
	}
	return int(tag.RowsAffected()), nil
}
