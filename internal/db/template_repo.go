package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// TemplateRepository provides data access for the preventive_templates
// table. The schedule lives in a JSONB column; the recurring generator is
// the only writer of its last_run_at/next_run_at fields.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a new TemplateRepository backed by the given
// database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `t.id, t.organization_id, t.name, t.status, t.automatic,
	t.priority, t.site_id, t.department_id, t.asset_id, t.schedule, t.checklist,
	t.created_by, t.created_at, t.updated_at`

func scanTemplate(row pgx.Row) (*types.PreventiveTemplate, error) {
	var tpl types.PreventiveTemplate
	var siteID, departmentID, assetID *string

	err := row.Scan(
		&tpl.ID,
		&tpl.OrganizationID,
		&tpl.Name,
		&tpl.Status,
		&tpl.Automatic,
		&tpl.Priority,
		&siteID,
		&departmentID,
		&assetID,
		&tpl.Schedule,
		&tpl.Checklist,
		&tpl.CreatedBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if siteID != nil {
		tpl.SiteID = *siteID
	}
	if departmentID != nil {
		tpl.DepartmentID = *departmentID
	}
	if assetID != nil {
		tpl.AssetID = *assetID
	}
	return &tpl, nil
}

// Create inserts a new preventive template. The caller must set the ID
// (prefixed UUID, e.g. "tpl_...") and have validated the template first.
func (r *TemplateRepository) Create(ctx context.Context, tpl *types.PreventiveTemplate) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO preventive_templates (id, organization_id, name, status, automatic,
		 priority, site_id, department_id, asset_id, schedule, checklist, created_by,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		 COALESCE($13, NOW()), COALESCE($14, NOW()))`,
		tpl.ID,
		tpl.OrganizationID,
		tpl.Name,
		tpl.Status,
		tpl.Automatic,
		tpl.Priority,
		nilIfEmpty(tpl.SiteID),
		nilIfEmpty(tpl.DepartmentID),
		nilIfEmpty(tpl.AssetID),
		tpl.Schedule,
		tpl.Checklist,
		tpl.CreatedBy,
		nilIfZeroTime(tpl.CreatedAt),
		nilIfZeroTime(tpl.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create template", err)
	}
	return nil
}

// GetByID retrieves a template scoped to an organization.
func (r *TemplateRepository) GetByID(ctx context.Context, orgID, id string) (*types.PreventiveTemplate, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+templateColumns+`
		 FROM preventive_templates t
		 WHERE t.id = $1 AND t.organization_id = $2`,
		id, orgID)

	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve template", err)
	}
	return tpl, nil
}

// GetByIDForUpdate retrieves a template with its row locked, for use inside
// the generator's per-template transaction.
func (r *TemplateRepository) GetByIDForUpdate(ctx context.Context, orgID, id string) (*types.PreventiveTemplate, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+templateColumns+`
		 FROM preventive_templates t
		 WHERE t.id = $1 AND t.organization_id = $2
		 FOR UPDATE`,
		id, orgID)

	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock template", err)
	}
	return tpl, nil
}

// UpdateStatus transitions a template between active/paused/archived.
func (r *TemplateRepository) UpdateStatus(ctx context.Context, orgID, id string, status types.TemplateStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE preventive_templates
		 SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		id, orgID, status)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update template status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return nil
}

// UpdateSchedule persists the full schedule document. Called by the
// generator after advancing last_run_at/next_run_at.
func (r *TemplateRepository) UpdateSchedule(ctx context.Context, orgID, id string, schedule types.ScheduleSpec) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE preventive_templates
		 SET schedule = $3, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`,
		id, orgID, schedule)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update template schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return nil
}

// DueTemplateRef identifies one candidate for the generation sweep.
type DueTemplateRef struct {
	OrganizationID string
	TemplateID     string
}

// ListDueAutomatic returns references to active automatic templates whose
// next_run_at is missing or at/before now, in stable (org, template) order.
// Consumed single-shot templates keep next_run_at NULL forever, so they are
// excluded here; without that they would occupy batch slots on every sweep
// and starve templates sorting after them. The full row is re-read under
// lock inside the per-template transaction, so this listing is only a
// candidate filter and may be slightly stale.
func (r *TemplateRepository) ListDueAutomatic(ctx context.Context, now time.Time, limit int) ([]DueTemplateRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT t.organization_id, t.id
		 FROM preventive_templates t
		 WHERE t.automatic = TRUE
		   AND t.status = $1
		   AND (
		     t.schedule->>'next_run_at' IS NULL
		     OR (t.schedule->>'next_run_at')::timestamptz <= $2
		   )
		   AND NOT (
		     t.schedule->>'type' = $3
		     AND t.schedule->>'last_run_at' IS NOT NULL
		   )
		 ORDER BY t.organization_id, t.id
		 LIMIT $4`,
		types.TemplateActive, now, types.ScheduleDate, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due templates", err)
	}
	defer rows.Close()

	var refs []DueTemplateRef
	for rows.Next() {
		var ref DueTemplateRef
		if err := rows.Scan(&ref.OrganizationID, &ref.TemplateID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due template", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate due templates", err)
	}
	return refs, nil
}
