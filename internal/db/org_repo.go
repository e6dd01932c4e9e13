package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// OrganizationRepository provides data access for the organizations table.
// Entitlement state lives on the organization row itself (two JSONB
// columns), so a row lock on the organization serializes all entitlement
// and quota mutations for that tenant.
type OrganizationRepository struct {
	db TxBeginner
}

// NewOrganizationRepository creates a new OrganizationRepository backed by
// the given connection pool.
func NewOrganizationRepository(db TxBeginner) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// orgColumns defines the standard set of columns selected for organization
// queries. Used consistently across all query methods to avoid column drift.
const orgColumns = `o.id, o.name, o.status, o.org_type, o.demo_expires_at,
	o.entitlement, o.billing_providers, o.created_at, o.updated_at, o.deleted_at`

// scanOrg scans a single organization row into a types.Organization struct.
// The columns must match the order defined in orgColumns.
func scanOrg(row pgx.Row) (*types.Organization, error) {
	var org types.Organization
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Status,
		&org.Type,
		&org.DemoExpiresAt,
		&org.Entitlement,
		&org.BillingProviders,
		&org.CreatedAt,
		&org.UpdatedAt,
		&org.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Create inserts a new organization record. The caller must set the ID
// (prefixed UUID, e.g. "org_...") and initial entitlement before calling.
func (r *OrganizationRepository) Create(ctx context.Context, org *types.Organization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, name, status, org_type, demo_expires_at,
		 entitlement, billing_providers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()))`,
		org.ID,
		org.Name,
		org.Status,
		org.Type,
		org.DemoExpiresAt,
		org.Entitlement,
		org.BillingProviders,
		nilIfZeroTime(org.CreatedAt),
		nilIfZeroTime(org.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create organization", err)
	}
	return nil
}

// GetByID retrieves an organization by its ID, including soft-deleted rows
// so callers can reject billing updates for deleted tenants explicitly.
// Returns ErrCodeNotFoundOrg if the row does not exist.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*types.Organization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1`, id)

	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve organization", err)
	}
	return org, nil
}

// RunInOrgTx runs fn with the organization row locked FOR UPDATE inside a
// transaction. Mutations fn makes to the organization (entitlement, billing
// provider records, status) are persisted before commit; any error from fn
// rolls the transaction back. The lock serializes quota checks, billing
// reconciliation and ticket generation per tenant.
func (r *OrganizationRepository) RunInOrgTx(ctx context.Context, orgID string, fn func(org *types.Organization) error) error {
	return r.RunInOrgTxWith(ctx, orgID, func(_ pgx.Tx, org *types.Organization) error {
		return fn(org)
	})
}

// RunInOrgTxWith is RunInOrgTx with the transaction handle exposed, for
// callers that need to touch other tables under the same tenant lock.
func (r *OrganizationRepository) RunInOrgTxWith(ctx context.Context, orgID string, fn func(tx pgx.Tx, org *types.Organization) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1 FOR UPDATE`, orgID)
	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock organization", err)
	}

	if err := fn(tx, org); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE organizations
		 SET status = $2, entitlement = $3, billing_providers = $4, updated_at = NOW()
		 WHERE id = $1`,
		org.ID,
		org.Status,
		org.Entitlement,
		org.BillingProviders,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to persist organization state", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// ListExpiredDemoOrgIDs returns IDs of demo organizations whose expiry has
// passed, in stable order for the sweep. Soft-deleted rows are excluded.
func (r *OrganizationRepository) ListExpiredDemoOrgIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT o.id FROM organizations o
		 WHERE o.org_type = $1
		   AND o.deleted_at IS NULL
		   AND o.demo_expires_at IS NOT NULL
		   AND o.demo_expires_at <= $2
		 ORDER BY o.id
		 LIMIT $3`,
		types.OrgTypeDemo, now, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired demo organizations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate organizations", err)
	}
	return ids, nil
}

// ListNonGrantingOrgIDs returns IDs of organizations whose stored primary
// entitlement no longer grants recurring generation, for the feature-loss
// pause sweep. An organization qualifies when its status stopped granting,
// its trial lapsed (the JSONB predicate mirrors types.Entitlement.Expired),
// or its plan is outside grantingPlans, the catalog-derived set of plans
// that carry the feature. Plans missing from the column match too, since
// unknown plans resolve with Free tier features.
func (r *OrganizationRepository) ListNonGrantingOrgIDs(ctx context.Context, now time.Time, grantingPlans []string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT o.id FROM organizations o
		 WHERE o.deleted_at IS NULL
		   AND o.org_type <> $1
		   AND (
		     o.entitlement->>'status' NOT IN ($2, $3)
		     OR (
		       o.entitlement->>'status' = $3
		       AND o.entitlement->>'trial_ends_at' IS NOT NULL
		       AND (o.entitlement->>'trial_ends_at')::timestamptz <= $4
		     )
		     OR o.entitlement->>'plan_id' IS NULL
		     OR NOT (o.entitlement->>'plan_id' = ANY($5))
		   )
		 ORDER BY o.id
		 LIMIT $6`,
		types.OrgTypeDemo,
		types.SubStatusActive, types.SubStatusTrialing,
		now, grantingPlans, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list non-granting organizations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate organizations", err)
	}
	return ids, nil
}
