package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"upkeep/internal/types"
)

// Repositories for the quota-counted resources. These tables carry only the
// fields needed for creation, in-tenant reference checks and deletion; the
// authoritative counters live in the organization's entitlement usage.

// SiteRepository provides data access for the sites table.
type SiteRepository struct {
	db DBTX
}

func NewSiteRepository(db DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

func (r *SiteRepository) Create(ctx context.Context, s *types.Site) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sites (id, organization_id, name, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()))`,
		s.ID, s.OrganizationID, s.Name, nilIfZeroTime(s.CreatedAt))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create site", err)
	}
	return nil
}

func (r *SiteRepository) Exists(ctx context.Context, orgID, id string) (bool, error) {
	return existsIn(ctx, r.db, "sites", orgID, id)
}

func (r *SiteRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteFrom(ctx, r.db, "sites", orgID, id, types.ErrCodeNotFoundSite)
}

// DepartmentRepository provides data access for the departments table.
type DepartmentRepository struct {
	db DBTX
}

func NewDepartmentRepository(db DBTX) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) Create(ctx context.Context, d *types.Department) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO departments (id, organization_id, site_id, name, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		d.ID, d.OrganizationID, nilIfEmpty(d.SiteID), d.Name, nilIfZeroTime(d.CreatedAt))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create department", err)
	}
	return nil
}

func (r *DepartmentRepository) Exists(ctx context.Context, orgID, id string) (bool, error) {
	return existsIn(ctx, r.db, "departments", orgID, id)
}

func (r *DepartmentRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteFrom(ctx, r.db, "departments", orgID, id, types.ErrCodeNotFoundDepartment)
}

// AssetRepository provides data access for the assets table.
type AssetRepository struct {
	db DBTX
}

func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) Create(ctx context.Context, a *types.Asset) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO assets (id, organization_id, site_id, department_id, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		a.ID, a.OrganizationID, nilIfEmpty(a.SiteID), nilIfEmpty(a.DepartmentID),
		a.Name, nilIfZeroTime(a.CreatedAt))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create asset", err)
	}
	return nil
}

func (r *AssetRepository) Exists(ctx context.Context, orgID, id string) (bool, error) {
	return existsIn(ctx, r.db, "assets", orgID, id)
}

func (r *AssetRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteFrom(ctx, r.db, "assets", orgID, id, types.ErrCodeNotFoundAsset)
}

// InviteRepository provides data access for the user_invites table. A
// pending invite counts against the users quota until accepted or expired.
type InviteRepository struct {
	db DBTX
}

func NewInviteRepository(db DBTX) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) Create(ctx context.Context, inv *types.UserInvite) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_invites (id, organization_id, email, role, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.ExpiresAt,
		nilIfZeroTime(inv.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictDuplicate,
				"an invite for this email is already pending", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create invite", err)
	}
	return nil
}

func existsIn(ctx context.Context, db DBTX, table, orgID, id string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND organization_id = $2)`,
		id, orgID).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed existence check on "+table, err)
	}
	return exists, nil
}

func deleteFrom(ctx context.Context, db DBTX, table, orgID, id string, notFound types.ErrorCode) error {
	tag, err := db.Exec(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete from "+table, err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(notFound, "resource not found", nil)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
