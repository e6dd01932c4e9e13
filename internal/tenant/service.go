// Package tenant implements the quota-gated provisioning operations: every
// creation of a counted resource runs inside one tenant-locked transaction
// with the quota check, the domain write, and the usage increment, so the
// counter can never drift from the rows it counts.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"upkeep/internal/billing"
	"upkeep/internal/db"
	"upkeep/internal/schedule"
	"upkeep/internal/types"
)

// inviteTTL is how long a pending user invite stays valid.
const inviteTTL = 14 * 24 * time.Hour

// Service carries out provisioning against the repository layer.
type Service struct {
	orgs     *db.OrganizationRepository
	enforcer *billing.QuotaEnforcer
	logger   *slog.Logger
}

// NewService creates a provisioning Service.
func NewService(orgs *db.OrganizationRepository, enforcer *billing.QuotaEnforcer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orgs: orgs, enforcer: enforcer, logger: logger}
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// validateName applies the shared naming rules for counted resources.
func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "name is required", nil)
	}
	if len(name) > types.MaxNameLength {
		return types.NewAppError(types.ErrCodeValidationNameLength,
			fmt.Sprintf("name must be at most %d characters", types.MaxNameLength), nil)
	}
	return nil
}

// CreateSite creates a site, counting it against the sites quota.
func (s *Service) CreateSite(ctx context.Context, orgID, name string) (*types.Site, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	site := &types.Site{
		ID:             newID("site"),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(name),
	}
	err := s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		if err := s.enforcer.Enforce(org, types.ResourceSites, time.Now().UTC()); err != nil {
			return err
		}
		return db.NewSiteRepository(tx).Create(ctx, site)
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// CreateDepartment creates a department, counting it against the
// departments quota. A supplied site reference must exist in the tenant.
func (s *Service) CreateDepartment(ctx context.Context, orgID, siteID, name string) (*types.Department, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	dep := &types.Department{
		ID:             newID("dep"),
		OrganizationID: orgID,
		SiteID:         siteID,
		Name:           strings.TrimSpace(name),
	}
	err := s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		if siteID != "" {
			ok, err := db.NewSiteRepository(tx).Exists(ctx, orgID, siteID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundSite, "site not found", nil)
			}
		}
		if err := s.enforcer.Enforce(org, types.ResourceDepartments, time.Now().UTC()); err != nil {
			return err
		}
		return db.NewDepartmentRepository(tx).Create(ctx, dep)
	})
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// CreateAsset creates an asset, counting it against the assets quota.
// Supplied site and department references must exist in the tenant.
func (s *Service) CreateAsset(ctx context.Context, orgID, siteID, departmentID, name string) (*types.Asset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	asset := &types.Asset{
		ID:             newID("ast"),
		OrganizationID: orgID,
		SiteID:         siteID,
		DepartmentID:   departmentID,
		Name:           strings.TrimSpace(name),
	}
	err := s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		if siteID != "" {
			ok, err := db.NewSiteRepository(tx).Exists(ctx, orgID, siteID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundSite, "site not found", nil)
			}
		}
		if departmentID != "" {
			ok, err := db.NewDepartmentRepository(tx).Exists(ctx, orgID, departmentID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundDepartment, "department not found", nil)
			}
		}
		if err := s.enforcer.Enforce(org, types.ResourceAssets, time.Now().UTC()); err != nil {
			return err
		}
		return db.NewAssetRepository(tx).Create(ctx, asset)
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// CreateInvite creates a pending user invite, counting it against the users
// quota.
func (s *Service) CreateInvite(ctx context.Context, orgID, email string, role types.UserRole) (*types.UserInvite, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEmail, "a valid email is required", nil)
	}
	switch role {
	case types.RoleOwner, types.RoleAdmin, types.RoleMember:
	default:
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "role must be owner, admin or member", nil)
	}

	now := time.Now().UTC()
	invite := &types.UserInvite{
		ID:             newID("usr"),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		ExpiresAt:      now.Add(inviteTTL),
	}
	err := s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		if err := s.enforcer.Enforce(org, types.ResourceUsers, now); err != nil {
			return err
		}
		return db.NewInviteRepository(tx).Create(ctx, invite)
	})
	if err != nil {
		return nil, err
	}
	return invite, nil
}

// CreateTemplate validates and creates a preventive template, counting it
// against the active-preventives quota. The first occurrence is computed
// immediately so the generator's initial sweep finds an authoritative
// next_run_at.
func (s *Service) CreateTemplate(ctx context.Context, tpl *types.PreventiveTemplate) (*types.PreventiveTemplate, error) {
	if err := types.ValidateTemplate(tpl); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tpl.ID = newID("tpl")
	tpl.Schedule.NextRunAt = schedule.NextOccurrence(tpl.Schedule, now)
	tpl.Schedule.LastRunAt = nil

	err := s.orgs.RunInOrgTxWith(ctx, tpl.OrganizationID, func(tx pgx.Tx, org *types.Organization) error {
		if tpl.SiteID != "" {
			ok, err := db.NewSiteRepository(tx).Exists(ctx, org.ID, tpl.SiteID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundSite, "site not found", nil)
			}
		}
		if tpl.DepartmentID != "" {
			ok, err := db.NewDepartmentRepository(tx).Exists(ctx, org.ID, tpl.DepartmentID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundDepartment, "department not found", nil)
			}
		}
		if tpl.AssetID != "" {
			ok, err := db.NewAssetRepository(tx).Exists(ctx, org.ID, tpl.AssetID)
			if err != nil {
				return err
			}
			if !ok {
				return types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
			}
		}
		if err := s.enforcer.Enforce(org, types.ResourcePreventives, time.Now().UTC()); err != nil {
			return err
		}
		return db.NewTemplateRepository(tx).Create(ctx, tpl)
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// ArchiveTemplate archives a template and releases its slot in the
// active-preventives quota. Archiving an already archived template is a
// conflict.
func (s *Service) ArchiveTemplate(ctx context.Context, orgID, templateID string) error {
	return s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		repo := db.NewTemplateRepository(tx)
		tpl, err := repo.GetByIDForUpdate(ctx, orgID, templateID)
		if err != nil {
			return err
		}
		if tpl.Status == types.TemplateArchived {
			return types.NewAppError(types.ErrCodeConflictDuplicate, "template is already archived", nil)
		}
		if err := repo.UpdateStatus(ctx, orgID, templateID, types.TemplateArchived); err != nil {
			return err
		}
		s.enforcer.Release(org, types.ResourcePreventives, time.Now().UTC())
		return nil
	})
}

// DeleteSite removes a site and releases its quota slot.
func (s *Service) DeleteSite(ctx context.Context, orgID, siteID string) error {
	return s.deleteCounted(ctx, orgID, types.ResourceSites, func(tx pgx.Tx) error {
		return db.NewSiteRepository(tx).Delete(ctx, orgID, siteID)
	})
}

// DeleteDepartment removes a department and releases its quota slot.
func (s *Service) DeleteDepartment(ctx context.Context, orgID, departmentID string) error {
	return s.deleteCounted(ctx, orgID, types.ResourceDepartments, func(tx pgx.Tx) error {
		return db.NewDepartmentRepository(tx).Delete(ctx, orgID, departmentID)
	})
}

// DeleteAsset removes an asset and releases its quota slot.
func (s *Service) DeleteAsset(ctx context.Context, orgID, assetID string) error {
	return s.deleteCounted(ctx, orgID, types.ResourceAssets, func(tx pgx.Tx) error {
		return db.NewAssetRepository(tx).Delete(ctx, orgID, assetID)
	})
}

func (s *Service) deleteCounted(ctx context.Context, orgID string, kind types.ResourceKind, del func(tx pgx.Tx) error) error {
	return s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		if err := del(tx); err != nil {
			return err
		}
		s.enforcer.Release(org, kind, time.Now().UTC())
		return nil
	})
}
