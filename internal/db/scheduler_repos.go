package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/scheduler"
	"upkeep/internal/types"
)

// GeneratorStore implements scheduler.GeneratorDB on top of the repository
// layer: candidate listing runs against the pool, the per-template work runs
// inside the tenant-locked transaction opened by the organization
// repository.
type GeneratorStore struct {
	orgs      *OrganizationRepository
	templates *TemplateRepository
}

// NewGeneratorStore creates a GeneratorStore backed by the given pool.
func NewGeneratorStore(pool TxBeginner) *GeneratorStore {
	return &GeneratorStore{
		orgs:      NewOrganizationRepository(pool),
		templates: NewTemplateRepository(pool),
	}
}

func (s *GeneratorStore) ListDueTemplates(ctx context.Context, now time.Time, limit int) ([]scheduler.TemplateRef, error) {
	refs, err := s.templates.ListDueAutomatic(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.TemplateRef, len(refs))
	for i, ref := range refs {
		out[i] = scheduler.TemplateRef{
			OrganizationID: ref.OrganizationID,
			TemplateID:     ref.TemplateID,
		}
	}
	return out, nil
}

func (s *GeneratorStore) RunInOrgTx(ctx context.Context, orgID string, fn func(tx scheduler.GeneratorTx, org *types.Organization) error) error {
	return s.orgs.RunInOrgTxWith(ctx, orgID, func(tx pgx.Tx, org *types.Organization) error {
		return fn(&generatorTx{tx: tx}, org)
	})
}

// generatorTx adapts one pgx transaction to scheduler.GeneratorTx by
// instantiating the repositories over it.
type generatorTx struct {
	tx pgx.Tx
}

func (g *generatorTx) GetTemplateForUpdate(ctx context.Context, orgID, templateID string) (*types.PreventiveTemplate, error) {
	return NewTemplateRepository(g.tx).GetByIDForUpdate(ctx, orgID, templateID)
}

func (g *generatorTx) SiteExists(ctx context.Context, orgID, siteID string) (bool, error) {
	return NewSiteRepository(g.tx).Exists(ctx, orgID, siteID)
}

func (g *generatorTx) DepartmentExists(ctx context.Context, orgID, departmentID string) (bool, error) {
	return NewDepartmentRepository(g.tx).Exists(ctx, orgID, departmentID)
}

func (g *generatorTx) AssetExists(ctx context.Context, orgID, assetID string) (bool, error) {
	return NewAssetRepository(g.tx).Exists(ctx, orgID, assetID)
}

func (g *generatorTx) TicketExists(ctx context.Context, orgID, ticketID string) (bool, error) {
	return NewTicketRepository(g.tx).ExistsByID(ctx, orgID, ticketID)
}

func (g *generatorTx) InsertTicket(ctx context.Context, tk *types.Ticket) (bool, error) {
	return NewTicketRepository(g.tx).Insert(ctx, tk)
}

func (g *generatorTx) UpdateTemplateSchedule(ctx context.Context, orgID, templateID string, spec types.ScheduleSpec) error {
	return NewTemplateRepository(g.tx).UpdateSchedule(ctx, orgID, templateID, spec)
}

// SweepStore implements scheduler.SweepDB. Ticket pausing runs directly
// against the pool: the UPDATE itself is atomic per page and idempotent, so
// no tenant lock is needed.
type SweepStore struct {
	orgs    *OrganizationRepository
	tickets *TicketRepository
}

// NewSweepStore creates a SweepStore backed by the given pool.
func NewSweepStore(pool TxBeginner) *SweepStore {
	return &SweepStore{
		orgs:    NewOrganizationRepository(pool),
		tickets: NewTicketRepository(pool),
	}
}

func (s *SweepStore) ListExpiredDemoOrgIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.orgs.ListExpiredDemoOrgIDs(ctx, now, limit)
}

func (s *SweepStore) ListNonGrantingOrgIDs(ctx context.Context, now time.Time, grantingPlans []string, limit int) ([]string, error) {
	return s.orgs.ListNonGrantingOrgIDs(ctx, now, grantingPlans, limit)
}

func (s *SweepStore) PauseGeneratedBatch(ctx context.Context, orgID, afterID string, limit int) ([]string, error) {
	return s.tickets.PauseGeneratedBatch(ctx, orgID, afterID, limit)
}

var (
	_ scheduler.GeneratorDB = (*GeneratorStore)(nil)
	_ scheduler.SweepDB     = (*SweepStore)(nil)
)
