package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

func newEnforcer() *QuotaEnforcer {
	return NewQuotaEnforcer(NewResolver(NewStaticCatalog()))
}

func activeOrg(plan types.PlanID) *types.Organization {
	return &types.Organization{
		ID:     "org_1",
		Status: types.OrgStatusActive,
		Type:   types.OrgTypeStandard,
		Entitlement: types.Entitlement{
			PlanID: plan,
			Status: types.SubStatusActive,
		},
	}
}

func TestCanCreate_NonPositiveLimitIsUnlimited(t *testing.T) {
	usage := types.EntitlementUsage{SitesCount: 100000}
	assert.True(t, CanCreate(types.ResourceSites, usage, types.EntitlementLimits{MaxSites: 0}))
	assert.True(t, CanCreate(types.ResourceSites, usage, types.EntitlementLimits{MaxSites: -1}))
}

func TestCanCreate_HardCeiling(t *testing.T) {
	limits := types.EntitlementLimits{MaxAssets: 25}
	assert.True(t, CanCreate(types.ResourceAssets, types.EntitlementUsage{AssetsCount: 24}, limits))
	assert.False(t, CanCreate(types.ResourceAssets, types.EntitlementUsage{AssetsCount: 25}, limits))
	assert.False(t, CanCreate(types.ResourceAssets, types.EntitlementUsage{AssetsCount: 26}, limits))
}

func TestEnforce_IncrementsExactlyOne(t *testing.T) {
	org := activeOrg(types.PlanStarter)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, newEnforcer().Enforce(org, types.ResourceSites, now))
	assert.Equal(t, 1, org.Entitlement.Usage.SitesCount)
	assert.Equal(t, now, org.Entitlement.UpdatedAt)
}

func TestEnforce_DenyLeavesUsageUnchanged(t *testing.T) {
	org := activeOrg(types.PlanFree)
	org.Entitlement.Usage.SitesCount = 1 // free tier allows exactly one site
	before := org.Entitlement

	err := newEnforcer().Enforce(org, types.ResourceSites, time.Now())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeLimitSites, appErr.Code)
	assert.Equal(t, before, org.Entitlement)
}

func TestEnforce_StoredOverrideWinsOverCatalog(t *testing.T) {
	org := activeOrg(types.PlanFree)
	org.Entitlement.Limits.MaxSites = 5
	org.Entitlement.Usage.SitesCount = 3

	require.NoError(t, newEnforcer().Enforce(org, types.ResourceSites, time.Now()))
	assert.Equal(t, 4, org.Entitlement.Usage.SitesCount)
}

func TestEnforce_PreventivesRequireGrantingStatus(t *testing.T) {
	org := activeOrg(types.PlanPro)
	org.Entitlement.Status = types.SubStatusPastDue

	err := newEnforcer().Enforce(org, types.ResourcePreventives, time.Now())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeEntitlementInactive, appErr.Code)
	assert.Equal(t, 0, org.Entitlement.Usage.ActivePreventivesCount)
}

func TestEnforce_PreventivesLapsedTrialDenied(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	trialEnd := now.Add(-time.Hour)

	org := activeOrg(types.PlanPro)
	org.Entitlement.Status = types.SubStatusTrialing
	org.Entitlement.TrialEndsAt = &trialEnd

	err := newEnforcer().Enforce(org, types.ResourcePreventives, now)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeEntitlementInactive, appErr.Code)
}

func TestEnforce_PreventivesFreePlanDenied(t *testing.T) {
	org := activeOrg(types.PlanFree)

	err := newEnforcer().Enforce(org, types.ResourcePreventives, time.Now())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeFeatureNotInPlan, appErr.Code)
}

func TestEnforce_PreventivesDemoBypassesFeatureCheck(t *testing.T) {
	org := activeOrg(types.PlanFree)
	org.Type = types.OrgTypeDemo

	require.NoError(t, newEnforcer().Enforce(org, types.ResourcePreventives, time.Now()))
	assert.Equal(t, 1, org.Entitlement.Usage.ActivePreventivesCount)
}

func TestEnforce_PreventivesFallbackProviderGrants(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Primary is a lapsed free entitlement, but a paddle record still grants
	// a plan with recurring generation.
	org := activeOrg(types.PlanFree)
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:    types.PlanStarter,
			Status:    types.SubStatusActive,
			UpdatedAt: now.Add(-time.Hour),
		},
	}

	require.NoError(t, newEnforcer().Enforce(org, types.ResourcePreventives, now))
	assert.Equal(t, 1, org.Entitlement.Usage.ActivePreventivesCount)
}

func TestEnforce_PreventivesFallbackLimitsApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	org := activeOrg(types.PlanFree)
	org.Entitlement.Usage.ActivePreventivesCount = 25 // starter ceiling
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:    types.PlanStarter,
			Status:    types.SubStatusActive,
			UpdatedAt: now.Add(-time.Hour),
		},
	}

	err := newEnforcer().Enforce(org, types.ResourcePreventives, now)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeLimitPreventives, appErr.Code)
}

func TestRelease_DecrementsAndFloorsAtZero(t *testing.T) {
	org := activeOrg(types.PlanPro)
	org.Entitlement.Usage.AssetsCount = 1
	enforcer := newEnforcer()

	enforcer.Release(org, types.ResourceAssets, time.Now())
	assert.Equal(t, 0, org.Entitlement.Usage.AssetsCount)

	enforcer.Release(org, types.ResourceAssets, time.Now())
	assert.Equal(t, 0, org.Entitlement.Usage.AssetsCount)
}
