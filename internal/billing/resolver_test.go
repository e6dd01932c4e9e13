package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

func TestResolve_CatalogDefaults(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	org := activeOrg(types.PlanPro)

	eff := resolver.Resolve(org)
	assert.Equal(t, types.PlanPro, eff.PlanID)
	assert.Equal(t, 10, eff.Limits.MaxSites)
	assert.Equal(t, 1000, eff.Limits.MaxAssets)
	assert.True(t, eff.HasFeature(types.FeatureRecurringGeneration))
	assert.True(t, eff.HasFeature(types.FeatureAPIAccess))
}

func TestResolve_StoredOverrides(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	org := activeOrg(types.PlanStarter)
	org.Entitlement.Limits = types.EntitlementLimits{MaxUsers: 40}

	eff := resolver.Resolve(org)
	assert.Equal(t, 40, eff.Limits.MaxUsers)
	// Unset override fields keep the catalog defaults.
	assert.Equal(t, 3, eff.Limits.MaxSites)
	assert.Equal(t, 25, eff.Limits.MaxActivePreventives)
}

func TestResolve_UnknownPlanFailsSafeToFree(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	org := activeOrg("legacy_gold")

	eff := resolver.Resolve(org)
	assert.Equal(t, 1, eff.Limits.MaxSites)
	assert.False(t, eff.HasFeature(types.FeatureRecurringGeneration))
}

func TestResolveFeature_PrimaryWins(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	org := activeOrg(types.PlanPro)
	org.Entitlement.Provider = types.ProviderStripe
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:    types.PlanBusiness,
			Status:    types.SubStatusActive,
			UpdatedAt: now,
		},
	}

	eff, ok := resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
	require.True(t, ok)
	assert.Equal(t, types.ProviderStripe, eff.Provider)
	assert.Equal(t, types.PlanPro, eff.PlanID)
}

func TestResolveFeature_FallbackPrefersMostRecent(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	org := activeOrg(types.PlanFree)
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:    types.PlanStarter,
			Status:    types.SubStatusActive,
			UpdatedAt: now.Add(-2 * time.Hour),
		},
		types.ProviderAppStore: {
			PlanID:    types.PlanPro,
			Status:    types.SubStatusActive,
			UpdatedAt: now.Add(-time.Hour),
		},
	}

	eff, ok := resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
	require.True(t, ok)
	assert.Equal(t, types.ProviderAppStore, eff.Provider)
	assert.Equal(t, types.PlanPro, eff.PlanID)
}

func TestResolveFeature_SkipsConflictedAndNonGranting(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	org := activeOrg(types.PlanFree)
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:    types.PlanBusiness,
			Status:    types.SubStatusActive,
			Conflict:  true,
			UpdatedAt: now,
		},
		types.ProviderAppStore: {
			PlanID:    types.PlanPro,
			Status:    types.SubStatusCanceled,
			UpdatedAt: now,
		},
		types.ProviderStripe: {
			PlanID:    types.PlanStarter,
			Status:    types.SubStatusActive,
			UpdatedAt: now.Add(-24 * time.Hour),
		},
	}

	eff, ok := resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
	require.True(t, ok)
	assert.Equal(t, types.ProviderStripe, eff.Provider)
}

func TestResolveFeature_SkipsLapsedTrialRecord(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lapsed := now.Add(-time.Minute)

	org := activeOrg(types.PlanFree)
	org.BillingProviders = types.ProviderRecords{
		types.ProviderPaddle: {
			PlanID:      types.PlanPro,
			Status:      types.SubStatusTrialing,
			TrialEndsAt: &lapsed,
			UpdatedAt:   now,
		},
	}

	_, ok := resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
	assert.False(t, ok)
}

func TestResolveFeature_NoneGrants(t *testing.T) {
	resolver := NewResolver(NewStaticCatalog())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	org := activeOrg(types.PlanFree)

	eff, ok := resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
	assert.False(t, ok)
	// The primary resolution is still returned so callers can report it.
	assert.Equal(t, types.PlanFree, eff.PlanID)
}
