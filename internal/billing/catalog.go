// Package billing provides plan management, entitlement resolution, quota
// enforcement, and billing event reconciliation for the platform.
package billing

import "upkeep/internal/types"

// PlanCatalog is the authoritative lookup of limits and features per plan.
// It is injected into the resolver and quota enforcer rather than accessed
// as a global so tests can substitute fixtures.
type PlanCatalog interface {
	// Limits returns the resource ceilings for the given plan.
	// Unknown plans return the Free tier limits to fail safely.
	Limits(plan types.PlanID) types.EntitlementLimits

	// Features returns the capability set granted by the given plan.
	// Unknown plans return the Free tier features.
	Features(plan types.PlanID) map[types.Feature]bool

	// Plans returns every known plan in tier order. Plans absent from this
	// list resolve with Free tier limits and features.
	Plans() []types.PlanID
}

// planOrder lists the known plans from lowest to highest tier.
var planOrder = []types.PlanID{
	types.PlanFree,
	types.PlanStarter,
	types.PlanPro,
	types.PlanBusiness,
	types.PlanEnterprise,
}

// staticCatalog is a compile-time plan catalog backed by in-memory maps.
// It implements PlanCatalog and is the standard implementation for production use.
type staticCatalog struct {
	limits   map[types.PlanID]types.EntitlementLimits
	features map[types.PlanID]map[types.Feature]bool
}

// planLimitDefaults defines the hardcoded resource ceilings per plan.
// A value of 0 means unlimited -- enforcement code treats 0 as no limit.
var planLimitDefaults = map[types.PlanID]types.EntitlementLimits{
	types.PlanFree: {
		MaxSites:             1,
		MaxAssets:            25,
		MaxDepartments:       3,
		MaxUsers:             3,
		MaxActivePreventives: 3,
		AttachmentsMonthlyMB: 50,
	},
	types.PlanStarter: {
		MaxSites:             3,
		MaxAssets:            250,
		MaxDepartments:       10,
		MaxUsers:             10,
		MaxActivePreventives: 25,
		AttachmentsMonthlyMB: 500,
	},
	types.PlanPro: {
		MaxSites:             10,
		MaxAssets:            1000,
		MaxDepartments:       50,
		MaxUsers:             50,
		MaxActivePreventives: 100,
		AttachmentsMonthlyMB: 5000,
	},
	types.PlanBusiness: {
		MaxSites:             50,
		MaxAssets:            10000,
		MaxDepartments:       200,
		MaxUsers:             250,
		MaxActivePreventives: 500,
		AttachmentsMonthlyMB: 20000,
	},
	types.PlanEnterprise: {
		MaxSites:             0, // unlimited
		MaxAssets:            0,
		MaxDepartments:       0,
		MaxUsers:             0,
		MaxActivePreventives: 0,
		AttachmentsMonthlyMB: 0,
	},
}

// planFeatureDefaults defines the capability set per plan. The free tier
// never grants recurring generation; demo tenants bypass this in the quota
// enforcer, not here.
var planFeatureDefaults = map[types.PlanID]map[types.Feature]bool{
	types.PlanFree: {
		types.FeatureRecurringGeneration: false,
		types.FeatureAttachments:         true,
		types.FeatureAPIAccess:           false,
	},
	types.PlanStarter: {
		types.FeatureRecurringGeneration: true,
		types.FeatureAttachments:         true,
		types.FeatureAPIAccess:           false,
	},
	types.PlanPro: {
		types.FeatureRecurringGeneration: true,
		types.FeatureAttachments:         true,
		types.FeatureAPIAccess:           true,
	},
	types.PlanBusiness: {
		types.FeatureRecurringGeneration: true,
		types.FeatureAttachments:         true,
		types.FeatureAPIAccess:           true,
	},
	types.PlanEnterprise: {
		types.FeatureRecurringGeneration: true,
		types.FeatureAttachments:         true,
		types.FeatureAPIAccess:           true,
	},
}

// NewStaticCatalog returns a PlanCatalog backed by the hardcoded plan tables.
// No database or external service is required.
func NewStaticCatalog() PlanCatalog {
	// Copy the defaults so callers cannot mutate the package-level tables.
	limits := make(map[types.PlanID]types.EntitlementLimits, len(planLimitDefaults))
	for k, v := range planLimitDefaults {
		limits[k] = v
	}
	features := make(map[types.PlanID]map[types.Feature]bool, len(planFeatureDefaults))
	for plan, set := range planFeatureDefaults {
		cp := make(map[types.Feature]bool, len(set))
		for f, ok := range set {
			cp[f] = ok
		}
		features[plan] = cp
	}
	return &staticCatalog{limits: limits, features: features}
}

// Limits returns the resource ceilings for the given plan, falling back to
// the Free tier for unknown plans.
func (c *staticCatalog) Limits(plan types.PlanID) types.EntitlementLimits {
	if l, ok := c.limits[plan]; ok {
		return l
	}
	return c.limits[types.PlanFree]
}

// Features returns the capability set for the given plan, falling back to
// the Free tier for unknown plans.
func (c *staticCatalog) Features(plan types.PlanID) map[types.Feature]bool {
	if f, ok := c.features[plan]; ok {
		return f
	}
	return c.features[types.PlanFree]
}

// Plans returns the known plans in tier order.
func (c *staticCatalog) Plans() []types.PlanID {
	out := make([]types.PlanID, len(planOrder))
	copy(out, planOrder)
	return out
}
