package billing

import (
	"sort"
	"time"

	"upkeep/internal/types"
)

// Resolver computes the effective entitlement for an organization by merging
// its stored entitlement with plan catalog defaults. It is read-only: the
// fallback path can substitute an alternate provider's record for a single
// request, but nothing the resolver produces is ever persisted.
type Resolver struct {
	catalog PlanCatalog
}

// NewResolver creates a Resolver backed by the given plan catalog.
func NewResolver(catalog PlanCatalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// mergeLimits applies stored overrides on top of catalog defaults.
// A stored field of 0 means "no override" and the catalog default wins;
// plans whose catalog default is already 0 therefore stay unlimited.
func mergeLimits(defaults, stored types.EntitlementLimits) types.EntitlementLimits {
	merged := defaults
	if stored.MaxSites != 0 {
		merged.MaxSites = stored.MaxSites
	}
	if stored.MaxAssets != 0 {
		merged.MaxAssets = stored.MaxAssets
	}
	if stored.MaxDepartments != 0 {
		merged.MaxDepartments = stored.MaxDepartments
	}
	if stored.MaxUsers != 0 {
		merged.MaxUsers = stored.MaxUsers
	}
	if stored.MaxActivePreventives != 0 {
		merged.MaxActivePreventives = stored.MaxActivePreventives
	}
	if stored.AttachmentsMonthlyMB != 0 {
		merged.AttachmentsMonthlyMB = stored.AttachmentsMonthlyMB
	}
	return merged
}

// Resolve returns the effective entitlement derived from the organization's
// primary entitlement record: catalog defaults for its plan, shallow-
// overridden by stored limits, plus the plan's feature set.
func (r *Resolver) Resolve(org *types.Organization) types.EffectiveEntitlement {
	ent := org.Entitlement
	return types.EffectiveEntitlement{
		PlanID:           ent.PlanID,
		Status:           ent.Status,
		Provider:         ent.Provider,
		TrialEndsAt:      ent.TrialEndsAt,
		CurrentPeriodEnd: ent.CurrentPeriodEnd,
		Limits:           mergeLimits(r.catalog.Limits(ent.PlanID), ent.Limits),
		Features:         r.catalog.Features(ent.PlanID),
	}
}

// ResolveFeature returns the effective entitlement that grants the requested
// feature, and whether any does.
//
// The primary entitlement wins when it is granting (active/trialing, trial
// not lapsed) and its plan carries the feature. Otherwise the provider
// records are scanned: non-conflicted records with a granting status, most
// recently updated first, and the first whose plan grants the feature (and
// whose own trial has not lapsed) becomes the effective entitlement for this
// single request. The substitution is deliberately never persisted -- a
// provider can unblock a capability without becoming the organization's
// system-of-record provider.
func (r *Resolver) ResolveFeature(org *types.Organization, feature types.Feature, now time.Time) (types.EffectiveEntitlement, bool) {
	primary := r.Resolve(org)
	if primary.Granting(now) && primary.HasFeature(feature) {
		return primary, true
	}

	type candidate struct {
		provider types.BillingProvider
		record   types.BillingProviderRecord
	}
	var candidates []candidate
	for provider, rec := range org.BillingProviders {
		if rec.Conflict || !rec.Status.Granting() {
			continue
		}
		candidates = append(candidates, candidate{provider: provider, record: rec})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].record.UpdatedAt.After(candidates[j].record.UpdatedAt)
	})

	for _, c := range candidates {
		if c.record.TrialEndsAt != nil && !c.record.TrialEndsAt.After(now) {
			continue
		}
		features := r.catalog.Features(c.record.PlanID)
		if !features[feature] {
			continue
		}
		return types.EffectiveEntitlement{
			PlanID:           c.record.PlanID,
			Status:           c.record.Status,
			Provider:         c.provider,
			TrialEndsAt:      c.record.TrialEndsAt,
			CurrentPeriodEnd: c.record.CurrentPeriodEnd,
			Limits:           r.catalog.Limits(c.record.PlanID),
			Features:         features,
		}, true
	}

	return primary, false
}
