package billing

import (
	"time"

	"upkeep/internal/types"
)

// QuotaEnforcer validates requested creations against resolved limits and,
// on success, increments the matching usage counter. It must be called
// inside the same transaction as the domain write it gates: the caller reads
// the organization row for update, invokes Enforce against the in-memory
// entitlement, performs the domain write, and persists the organization --
// all before commit.
type QuotaEnforcer struct {
	resolver *Resolver
}

// NewQuotaEnforcer creates a QuotaEnforcer using the given resolver.
func NewQuotaEnforcer(resolver *Resolver) *QuotaEnforcer {
	return &QuotaEnforcer{resolver: resolver}
}

// usageFor maps a resource kind to its usage counter.
func usageFor(kind types.ResourceKind, u types.EntitlementUsage) int {
	switch kind {
	case types.ResourceSites:
		return u.SitesCount
	case types.ResourceAssets:
		return u.AssetsCount
	case types.ResourceDepartments:
		return u.DepartmentsCount
	case types.ResourceUsers:
		return u.UsersCount
	case types.ResourcePreventives:
		return u.ActivePreventivesCount
	default:
		return 0
	}
}

// limitFor maps a resource kind to its limit field.
func limitFor(kind types.ResourceKind, l types.EntitlementLimits) int {
	switch kind {
	case types.ResourceSites:
		return l.MaxSites
	case types.ResourceAssets:
		return l.MaxAssets
	case types.ResourceDepartments:
		return l.MaxDepartments
	case types.ResourceUsers:
		return l.MaxUsers
	case types.ResourcePreventives:
		return l.MaxActivePreventives
	default:
		return 0
	}
}

// CanCreate reports whether one more resource of the given kind fits under
// the limits. A non-positive limit means unlimited; otherwise the limit is a
// hard ceiling: creation is permitted iff usage < limit.
func CanCreate(kind types.ResourceKind, usage types.EntitlementUsage, limits types.EntitlementLimits) bool {
	limit := limitFor(kind, limits)
	if limit <= 0 {
		return true
	}
	return usageFor(kind, usage) < limit
}

// Enforce validates the requested creation and, on permit, increments the
// usage counter by exactly 1 and stamps the entitlement's UpdatedAt on the
// in-memory organization. On deny nothing is mutated and a typed quota (or
// entitlement precondition) error is returned.
//
// For the preventives kind the entitlement must additionally be granting
// (active/trialing, trial not lapsed), and -- unless the organization is a
// demo tenant -- the resolved feature set must include recurring generation
// on a plan above the free tier. The feature check uses the fallback scan,
// so an alternate provider record can satisfy it for this request.
func (q *QuotaEnforcer) Enforce(org *types.Organization, kind types.ResourceKind, now time.Time) error {
	eff := q.resolver.Resolve(org)

	if kind == types.ResourcePreventives {
		if !eff.Granting(now) {
			return types.NewAppError(types.ErrCodeEntitlementInactive,
				"your subscription is not active; reactivate it to add preventive maintenance", nil)
		}
		if org.Type != types.OrgTypeDemo {
			withFeature, ok := q.resolver.ResolveFeature(org, types.FeatureRecurringGeneration, now)
			if !ok || withFeature.PlanID == types.PlanFree {
				return types.NewAppError(types.ErrCodeFeatureNotInPlan,
					"your plan does not include recurring preventive maintenance; upgrade to enable it", nil)
			}
			// The granting provider's entitlement is effective for this
			// request, including its limits.
			eff = withFeature
		}
	}

	if !CanCreate(kind, org.Entitlement.Usage, eff.Limits) {
		return types.NewQuotaExceeded(kind,
			usageFor(kind, org.Entitlement.Usage), limitFor(kind, eff.Limits))
	}

	incrementUsage(&org.Entitlement.Usage, kind)
	org.Entitlement.UpdatedAt = now
	return nil
}

// ResolveFeature exposes the resolver's feature scan so callers holding a
// QuotaEnforcer need no second billing dependency.
func (q *QuotaEnforcer) ResolveFeature(org *types.Organization, feature types.Feature, now time.Time) (types.EffectiveEntitlement, bool) {
	return q.resolver.ResolveFeature(org, feature, now)
}

// Release decrements the usage counter for the given kind, flooring at zero.
// Used when a counted resource is deleted or a preventive is archived.
func (q *QuotaEnforcer) Release(org *types.Organization, kind types.ResourceKind, now time.Time) {
	decrementUsage(&org.Entitlement.Usage, kind)
	org.Entitlement.UpdatedAt = now
}

func incrementUsage(u *types.EntitlementUsage, kind types.ResourceKind) {
	switch kind {
	case types.ResourceSites:
		u.SitesCount++
	case types.ResourceAssets:
		u.AssetsCount++
	case types.ResourceDepartments:
		u.DepartmentsCount++
	case types.ResourceUsers:
		u.UsersCount++
	case types.ResourcePreventives:
		u.ActivePreventivesCount++
	}
}

func decrementUsage(u *types.EntitlementUsage, kind types.ResourceKind) {
	dec := func(n *int) {
		if *n > 0 {
			*n--
		}
	}
	switch kind {
	case types.ResourceSites:
		dec(&u.SitesCount)
	case types.ResourceAssets:
		dec(&u.AssetsCount)
	case types.ResourceDepartments:
		dec(&u.DepartmentsCount)
	case types.ResourceUsers:
		dec(&u.UsersCount)
	case types.ResourcePreventives:
		dec(&u.ActivePreventivesCount)
	}
}
