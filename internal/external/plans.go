package external

import (
	"upkeep/internal/types"
)

// These product identifiers are placeholder references. In production they
// would be loaded from configuration. Each provider references plans by its
// own catalog IDs; the maps below translate them to domain plan tiers for
// the event normalizers.

// StripePriceToPlan maps Stripe Price IDs to domain plan tiers.
var StripePriceToPlan = map[string]types.PlanID{
	"price_starter":    types.PlanStarter,
	"price_pro":        types.PlanPro,
	"price_business":   types.PlanBusiness,
	"price_enterprise": types.PlanEnterprise,
}

// PaddleProductToPlan maps Paddle product IDs to domain plan tiers.
var PaddleProductToPlan = map[string]types.PlanID{
	"pro_starter":    types.PlanStarter,
	"pro_pro":        types.PlanPro,
	"pro_business":   types.PlanBusiness,
	"pro_enterprise": types.PlanEnterprise,
}

// AppStoreProductToPlan maps App Store in-app product IDs to domain plan
// tiers. The App Store catalog stops at pro; larger tiers are sold through
// the web checkout providers only.
var AppStoreProductToPlan = map[string]types.PlanID{
	"io.upkeep.sub.starter": types.PlanStarter,
	"io.upkeep.sub.pro":     types.PlanPro,
}
