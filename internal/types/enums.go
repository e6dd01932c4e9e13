package types

// OrgStatus represents the lifecycle state of an organization.
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusDeleted   OrgStatus = "deleted"
)

// OrgType distinguishes paying tenants from time-boxed demo tenants.
type OrgType string

const (
	OrgTypeStandard OrgType = "standard"
	OrgTypeDemo     OrgType = "demo"
)

// PlanID identifies the billing plan for an organization.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanStarter    PlanID = "starter"
	PlanPro        PlanID = "pro"
	PlanBusiness   PlanID = "business"
	PlanEnterprise PlanID = "enterprise"
)

// SubscriptionStatus represents the state of a billing subscription.
// Provider-specific sub-statuses are normalized onto this shared enum at the
// webhook boundary; unrecognized values map conservatively to past_due.
type SubscriptionStatus string

const (
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// Granting reports whether the status permits feature access.
func (s SubscriptionStatus) Granting() bool {
	return s == SubStatusActive || s == SubStatusTrialing
}

// BillingProvider identifies the source of a subscription record.
type BillingProvider string

const (
	ProviderStripe   BillingProvider = "stripe"
	ProviderPaddle   BillingProvider = "paddle"
	ProviderAppStore BillingProvider = "apple_app_store"
)

// Feature is a named capability granted by a plan.
type Feature string

const (
	FeatureRecurringGeneration Feature = "recurring_generation"
	FeatureAttachments         Feature = "attachments"
	FeatureAPIAccess           Feature = "api_access"
)

// ResourceKind identifies a quota-counted resource.
type ResourceKind string

const (
	ResourceSites       ResourceKind = "sites"
	ResourceAssets      ResourceKind = "assets"
	ResourceDepartments ResourceKind = "departments"
	ResourceUsers       ResourceKind = "users"
	ResourcePreventives ResourceKind = "preventives"
)

// TemplateStatus represents the lifecycle state of a preventive template.
type TemplateStatus string

const (
	TemplateActive   TemplateStatus = "active"
	TemplatePaused   TemplateStatus = "paused"
	TemplateArchived TemplateStatus = "archived"
)

// ScheduleType identifies the recurrence kind of a schedule spec.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleDate    ScheduleType = "date"
)

// TicketStatus represents the workflow state of a work ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketOnHold     TicketStatus = "on_hold"
	TicketDone       TicketStatus = "done"
	TicketCanceled   TicketStatus = "canceled"
)

// Terminal reports whether the ticket can no longer change state.
// Terminal tickets are skipped by the entitlement pause sweeps.
func (s TicketStatus) Terminal() bool {
	return s == TicketDone || s == TicketCanceled
}

// Priority orders tickets for dispatch.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// UserRole defines authorization levels within an organization.
type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)
