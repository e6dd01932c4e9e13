package types

import "time"

// EntitlementLimits defines the resource ceilings granted by a plan.
// A value of 0 (or below) means unlimited -- enforcement code must treat
// non-positive limits as no limit.
type EntitlementLimits struct {
	MaxSites             int `json:"max_sites"`
	MaxAssets            int `json:"max_assets"`
	MaxDepartments       int `json:"max_departments"`
	MaxUsers             int `json:"max_users"`
	MaxActivePreventives int `json:"max_active_preventives"`
	AttachmentsMonthlyMB int `json:"attachments_monthly_mb"`
}

// EntitlementUsage tracks current consumption against EntitlementLimits.
// Counters are mutated only inside the same transaction as the counted
// creation; they are never recomputed by full scans on the hot path.
type EntitlementUsage struct {
	SitesCount             int `json:"sites_count"`
	AssetsCount            int `json:"assets_count"`
	DepartmentsCount       int `json:"departments_count"`
	UsersCount             int `json:"users_count"`
	ActivePreventivesCount int `json:"active_preventives_count"`
	AttachmentsThisMonthMB int `json:"attachments_this_month_mb"`
}

// Entitlement is the primary subscription record for an organization (1:1,
// embedded in the organization row). Limits are always the catalog defaults
// for PlanID shallow-overridden by stored overrides; the merge happens at
// write time, never lazily.
type Entitlement struct {
	PlanID           PlanID             `json:"plan_id"`
	Status           SubscriptionStatus `json:"status"`
	Provider         BillingProvider    `json:"provider,omitempty"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	Limits           EntitlementLimits  `json:"limits"`
	Usage            EntitlementUsage   `json:"usage"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Expired reports whether the trial window has lapsed relative to now.
// An entitlement without a trial end never expires by this rule.
func (e Entitlement) Expired(now time.Time) bool {
	return e.TrialEndsAt != nil && !e.TrialEndsAt.After(now)
}

// BillingProviderRecord is a per-provider snapshot of subscription state.
// Multiple providers may independently claim a status for the same
// organization; at most one is authoritative at a time. Records stored with
// Conflict=true were blocked by the provider precedence rule and carry a
// machine-readable reason naming the blocking provider.
type BillingProviderRecord struct {
	PlanID           PlanID             `json:"plan_id"`
	Status           SubscriptionStatus `json:"status"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	Conflict         bool               `json:"conflict"`
	ConflictReason   string             `json:"conflict_reason,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ProviderRecords maps provider name to its latest subscription snapshot.
// Stored as a JSONB column on the organizations table.
type ProviderRecords map[BillingProvider]BillingProviderRecord

// Organization represents a tenant. All quota and schedule state is scoped
// per organization, and every entitlement mutation happens inside a
// transaction on this row.
type Organization struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Status           OrgStatus       `json:"status" db:"status"`
	Type             OrgType         `json:"type" db:"org_type"`
	DemoExpiresAt    *time.Time      `json:"demo_expires_at,omitempty" db:"demo_expires_at"`
	Entitlement      Entitlement     `json:"entitlement" db:"entitlement"`
	BillingProviders ProviderRecords `json:"billing_providers" db:"billing_providers"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time      `json:"-" db:"deleted_at"`
}

// EffectiveEntitlement is the resolved view of an organization's entitlement
// for a single request: catalog defaults merged with stored overrides, plus
// the feature set of the effective plan. It is never persisted.
type EffectiveEntitlement struct {
	PlanID           PlanID
	Status           SubscriptionStatus
	Provider         BillingProvider
	TrialEndsAt      *time.Time
	CurrentPeriodEnd *time.Time
	Limits           EntitlementLimits
	Features         map[Feature]bool
}

// Granting reports whether the resolved entitlement currently grants access:
// status must be active or trialing and the trial must not have lapsed.
func (e EffectiveEntitlement) Granting(now time.Time) bool {
	if !e.Status.Granting() {
		return false
	}
	if e.TrialEndsAt != nil && !e.TrialEndsAt.After(now) {
		return false
	}
	return true
}

// HasFeature reports whether the effective plan grants the capability.
func (e EffectiveEntitlement) HasFeature(f Feature) bool {
	return e.Features[f]
}

// BillingEvent is the canonical normalized form of an inbound provider
// webhook. Provider-specific field names must not leak past the normalizers
// that produce this shape.
type BillingEvent struct {
	EventID          string
	Provider         BillingProvider
	OrganizationID   string
	PlanID           PlanID
	Status           SubscriptionStatus
	TrialEndsAt      *time.Time
	CurrentPeriodEnd *time.Time
	OccurredAt       time.Time
}

// ScheduleSpec describes when a preventive template produces tickets.
// NextRunAt, once computed, is authoritative until consumed: sweeps do not
// re-invoke the calculator while a valid future NextRunAt exists.
type ScheduleSpec struct {
	Type       ScheduleType `json:"type"`
	Timezone   string       `json:"timezone,omitempty"`
	TimeOfDay  string       `json:"time_of_day,omitempty"` // "HH:MM", default 08:00
	DaysOfWeek []int        `json:"days_of_week,omitempty"` // ISO weekday 1..7, 7=Sunday
	DayOfMonth int          `json:"day_of_month,omitempty"`
	Date       *time.Time   `json:"date,omitempty"`
	NextRunAt  *time.Time   `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
}

// ChecklistItem is a single line of a template's checklist.
type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Checklist is the ordered task list copied onto generated tickets.
type Checklist []ChecklistItem

// PreventiveTemplate is a user-authored recurrence definition. The generator
// only ever writes schedule.last_run_at / schedule.next_run_at; all other
// fields are owned by the authoring APIs.
type PreventiveTemplate struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Status         TemplateStatus `json:"status" db:"status"`
	Automatic      bool           `json:"automatic" db:"automatic"`
	Priority       Priority       `json:"priority" db:"priority"`
	SiteID         string         `json:"site_id,omitempty" db:"site_id"`
	DepartmentID   string         `json:"department_id,omitempty" db:"department_id"`
	AssetID        string         `json:"asset_id,omitempty" db:"asset_id"`
	Schedule       ScheduleSpec   `json:"schedule" db:"schedule"`
	Checklist      Checklist      `json:"checklist,omitempty" db:"checklist"`
	CreatedBy      string         `json:"created_by" db:"created_by"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// TemplateSnapshot captures generation-time template fields on the ticket so
// the ticket stays stable for audit even if the template is later edited.
type TemplateSnapshot struct {
	Name         string    `json:"name"`
	Priority     Priority  `json:"priority"`
	SiteID       string    `json:"site_id,omitempty"`
	DepartmentID string    `json:"department_id,omitempty"`
	AssetID      string    `json:"asset_id,omitempty"`
	Checklist    Checklist `json:"checklist,omitempty"`
}

// Ticket is a generated work order. Tickets produced by the recurring
// generator are keyed deterministically by (template, occurrence) so that
// concurrent or retried sweeps cannot duplicate them.
type Ticket struct {
	ID                  string           `json:"id" db:"id"`
	OrganizationID      string           `json:"organization_id" db:"organization_id"`
	TemplateID          string           `json:"template_id,omitempty" db:"template_id"`
	Title               string           `json:"title" db:"title"`
	Status              TicketStatus     `json:"status" db:"status"`
	Priority            Priority         `json:"priority" db:"priority"`
	SiteID              string           `json:"site_id,omitempty" db:"site_id"`
	DepartmentID        string           `json:"department_id,omitempty" db:"department_id"`
	AssetID             string           `json:"asset_id,omitempty" db:"asset_id"`
	ScheduledFor        *time.Time       `json:"scheduled_for,omitempty" db:"scheduled_for"`
	PausedByEntitlement bool             `json:"paused_by_entitlement" db:"paused_by_entitlement"`
	TemplateSnapshot    TemplateSnapshot `json:"template_snapshot,omitempty" db:"template_snapshot"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// Site is a physical location owned by an organization. Only the fields
// needed for quota counting and in-tenant reference checks are modeled.
type Site struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Department is an organizational unit within a site.
type Department struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	SiteID         string    `json:"site_id,omitempty" db:"site_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Asset is a maintainable piece of equipment.
type Asset struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	SiteID         string    `json:"site_id,omitempty" db:"site_id"`
	DepartmentID   string    `json:"department_id,omitempty" db:"department_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// UserInvite is a pending membership counted against the users quota.
type UserInvite struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Email          string    `json:"email" db:"email"`
	Role           UserRole  `json:"role" db:"role"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TicketCreatedEvent is the payload published to the notification queue when
// the generator materializes a ticket. Downstream assignment/notification
// workers consume it; this engine only guarantees a well-formed document.
type TicketCreatedEvent struct {
	TicketID       string    `json:"ticket_id"`
	OrganizationID string    `json:"organization_id"`
	TemplateID     string    `json:"template_id"`
	Title          string    `json:"title"`
	Priority       Priority  `json:"priority"`
	SiteID         string    `json:"site_id,omitempty"`
	DepartmentID   string    `json:"department_id,omitempty"`
	AssetID        string    `json:"asset_id,omitempty"`
	ScheduledFor   time.Time `json:"scheduled_for"`
}
