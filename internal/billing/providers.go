package billing

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"upkeep/internal/types"
)

// Provider-specific payloads are normalized here, immediately at the
// boundary, into the canonical types.BillingEvent. No provider field name
// leaks past this file.
//
// Each normalizer parses a minimal representation of the provider's event
// tailored to the fields we need, rather than the provider SDK's full event
// type, to keep parsing decoupled and testable.

// Stripe event type constants handled by the normalizer.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
)

// Paddle event type constants handled by the normalizer.
const (
	EventPaddleTransactionCompleted = "transaction.completed"
	EventPaddleSubCreated           = "subscription.created"
	EventPaddleSubUpdated           = "subscription.updated"
	EventPaddleSubCanceled          = "subscription.canceled"
	EventPaddleSubResumed           = "subscription.resumed"
	EventPaddleSubPastDue           = "subscription.past_due"
)

// App Store server notification types handled by the normalizer.
const (
	NotifyAppStoreSubscribed     = "SUBSCRIBED"
	NotifyAppStoreDidRenew       = "DID_RENEW"
	NotifyAppStoreDidFailToRenew = "DID_FAIL_TO_RENEW"
	NotifyAppStoreExpired        = "EXPIRED"
	NotifyAppStoreRevoked        = "REVOKE"
	NotifyAppStoreGracePeriodExp = "GRACE_PERIOD_EXPIRED"
)

// ErrEventIgnored marks provider events that carry no entitlement change
// (e.g. Stripe events outside the handled set). Handlers treat it as a
// successful no-op.
var ErrEventIgnored = fmt.Errorf("billing event ignored")

// ---------------------------------------------------------------------------
// Stripe
// ---------------------------------------------------------------------------

// StripeNormalizer converts verified Stripe webhook payloads into canonical
// billing events. Price IDs are mapped to plans through the configured
// price table; checkout sessions may also carry the plan in metadata.
type StripeNormalizer struct {
	priceToPlan map[string]types.PlanID
}

// NewStripeNormalizer creates a StripeNormalizer with the given price->plan
// mapping.
func NewStripeNormalizer(priceToPlan map[string]types.PlanID) *StripeNormalizer {
	return &StripeNormalizer{priceToPlan: priceToPlan}
}

// stripeWebhookEvent is a minimal representation of a Stripe webhook event.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscriptionObj struct {
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	TrialEnd int64             `json:"trial_end"`
	Items    struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoiceObj struct {
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// Normalize converts a raw, already-verified Stripe payload into a canonical
// billing event. Returns ErrEventIgnored for event types outside the
// handled set.
func (n *StripeNormalizer) Normalize(payload []byte) (types.BillingEvent, error) {
	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid stripe event payload", err)
	}

	var data stripeEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid stripe event data", err)
	}

	out := types.BillingEvent{
		EventID:    event.ID,
		Provider:   types.ProviderStripe,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case EventStripeCheckoutCompleted:
		var session stripeCheckoutSessionObj
		if err := json.Unmarshal(data.Object, &session); err != nil {
			return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"invalid checkout session object", err)
		}
		out.OrganizationID = session.ClientReferenceID
		if out.OrganizationID == "" {
			out.OrganizationID = session.Metadata["org_id"]
		}
		out.PlanID = types.PlanID(session.Metadata["plan"])
		out.Status = types.SubStatusActive

	case EventStripeSubUpdated, EventStripeSubDeleted:
		var sub stripeSubscriptionObj
		if err := json.Unmarshal(data.Object, &sub); err != nil {
			return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"invalid subscription object", err)
		}
		out.OrganizationID = sub.Metadata["org_id"]
		if event.Type == EventStripeSubDeleted {
			out.PlanID = types.PlanFree
			out.Status = types.SubStatusCanceled
			break
		}
		out.Status = mapStripeStatus(sub.Status)
		if len(sub.Items.Data) > 0 {
			out.PlanID = n.priceToPlan[sub.Items.Data[0].Price.ID]
			if end := sub.Items.Data[0].CurrentPeriodEnd; end > 0 {
				t := time.Unix(end, 0).UTC()
				out.CurrentPeriodEnd = &t
			}
		}
		if sub.TrialEnd > 0 {
			t := time.Unix(sub.TrialEnd, 0).UTC()
			out.TrialEndsAt = &t
		}

	case EventStripeInvoicePaid, EventStripePaymentFailed:
		var invoice stripeInvoiceObj
		if err := json.Unmarshal(data.Object, &invoice); err != nil {
			return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"invalid invoice object", err)
		}
		if invoice.SubscriptionDetails != nil {
			out.OrganizationID = invoice.SubscriptionDetails.Metadata["org_id"]
		}
		if out.OrganizationID == "" {
			out.OrganizationID = invoice.Metadata["org_id"]
		}
		// Renewal notifications carry no plan; an empty PlanID tells the
		// reconciler to keep the provider's current plan.
		if event.Type == EventStripeInvoicePaid {
			out.Status = types.SubStatusActive
		} else {
			out.Status = types.SubStatusPastDue
		}

	default:
		return types.BillingEvent{}, ErrEventIgnored
	}

	if out.OrganizationID == "" {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("stripe event %s carries no organization reference", event.ID), nil)
	}
	return out, nil
}

// mapStripeStatus converges Stripe subscription statuses onto the shared
// enum. Unrecognized sub-statuses map conservatively to past_due.
func mapStripeStatus(status string) types.SubscriptionStatus {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive:
		return types.SubStatusActive
	case stripe.SubscriptionStatusTrialing:
		return types.SubStatusTrialing
	case stripe.SubscriptionStatusCanceled:
		return types.SubStatusCanceled
	case stripe.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncomplete,
		stripe.SubscriptionStatusIncompleteExpired,
		stripe.SubscriptionStatusPaused:
		return types.SubStatusPastDue
	default:
		return types.SubStatusPastDue
	}
}

// ---------------------------------------------------------------------------
// Paddle
// ---------------------------------------------------------------------------

// PaddleNormalizer converts verified Paddle notification payloads into
// canonical billing events. The organization is referenced through the
// custom_data org_id set at checkout; product IDs map to plans through the
// configured product table.
type PaddleNormalizer struct {
	productToPlan map[string]types.PlanID
}

// NewPaddleNormalizer creates a PaddleNormalizer with the given
// product->plan mapping.
func NewPaddleNormalizer(productToPlan map[string]types.PlanID) *PaddleNormalizer {
	return &PaddleNormalizer{productToPlan: productToPlan}
}

// paddleNotification is a minimal representation of a Paddle webhook
// notification envelope.
type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleSubscriptionObj struct {
	Status     string            `json:"status"`
	CustomData map[string]string `json:"custom_data"`
	Items      []struct {
		Price struct {
			ProductID string `json:"product_id"`
		} `json:"price"`
	} `json:"items"`
	CurrentBillingPeriod *struct {
		EndsAt time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
}

// Normalize converts a raw, already-verified Paddle payload into a canonical
// billing event. Returns ErrEventIgnored for unhandled notification types.
func (n *PaddleNormalizer) Normalize(payload []byte) (types.BillingEvent, error) {
	var event paddleNotification
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid paddle notification payload", err)
	}

	switch event.EventType {
	case EventPaddleTransactionCompleted,
		EventPaddleSubCreated,
		EventPaddleSubUpdated,
		EventPaddleSubCanceled,
		EventPaddleSubResumed,
		EventPaddleSubPastDue:
		// handled below
	default:
		return types.BillingEvent{}, ErrEventIgnored
	}

	var sub paddleSubscriptionObj
	if err := json.Unmarshal(event.Data, &sub); err != nil {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid paddle subscription object", err)
	}

	out := types.BillingEvent{
		EventID:        event.EventID,
		Provider:       types.ProviderPaddle,
		OrganizationID: sub.CustomData["org_id"],
		OccurredAt:     event.OccurredAt.UTC(),
	}
	if out.OrganizationID == "" {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("paddle event %s carries no organization reference", event.EventID), nil)
	}

	if len(sub.Items) > 0 {
		out.PlanID = n.productToPlan[sub.Items[0].Price.ProductID]
	}
	if sub.CurrentBillingPeriod != nil {
		t := sub.CurrentBillingPeriod.EndsAt.UTC()
		out.CurrentPeriodEnd = &t
	}

	switch event.EventType {
	case EventPaddleSubCanceled:
		out.Status = types.SubStatusCanceled
	case EventPaddleSubPastDue:
		out.Status = types.SubStatusPastDue
	default:
		out.Status = mapPaddleStatus(sub.Status)
	}

	return out, nil
}

// mapPaddleStatus converges Paddle subscription statuses onto the shared
// enum. Unrecognized sub-statuses map conservatively to past_due.
func mapPaddleStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "canceled":
		return types.SubStatusCanceled
	case "past_due", "paused":
		return types.SubStatusPastDue
	default:
		return types.SubStatusPastDue
	}
}

// ---------------------------------------------------------------------------
// Apple App Store
// ---------------------------------------------------------------------------

// AppStoreNormalizer converts verified App Store server notification claims
// into canonical billing events. The caller must have verified the JWS
// envelope first; Normalize receives the decoded claims JSON.
type AppStoreNormalizer struct {
	productToPlan map[string]types.PlanID
}

// NewAppStoreNormalizer creates an AppStoreNormalizer with the given
// product->plan mapping.
func NewAppStoreNormalizer(productToPlan map[string]types.PlanID) *AppStoreNormalizer {
	return &AppStoreNormalizer{productToPlan: productToPlan}
}

// appStoreClaims is a minimal representation of the decoded notification
// claims. The app account token is set at purchase time to the organization
// ID, mirroring the checkout metadata used by the other providers.
type appStoreClaims struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	NotificationUUID string `json:"notificationUUID"`
	SignedDate       int64  `json:"signedDate"` // milliseconds since epoch
	Data             struct {
		AppAccountToken string `json:"appAccountToken"`
		ProductID       string `json:"productId"`
		ExpiresDate     int64  `json:"expiresDate"` // milliseconds since epoch
	} `json:"data"`
}

// Normalize converts decoded App Store notification claims into a canonical
// billing event. Returns ErrEventIgnored for unhandled notification types.
func (n *AppStoreNormalizer) Normalize(claimsJSON []byte) (types.BillingEvent, error) {
	var claims appStoreClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invalid app store notification claims", err)
	}

	out := types.BillingEvent{
		EventID:        claims.NotificationUUID,
		Provider:       types.ProviderAppStore,
		OrganizationID: claims.Data.AppAccountToken,
		PlanID:         n.productToPlan[claims.Data.ProductID],
		OccurredAt:     time.UnixMilli(claims.SignedDate).UTC(),
	}
	if out.OrganizationID == "" {
		return types.BillingEvent{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("app store notification %s carries no organization reference", claims.NotificationUUID), nil)
	}
	if claims.Data.ExpiresDate > 0 {
		t := time.UnixMilli(claims.Data.ExpiresDate).UTC()
		out.CurrentPeriodEnd = &t
	}

	switch claims.NotificationType {
	case NotifyAppStoreSubscribed, NotifyAppStoreDidRenew:
		out.Status = types.SubStatusActive
	case NotifyAppStoreDidFailToRenew:
		out.Status = types.SubStatusPastDue
	case NotifyAppStoreExpired, NotifyAppStoreRevoked, NotifyAppStoreGracePeriodExp:
		out.Status = types.SubStatusCanceled
	default:
		return types.BillingEvent{}, ErrEventIgnored
	}

	return out, nil
}
