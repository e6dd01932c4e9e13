// Package handlers contains the HTTP handlers of the Upkeep backend:
// billing webhooks, the quota-gated creation endpoints, and the
// administrative entitlement override.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/billing"
	"upkeep/internal/core"
	"upkeep/internal/external"
	"upkeep/internal/types"
)

// maxWebhookBodySize caps inbound provider payloads. Provider events are
// small; anything larger is hostile.
const maxWebhookBodySize = 64 << 10 // 64 KB

// EventNormalizer converts a verified raw provider payload into the
// canonical billing event.
type EventNormalizer interface {
	Normalize(payload []byte) (types.BillingEvent, error)
}

// EventApplier reconciles a normalized billing event into tenant state.
// Implemented by billing.Reconciler.
type EventApplier interface {
	Apply(ctx context.Context, event types.BillingEvent) error
}

// BillingWebhookHandler handles asynchronous events from the three billing
// providers. The endpoints are unauthenticated (no session) but verify the
// provider signature before anything else touches the payload.
type BillingWebhookHandler struct {
	stripeVerifier external.WebhookVerifier
	paddleVerifier external.WebhookVerifier
	appleVerifier  external.NotificationVerifier

	stripeNormalizer EventNormalizer
	paddleNormalizer EventNormalizer
	appleNormalizer  EventNormalizer

	applier EventApplier

	stripeSecret string
	paddleSecret string

	logger *slog.Logger
}

// BillingWebhookDeps bundles the dependencies of the webhook handler.
type BillingWebhookDeps struct {
	StripeVerifier external.WebhookVerifier
	PaddleVerifier external.WebhookVerifier
	AppleVerifier  external.NotificationVerifier

	StripeNormalizer EventNormalizer
	PaddleNormalizer EventNormalizer
	AppleNormalizer  EventNormalizer

	Applier EventApplier

	StripeSecret string
	PaddleSecret string
}

// NewBillingWebhookHandler creates a BillingWebhookHandler.
func NewBillingWebhookHandler(deps BillingWebhookDeps, logger *slog.Logger) *BillingWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingWebhookHandler{
		stripeVerifier:   deps.StripeVerifier,
		paddleVerifier:   deps.PaddleVerifier,
		appleVerifier:    deps.AppleVerifier,
		stripeNormalizer: deps.StripeNormalizer,
		paddleNormalizer: deps.PaddleNormalizer,
		appleNormalizer:  deps.AppleNormalizer,
		applier:          deps.Applier,
		stripeSecret:     deps.StripeSecret,
		paddleSecret:     deps.PaddleSecret,
		logger:           logger,
	}
}

// RegisterRoutes mounts the webhook endpoints. These are kept apart from
// the authenticated API routes.
func (h *BillingWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleStripe)
	r.Post("/webhooks/paddle", h.HandlePaddle)
	r.Post("/webhooks/app-store", h.HandleAppStore)
}

// HandleStripe processes incoming Stripe webhook events:
//
//  1. Reads the body (size-capped) and the "Stripe-Signature" header.
//  2. Verifies the signature using the webhook signing secret.
//  3. Normalizes the event and applies it through the reconciler.
//  4. Returns 200 OK, even when internal processing failed, so the
//     provider does not retry forever; failures are logged for
//     investigation.
func (h *BillingWebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"missing Stripe-Signature header", nil))
		return
	}
	if err := h.stripeVerifier.Verify(payload, sigHeader, h.stripeSecret); err != nil {
		h.logger.WarnContext(r.Context(), "stripe signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed", err))
		return
	}

	h.normalizeAndApply(w, r, "stripe", h.stripeNormalizer, payload)
}

// HandlePaddle processes incoming Paddle notifications. Same contract as
// HandleStripe, against the "Paddle-Signature" header.
func (h *BillingWebhookHandler) HandlePaddle(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	sigHeader := r.Header.Get("Paddle-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Paddle-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"missing Paddle-Signature header", nil))
		return
	}
	if err := h.paddleVerifier.Verify(payload, sigHeader, h.paddleSecret); err != nil {
		h.logger.WarnContext(r.Context(), "paddle signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed", err))
		return
	}

	h.normalizeAndApply(w, r, "paddle", h.paddleNormalizer, payload)
}

// HandleAppStore processes App Store server notifications. The body is a
// JSON wrapper holding a JWS signed payload; the verifier validates the
// envelope and hands back the decoded claims.
func (h *BillingWebhookHandler) HandleAppStore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := core.DecodeJSON(w, r, &body); err != nil {
		core.Error(w, r, err)
		return
	}
	if body.SignedPayload == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"missing signed payload", nil))
		return
	}

	claims, err := h.appleVerifier.VerifyAndDecode(body.SignedPayload)
	if err != nil {
		h.logger.WarnContext(r.Context(), "app store notification verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"notification verification failed", err))
		return
	}

	h.normalizeAndApply(w, r, "apple_app_store", h.appleNormalizer, claims)
}

// readBody reads the size-capped raw body; on failure it writes the error
// response itself and reports false.
func (h *BillingWebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read request body", err))
		return nil, false
	}
	return payload, true
}

// normalizeAndApply runs the shared tail of all three webhook endpoints.
// Unhandled event types acknowledge immediately; processing failures are
// logged but still acknowledged so the provider stops retrying.
func (h *BillingWebhookHandler) normalizeAndApply(w http.ResponseWriter, r *http.Request, provider string, normalizer EventNormalizer, payload []byte) {
	event, err := normalizer.Normalize(payload)
	if err != nil {
		if errors.Is(err, billing.ErrEventIgnored) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to normalize billing event",
			"provider", provider,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "processing billing event",
		"provider", provider,
		"event_id", event.EventID,
		"org_id", event.OrganizationID,
	)

	if err := h.applier.Apply(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "billing event processing failed",
			"provider", provider,
			"event_id", event.EventID,
			"error", err,
		)
		// Acknowledge anyway; the failure is logged and the provider's
		// next event or a manual replay converges the state.
	}

	w.WriteHeader(http.StatusOK)
}
