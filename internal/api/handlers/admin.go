package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// EntitlementOverrider applies a manual entitlement to a tenant.
// Implemented by billing.Reconciler.
type EntitlementOverrider interface {
	ApplyOverride(ctx context.Context, orgID string, plan types.PlanID, status types.SubscriptionStatus, overrides types.EntitlementLimits, now time.Time) error
}

// AdminHandler exposes the operator-only entitlement override endpoint. It
// authenticates with a static bearer token rather than a tenant session.
type AdminHandler struct {
	overrider EntitlementOverrider
	token     string
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(overrider EntitlementOverrider, token string, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{overrider: overrider, token: token, logger: logger}
}

// RegisterRoutes mounts the admin endpoints on the router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/orgs/{orgID}/entitlement", h.OverrideEntitlement)
}

type overrideEntitlementRequest struct {
	Plan      types.PlanID             `json:"plan"`
	Status    types.SubscriptionStatus `json:"status"`
	Overrides types.EntitlementLimits  `json:"overrides"`
}

// OverrideEntitlement handles POST /admin/orgs/{orgID}/entitlement.
func (h *AdminHandler) OverrideEntitlement(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthInvalidToken,
			"invalid admin token", nil))
		return
	}

	var req overrideEntitlementRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	orgID := chi.URLParam(r, "orgID")
	err := h.overrider.ApplyOverride(r.Context(), orgID, req.Plan, req.Status, req.Overrides, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "entitlement override applied",
		slog.String("organization_id", orgID),
		slog.String("plan", string(req.Plan)),
		slog.String("status", string(req.Status)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	supplied, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(h.token)) == 1
}
