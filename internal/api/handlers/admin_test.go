package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

type fakeOverrider struct {
	err       error
	orgID     string
	plan      types.PlanID
	status    types.SubscriptionStatus
	overrides types.EntitlementLimits
}

func (f *fakeOverrider) ApplyOverride(ctx context.Context, orgID string, plan types.PlanID, status types.SubscriptionStatus, overrides types.EntitlementLimits, now time.Time) error {
	f.orgID, f.plan, f.status, f.overrides = orgID, plan, status, overrides
	return f.err
}

func adminRouter(overrider EntitlementOverrider, token string) chi.Router {
	r := chi.NewRouter()
	NewAdminHandler(overrider, token, nil).RegisterRoutes(r)
	return r
}

func TestOverrideEntitlement_Applied(t *testing.T) {
	overrider := &fakeOverrider{}
	router := adminRouter(overrider, "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/admin/orgs/org_1/entitlement",
		strings.NewReader(`{
			"plan": "enterprise",
			"status": "active",
			"overrides": {"max_sites": 500}
		}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "org_1", overrider.orgID)
	assert.Equal(t, types.PlanEnterprise, overrider.plan)
	assert.Equal(t, types.SubStatusActive, overrider.status)
	assert.Equal(t, 500, overrider.overrides.MaxSites)
}

func TestOverrideEntitlement_WrongToken(t *testing.T) {
	overrider := &fakeOverrider{}
	router := adminRouter(overrider, "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/admin/orgs/org_1/entitlement",
		strings.NewReader(`{"plan": "pro", "status": "active"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, overrider.orgID)
}

func TestOverrideEntitlement_MissingToken(t *testing.T) {
	router := adminRouter(&fakeOverrider{}, "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/admin/orgs/org_1/entitlement",
		strings.NewReader(`{"plan": "pro", "status": "active"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOverrideEntitlement_EmptyConfiguredTokenDeniesAll(t *testing.T) {
	router := adminRouter(&fakeOverrider{}, "")

	req := httptest.NewRequest(http.MethodPost, "/admin/orgs/org_1/entitlement",
		strings.NewReader(`{"plan": "pro", "status": "active"}`))
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
