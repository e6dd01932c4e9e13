package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

// fakeProvisioner returns canned results and records the arguments of the
// last call.
type fakeProvisioner struct {
	err error

	orgID    string
	name     string
	template *types.PreventiveTemplate
	deleted  string
	archived string
}

func (f *fakeProvisioner) CreateSite(ctx context.Context, orgID, name string) (*types.Site, error) {
	f.orgID, f.name = orgID, name
	if f.err != nil {
		return nil, f.err
	}
	return &types.Site{ID: "site_1", OrganizationID: orgID, Name: name}, nil
}

func (f *fakeProvisioner) CreateDepartment(ctx context.Context, orgID, siteID, name string) (*types.Department, error) {
	f.orgID, f.name = orgID, name
	if f.err != nil {
		return nil, f.err
	}
	return &types.Department{ID: "dep_1", OrganizationID: orgID, SiteID: siteID, Name: name}, nil
}

func (f *fakeProvisioner) CreateAsset(ctx context.Context, orgID, siteID, departmentID, name string) (*types.Asset, error) {
	f.orgID, f.name = orgID, name
	if f.err != nil {
		return nil, f.err
	}
	return &types.Asset{ID: "ast_1", OrganizationID: orgID, Name: name}, nil
}

func (f *fakeProvisioner) CreateInvite(ctx context.Context, orgID, email string, role types.UserRole) (*types.UserInvite, error) {
	f.orgID = orgID
	if f.err != nil {
		return nil, f.err
	}
	return &types.UserInvite{ID: "usr_1", OrganizationID: orgID, Email: email, Role: role}, nil
}

func (f *fakeProvisioner) CreateTemplate(ctx context.Context, tpl *types.PreventiveTemplate) (*types.PreventiveTemplate, error) {
	f.template = tpl
	if f.err != nil {
		return nil, f.err
	}
	tpl.ID = "tpl_1"
	return tpl, nil
}

func (f *fakeProvisioner) ArchiveTemplate(ctx context.Context, orgID, templateID string) error {
	f.archived = templateID
	return f.err
}

func (f *fakeProvisioner) DeleteSite(ctx context.Context, orgID, siteID string) error {
	f.deleted = siteID
	return f.err
}

func (f *fakeProvisioner) DeleteDepartment(ctx context.Context, orgID, departmentID string) error {
	f.deleted = departmentID
	return f.err
}

func (f *fakeProvisioner) DeleteAsset(ctx context.Context, orgID, assetID string) error {
	f.deleted = assetID
	return f.err
}

func resourceRouter(svc Provisioner) chi.Router {
	r := chi.NewRouter()
	NewResourceHandler(svc, nil).RegisterRoutes(r)
	return r
}

func TestCreateSite_Created(t *testing.T) {
	svc := &fakeProvisioner{}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/sites",
		strings.NewReader(`{"name": "Main plant"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "org_1", svc.orgID)
	assert.Equal(t, "Main plant", svc.name)

	var body struct {
		Data types.Site `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "site_1", body.Data.ID)
}

func TestCreateSite_QuotaExceeded(t *testing.T) {
	svc := &fakeProvisioner{err: types.NewQuotaExceeded(types.ResourceSites, 3, 3)}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/sites",
		strings.NewReader(`{"name": "One too many"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(types.ErrCodeLimitSites), body.Error.Code)
}

func TestCreateSite_MalformedBody(t *testing.T) {
	router := resourceRouter(&fakeProvisioner{})

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/sites",
		strings.NewReader(`{"name": `))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTemplate_PassesDecodedTemplate(t *testing.T) {
	svc := &fakeProvisioner{}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/templates",
		strings.NewReader(`{
			"name": "Weekly forklift inspection",
			"automatic": true,
			"priority": "high",
			"site_id": "site_1",
			"department_id": "dep_1",
			"schedule": {"type": "weekly", "days_of_week": [1], "time_of_day": "07:30"}
		}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.template)
	assert.Equal(t, "org_1", svc.template.OrganizationID)
	assert.Equal(t, types.TemplateActive, svc.template.Status)
	assert.True(t, svc.template.Automatic)
	assert.Equal(t, types.ScheduleWeekly, svc.template.Schedule.Type)
	assert.Equal(t, []int{1}, svc.template.Schedule.DaysOfWeek)
}

func TestCreateTemplate_FeatureNotInPlan(t *testing.T) {
	svc := &fakeProvisioner{err: types.NewAppError(types.ErrCodeFeatureNotInPlan, "upgrade required", nil)}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/templates",
		strings.NewReader(`{"name": "x", "schedule": {"type": "daily"}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestArchiveTemplate_NoContent(t *testing.T) {
	svc := &fakeProvisioner{}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orgs/org_1/templates/tpl_9/archive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "tpl_9", svc.archived)
}

func TestDeleteSite_NoContent(t *testing.T) {
	svc := &fakeProvisioner{}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/orgs/org_1/sites/site_7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "site_7", svc.deleted)
}

func TestDeleteSite_NotFound(t *testing.T) {
	svc := &fakeProvisioner{err: types.NewAppError(types.ErrCodeNotFoundSite, "site not found", nil)}
	router := resourceRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/orgs/org_1/sites/site_7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
