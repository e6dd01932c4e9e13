package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// Provisioner is the slice of the tenant service the resource handlers
// consume. Implemented by tenant.Service.
type Provisioner interface {
	CreateSite(ctx context.Context, orgID, name string) (*types.Site, error)
	CreateDepartment(ctx context.Context, orgID, siteID, name string) (*types.Department, error)
	CreateAsset(ctx context.Context, orgID, siteID, departmentID, name string) (*types.Asset, error)
	CreateInvite(ctx context.Context, orgID, email string, role types.UserRole) (*types.UserInvite, error)
	CreateTemplate(ctx context.Context, tpl *types.PreventiveTemplate) (*types.PreventiveTemplate, error)
	ArchiveTemplate(ctx context.Context, orgID, templateID string) error
	DeleteSite(ctx context.Context, orgID, siteID string) error
	DeleteDepartment(ctx context.Context, orgID, departmentID string) error
	DeleteAsset(ctx context.Context, orgID, assetID string) error
}

// ResourceHandler exposes the quota-gated CRUD endpoints for counted
// tenant resources.
type ResourceHandler struct {
	svc    Provisioner
	logger *slog.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(svc Provisioner, logger *slog.Logger) *ResourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the resource endpoints on the router.
func (h *ResourceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Post("/sites", h.CreateSite)
		r.Delete("/sites/{id}", h.DeleteSite)
		r.Post("/departments", h.CreateDepartment)
		r.Delete("/departments/{id}", h.DeleteDepartment)
		r.Post("/assets", h.CreateAsset)
		r.Delete("/assets/{id}", h.DeleteAsset)
		r.Post("/invites", h.CreateInvite)
		r.Post("/templates", h.CreateTemplate)
		r.Post("/templates/{id}/archive", h.ArchiveTemplate)
	})
}

type createSiteRequest struct {
	Name string `json:"name"`
}

// CreateSite handles POST /orgs/{orgID}/sites.
func (h *ResourceHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	site, err := h.svc.CreateSite(r.Context(), chi.URLParam(r, "orgID"), req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, site)
}

// DeleteSite handles DELETE /orgs/{orgID}/sites/{id}.
func (h *ResourceHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteSite(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createDepartmentRequest struct {
	Name   string `json:"name"`
	SiteID string `json:"site_id"`
}

// CreateDepartment handles POST /orgs/{orgID}/departments.
func (h *ResourceHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req createDepartmentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	dep, err := h.svc.CreateDepartment(r.Context(), chi.URLParam(r, "orgID"), req.SiteID, req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, dep)
}

// DeleteDepartment handles DELETE /orgs/{orgID}/departments/{id}.
func (h *ResourceHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteDepartment(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAssetRequest struct {
	Name         string `json:"name"`
	SiteID       string `json:"site_id"`
	DepartmentID string `json:"department_id"`
}

// CreateAsset handles POST /orgs/{orgID}/assets.
func (h *ResourceHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	asset, err := h.svc.CreateAsset(r.Context(), chi.URLParam(r, "orgID"), req.SiteID, req.DepartmentID, req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, asset)
}

// DeleteAsset handles DELETE /orgs/{orgID}/assets/{id}.
func (h *ResourceHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteAsset(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createInviteRequest struct {
	Email string         `json:"email"`
	Role  types.UserRole `json:"role"`
}

// CreateInvite handles POST /orgs/{orgID}/invites.
func (h *ResourceHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	invite, err := h.svc.CreateInvite(r.Context(), chi.URLParam(r, "orgID"), req.Email, req.Role)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, invite)
}

type createTemplateRequest struct {
	Name         string             `json:"name"`
	Automatic    bool               `json:"automatic"`
	Priority     types.Priority     `json:"priority"`
	SiteID       string             `json:"site_id"`
	DepartmentID string             `json:"department_id"`
	AssetID      string             `json:"asset_id"`
	Schedule     types.ScheduleSpec `json:"schedule"`
	Checklist    types.Checklist    `json:"checklist"`
	CreatedBy    string             `json:"created_by"`
}

// CreateTemplate handles POST /orgs/{orgID}/templates.
func (h *ResourceHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	tpl := &types.PreventiveTemplate{
		OrganizationID: chi.URLParam(r, "orgID"),
		Name:           req.Name,
		Status:         types.TemplateActive,
		Automatic:      req.Automatic,
		Priority:       req.Priority,
		SiteID:         req.SiteID,
		DepartmentID:   req.DepartmentID,
		AssetID:        req.AssetID,
		Schedule:       req.Schedule,
		Checklist:      req.Checklist,
		CreatedBy:      req.CreatedBy,
	}
	created, err := h.svc.CreateTemplate(r.Context(), tpl)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, created)
}

// ArchiveTemplate handles POST /orgs/{orgID}/templates/{id}/archive.
func (h *ResourceHandler) ArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ArchiveTemplate(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
