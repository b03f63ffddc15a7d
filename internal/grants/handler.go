package grants

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/platform/httpx"
)

// Handler manages role definition and grant endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), guard: guard}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireCapability(authz.CapManageRoles))
		r.Post("/definitions", h.createDefinition)
		r.Post("/", h.grantRole)
		r.Post("/{grantID}/approve", h.approveGrant)
		r.Post("/{grantID}/deactivate", h.deactivateGrant)
		r.Get("/principals/{principalID}", h.listGrants)
	})
}

type createDefinitionRequest struct {
	Name                 string          `json:"name" validate:"required"`
	Category             string          `json:"category" validate:"required"`
	DepartmentID         string          `json:"departmentId"`
	Global               bool            `json:"global"`
	Capabilities         map[string]bool `json:"capabilities" validate:"required,min=1"`
	IncompatibleWith     []string        `json:"incompatibleWith"`
	RequiresDualApproval bool            `json:"requiresDualApproval"`
	MaxGrantDurationHrs  int             `json:"maxGrantDurationHours" validate:"min=0"`
}

func (h *Handler) createDefinition(w http.ResponseWriter, r *http.Request) {
	actor, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	var req createDefinitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	def := RoleDefinition{
		Name:                 req.Name,
		Category:             req.Category,
		Global:               req.Global,
		Capabilities:         make(map[authz.Capability]bool, len(req.Capabilities)),
		RequiresDualApproval: req.RequiresDualApproval,
		MaxGrantDuration:     time.Duration(req.MaxGrantDurationHrs) * time.Hour,
	}
	for name, allowed := range req.Capabilities {
		def.Capabilities[authz.Capability(name)] = allowed
	}
	if req.DepartmentID != "" {
		id, err := uuid.Parse(req.DepartmentID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
			return
		}
		def.DepartmentID = id
	}
	for _, raw := range req.IncompatibleWith {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid incompatible role id")
			return
		}
		def.IncompatibleWith = append(def.IncompatibleWith, id)
	}
	created, err := h.service.CreateRoleDefinition(r.Context(), actor, def)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type grantRoleRequest struct {
	PrincipalID      string     `json:"principalId" validate:"required,uuid"`
	RoleDefinitionID string     `json:"roleDefinitionId" validate:"required,uuid"`
	EffectiveAt      *time.Time `json:"effectiveAt"`
	ExpiresAt        *time.Time `json:"expiresAt"`
	Reason           string     `json:"reason" validate:"required"`
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	issuer, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	var req grantRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principalID, _ := uuid.Parse(req.PrincipalID)
	roleDefinitionID, _ := uuid.Parse(req.RoleDefinitionID)
	window := Window{ExpiresAt: req.ExpiresAt}
	if req.EffectiveAt != nil {
		window.EffectiveAt = *req.EffectiveAt
	}
	created, err := h.service.GrantRole(r.Context(), issuer, principalID, roleDefinitionID, window, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) approveGrant(w http.ResponseWriter, r *http.Request) {
	approver, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant id")
		return
	}
	grant, err := h.service.ApproveGrant(r.Context(), approver, grantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

type deactivateGrantRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) deactivateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant id")
		return
	}
	var req deactivateGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.DeactivateGrant(r.Context(), actor, grantID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	items, err := h.service.ListGrants(r.Context(), principalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}
