package audits

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/authz"
	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/platform/httpx"
)

// Handler manages audit visibility and team endpoints.
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

// MountRoutes registers audit routes. Row-level visibility is applied
// by the service on top of the capability gates here.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireCapability(authz.CapViewAssignedAudits))
		r.Get("/", h.listAudits)
		r.Get("/{auditID}", h.getAudit)
		r.Get("/{auditID}/team", h.listTeam)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(authz.CapCreateAudits, authz.CapEditAudits))
		r.Post("/{auditID}/team", h.assignTeam)
		r.Post("/{auditID}/lead", h.assignLead)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(directory.RoleSystemAdmin))
		r.Post("/{auditID}/override", h.override)
	})
}

func (h *Handler) listAudits(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	records, err := h.service.ListAudits(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) getAudit(w http.ResponseWriter, r *http.Request) {
	principal, auditID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetAudit(r.Context(), principal, auditID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) listTeam(w http.ResponseWriter, r *http.Request) {
	principal, auditID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	memberships, err := h.service.ListTeam(r.Context(), principal, auditID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, memberships)
}

type assignTeamRequest struct {
	Candidates  []string `json:"candidates" validate:"required,min=1,dive,uuid"`
	RoleInAudit string   `json:"roleInAudit"`
}

func (h *Handler) assignTeam(w http.ResponseWriter, r *http.Request) {
	principal, auditID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req assignTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	candidateIDs := make([]uuid.UUID, 0, len(req.Candidates))
	for _, raw := range req.Candidates {
		id, _ := uuid.Parse(raw)
		candidateIDs = append(candidateIDs, id)
	}
	result, err := h.service.AssignTeam(r.Context(), principal, auditID, candidateIDs, req.RoleInAudit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"assigned": result.Assigned,
		"skipped":  result.Skipped,
	})
}

type assignLeadRequest struct {
	Candidate string `json:"candidate" validate:"required,uuid"`
}

func (h *Handler) assignLead(w http.ResponseWriter, r *http.Request) {
	principal, auditID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req assignLeadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	candidateID, _ := uuid.Parse(req.Candidate)
	if err := h.service.AssignLead(r.Context(), principal, auditID, candidateID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

type overrideRequest struct {
	Target string `json:"target" validate:"required,uuid"`
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	principal, auditID, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	targetID, _ := uuid.Parse(req.Target)
	if err := h.service.Override(r.Context(), principal, targetID, auditID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "override applied"})
}

func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) (directory.Principal, uuid.UUID, bool) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return directory.Principal{}, uuid.Nil, false
	}
	auditID, err := uuid.Parse(chi.URLParam(r, "auditID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid audit id")
		return directory.Principal{}, uuid.Nil, false
	}
	return principal, auditID, true
}
