package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veritrail/veritrail/internal/directory"
	"github.com/veritrail/veritrail/internal/platform/httpx"
)

// PermissionsHandler exposes capability introspection for the current
// principal.
type PermissionsHandler struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, resolver *Resolver) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, resolver: resolver}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	caps := h.resolver.EffectiveCapabilities(r.Context(), principal)
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal":    principal.ID,
		"role":         principal.Role,
		"capabilities": names,
	})
}
