package authz

import (
	"log/slog"
	"net/http"

	"github.com/veritrail/veritrail/internal/decisionlog"
	"github.com/veritrail/veritrail/internal/directory"
)

// Middleware wires authorization helpers for HTTP handlers. Denials
// respond with a generic message and are recorded as high-risk
// security events; capability-table contents are never echoed back.
type Middleware struct {
	Resolver  *Resolver
	Decisions *decisionlog.Recorder
	Logger    *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the
// required capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := directory.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			for _, c := range caps {
				if m.Resolver.HasCapability(r.Context(), principal, c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, principal, caps)
		})
	}
}

// RequireCapability ensures the current principal holds the capability.
func (m Middleware) RequireCapability(c Capability) func(http.Handler) http.Handler {
	return m.RequireAny(c)
}

// RequireRole ensures the current principal's static role is one of the
// given roles. Used for gates that are role-based rather than
// capability-based, such as the admin override path.
func (m Middleware) RequireRole(roles ...directory.StaticRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := directory.PrincipalFromContext(r.Context())
			if !ok || !principal.Active || principal.Deleted {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, principal, nil)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, principal directory.Principal, caps []Capability) {
	names := make([]any, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	m.Decisions.RecordDecision(r.Context(), decisionlog.Entry{
		ActorID:      principal.ID,
		Action:       decisionlog.ActionAccessDenied,
		ResourceType: "route",
		ResourceID:   r.URL.Path,
		Outcome:      decisionlog.OutcomeDenied,
		Context: map[string]any{
			"method":   r.Method,
			"required": names,
		},
	})
	if m.Logger != nil {
		m.Logger.Info("request denied",
			slog.String("principal", principal.ID.String()),
			slog.String("path", r.URL.Path))
	}
	http.Error(w, "insufficient permissions", http.StatusForbidden)
}
