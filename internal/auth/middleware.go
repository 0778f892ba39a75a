package auth

import (
	"net/http"
	"strings"

	"github.com/stockflow-erp/stockflow/internal/platform/httpx"
	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Middleware decodes the bearer token and places the principal in context.
type Middleware struct {
	Tokens *TokenService
}

// Authenticate rejects requests without a valid bearer token.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		principal, err := m.Tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole gates a route group to the given roles. The services re-check
// the role on every transition regardless; this only avoids offering the
// route to roles that can never use it.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			if !principal.HasRole(roles...) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role does not permit this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
