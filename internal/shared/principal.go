package shared

import "context"

// Role enumerates the fixed application roles carried in the bearer token.
type Role string

const (
	// RoleAdmin has unrestricted access.
	RoleAdmin Role = "ADMIN"
	// RoleStorekeeper fulfils requests and runs purchase orders and audits.
	RoleStorekeeper Role = "MAGASINIER"
	// RoleRequester originates stock requests (department head).
	RoleRequester Role = "CHEF_SERVICE"
	// RoleApprover approves requests and purchase orders (finance controller).
	RoleApprover Role = "DAF"
	// RoleObserver has read-only access to everything.
	RoleObserver Role = "SUPER_OBSERVATEUR"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStorekeeper, RoleRequester, RoleApprover, RoleObserver:
		return true
	}
	return false
}

// Principal identifies the authenticated actor. Lifecycle services take it
// explicitly; they never read it from ambient state.
type Principal struct {
	UserID int64
	Name   string
	Role   Role
}

// HasRole reports whether the principal holds any of the given roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context for transport layers.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
