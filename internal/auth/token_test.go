package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue(&User{ID: 42, Name: "Awa Diop", Role: shared.RoleStorekeeper})
	require.NoError(t, err)

	principal, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), principal.UserID)
	require.Equal(t, "Awa Diop", principal.Name)
	require.Equal(t, shared.RoleStorekeeper, principal.Role)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute)

	token, err := svc.Issue(&User{ID: 1, Name: "Admin", Role: shared.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.Issue(&User{ID: 1, Name: "Admin", Role: shared.RoleAdmin})
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue(&User{ID: 1, Name: "Ghost", Role: shared.Role("INTRUS")})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.ErrorContains(t, err, "unknown role")
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	_, err := svc.Validate("not-a-jwt")
	require.Error(t, err)
}
