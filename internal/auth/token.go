package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

// Claims carries the actor identity and role inside the bearer token. The
// engines re-derive role gating from these claims rather than trusting any
// client-side state.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService builds a TokenService.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the user.
func (s *TokenService) Issue(user *User) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: user.Name,
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    "stockflow",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses the token and returns the embedded principal.
func (s *TokenService) Validate(tokenString string) (shared.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return shared.Principal{}, errors.New("auth: invalid token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return shared.Principal{}, errors.New("auth: malformed subject claim")
	}
	role := shared.Role(claims.Role)
	if !role.Valid() {
		return shared.Principal{}, errors.New("auth: unknown role claim")
	}
	return shared.Principal{UserID: userID, Name: claims.Name, Role: role}, nil
}
