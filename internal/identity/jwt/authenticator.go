// Package jwt validates the access tokens the portal's auth provider issues to staff.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juntavecinos/notifier/internal/domain"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role claim")
)

// Config holds token validation settings.
type Config struct {
	SecretKey string
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims are the access token claims. The junta role is a custom claim set by the
// auth provider's hook, either top level or inside app_metadata.
type Claims struct {
	jwt.RegisteredClaims
	UserRole    string      `json:"user_role,omitempty"`
	AppMetadata appMetadata `json:"app_metadata,omitempty"`
}

type appMetadata struct {
	Rol string `json:"rol,omitempty"`
}

// Authenticator validates HS256 access tokens.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates a new token authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		secret: []byte(cfg.SecretKey),
		parser: jwt.NewParser(opts...),
	}
}

// ValidateToken checks signature and expiry and returns the subject and its role.
// A token without a role claim belongs to a plain vecino.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := domain.RoleVecino
	switch {
	case claims.UserRole != "":
		role = domain.Role(claims.UserRole)
	case claims.AppMetadata.Rol != "":
		role = domain.Role(claims.AppMetadata.Rol)
	}
	if !role.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return claims.Subject, role, nil
}

// GenerateToken signs a token for subject with role. It is used by tests and local tooling.
func (a *Authenticator) GenerateToken(subject string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserRole: string(role),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
