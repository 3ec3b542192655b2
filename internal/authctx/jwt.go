// Package authctx implements JWT-based authentication, role-based default
// permissions, and the request-scoped AuthContext accessor, matching the
// teacher's context.WithValue-under-an-unexported-key accessor idiom
// (composables.UsePoolTx and siblings).
package authctx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
)

// Role is one of the four recognized principal roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
	RoleBilling   Role = "billing"
)

// DefaultPermissions returns the baseline permission set granted to r absent
// any explicit per-token permission list.
func DefaultPermissions(r Role) []string {
	switch r {
	case RoleAdmin:
		return []string{"*"}
	case RoleDeveloper:
		return []string{"read:traces", "read:metrics", "read:costs", "write:evaluations", "write:feedback"}
	case RoleViewer:
		return []string{"read:traces", "read:metrics", "read:costs"}
	case RoleBilling:
		return []string{"read:costs", "read:usage"}
	default:
		return nil
	}
}

// Claims is the JWT payload this service issues and verifies.
type Claims struct {
	jwt.RegisteredClaims
	OrgID       string   `json:"org_id"`
	ProjectIDs  []string `json:"project_ids"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions"`
}

// ParseToken validates tokenString's signature, algorithm, and expiry
// against secret, returning its Claims. An unparseable token, an invalid
// signature or an unsupported algorithm yields apperror.CodeInvalidToken;
// an expired token yields CodeExpiredToken.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authctx: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperror.Wrap(apperror.CodeExpiredToken, "token expired", err)
		case token == nil:
			return nil, apperror.Wrap(apperror.CodeInvalidToken, "token is malformed", err)
		default:
			return nil, apperror.Wrap(apperror.CodeInvalidToken, "token is invalid", err)
		}
	}
	if !token.Valid {
		return nil, apperror.New(apperror.CodeInvalidToken, "token is invalid")
	}
	return claims, nil
}

// effectivePermissions returns c.Permissions if explicitly set, otherwise
// the role's default set.
func (c *Claims) effectivePermissions() []string {
	if len(c.Permissions) > 0 {
		return c.Permissions
	}
	return DefaultPermissions(c.Role)
}

// ExpiresWithin reports whether the token's expiry is within d of now —
// unused by validation itself, exposed for handlers that want to warn
// clients of imminent expiry.
func (c *Claims) ExpiresWithin(d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(c.ExpiresAt.Time) <= d
}
