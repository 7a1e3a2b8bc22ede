// ABOUTME: Customer access tokens for the integration.app API
// ABOUTME: Signs per-tenant HS256 JWTs with the workspace secret
package connector

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingWorkspaceKey = errors.New("integration.app workspace key is not configured")
	ErrMissingTenantID     = errors.New("missing tenant id for customer token")
)

// customerClaims identifies the tenant as an integration.app customer.
type customerClaims struct {
	jwt.RegisteredClaims
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CustomerToken returns a signed token scoping API calls to tenantID.
func CustomerToken(cfg IntegrationAppConfig, tenantID string, now time.Time) (string, error) {
	if cfg.WorkspaceKey == "" || cfg.WorkspaceSecret == "" {
		return "", ErrMissingWorkspaceKey
	}
	if tenantID == "" {
		return "", ErrMissingTenantID
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := customerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.WorkspaceKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ID:   tenantID,
		Name: tenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.WorkspaceSecret))
}
