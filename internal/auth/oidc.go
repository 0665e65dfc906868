package auth

import (
	"context"
	"fmt"

	"ms-pettag/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates tokens from an OpenID Connect issuer (Keycloak realm).
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	// SkipClientIDCheck → access tokens carry no fixed audience
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub         string `json:"sub"`
		Role        string `json:"role"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.Identity{}, fmt.Errorf("parse claims: %w", err)
	}

	role := claims.Role
	for _, r := range claims.RealmAccess.Roles {
		if r == models.RoleAdmin {
			role = models.RoleAdmin
		}
	}
	return models.Identity{UserID: claims.Sub, Role: normalizeRole(role)}, nil
}
