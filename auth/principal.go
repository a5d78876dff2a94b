package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Principal is the caller identified by a verified ID token.
type Principal struct {
	Issuer  string
	Subject string
	// Email is set only when the token's email_verified claim is true.
	Email    string
	StableID string
	IDToken  *oidc.IDToken
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by BearerProcessor.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// GetVerifiedEmail returns the email address from the ID Token if the email_verified claim is true.
// Returns empty string and false if not verified or email is missing.
func GetVerifiedEmail(token *oidc.IDToken) (string, bool) {
	if token == nil {
		return "", false
	}
	var claims oidc.UserInfo
	if err := token.Claims(&claims); err != nil {
		return "", false
	}
	if !claims.EmailVerified || claims.Email == "" {
		return "", false
	}
	return claims.Email, true
}

// GetStableID returns a stable identifier for the user based on the provider ID and the subject claim.
// Format: "provider:subject"
func GetStableID(token *oidc.IDToken, providerID string) string {
	if token == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", providerID, token.Subject)
}
