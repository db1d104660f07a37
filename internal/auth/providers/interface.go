package providers

import (
	"context"
	"errors"

	"github.com/brizzai/oidc-sample/internal/auth/models"
)

// ErrInvalidToken wraps every token verification failure
var ErrInvalidToken = errors.New("invalid token")

// Provider defines the relying-party side of an OIDC provider
type Provider interface {
	// AuthURL returns the authorization URL for a new login flow. verifier is
	// the PKCE code verifier; only its S256 challenge leaves the process.
	AuthURL(state, nonce, verifier string) string

	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code, verifier string) (*models.Tokens, error)

	// VerifyIDToken validates a raw ID token issued for this client and
	// bound to nonce
	VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (*models.Identity, error)

	// VerifyHybridIDToken validates an ID token delivered next to code on
	// the front channel; its c_hash must bind it to code
	VerifyHybridIDToken(ctx context.Context, rawIDToken, nonce, code string) (*models.Identity, error)
}

// TokenValidator validates bearer access tokens presented to a resource server
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*models.Identity, error)
}
