package providers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const (
	discoverySuffix  = "/.well-known/openid-configuration"
	discoveryTimeout = 30 * time.Second
)

// NewHTTPClient returns the pooled client used for discovery, JWKS and
// token endpoint calls
func NewHTTPClient() *http.Client {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = discoveryTimeout
	return client
}

// discover loads the provider metadata. metadataURL may be the issuer or
// the full discovery document URL. The issuer advertised by the document is
// accepted as-is; tokens are checked against the configured issuers later.
func discover(metadataURL string, client *http.Client) (*oidc.Provider, string, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(metadataURL, "/"), discoverySuffix)

	// Discovery and later JWKS refreshes share this context, so it must not
	// be a request or start-up context that gets cancelled.
	ctx := oidc.ClientContext(context.Background(), client)
	ctx = oidc.InsecureIssuerURLContext(ctx, base)

	provider, err := oidc.NewProvider(ctx, base)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var meta struct {
		Issuer string `json:"issuer"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to read provider metadata: %w", err)
	}

	logger.Info("Discovered identity provider",
		zap.String("metadata", metadataURL),
		zap.String("issuer", meta.Issuer),
	)
	return provider, meta.Issuer, nil
}

// claimChecker applies the checks go-oidc is told to skip: issuer against a
// list, audience against a list, and token lifetime with clock skew.
type claimChecker struct {
	issuers   []string
	audiences []string
	skew      time.Duration
	now       func() time.Time
}

func (c *claimChecker) check(tok *oidc.IDToken) (*models.Identity, error) {
	if len(c.issuers) > 0 && !slices.Contains(c.issuers, tok.Issuer) {
		return nil, fmt.Errorf("%w: issuer %q not allowed", ErrInvalidToken, tok.Issuer)
	}

	if len(c.audiences) > 0 && !slices.ContainsFunc(tok.Audience, func(aud string) bool {
		return slices.Contains(c.audiences, aud)
	}) {
		return nil, fmt.Errorf("%w: audience %v not accepted", ErrInvalidToken, tok.Audience)
	}

	claims := map[string]interface{}{}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := c.now()
	if tok.Expiry.IsZero() || now.After(tok.Expiry.Add(c.skew)) {
		return nil, fmt.Errorf("%w: token expired at %s", ErrInvalidToken, tok.Expiry.UTC().Format(time.RFC3339))
	}
	if nbf, ok := claims["nbf"].(float64); ok {
		notBefore := time.Unix(int64(nbf), 0)
		if now.Add(c.skew).Before(notBefore) {
			return nil, fmt.Errorf("%w: token not valid before %s", ErrInvalidToken, notBefore.UTC().Format(time.RFC3339))
		}
	}

	return &models.Identity{
		Issuer:   tok.Issuer,
		Subject:  tok.Subject,
		Audience: tok.Audience,
		Expiry:   tok.Expiry,
		Claims:   claims,
	}, nil
}

// allowedIssuers returns the issuer list to enforce, or nil when issuer
// validation is off
func allowedIssuers(validate bool, configured []string, discovered string) []string {
	if !validate {
		return nil
	}
	if len(configured) > 0 {
		return configured
	}
	return []string{discovered}
}
