package providers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider is the web client's relying party
type OIDCProvider struct {
	cfg          *config.OIDCConfig
	client       *http.Client
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	checker      *claimChecker
}

// NewOIDCProvider discovers the IdP described by cfg.IdentityMetadata
func NewOIDCProvider(cfg *config.OIDCConfig, client *http.Client) (*OIDCProvider, error) {
	provider, issuer, err := discover(cfg.IdentityMetadata, client)
	if err != nil {
		return nil, err
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = constants.DefaultScopes
	}
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	p := &OIDCProvider{
		cfg:    cfg,
		client: client,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		checker: &claimChecker{
			issuers: allowedIssuers(cfg.ValidateIssuer, cfg.Issuers, issuer),
			skew:    cfg.ClockSkew,
			now:     time.Now,
		},
	}
	p.verifier = provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
		SkipExpiryCheck: true,
	})
	return p, nil
}

// AuthURL implements Provider
func (p *OIDCProvider) AuthURL(state, nonce, verifier string) string {
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	}
	if p.cfg.ResponseType != "" {
		opts = append(opts, oauth2.SetAuthURLParam(constants.ParamResponseType, p.cfg.ResponseType))
	}
	if p.cfg.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam(constants.ParamResponseMode, p.cfg.ResponseMode))
	}
	if p.cfg.ResourceURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam(constants.ParamResource, p.cfg.ResourceURL))
	}
	return p.oauth2Config.AuthCodeURL(state, opts...)
}

// Exchange implements Provider
func (p *OIDCProvider) Exchange(ctx context.Context, code, verifier string) (*models.Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)}
	if p.cfg.ResourceURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam(constants.ParamResource, p.cfg.ResourceURL))
	}

	tok, err := p.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, _ := tok.Extra(constants.ParamIDToken).(string)
	return &models.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      rawIDToken,
		Expiry:       tok.Expiry,
	}, nil
}

// VerifyIDToken implements Provider
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (*models.Identity, error) {
	tok, err := p.verify(ctx, rawIDToken, nonce)
	if err != nil {
		return nil, err
	}
	return p.checker.check(tok)
}

// VerifyHybridIDToken implements Provider
func (p *OIDCProvider) VerifyHybridIDToken(ctx context.Context, rawIDToken, nonce, code string) (*models.Identity, error) {
	tok, err := p.verify(ctx, rawIDToken, nonce)
	if err != nil {
		return nil, err
	}

	var hashes struct {
		CodeHash string `json:"c_hash"`
	}
	if err := tok.Claims(&hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if hashes.CodeHash == "" {
		return nil, fmt.Errorf("%w: front-channel id_token without c_hash", ErrInvalidToken)
	}

	// c_hash is built like at_hash: half the signing hash of the value.
	bound := *tok
	bound.AccessTokenHash = hashes.CodeHash
	if err := bound.VerifyAccessToken(code); err != nil {
		return nil, fmt.Errorf("%w: c_hash does not match code", ErrInvalidToken)
	}
	return p.checker.check(tok)
}

func (p *OIDCProvider) verify(ctx context.Context, rawIDToken, nonce string) (*oidc.IDToken, error) {
	tok, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if subtle.ConstantTimeCompare([]byte(tok.Nonce), []byte(nonce)) != 1 {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrInvalidToken)
	}
	return tok, nil
}
