// Package binding turns verified OIDC logins into registered profiles and
// maps them to and from the value kept in the session.
package binding

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/brizzai/oidc-sample/internal/logger"
	"go.uber.org/zap"
)

// ErrNoSubject is returned when the token carries no subject id claim
var ErrNoSubject = errors.New("no subject id found")

// Binder binds token claims to identity profiles
type Binder struct {
	store        identity.Store
	subjectClaim string
}

// NewBinder creates a binder keyed by the subjectClaim claim ("oid" when empty)
func NewBinder(store identity.Store, subjectClaim string) *Binder {
	if subjectClaim == "" {
		subjectClaim = "oid"
	}
	return &Binder{store: store, subjectClaim: subjectClaim}
}

// NewBinderFromConfig is the fx constructor
func NewBinderFromConfig(store identity.Store, cfg *config.OIDCConfig) *Binder {
	return NewBinder(store, cfg.SubjectClaim)
}

// Verify registers the principal described by claims. The first login of a
// subject stores its tokens; later logins resolve the stored profile
// unchanged.
func (b *Binder) Verify(ctx context.Context, iss, sub string, claims map[string]interface{}, accessToken, refreshToken string) (*identity.Profile, error) {
	subject := sub
	if b.subjectClaim != "sub" {
		subject, _ = claims[b.subjectClaim].(string)
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: claim %q", ErrNoSubject, b.subjectClaim)
	}

	profile, inserted, err := b.store.Upsert(ctx, &identity.Profile{
		Subject:      subject,
		Issuer:       iss,
		DisplayName:  firstString(claims, "name", "given_name"),
		Email:        firstString(claims, "email", "preferred_username", "upn"),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Claims:       claims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register profile: %w", err)
	}

	if inserted {
		logger.Info("Registered new profile", zap.String("subject", subject))
	} else {
		logger.Debug("Resolved existing profile", zap.String("subject", subject))
	}
	return profile, nil
}

// Serialize returns the value stored in the session for p
func (b *Binder) Serialize(p *identity.Profile) string {
	return p.Subject
}

// Deserialize resolves a session value. An unknown subject yields a nil
// profile and no error.
func (b *Binder) Deserialize(ctx context.Context, subject string) (*identity.Profile, error) {
	if subject == "" {
		return nil, nil
	}
	p, err := b.store.Lookup(ctx, subject)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func firstString(claims map[string]interface{}, names ...string) string {
	for _, name := range names {
		if s, ok := claims[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
