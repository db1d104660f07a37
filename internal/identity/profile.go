// Package identity keeps the profiles of users that completed an OIDC login.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Lookup when no profile is registered for a subject.
var ErrNotFound = errors.New("identity: profile not found")

// ErrInvalidProfile is returned by Upsert for a profile without a subject.
var ErrInvalidProfile = errors.New("identity: profile without subject")

// Profile is the identity-provider record of a logged-in user.
type Profile struct {
	// Subject is the stable user identifier (the oid claim by default).
	Subject      string                 `json:"oid"`
	Issuer       string                 `json:"iss,omitempty"`
	DisplayName  string                 `json:"display_name,omitempty"`
	Email        string                 `json:"email,omitempty"`
	AccessToken  string                 `json:"access_token,omitempty"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	Claims       map[string]interface{} `json:"claims,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Store resolves and registers profiles by subject id.
type Store interface {
	// Lookup returns the profile for subject or ErrNotFound.
	Lookup(ctx context.Context, subject string) (*Profile, error)

	// Upsert registers p unless its subject is already known. It returns the
	// registered profile and whether p was inserted. An existing profile is
	// returned unchanged.
	Upsert(ctx context.Context, p *Profile) (*Profile, bool, error)
}
