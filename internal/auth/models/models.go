package models

import "time"

// Identity is a verified token principal, produced by ID token and
// bearer validation alike
type Identity struct {
	Issuer   string
	Subject  string
	Audience []string
	Expiry   time.Time
	Claims   map[string]interface{}
}

// StringClaim returns the named claim when it is a non-empty string
func (i *Identity) StringClaim(name string) string {
	if i == nil || i.Claims == nil {
		return ""
	}
	s, _ := i.Claims[name].(string)
	return s
}

// Tokens is the result of an authorization code exchange
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}
