package requester

import (
	"errors"
	"net/http"

	"github.com/brizzai/oidc-sample/internal/auth/constants"
)

// ErrMissingToken is returned when a relay is attempted without an access token
var ErrMissingToken = errors.New("no access token to relay")

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// BearerAuth attaches an OAuth2 access token
type BearerAuth struct {
	Token string
}

// ApplyAuth adds the Authorization header to the request
func (a BearerAuth) ApplyAuth(req *http.Request) error {
	if a.Token == "" {
		return ErrMissingToken
	}
	req.Header.Set(constants.AuthHeaderName, constants.AuthHeaderPrefix+a.Token)
	return nil
}
