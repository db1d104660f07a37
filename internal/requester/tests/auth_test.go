package tests

import (
	"net/http"
	"testing"

	"github.com/brizzai/oidc-sample/internal/requester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAuth_ApplyAuth(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		wantErr   error
		checkAuth func(t *testing.T, req *http.Request)
	}{
		{
			name:  "Bearer token",
			token: "access-token",
			checkAuth: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "Bearer access-token", req.Header.Get("Authorization"))
			},
		},
		{
			name:    "Missing token",
			token:   "",
			wantErr: requester.ErrMissingToken,
			checkAuth: func(t *testing.T, req *http.Request) {
				assert.Empty(t, req.Header.Get("Authorization"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{Header: make(http.Header)}
			err := requester.BearerAuth{Token: tt.token}.ApplyAuth(req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			tt.checkAuth(t, req)
		})
	}
}
