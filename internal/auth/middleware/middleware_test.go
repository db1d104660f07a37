package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brizzai/oidc-sample/internal/auth/binding"
	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/brizzai/oidc-sample/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	token string
	id    *models.Identity
}

func (f *fakeValidator) ValidateAccessToken(_ context.Context, token string) (*models.Identity, error) {
	if token != f.token {
		return nil, providers.ErrInvalidToken
	}
	return f.id, nil
}

func TestAuthenticate(t *testing.T) {
	validator := &fakeValidator{
		token: "good",
		id:    &models.Identity{Subject: "sub-alice", Claims: map[string]interface{}{"name": "Alice"}},
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"valid token", "Bearer good", http.StatusOK, true},
		{"lowercase scheme", "bearer good", http.StatusOK, true},
		{"missing header", "", http.StatusUnauthorized, false},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, false},
		{"invalid token", "Bearer bad", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			var info *AuthInfo
			h := Authenticate(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				info = AuthInfoFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCalled {
				require.NotNil(t, info)
				assert.Equal(t, "Alice", info.Name)
				assert.Equal(t, "sub-alice", info.Subject)
				assert.Equal(t, "good", info.Token)
			} else {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer realm=")
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	t.Run("anonymous is redirected to login", func(t *testing.T) {
		called := false
		h := RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.False(t, called)
	})

	t.Run("authenticated reaches the handler", func(t *testing.T) {
		called := false
		h := RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		req := httptest.NewRequest(http.MethodGet, "/account", nil)
		req = req.WithContext(WithUser(req.Context(), &identity.Profile{Subject: "oid-alice"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	})
}

func TestLoadUser(t *testing.T) {
	store := identity.NewMemoryStore()
	_, _, err := store.Upsert(context.Background(), &identity.Profile{Subject: "oid-alice", DisplayName: "Alice"})
	require.NoError(t, err)
	binder := binding.NewBinder(store, "oid")

	serve := func(s *session.Session) *identity.Profile {
		var got *identity.Profile
		h := LoadUser(binder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = UserFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if s != nil {
			req = req.WithContext(session.WithSession(req.Context(), s))
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	t.Run("known subject", func(t *testing.T) {
		p := serve(&session.Session{Data: &session.Data{User: "oid-alice"}})
		require.NotNil(t, p)
		assert.Equal(t, "Alice", p.DisplayName)
	})

	t.Run("unknown subject is cleared", func(t *testing.T) {
		s := &session.Session{Data: &session.Data{User: "oid-ghost"}}
		assert.Nil(t, serve(s))
		assert.Empty(t, s.Data.User)
	})

	t.Run("anonymous session", func(t *testing.T) {
		assert.Nil(t, serve(&session.Session{Data: &session.Data{}}))
	})

	t.Run("no session", func(t *testing.T) {
		assert.Nil(t, serve(nil))
	})
}

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (*identity.Profile, error) {
	return nil, errors.New("store down")
}

func (failingStore) Upsert(context.Context, *identity.Profile) (*identity.Profile, bool, error) {
	return nil, false, errors.New("store down")
}

func TestLoadUser_StoreFailureIsAnonymous(t *testing.T) {
	called := false
	h := LoadUser(binding.NewBinder(failingStore{}, "oid"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, UserFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{Data: &session.Data{User: "oid-alice"}}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestCORSWithOrigins(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		AllowMethods: []string{"POST", "OPTIONS"},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/admin", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		CORSWithOrigins(cfg)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("other origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		CORSWithOrigins(cfg)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()
		CORSWithOrigins(&config.CORSConfig{AllowOrigins: []string{"*"}})(next).ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("default denies cross origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		CORSWithOrigins(&config.CORSConfig{})(next).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
