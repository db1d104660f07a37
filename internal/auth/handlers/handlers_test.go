package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brizzai/oidc-sample/internal/auth/binding"
	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/brizzai/oidc-sample/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider accepts any code and returns fixed claims
type stubProvider struct {
	claims      map[string]interface{}
	exchangeErr error
	exchanged   int
}

func (p *stubProvider) AuthURL(state, nonce, verifier string) string {
	return "https://idp.example.com/authorize?" + url.Values{"state": {state}, "nonce": {nonce}}.Encode()
}

func (p *stubProvider) Exchange(context.Context, string, string) (*models.Tokens, error) {
	p.exchanged++
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &models.Tokens{AccessToken: "at", RefreshToken: "rt", IDToken: "id-token"}, nil
}

func (p *stubProvider) VerifyIDToken(_ context.Context, raw, _ string) (*models.Identity, error) {
	if raw != "id-token" {
		return nil, providers.ErrInvalidToken
	}
	return &models.Identity{Issuer: "https://idp", Subject: "sub-alice", Claims: p.claims}, nil
}

func (p *stubProvider) VerifyHybridIDToken(ctx context.Context, raw, nonce, code string) (*models.Identity, error) {
	if code != "code-1" {
		return nil, providers.ErrInvalidToken
	}
	return p.VerifyIDToken(ctx, raw, nonce)
}

type fixture struct {
	handler  *Handler
	provider *stubProvider
	profiles *identity.MemoryStore
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		provider: &stubProvider{claims: map[string]interface{}{"oid": "oid-alice", "name": "Alice"}},
		profiles: identity.NewMemoryStore(),
		now:      time.Unix(1_700_000_000, 0),
	}
	cfg := &config.OIDCConfig{
		NonceLifetime:     time.Hour,
		NonceMaxAmount:    10,
		DestroySessionURL: "/",
	}
	sessions := session.NewManager(session.NewMemoryStore(), &config.SessionConfig{CookieName: "sid", TTL: time.Hour})
	f.handler = NewHandler(cfg, f.provider, sessions, binding.NewBinder(f.profiles, "oid"))
	f.handler.now = func() time.Time { return f.now }
	return f
}

func serve(h http.HandlerFunc, s *session.Session, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, r.WithContext(session.WithSession(r.Context(), s)))
	return rec
}

func (f *fixture) login(t *testing.T, s *session.Session) string {
	t.Helper()
	rec := serve(f.handler.HandleLogin, s, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u.Query().Get("state")
}

func callback(state string) *http.Request {
	form := url.Values{"state": {state}, "code": {"code-1"}, "id_token": {"id-token"}}
	r := httptest.NewRequest(http.MethodPost, "/auth/openid/return", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestHandleCallback_Success(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	rec := serve(f.handler.HandleCallback, s, callback(state))

	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "oid-alice", s.Data.User)
	assert.Empty(t, s.Data.Flows)
	assert.Equal(t, 1, f.profiles.Len())
}

func TestHandleCallback_ExpiredFlow(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	f.now = f.now.Add(2 * time.Hour)
	serve(f.handler.HandleCallback, s, callback(state))

	assert.Empty(t, s.Data.User)
	assert.Empty(t, s.Data.Flows, "the expired flow is consumed")
	assert.Equal(t, 0, f.provider.exchanged)
}

func TestHandleCallback_MissingSubject(t *testing.T) {
	f := newFixture()
	f.provider.claims = map[string]interface{}{"name": "Alice"}
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	rec := serve(f.handler.HandleCallback, s, callback(state))

	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, s.Data.User)
	assert.Equal(t, 0, f.profiles.Len())
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	f := newFixture()
	f.provider.exchangeErr = errors.New("idp down")
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	rec := serve(f.handler.HandleCallback, s, callback(state))

	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, s.Data.User)
}

func TestHandleCallback_BadFrontChannelToken(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	form := url.Values{"state": {state}, "code": {"code-1"}, "id_token": {"tampered"}}
	r := httptest.NewRequest(http.MethodPost, "/auth/openid/return", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	serve(f.handler.HandleCallback, s, r)

	assert.Empty(t, s.Data.User)
	assert.Equal(t, 0, f.provider.exchanged)
}

func TestHandleCallback_FrontChannelTokenForOtherCode(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)

	form := url.Values{"state": {state}, "code": {"code-2"}, "id_token": {"id-token"}}
	r := httptest.NewRequest(http.MethodPost, "/auth/openid/return", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	serve(f.handler.HandleCallback, s, r)

	assert.Empty(t, s.Data.User)
	assert.Equal(t, 0, f.provider.exchanged)
}

func TestHandleLogin_PrunesExpiredFlows(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	f.login(t, s)

	f.now = f.now.Add(2 * time.Hour)
	f.login(t, s)

	assert.Len(t, s.Data.Flows, 1)
}

func TestHandleLogin_VanishedSession(t *testing.T) {
	f := newFixture()
	s := &session.Session{ID: "expired-meanwhile", Data: &session.Data{}}

	rec := serve(f.handler.HandleLogin, s, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"), "no IdP redirect for an unsaved flow")
}

func TestHandleLogout(t *testing.T) {
	f := newFixture()
	s := &session.Session{Data: &session.Data{}}
	state := f.login(t, s)
	serve(f.handler.HandleCallback, s, callback(state))
	require.NotEmpty(t, s.ID)

	rec := serve(f.handler.HandleLogout, s, httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, s.ID)
	assert.Empty(t, s.Data.User)
}
