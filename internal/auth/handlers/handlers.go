package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/brizzai/oidc-sample/internal/auth/binding"
	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/middleware"
	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/brizzai/oidc-sample/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Handler handles the interactive login flow
type Handler struct {
	cfg      *config.OIDCConfig
	provider providers.Provider
	sessions *session.Manager
	binder   *binding.Binder
	now      func() time.Time
}

// NewHandler creates a new Handler instance
func NewHandler(cfg *config.OIDCConfig, provider providers.Provider, sessions *session.Manager, binder *binding.Binder) *Handler {
	return &Handler{
		cfg:      cfg,
		provider: provider,
		sessions: sessions,
		binder:   binder,
		now:      time.Now,
	}
}

// HandleLogin starts a login flow and redirects to the IdP
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		logger.Error("Login requested without session middleware")
		h.home(w, r)
		return
	}

	flow := session.Flow{
		State:        uuid.NewString(),
		Nonce:        uuid.NewString(),
		CodeVerifier: oauth2.GenerateVerifier(),
		StartedAt:    h.now().Unix(),
	}
	s.Data.PruneFlows(h.now(), h.cfg.NonceLifetime)
	s.Data.AddFlow(flow, h.cfg.NonceMaxAmount)

	if err := h.sessions.Save(r.Context(), w, s); err != nil {
		logger.Error("Failed to store login flow", zap.Error(err))
		h.home(w, r)
		return
	}

	logger.Debug("Starting login flow", zap.Int("pending_flows", len(s.Data.Flows)))
	http.Redirect(w, r, h.provider.AuthURL(flow.State, flow.Nonce, flow.CodeVerifier), http.StatusFound)
}

// HandleCallback completes a login flow. Parameters come from the query
// string or, for form_post, from the request body.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	params, err := callbackParams(r)
	if err != nil {
		logger.Warn("Malformed authentication response", zap.Error(err))
		h.home(w, r)
		return
	}

	if code := params.Get(constants.ParamError); code != "" {
		logger.Warn("Identity provider returned an error",
			zap.String("error", code),
			zap.String("error_description", params.Get(constants.ParamErrorDescription)),
		)
		h.home(w, r)
		return
	}

	s := session.FromContext(r.Context())
	if s == nil {
		logger.Error("Callback received without session middleware")
		h.home(w, r)
		return
	}

	flow, ok := s.Data.TakeFlow(params.Get(constants.ParamState))
	if !ok {
		logger.Warn("Authentication response with unknown state")
		h.home(w, r)
		return
	}
	if flow.Expired(h.now(), h.cfg.NonceLifetime) {
		logger.Warn("Authentication response for an expired flow")
		h.saveAndHome(w, r, s)
		return
	}

	id, tokens, err := h.complete(r, params, flow)
	if err != nil {
		logger.Error("Authentication failed", zap.Error(err))
		h.saveAndHome(w, r, s)
		return
	}

	profile, err := h.binder.Verify(r.Context(), id.Issuer, id.Subject, id.Claims, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		logger.Error("Failed to bind identity", zap.Error(err))
		h.saveAndHome(w, r, s)
		return
	}

	s.Data.User = h.binder.Serialize(profile)
	if err := h.sessions.Renew(r.Context(), w, s); err != nil {
		logger.Error("Failed to establish session", zap.Error(err))
		h.home(w, r)
		return
	}

	logger.Info("User logged in", zap.String("subject", profile.Subject))
	h.home(w, r)
}

// complete verifies the front-channel ID token, if any, and redeems the code
func (h *Handler) complete(r *http.Request, params url.Values, flow session.Flow) (*models.Identity, *models.Tokens, error) {
	code := params.Get(constants.ParamCode)
	if code == "" {
		return nil, nil, errors.New("authentication response without code")
	}

	var front *models.Identity
	if raw := params.Get(constants.ParamIDToken); raw != "" {
		id, err := h.provider.VerifyHybridIDToken(r.Context(), raw, flow.Nonce, code)
		if err != nil {
			return nil, nil, fmt.Errorf("front-channel id_token: %w", err)
		}
		front = id
	}

	tokens, err := h.provider.Exchange(r.Context(), code, flow.CodeVerifier)
	if err != nil {
		return nil, nil, err
	}

	id := front
	if tokens.IDToken != "" {
		back, err := h.provider.VerifyIDToken(r.Context(), tokens.IDToken, flow.Nonce)
		if err != nil {
			return nil, nil, fmt.Errorf("token endpoint id_token: %w", err)
		}
		if front != nil && front.Subject != back.Subject {
			return nil, nil, fmt.Errorf("%w: id_token subjects differ", providers.ErrInvalidToken)
		}
		id = back
	}
	if id == nil {
		return nil, nil, errors.New("no id_token received")
	}
	return id, tokens, nil
}

// HandleLogout destroys the session, drops the principal and redirects to
// the configured URL
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if s := session.FromContext(r.Context()); s != nil {
		if err := h.sessions.Destroy(r.Context(), w, s); err != nil {
			logger.Error("Failed to destroy session", zap.Error(err))
		}
	}
	r = r.WithContext(middleware.WithUser(r.Context(), nil))

	http.Redirect(w, r, h.cfg.DestroySessionURL, http.StatusFound)
}

func callbackParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
	return r.URL.Query(), nil
}

// saveAndHome persists the consumed flow before leaving
func (h *Handler) saveAndHome(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if err := h.sessions.Save(r.Context(), w, s); err != nil {
		logger.Warn("Failed to update session", zap.Error(err))
	}
	h.home(w, r)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, constants.RouteIndex, http.StatusFound)
}
