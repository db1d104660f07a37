package session

import (
	"context"
	"net/http"
	"time"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"go.uber.org/zap"
)

type ctxKey struct{}

// Session is the per-request view of a stored session. ID is empty until
// the first Save persists something.
type Session struct {
	ID   string
	Data *Data
}

// Manager binds sessions to an HTTP cookie.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	sliding    bool
	secure     bool
	sameSite   http.SameSite
}

// NewManager creates a cookie-bound session manager over store.
func NewManager(store Store, cfg *config.SessionConfig) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = "oidc_sample_session"
	}
	return &Manager{
		store:      store,
		cookieName: name,
		ttl:        cfg.TTL,
		sliding:    cfg.Sliding,
		secure:     cfg.SecureCookie,
		sameSite:   cfg.SameSiteMode(),
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Middleware loads the session named by the request cookie, or an empty
// one, and makes it available through FromContext.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(w, r)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (m *Manager) load(w http.ResponseWriter, r *http.Request) *Session {
	s := &Session{Data: &Data{}}

	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return s
	}

	data, err := m.store.Get(r.Context(), c.Value)
	if err != nil {
		logger.Warn("Failed to load session", zap.Error(err))
		return s
	}
	if data == nil {
		return s
	}

	s.ID = c.Value
	s.Data = data

	if m.sliding {
		if err := m.store.Touch(r.Context(), s.ID, m.ttl); err != nil {
			logger.Warn("Failed to extend session", zap.Error(err))
		} else {
			m.setCookie(w, s.ID)
		}
	}
	return s
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session loaded by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// Save persists s. An anonymous session with nothing in it is not stored.
// Must be called before the response body is written.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.ID == "" {
		if s.Data.Empty() {
			return nil
		}
		id, err := m.store.Create(ctx, s.Data, m.ttl)
		if err != nil {
			return err
		}
		s.ID = id
		m.setCookie(w, id)
		return nil
	}
	return m.store.Update(ctx, s.ID, s.Data, m.ttl)
}

// Renew moves the session data to a fresh ID, discarding the old one.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.ID != "" {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return err
		}
		s.ID = ""
	}
	if err := m.Save(ctx, w, s); err != nil {
		return err
	}
	if s.ID == "" {
		m.clearCookie(w)
	}
	return nil
}

// Destroy deletes the stored session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.ID != "" {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return err
		}
	}
	s.ID = ""
	s.Data = &Data{}
	m.clearCookie(w)
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	})
}
