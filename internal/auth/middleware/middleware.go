package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/brizzai/oidc-sample/internal/auth/binding"
	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/models"
	"github.com/brizzai/oidc-sample/internal/auth/providers"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/brizzai/oidc-sample/internal/session"
	"github.com/brizzai/oidc-sample/internal/utils"
	"go.uber.org/zap"
)

type contextKey string

const (
	// AuthContextKey is used to store bearer auth info in the request context
	AuthContextKey contextKey = "auth"

	userContextKey contextKey = "user"
)

// AuthInfo represents the authentication information stored in context
type AuthInfo struct {
	Subject  string
	Name     string
	Token    string
	Identity *models.Identity
}

// AuthInfoFromContext returns the bearer principal set by Authenticate
func AuthInfoFromContext(ctx context.Context) *AuthInfo {
	info, _ := ctx.Value(AuthContextKey).(*AuthInfo)
	return info
}

// WithUser stores the session principal in ctx
func WithUser(ctx context.Context, p *identity.Profile) context.Context {
	return context.WithValue(ctx, userContextKey, p)
}

// UserFromContext returns the session principal, or nil when anonymous
func UserFromContext(ctx context.Context) *identity.Profile {
	p, _ := ctx.Value(userContextKey).(*identity.Profile)
	return p
}

// Authenticate validates the bearer token before next runs
func Authenticate(validator providers.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "unauthorized", "Authentication required")
				return
			}

			id, err := validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				logger.Warn("Rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
				writeUnauthorized(w, "invalid_token", "The access token is invalid")
				return
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, &AuthInfo{
				Subject:  id.Subject,
				Name:     id.StringClaim("name"),
				Token:    token,
				Identity: id,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadUser resolves the principal serialized in the session. A principal
// that no longer resolves is dropped from the session and the request
// continues anonymously.
func LoadUser(binder *binding.Binder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s == nil || s.Data.User == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := binder.Deserialize(r.Context(), s.Data.User)
			if err != nil {
				logger.Error("Failed to resolve session user", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if p == nil {
				logger.Debug("Session user no longer registered", zap.String("subject", s.Data.User))
				s.Data.User = ""
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), p)))
		})
	}
}

// RequireUser lets authenticated requests through and sends everyone else
// to the login route
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			http.Redirect(w, r, constants.RouteLogin, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORSWithOrigins answers preflight requests and sets CORS headers for the
// configured origins. An empty origin list disables cross-origin access.
func CORSWithOrigins(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	wildcard := slices.Contains(cfg.AllowOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (wildcard || slices.Contains(cfg.AllowOrigins, origin))

			if allowed {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", allowMethods)
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the Bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get(constants.AuthHeaderName)
	if len(authHeader) > len(constants.AuthHeaderPrefix) &&
		strings.EqualFold(authHeader[:len(constants.AuthHeaderPrefix)], constants.AuthHeaderPrefix) {
		return strings.TrimSpace(authHeader[len(constants.AuthHeaderPrefix):])
	}
	return ""
}

// writeUnauthorized writes a 401 JSON error with a bearer challenge
func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error=%q, error_description=%q`, constants.BearerRealm, code, message))
	utils.WriteError(w, code, message, http.StatusUnauthorized)
}
