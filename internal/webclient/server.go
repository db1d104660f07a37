// Package webclient is the browser-facing application: pages, login routes
// and the relay to the API service.
package webclient

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/brizzai/oidc-sample/internal/auth"
	"github.com/brizzai/oidc-sample/internal/auth/constants"
	"github.com/brizzai/oidc-sample/internal/auth/middleware"
	"github.com/brizzai/oidc-sample/internal/identity"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/brizzai/oidc-sample/internal/requester"
	"github.com/brizzai/oidc-sample/internal/server/handler"
	"github.com/brizzai/oidc-sample/internal/utils"
	"go.uber.org/zap"
)

// ServiceName labels logs and metrics
const ServiceName = "webclient"

var (
	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed static
	staticFS embed.FS
)

var pageNames = []string{"index", "account", "callapi"}

type pageData struct {
	User *identity.Profile
}

// Server serves the web client routes
type Server struct {
	auth  *auth.Service
	relay *requester.HTTPRequester
	pages map[string]*template.Template
}

// NewServer parses the page templates and wires the routes' collaborators
func NewServer(authSvc *auth.Service, relay *requester.HTTPRequester) (*Server, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Server{
		auth:  authSvc,
		relay: relay,
		pages: pages,
	}, nil
}

// RegisterRoutes registers pages, static assets, the relay and the login routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET "+constants.RouteAccount, s.auth.RequireUser(http.HandlerFunc(s.handleAccount)))
	mux.Handle("GET "+constants.RouteCallAPI, s.auth.RequireUser(http.HandlerFunc(s.handleCallAPI)))
	mux.Handle("POST "+constants.RouteCrossDomainCall, s.auth.RequireUser(http.HandlerFunc(s.handleCrossDomainCall)))
	mux.Handle("GET /static/", http.FileServerFS(staticFS))
	s.auth.RegisterRoutes(mux)
}

// Handler builds the complete handler stack
func (s *Server) Handler(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return h.CreateHTTPHandler(mux, s.auth.WrapWithSession)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index", pageData{User: middleware.UserFromContext(r.Context())})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.render(w, "account", pageData{User: middleware.UserFromContext(r.Context())})
}

func (s *Server) handleCallAPI(w http.ResponseWriter, r *http.Request) {
	s.render(w, "callapi", pageData{User: middleware.UserFromContext(r.Context())})
}

// handleCrossDomainCall relays the user's access token to the API service
// and returns the API answer to the browser
func (s *Server) handleCrossDomainCall(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	task := s.relay.Dispatch(r.Context(), requester.BearerAuth{Token: user.AccessToken}, nil)
	resp, err := task.Wait(r.Context())
	if err != nil {
		if errors.Is(err, requester.ErrMissingToken) {
			utils.WriteError(w, "unauthorized", "No access token for this session", http.StatusUnauthorized)
			return
		}
		logger.Error("API call failed", zap.String("subject", user.Subject), zap.Error(err))
		utils.WriteError(w, "bad_gateway", "The API service could not be reached", http.StatusBadGateway)
		return
	}

	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		logger.Debug("Failed to write relay response", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, page string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("Failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		logger.Debug("Failed to write page", zap.Error(err))
	}
}
