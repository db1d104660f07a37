package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const webClientYAML = `
oidc:
  identity_metadata: https://login.example.com/tenant/v2.0/.well-known/openid-configuration
  client_id: client-123
  client_secret: s3cret
  redirect_url: http://localhost:3000/auth/openid/return
  allow_http_for_redirect_url: true
  issuer:
    - https://login.example.com/tenant/v2.0
session:
  ttl: 2h
relay:
  target_url: http://localhost:5000/admin
`

func writeConfig(t *testing.T, name, content string) *pflag.FlagSet {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitWebClientFlags(flags)
	require.NoError(t, flags.Parse([]string{"--config", path}))
	return flags
}

func TestLoadWebClient_FileAndDefaults(t *testing.T) {
	cfg, err := LoadWebClient(writeConfig(t, "webclient.yaml", webClientYAML))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "client-123", cfg.OIDC.ClientID)
	assert.Equal(t, Secret("s3cret"), cfg.OIDC.ClientSecret)
	assert.Equal(t, ResponseTypeCodeIDToken, cfg.OIDC.ResponseType)
	assert.Equal(t, ResponseModeFormPost, cfg.OIDC.ResponseMode)
	assert.Equal(t, "oid", cfg.OIDC.SubjectClaim)
	assert.Equal(t, time.Hour, cfg.OIDC.NonceLifetime)
	assert.Equal(t, 10, cfg.OIDC.NonceMaxAmount)
	assert.Equal(t, 5*time.Minute, cfg.OIDC.ClockSkew)
	assert.Equal(t, []string{"https://login.example.com/tenant/v2.0"}, cfg.OIDC.Issuers)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, BackendMemory, cfg.Identity.Backend)
	assert.Equal(t, 30*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, "/", cfg.OIDC.DestroySessionURL)
	assert.Equal(t, SameSiteNone, cfg.Session.SameSite, "form_post callbacks are cross-site POSTs")
	assert.True(t, cfg.Session.SecureCookie)
}

func TestLoadWebClient_QueryModeKeepsLaxCookie(t *testing.T) {
	yml := strings.Replace(webClientYAML, "oidc:\n", "oidc:\n  response_type: code\n  response_mode: query\n", 1)
	cfg, err := LoadWebClient(writeConfig(t, "webclient.yaml", yml))
	require.NoError(t, err)

	assert.Equal(t, ResponseModeQuery, cfg.OIDC.ResponseMode)
	assert.Equal(t, SameSiteLax, cfg.Session.SameSite)
	assert.False(t, cfg.Session.SecureCookie)
	assert.Equal(t, http.SameSiteLaxMode, cfg.Session.SameSiteMode())
}

func TestLoadWebClient_EnvOverrides(t *testing.T) {
	t.Setenv("WEBCLIENT_OIDC_CLIENT_ID", "from-env")
	t.Setenv("WEBCLIENT_SERVER_PORT", "3100")

	cfg, err := LoadWebClient(writeConfig(t, "webclient.yaml", webClientYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OIDC.ClientID)
	assert.Equal(t, 3100, cfg.Server.Port)
}

func TestLoadWebClient_PortFlag(t *testing.T) {
	flags := writeConfig(t, "webclient.yaml", webClientYAML)
	require.NoError(t, flags.Set("port", "3200"))

	cfg, err := LoadWebClient(flags)
	require.NoError(t, err)
	assert.Equal(t, 3200, cfg.Server.Port)
}

func TestWebClientConfig_Validate(t *testing.T) {
	base := func() *WebClientConfig {
		cfg, err := LoadWebClient(writeConfig(t, "webclient.yaml", webClientYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *WebClientConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *WebClientConfig) {},
		},
		{
			name:    "missing client id",
			mutate:  func(c *WebClientConfig) { c.OIDC.ClientID = "" },
			wantErr: "ClientID",
		},
		{
			name:    "unsupported response type",
			mutate:  func(c *WebClientConfig) { c.OIDC.ResponseType = "token" },
			wantErr: "unsupported oidc.response_type",
		},
		{
			name: "query mode with id_token",
			mutate: func(c *WebClientConfig) {
				c.OIDC.ResponseType = ResponseTypeCodeIDToken
				c.OIDC.ResponseMode = ResponseModeQuery
			},
			wantErr: "not allowed",
		},
		{
			name: "query mode with code",
			mutate: func(c *WebClientConfig) {
				c.OIDC.ResponseType = ResponseTypeCode
				c.OIDC.ResponseMode = ResponseModeQuery
			},
		},
		{
			name:    "http redirect not allowed",
			mutate:  func(c *WebClientConfig) { c.OIDC.AllowHTTPForRedirectURL = false },
			wantErr: "must use https",
		},
		{
			name:    "redis session without url",
			mutate:  func(c *WebClientConfig) { c.Session.Backend = BackendRedis },
			wantErr: "session.redis_url",
		},
		{
			name:    "redis identity without url",
			mutate:  func(c *WebClientConfig) { c.Identity.Backend = BackendRedis },
			wantErr: "identity.redis_url",
		},
		{
			name:    "lax cookie with form_post",
			mutate:  func(c *WebClientConfig) { c.Session.SameSite = SameSiteLax },
			wantErr: "session.same_site",
		},
		{
			name:    "none cookie without secure",
			mutate:  func(c *WebClientConfig) { c.Session.SecureCookie = false },
			wantErr: "session.secure_cookie",
		},
		{
			name: "lax cookie with query mode",
			mutate: func(c *WebClientConfig) {
				c.OIDC.ResponseType = ResponseTypeCode
				c.OIDC.ResponseMode = ResponseModeQuery
				c.Session.SameSite = SameSiteLax
			},
		},
		{
			name:    "unknown session backend",
			mutate:  func(c *WebClientConfig) { c.Session.Backend = "mongo" },
			wantErr: "Backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAPIService_PortEnv(t *testing.T) {
	t.Setenv("APISERVICE_BEARER_IDENTITY_METADATA", "https://login.example.com/tenant/v2.0")
	t.Setenv("APISERVICE_BEARER_CLIENT_ID", "api-client")
	t.Setenv("PORT", "5050")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitAPIServiceFlags(flags)
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))

	_, err := LoadAPIService(flags)
	require.Error(t, err, "an explicit config file that does not exist is an error")

	flags = pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitAPIServiceFlags(flags)
	t.Chdir(t.TempDir())

	cfg, err := LoadAPIService(flags)
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.Server.Port)
	assert.Equal(t, "api-client", cfg.Bearer.ClientID)
	assert.Equal(t, []string{"api-client"}, cfg.Bearer.Audiences())
	assert.Contains(t, cfg.CORS.AllowHeaders, "Authorization")
	assert.Empty(t, cfg.CORS.AllowOrigins)
}

const apiServiceYAML = `
server:
  port: 5001
bearer:
  identity_metadata: https://login.example.com/tenant/v2.0
  client_id: api-client
  audience: https://tenant.example.com/server
cors:
  allow_origins:
    - http://localhost:3000
`

func TestLoadAPIService_File(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "apiservice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(apiServiceYAML), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	InitAPIServiceFlags(flags)
	require.NoError(t, flags.Parse([]string{"--config", path}))

	cfg, err := LoadAPIService(flags)
	require.NoError(t, err)

	expected := &APIServiceConfig{
		Server: ServerConfig{
			Port:              5001,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Bearer: BearerConfig{
			IdentityMetadata: "https://login.example.com/tenant/v2.0",
			ClientID:         "api-client",
			Audience:         "https://tenant.example.com/server",
			ValidateIssuer:   true,
			ClockSkew:        5 * time.Minute,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
			AllowHeaders: []string{"Authorization", "Origin", "X-Requested-With", "Content-Type", "Accept"},
			AllowMethods: []string{"POST", "OPTIONS"},
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	if diff := cmp.Diff(expected, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("LoadAPIService() mismatch (-want +got):\n%s", diff)
	}
}

func TestBearerConfig_Audiences(t *testing.T) {
	b := BearerConfig{ClientID: "cid", Audience: "https://tenant.example.com/server"}
	assert.Equal(t, []string{"https://tenant.example.com/server", "cid"}, b.Audiences())
}

func TestSecret_RedactedInYAML(t *testing.T) {
	out, err := yaml.Marshal(OIDCConfig{ClientID: "cid", ClientSecret: "hunter2"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "<redacted>")
}
