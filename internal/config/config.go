package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo(binary string) string {
	return fmt.Sprintf("%s version %s, commit %s, built at %s", binary, version, commit, date)
}

// Store backends shared by the session and identity stores.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Response types and modes accepted by the OIDC strategy.
const (
	ResponseTypeCode        = "code"
	ResponseTypeCodeIDToken = "code id_token"

	ResponseModeQuery    = "query"
	ResponseModeFormPost = "form_post"
)

// SameSite policies of the session cookie.
const (
	SameSiteLax    = "lax"
	SameSiteStrict = "strict"
	SameSiteNone   = "none"
)

// WebClientConfig is the configuration of the web client process.
type WebClientConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	OIDC     OIDCConfig     `mapstructure:"oidc" yaml:"oidc"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// APIServiceConfig is the configuration of the API service process.
type APIServiceConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Bearer  BearerConfig  `mapstructure:"bearer" yaml:"bearer"`
	CORS    CORSConfig    `mapstructure:"cors" yaml:"cors"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file" yaml:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console" yaml:"disable_console"`
}

// OIDCConfig configures the authorization code login of the web client.
type OIDCConfig struct {
	// IdentityMetadata is the issuer URL or its full
	// .well-known/openid-configuration URL.
	IdentityMetadata        string        `mapstructure:"identity_metadata" yaml:"identity_metadata" validate:"required,url"`
	ClientID                string        `mapstructure:"client_id" yaml:"client_id" validate:"required"`
	ClientSecret            Secret        `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL             string        `mapstructure:"redirect_url" yaml:"redirect_url" validate:"required,url"`
	AllowHTTPForRedirectURL bool          `mapstructure:"allow_http_for_redirect_url" yaml:"allow_http_for_redirect_url"`
	ResponseType            string        `mapstructure:"response_type" yaml:"response_type"`
	ResponseMode            string        `mapstructure:"response_mode" yaml:"response_mode" validate:"oneof=query form_post"`
	Scopes                  []string      `mapstructure:"scopes" yaml:"scopes"`
	ResourceURL             string        `mapstructure:"resource_url" yaml:"resource_url" validate:"omitempty,url"`
	ValidateIssuer          bool          `mapstructure:"validate_issuer" yaml:"validate_issuer"`
	Issuers                 []string      `mapstructure:"issuer" yaml:"issuer"`
	SubjectClaim            string        `mapstructure:"subject_claim" yaml:"subject_claim" validate:"required"`
	NonceLifetime           time.Duration `mapstructure:"nonce_lifetime" yaml:"nonce_lifetime" validate:"gt=0"`
	NonceMaxAmount          int           `mapstructure:"nonce_max_amount" yaml:"nonce_max_amount" validate:"gte=1"`
	ClockSkew               time.Duration `mapstructure:"clock_skew" yaml:"clock_skew" validate:"gte=0"`
	DestroySessionURL       string        `mapstructure:"destroy_session_url" yaml:"destroy_session_url" validate:"required"`
}

// BearerConfig configures access token validation of the API service.
type BearerConfig struct {
	IdentityMetadata string        `mapstructure:"identity_metadata" yaml:"identity_metadata" validate:"required,url"`
	ClientID         string        `mapstructure:"client_id" yaml:"client_id" validate:"required"`
	Audience         string        `mapstructure:"audience" yaml:"audience"`
	ValidateIssuer   bool          `mapstructure:"validate_issuer" yaml:"validate_issuer"`
	Issuers          []string      `mapstructure:"issuer" yaml:"issuer"`
	ClockSkew        time.Duration `mapstructure:"clock_skew" yaml:"clock_skew" validate:"gte=0"`
}

// Audiences returns the accepted audience values; the client id always counts.
func (b BearerConfig) Audiences() []string {
	if b.Audience == "" || b.Audience == b.ClientID {
		return []string{b.ClientID}
	}
	return []string{b.Audience, b.ClientID}
}

// SessionConfig configures the session store and cookie. An empty SameSite
// is derived from oidc.response_mode: a form_post callback is a cross-site
// POST and only carries SameSite=None cookies.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	RedisURL      string        `mapstructure:"redis_url" yaml:"redis_url"`
	KeyPrefix     string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	CookieName    string        `mapstructure:"cookie_name" yaml:"cookie_name" validate:"required"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
	Sliding       bool          `mapstructure:"sliding" yaml:"sliding"`
	SecureCookie  bool          `mapstructure:"secure_cookie" yaml:"secure_cookie"`
	SameSite      string        `mapstructure:"same_site" yaml:"same_site" validate:"omitempty,oneof=lax strict none"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// SameSiteMode maps SameSite to its cookie attribute; empty means lax.
func (s SessionConfig) SameSiteMode() http.SameSite {
	switch s.SameSite {
	case SameSiteStrict:
		return http.SameSiteStrictMode
	case SameSiteNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type IdentityConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	RedisURL  string `mapstructure:"redis_url" yaml:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// RelayConfig configures the cross-service call to the API service.
type RelayConfig struct {
	TargetURL string        `mapstructure:"target_url" yaml:"target_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
	AllowHeaders []string `mapstructure:"allow_headers" yaml:"allow_headers"`
	AllowMethods []string `mapstructure:"allow_methods" yaml:"allow_methods"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Secret hides its value when the configuration is printed.
type Secret string

// MarshalYAML implements yaml.Marshaler.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return "<redacted>", nil
}

// InitWebClientFlags registers the web client command line flags.
func InitWebClientFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the configuration file")
	flags.Int("port", 0, "Port to listen on (overrides server.port)")
}

// InitAPIServiceFlags registers the API service command line flags.
func InitAPIServiceFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the configuration file")
	flags.Int("port", 0, "Port to listen on (overrides server.port and PORT)")
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("logging.output_path", "")
	v.SetDefault("logging.append_to_file", false)
	v.SetDefault("logging.disable_console", false)
	v.SetDefault("logging.disable_stacktrace", false)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func setWebClientDefaults(v *viper.Viper) {
	setCommonDefaults(v)
	v.SetDefault("server.port", 3000)
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("oidc.identity_metadata", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.redirect_url", "")
	v.SetDefault("oidc.allow_http_for_redirect_url", false)
	v.SetDefault("oidc.resource_url", "")
	v.SetDefault("oidc.issuer", []string{})
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.sliding", false)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("session.same_site", "")
	v.SetDefault("identity.redis_url", "")
	v.SetDefault("oidc.response_type", ResponseTypeCodeIDToken)
	v.SetDefault("oidc.response_mode", ResponseModeFormPost)
	v.SetDefault("oidc.scopes", []string{"openid", "profile", "offline_access"})
	v.SetDefault("oidc.validate_issuer", true)
	v.SetDefault("oidc.subject_claim", "oid")
	v.SetDefault("oidc.nonce_lifetime", "1h")
	v.SetDefault("oidc.nonce_max_amount", 10)
	v.SetDefault("oidc.clock_skew", "5m")
	v.SetDefault("oidc.destroy_session_url", "/")
	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.key_prefix", "oidc-sample:session:")
	v.SetDefault("session.cookie_name", "oidc_sample_session")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("identity.backend", BackendMemory)
	v.SetDefault("identity.key_prefix", "oidc-sample:identity:")
	v.SetDefault("relay.target_url", "http://localhost:5000/admin")
	v.SetDefault("relay.timeout", "30s")
}

func setAPIServiceDefaults(v *viper.Viper) {
	setCommonDefaults(v)
	v.SetDefault("server.port", 5000)
	v.SetDefault("bearer.identity_metadata", "")
	v.SetDefault("bearer.client_id", "")
	v.SetDefault("bearer.audience", "")
	v.SetDefault("bearer.issuer", []string{})
	v.SetDefault("cors.allow_origins", []string{})
	v.SetDefault("bearer.validate_issuer", true)
	v.SetDefault("bearer.clock_skew", "5m")
	v.SetDefault("cors.allow_headers", []string{"Authorization", "Origin", "X-Requested-With", "Content-Type", "Accept"})
	v.SetDefault("cors.allow_methods", []string{"POST", "OPTIONS"})
}

// newViper builds a viper instance reading <name>.yaml and <PREFIX>_* env vars.
func newViper(name, envPrefix string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("port"); f != nil && f.Changed {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, err
			}
		}
	}

	var configFile string
	if flags != nil {
		configFile, _ = flags.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/oidc-sample")
	}

	if err := v.ReadInConfig(); err != nil {
		// Running purely on env vars and defaults is fine.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// LoadWebClient loads and validates the web client configuration.
func LoadWebClient(flags *pflag.FlagSet) (*WebClientConfig, error) {
	v, err := newViper("webclient", "WEBCLIENT", flags)
	if err != nil {
		return nil, err
	}
	setWebClientDefaults(v)

	var cfg WebClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyCookiePolicy()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAPIService loads and validates the API service configuration.
func LoadAPIService(flags *pflag.FlagSet) (*APIServiceConfig, error) {
	v, err := newViper("apiservice", "APISERVICE", flags)
	if err != nil {
		return nil, err
	}
	setAPIServiceDefaults(v)
	// PORT is honoured for platforms that inject it.
	if err := v.BindEnv("server.port", "APISERVICE_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	var cfg APIServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyCookiePolicy derives session.same_site from the response mode and
// forces Secure for SameSite=None, which browsers require.
func (c *WebClientConfig) applyCookiePolicy() {
	if c.Session.SameSite == "" {
		if c.OIDC.ResponseMode == ResponseModeFormPost {
			c.Session.SameSite = SameSiteNone
		} else {
			c.Session.SameSite = SameSiteLax
		}
	}
	if c.Session.SameSite == SameSiteNone {
		c.Session.SecureCookie = true
	}
}

// Validate checks field constraints and the cross-field rules of the OIDC setup.
func (c *WebClientConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.OIDC.ResponseType {
	case ResponseTypeCode, ResponseTypeCodeIDToken:
	default:
		return fmt.Errorf("unsupported oidc.response_type %q", c.OIDC.ResponseType)
	}
	if c.OIDC.ResponseType == ResponseTypeCodeIDToken && c.OIDC.ResponseMode == ResponseModeQuery {
		return fmt.Errorf("oidc.response_mode %q is not allowed with response_type %q", ResponseModeQuery, ResponseTypeCodeIDToken)
	}

	if c.OIDC.ResponseMode == ResponseModeFormPost && c.Session.SameSite != "" && c.Session.SameSite != SameSiteNone {
		return fmt.Errorf("session.same_site %q drops the session on %s callbacks; use %q", c.Session.SameSite, ResponseModeFormPost, SameSiteNone)
	}
	if c.Session.SameSite == SameSiteNone && !c.Session.SecureCookie {
		return fmt.Errorf("session.same_site %q requires session.secure_cookie", SameSiteNone)
	}

	redirect, err := url.Parse(c.OIDC.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid oidc.redirect_url: %w", err)
	}
	if redirect.Scheme != "https" && !c.OIDC.AllowHTTPForRedirectURL {
		return fmt.Errorf("oidc.redirect_url must use https unless oidc.allow_http_for_redirect_url is set")
	}

	if c.Session.Backend == BackendRedis && c.Session.RedisURL == "" {
		return fmt.Errorf("session.redis_url is required for the redis backend")
	}
	if c.Identity.Backend == BackendRedis && c.Identity.RedisURL == "" {
		return fmt.Errorf("identity.redis_url is required for the redis backend")
	}
	return nil
}

// Validate checks field constraints of the API service configuration.
func (c *APIServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
