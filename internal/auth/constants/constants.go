package constants

const (
	// WebClientPort is the default port for the web client
	WebClientPort = 3000

	// APIServicePort is the default port for the API service
	APIServicePort = 5000

	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "

	// BearerRealm is advertised in WWW-Authenticate challenges
	BearerRealm = "oidc-sample"
)

// Web client routes
const (
	RouteIndex           = "/"
	RouteAccount         = "/account"
	RouteCallAPI         = "/callapi"
	RouteCrossDomainCall = "/crossdomaincall"
	RouteLogin           = "/login"
	RouteCallback        = "/auth/openid/return"
	RouteLogout          = "/logout"
	RouteHealth          = "/healthz"
	RouteAdmin           = "/admin"
)

// Authorization request and callback parameters
const (
	ParamState            = "state"
	ParamNonce            = "nonce"
	ParamCode             = "code"
	ParamIDToken          = "id_token"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	ParamResponseType     = "response_type"
	ParamResponseMode     = "response_mode"
	ParamResource         = "resource"
)

// DefaultScopes are requested when none are configured
var DefaultScopes = []string{"openid", "profile", "offline_access"}

// PKCE methods
var SupportedPKCEMethods = []string{"S256"}
