// Package providertest runs an in-process OpenID Connect provider for tests.
// It serves discovery, a JWKS, an auto-approving authorization endpoint and a
// token endpoint that enforces PKCE.
package providertest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultUser are the claims of the signed-in user unless SetUser is called
var DefaultUser = map[string]interface{}{
	"sub":                "sub-alice",
	"oid":                "oid-alice",
	"name":               "Alice",
	"preferred_username": "alice@example.com",
}

type grant struct {
	clientID    string
	redirectURI string
	nonce       string
	challenge   string
	user        map[string]interface{}
}

// IdP is a test identity provider
type IdP struct {
	Server *httptest.Server

	clientID string
	key      *rsa.PrivateKey
	kid      string

	mu       sync.Mutex
	user     map[string]interface{}
	audience string
	ttl      time.Duration
	codes    map[string]grant
	exchange int
}

// New starts an IdP that issues tokens for clientID. The server is closed
// when the test ends.
func New(t testing.TB, clientID string) *IdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	idp := &IdP{
		clientID: clientID,
		key:      key,
		kid:      uuid.NewString(),
		user:     maps.Clone(DefaultUser),
		audience: clientID,
		ttl:      time.Hour,
		codes:    make(map[string]grant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", idp.handleDiscovery)
	mux.HandleFunc("GET /keys", idp.handleKeys)
	mux.HandleFunc("GET /authorize", idp.handleAuthorize)
	mux.HandleFunc("POST /token", idp.handleToken)

	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Server.Close)
	return idp
}

// Issuer is the issuer URL stamped on every token
func (i *IdP) Issuer() string {
	return i.Server.URL
}

// MetadataURL is the discovery document URL
func (i *IdP) MetadataURL() string {
	return i.Server.URL + "/.well-known/openid-configuration"
}

// SetUser replaces the claims of the signed-in user
func (i *IdP) SetUser(claims map[string]interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.user = maps.Clone(claims)
}

// SetAccessTokenAudience sets the aud claim of issued access tokens
func (i *IdP) SetAccessTokenAudience(aud string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.audience = aud
}

// Exchanges counts successful token endpoint calls
func (i *IdP) Exchanges() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exchange
}

// Mint signs claims with the IdP key. iss, iat and exp are filled in when
// absent.
func (i *IdP) Mint(claims jwt.MapClaims) string {
	return i.sign(i.key, i.kid, claims)
}

// MintUntrusted signs claims with a key the IdP does not publish
func (i *IdP) MintUntrusted(claims jwt.MapClaims) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return i.sign(key, i.kid, claims)
}

// AccessToken mints an access token for the current user
func (i *IdP) AccessToken() string {
	i.mu.Lock()
	claims := jwt.MapClaims{"aud": i.audience, "scp": "user_impersonation"}
	for k, v := range i.user {
		claims[k] = v
	}
	i.mu.Unlock()
	return i.Mint(claims)
}

func (i *IdP) sign(key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	now := time.Now()
	full := jwt.MapClaims{
		"iss": i.Issuer(),
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	for k, v := range claims {
		full[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, full)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		panic(err)
	}
	return signed
}

// idToken mints the ID token of g. A non-empty code is bound through c_hash,
// as for tokens returned from the authorization endpoint.
func (i *IdP) idToken(g grant, code string) string {
	claims := jwt.MapClaims{"aud": g.clientID}
	if g.nonce != "" {
		claims["nonce"] = g.nonce
	}
	if code != "" {
		claims["c_hash"] = CodeHash(code)
	}
	for k, v := range g.user {
		claims[k] = v
	}
	return i.Mint(claims)
}

// Authorize approves the authorization request in authURL and returns the
// parameters the IdP would send to the redirect URI.
func (i *IdP) Authorize(authURL string) (url.Values, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	return i.authorize(u.Query())
}

func (i *IdP) authorize(q url.Values) (url.Values, error) {
	if q.Get("client_id") != i.clientID {
		return nil, fmt.Errorf("unknown client %q", q.Get("client_id"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return nil, fmt.Errorf("PKCE S256 challenge required")
	}

	i.mu.Lock()
	g := grant{
		clientID:    q.Get("client_id"),
		redirectURI: q.Get("redirect_uri"),
		nonce:       q.Get("nonce"),
		challenge:   q.Get("code_challenge"),
		user:        maps.Clone(i.user),
	}
	code := uuid.NewString()
	i.codes[code] = g
	i.mu.Unlock()

	params := url.Values{"code": {code}, "state": {q.Get("state")}}
	if strings.Contains(q.Get("response_type"), "id_token") {
		params.Set("id_token", i.idToken(g, code))
	}
	return params, nil
}

func (i *IdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                i.Issuer(),
		"authorization_endpoint":                i.Server.URL + "/authorize",
		"token_endpoint":                        i.Server.URL + "/token",
		"jwks_uri":                              i.Server.URL + "/keys",
		"response_types_supported":              []string{"code", "code id_token"},
		"response_modes_supported":              []string{"query", "form_post"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (i *IdP) handleKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &i.key.PublicKey,
		KeyID:     i.kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

var formPost = template.Must(template.New("form_post").Parse(`<html><body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">{{range $k, $v := .Params}}
<input type="hidden" name="{{$k}}" value="{{index $v 0}}">{{end}}
</form></body></html>`))

func (i *IdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := i.authorize(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if q.Get("response_mode") == "form_post" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = formPost.Execute(w, map[string]interface{}{"Action": q.Get("redirect_uri"), "Params": params})
		return
	}
	http.Redirect(w, r, q.Get("redirect_uri")+"?"+params.Encode(), http.StatusFound)
}

func (i *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		tokenError(w, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	clientID, _, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
	}

	code := r.PostForm.Get("code")
	i.mu.Lock()
	g, found := i.codes[code]
	delete(i.codes, code)
	i.mu.Unlock()

	switch {
	case !found:
		tokenError(w, "invalid_grant", "unknown or used code")
		return
	case clientID != g.clientID:
		tokenError(w, "invalid_client", "client mismatch")
		return
	case r.PostForm.Get("redirect_uri") != g.redirectURI:
		tokenError(w, "invalid_grant", "redirect_uri mismatch")
		return
	case s256(r.PostForm.Get("code_verifier")) != g.challenge:
		tokenError(w, "invalid_grant", "PKCE verification failed")
		return
	}

	i.mu.Lock()
	i.exchange++
	aud := i.audience
	i.mu.Unlock()

	access := jwt.MapClaims{"aud": aud, "scp": "user_impersonation"}
	for k, v := range g.user {
		access[k] = v
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  i.Mint(access),
		"token_type":    "Bearer",
		"expires_in":    int(i.ttl.Seconds()),
		"refresh_token": "refresh-" + uuid.NewString(),
		"id_token":      i.idToken(g, ""),
	})
}

// CodeHash is the RS256 c_hash of code
func CodeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func tokenError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
