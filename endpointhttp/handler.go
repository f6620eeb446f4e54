package endpointhttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/authserve/oauth2-server-go/auth"
	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/internal/logctx"
	"github.com/authserve/oauth2-server-go/internal/wellknown"
	"github.com/authserve/oauth2-server-go/keys"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/providers"
	"github.com/authserve/oauth2-server-go/storage"
	"github.com/authserve/oauth2-server-go/tokens"
)

var _ http.Handler = (*Handler)(nil)

// Paths configures where the endpoints are mounted. Zero values take the
// conventional defaults.
type Paths struct {
	Authorize  string // default /oauth2/authorize
	Token      string // default /oauth2/token
	Introspect string // default /oauth2/introspect
	Revoke     string // default /oauth2/revoke
	JWKS       string // default /oauth2/jwks
	UserInfo   string // default /userinfo
	Register   string // default /connect/register
}

func (p *Paths) applyDefaults() {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&p.Authorize, "/oauth2/authorize")
	def(&p.Token, "/oauth2/token")
	def(&p.Introspect, "/oauth2/introspect")
	def(&p.Revoke, "/oauth2/revoke")
	def(&p.JWKS, "/oauth2/jwks")
	def(&p.UserInfo, "/userinfo")
	def(&p.Register, "/connect/register")
}

// SubjectResolver reports the authenticated resource owner for an interactive
// request, normally from a session cookie established by a login surface
// outside this package. ok false means the owner is not signed in.
type SubjectResolver func(r *http.Request) (subject string, ok bool)

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger          *slog.Logger
	realm           string
	paths           Paths
	consentURL      string
	loginURL        string
	subject         SubjectResolver
	issuer          *tokens.Issuer
	bearer          auth.Authenticator
	extraProviders  []authn.Provider
	successHandlers map[Endpoint]SuccessHandler
	failureHandlers map[Endpoint]FailureHandler
	scopesSupported []string
	serviceDocs     string
}

// WithLogger sets the slog logger used by the handler. If not provided, logs
// go to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithRealm sets the HTTP authentication realm used in WWW-Authenticate
// challenges. Defaults to "oauth2".
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithPaths overrides the default endpoint mount points.
func WithPaths(p Paths) Option {
	return func(c *newConfig) { c.paths = p }
}

// WithConsentURL sets where resource owners are redirected when a consent
// decision is required. The consent surface posts the decision back to the
// authorization endpoint with consent_action. Defaults to /oauth2/consent.
func WithConsentURL(u string) Option {
	return func(c *newConfig) { c.consentURL = u }
}

// WithLoginURL sets where unauthenticated resource owners are redirected. If
// unset, the authorization endpoint answers 401 instead.
func WithLoginURL(u string) Option {
	return func(c *newConfig) { c.loginURL = u }
}

// WithSubjectResolver installs the resource-owner session lookup used by the
// authorization endpoint.
func WithSubjectResolver(s SubjectResolver) Option {
	return func(c *newConfig) { c.subject = s }
}

// WithTokenIssuer replaces the handler's default token issuer (for custom
// TTLs or claims policy).
func WithTokenIssuer(i *tokens.Issuer) Option {
	return func(c *newConfig) { c.issuer = i }
}

// WithBearerAuthenticator replaces the access token validator used by the
// userinfo and registration endpoints.
func WithBearerAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.bearer = a }
}

// WithProviders prepends custom authentication providers to the dispatch
// order, ahead of the built-in grant providers. Ordering decides ties: a
// custom provider claiming a built-in request type shadows the default.
func WithProviders(ps ...authn.Provider) Option {
	return func(c *newConfig) { c.extraProviders = append(c.extraProviders, ps...) }
}

// WithSuccessHandler replaces the success handler for one pipeline endpoint.
// The last registration wins.
func WithSuccessHandler(ep Endpoint, h SuccessHandler) Option {
	return func(c *newConfig) { c.successHandlers[ep] = h }
}

// WithFailureHandler replaces the failure handler for one pipeline endpoint.
// The last registration wins.
func WithFailureHandler(ep Endpoint, h FailureHandler) Option {
	return func(c *newConfig) { c.failureHandlers[ep] = h }
}

// WithScopesSupported sets the scope list advertised in the discovery
// documents. "openid" is always included.
func WithScopesSupported(scopes ...string) Option {
	return func(c *newConfig) { c.scopesSupported = append([]string(nil), scopes...) }
}

// WithServiceDocumentation sets the service_documentation metadata value.
func WithServiceDocumentation(u string) Option {
	return func(c *newConfig) { c.serviceDocs = u }
}

// Handler serves the authorization server's HTTP surface.
type Handler struct {
	mux   *http.ServeMux
	log   *slog.Logger
	store storage.Store
	keys  *keys.Source

	issuer     string
	realm      string
	paths      Paths
	consentURL string
	loginURL   string
	subject    SubjectResolver
	bearer     auth.Authenticator
	dispatcher *authn.Dispatcher
	tokens     *tokens.Issuer

	asMetadata   wellknown.AuthorizationServerMetadata
	oidcMetadata wellknown.OpenIDConfiguration

	registerURL string
}

// New constructs the Handler.
//
// Required:
//   - issuer: this server's externally visible base URL; it becomes the iss
//     claim on every signed token and the issuer in the discovery documents
//   - store: persistence for clients, codes, tokens, and consent decisions
//   - ks: the signing key source backing the JWK Set endpoint
func New(issuer string, store storage.Store, ks *keys.Source, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if ks == nil {
		return nil, fmt.Errorf("key source is required")
	}
	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL %q: %w", issuer, err)
	}
	if issuerURL.Scheme != "https" && issuerURL.Scheme != "http" {
		return nil, fmt.Errorf("issuer URL must use HTTP or HTTPS scheme, got %q", issuerURL.Scheme)
	}

	cfg := &newConfig{
		logger:          slog.Default(),
		realm:           "oauth2",
		successHandlers: map[Endpoint]SuccessHandler{},
		failureHandlers: map[Endpoint]FailureHandler{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.paths.applyDefaults()
	if cfg.consentURL == "" {
		cfg.consentURL = "/oauth2/consent"
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	h := &Handler{
		log:        log,
		store:      store,
		keys:       ks,
		issuer:     strings.TrimSuffix(issuer, "/"),
		realm:      cfg.realm,
		paths:      cfg.paths,
		consentURL: cfg.consentURL,
		loginURL:   cfg.loginURL,
		subject:    cfg.subject,
		tokens:     cfg.issuer,
	}
	if h.tokens == nil {
		h.tokens = tokens.NewIssuer(h.issuer, ks)
	}

	deps := providers.Deps{Store: store, Issuer: h.tokens, Log: log}
	providerList := append(append([]authn.Provider(nil), cfg.extraProviders...),
		providers.NewAuthorization(deps),
		providers.NewConsent(deps),
		providers.NewAuthorizationCodeGrant(deps),
		providers.NewRefreshTokenGrant(deps),
		providers.NewClientCredentialsGrant(deps),
		providers.NewIntrospection(deps),
		providers.NewRevocation(deps),
	)
	h.dispatcher, err = authn.NewDispatcher(providerList, authn.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := checkProviderCoverage(h.dispatcher); err != nil {
		return nil, err
	}

	h.bearer = cfg.bearer
	if h.bearer == nil {
		h.bearer, err = auth.NewLocal(ks, h.issuer, h.issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to build bearer authenticator: %w", err)
		}
	}

	h.buildMetadata(issuerURL, cfg)
	h.buildMux(cfg)
	return h, nil
}

// checkProviderCoverage probes the dispatcher with every built-in request
// type so a missing provider surfaces at startup, not on the first request.
func checkProviderCoverage(d *authn.Dispatcher) error {
	probes := []authn.Request{
		&authn.AuthorizationRequest{},
		&authn.ConsentRequest{},
		&authn.AuthorizationCodeRequest{},
		&authn.RefreshTokenRequest{},
		&authn.ClientCredentialsRequest{},
		&authn.IntrospectionRequest{},
		&authn.RevocationRequest{},
	}
	for _, p := range probes {
		if !d.Covers(p) {
			return fmt.Errorf("no provider registered for %T", p)
		}
	}
	return nil
}

func (h *Handler) endpointURL(path string) string {
	return h.issuer + path
}

func (h *Handler) buildMetadata(issuerURL *url.URL, cfg *newConfig) {
	scopes := cfg.scopesSupported
	if !hasString(scopes, oauth2.ScopeOpenID) {
		scopes = append([]string{oauth2.ScopeOpenID}, scopes...)
	}
	h.registerURL = h.endpointURL(h.paths.Register)

	h.asMetadata = wellknown.AuthorizationServerMetadata{
		Issuer:                h.issuer,
		AuthorizationEndpoint: h.endpointURL(h.paths.Authorize),
		TokenEndpoint:         h.endpointURL(h.paths.Token),
		JwksURI:               h.endpointURL(h.paths.JWKS),
		RegistrationEndpoint:  h.registerURL,
		ScopesSupported:       scopes,
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			oauth2.GrantTypeAuthorizationCode,
			oauth2.GrantTypeRefreshToken,
			oauth2.GrantTypeClientCredentials,
		},
		TokenEndpointAuthMethodsSupported: []string{
			storage.AuthMethodClientSecretBasic,
			storage.AuthMethodClientSecretPost,
			storage.AuthMethodNone,
		},
		ServiceDocumentation:                      cfg.serviceDocs,
		RevocationEndpoint:                        h.endpointURL(h.paths.Revoke),
		RevocationEndpointAuthMethodsSupported:    []string{storage.AuthMethodClientSecretBasic, storage.AuthMethodClientSecretPost},
		IntrospectionEndpoint:                     h.endpointURL(h.paths.Introspect),
		IntrospectionEndpointAuthMethodsSupported: []string{storage.AuthMethodClientSecretBasic, storage.AuthMethodClientSecretPost},
		CodeChallengeMethodsSupported:             []string{providers.CodeChallengeMethodS256},
	}
	h.oidcMetadata = wellknown.OpenIDConfiguration{
		AuthorizationServerMetadata:      h.asMetadata,
		UserinfoEndpoint:                 h.endpointURL(h.paths.UserInfo),
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ClaimsSupported:                  []string{"sub", "iss", "aud", "exp", "iat", "nonce"},
	}
}

func (h *Handler) buildMux(cfg *newConfig) {
	pick := func(ep Endpoint, def SuccessHandler) SuccessHandler {
		if custom, ok := cfg.successHandlers[ep]; ok {
			return custom
		}
		return def
	}
	pickFail := func(ep Endpoint, def FailureHandler) FailureHandler {
		if custom, ok := cfg.failureHandlers[ep]; ok {
			return custom
		}
		return def
	}

	authorize := &Filter{
		Endpoint:  EndpointAuthorize,
		Path:      h.paths.Authorize,
		Convert:   h.convertAuthorize,
		Dispatch:  h.dispatcher,
		OnSuccess: pick(EndpointAuthorize, h.authorizeSuccess),
		OnFailure: pickFail(EndpointAuthorize, h.authorizeFailure),
		log:       h.log,
	}
	token := &Filter{
		Endpoint:  EndpointToken,
		Method:    http.MethodPost,
		Path:      h.paths.Token,
		Convert:   h.convertToken,
		Dispatch:  h.dispatcher,
		OnSuccess: pick(EndpointToken, h.tokenSuccess),
		OnFailure: pickFail(EndpointToken, h.tokenFailure),
		log:       h.log,
	}
	introspect := &Filter{
		Endpoint:  EndpointIntrospect,
		Method:    http.MethodPost,
		Path:      h.paths.Introspect,
		Convert:   h.convertIntrospect,
		Dispatch:  h.dispatcher,
		OnSuccess: pick(EndpointIntrospect, h.introspectSuccess),
		OnFailure: pickFail(EndpointIntrospect, writeFailureJSON),
		log:       h.log,
	}
	revoke := &Filter{
		Endpoint:  EndpointRevoke,
		Method:    http.MethodPost,
		Path:      h.paths.Revoke,
		Convert:   h.convertRevoke,
		Dispatch:  h.dispatcher,
		OnSuccess: pick(EndpointRevoke, h.revokeSuccess),
		OnFailure: pickFail(EndpointRevoke, writeFailureJSON),
		log:       h.log,
	}

	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("GET %s", h.paths.Authorize), h.requireSubject(authorize))
	mux.Handle(fmt.Sprintf("POST %s", h.paths.Authorize), h.requireSubject(authorize))
	mux.Handle(fmt.Sprintf("POST %s", h.paths.Token), h.withClientAuth(token))
	mux.Handle(fmt.Sprintf("POST %s", h.paths.Introspect), h.withClientAuth(introspect))
	mux.Handle(fmt.Sprintf("POST %s", h.paths.Revoke), h.withClientAuth(revoke))

	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.handleGetASMetadata)
	mux.HandleFunc("OPTIONS /.well-known/oauth-authorization-server", h.handleOptionsMetadata)
	mux.HandleFunc("GET /.well-known/openid-configuration", h.handleGetOIDCConfiguration)
	mux.HandleFunc("OPTIONS /.well-known/openid-configuration", h.handleOptionsMetadata)
	mux.HandleFunc(fmt.Sprintf("GET %s", h.paths.JWKS), h.handleGetJWKS)
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s", h.paths.JWKS), h.handleOptionsMetadata)

	mux.HandleFunc(fmt.Sprintf("GET %s", h.paths.UserInfo), h.handleUserInfo)
	mux.HandleFunc(fmt.Sprintf("POST %s", h.paths.UserInfo), h.handleUserInfo)

	mux.HandleFunc(fmt.Sprintf("POST %s", h.paths.Register), h.handleRegisterClient)
	mux.HandleFunc(fmt.Sprintf("GET %s", h.paths.Register), h.handleReadClient)

	h.mux = mux
}

// writeFailureJSON is the default failure handler for introspection and
// revocation, where only malformed requests and client auth failures ever
// reach the failure path.
func writeFailureJSON(w http.ResponseWriter, r *http.Request, err error) {
	writeProtocolError(w, err)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// requireSubject gates the authorization endpoint on a signed-in resource
// owner and threads the subject through the context for the converter.
func (h *Handler) requireSubject(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.subject == nil {
			h.log.ErrorContext(r.Context(), "authz.subject_resolver.missing")
			writeProtocolError(w, oauth2.NewError(oauth2.ErrorCodeServerError, "resource owner authentication is not configured"))
			return
		}
		sub, ok := h.subject(r)
		if !ok {
			if h.loginURL != "" {
				http.Redirect(w, r, h.loginURL, http.StatusFound)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), sub)))
	}
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
