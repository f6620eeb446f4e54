// Package authn defines the authentication requests and results that flow
// between the HTTP endpoint filters and the grant providers, plus the
// dispatcher that routes each request to the first provider claiming it.
package authn

import (
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

// Request is the closed set of authentication requests the providers accept.
// Each endpoint converter produces exactly one of the concrete types below;
// the unexported marker keeps the set closed to this package.
type Request interface {
	request()
}

// AuthorizationRequest is a resource owner arriving at the authorization
// endpoint with an already-established session. Subject identifies the
// authenticated resource owner; client validation happens in the provider.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scopes              []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Subject             string
}

func (*AuthorizationRequest) request() {}

// ConsentRequest is the resource owner's decision submitted from the consent
// page. The original authorization parameters ride along as hidden form
// fields and are re-validated against the client registration before any code
// is issued, so a tampered form cannot reach an unregistered redirect URI.
// ApprovedScopes is the subset the owner ticked; Approved false means the
// owner denied the request outright.
type ConsentRequest struct {
	ClientID            string
	Subject             string
	State               string
	RedirectURI         string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Approved            bool
	ApprovedScopes      []string
}

func (*ConsentRequest) request() {}

// AuthorizationCodeRequest is a token request exchanging an authorization
// code. Client is the already-authenticated requester.
type AuthorizationCodeRequest struct {
	Client       *storage.Client
	Code         string
	RedirectURI  string
	CodeVerifier string
}

func (*AuthorizationCodeRequest) request() {}

// RefreshTokenRequest is a token request presenting a refresh token. Scopes
// is the optionally-narrowed scope the client asked for; empty means reuse
// the original grant.
type RefreshTokenRequest struct {
	Client       *storage.Client
	RefreshToken string
	Scopes       []string
}

func (*RefreshTokenRequest) request() {}

// ClientCredentialsRequest is a token request under the client's own
// authority.
type ClientCredentialsRequest struct {
	Client *storage.Client
	Scopes []string
}

func (*ClientCredentialsRequest) request() {}

// IntrospectionRequest asks whether a token is active, on behalf of an
// authenticated caller.
type IntrospectionRequest struct {
	Client        *storage.Client
	Token         string
	TokenTypeHint string
}

func (*IntrospectionRequest) request() {}

// RevocationRequest asks that a token stop working, on behalf of an
// authenticated caller.
type RevocationRequest struct {
	Client        *storage.Client
	Token         string
	TokenTypeHint string
}

func (*RevocationRequest) request() {}

// Result is the closed set of provider outcomes. The endpoint success
// handlers switch over these to serialize the response.
type Result interface {
	result()
}

// CodeResult redirects the resource owner back to the client with a freshly
// minted authorization code.
type CodeResult struct {
	RedirectURI string
	Code        string
	State       string
}

func (*CodeResult) result() {}

// ConsentRequiredResult pauses the authorization flow: the resource owner has
// not yet approved the requested scopes, so the endpoint renders the consent
// page instead of issuing a code. The original authorization parameters are
// carried so the form can echo them back.
type ConsentRequiredResult struct {
	ClientID            string
	ClientName          string
	Subject             string
	State               string
	RedirectURI         string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	RequestedScopes     []string
}

func (*ConsentRequiredResult) result() {}

// DeniedResult redirects the resource owner back to the client with an
// access_denied error after an explicit consent refusal.
type DeniedResult struct {
	RedirectURI string
	State       string
}

func (*DeniedResult) result() {}

// TokenResult carries the token endpoint success body.
type TokenResult struct {
	Response *oauth2.TokenResponse
}

func (*TokenResult) result() {}

// IntrospectionResult carries the introspection response. Inactive or unknown
// tokens still produce a result with Active false, never an error.
type IntrospectionResult struct {
	Response *oauth2.IntrospectionResponse
}

func (*IntrospectionResult) result() {}

// RevocationResult is the empty success of the revocation endpoint. Unknown
// tokens produce this result too so callers cannot probe the token store.
type RevocationResult struct{}

func (*RevocationResult) result() {}
