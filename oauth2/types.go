package oauth2

import "strings"

// Grant types accepted by the token endpoint by default. The dispatcher is
// an open list, so deployments can register providers for additional values.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
)

// Token type hints per RFC 7009 §2.1 / RFC 7662 §2.1.
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// TokenTypeBearer is the only token_type this server issues.
const TokenTypeBearer = "Bearer"

// ScopeOpenID triggers ID Token issuance on the authorization_code and
// refresh_token grants.
const ScopeOpenID = "openid"

// Scopes gating the client registration endpoint.
const (
	ScopeClientCreate = "client.create"
	ScopeClientRead   = "client.read"
)

// RFC sections referenced from error_uri values.
const (
	ErrorURITokenRequest  = "https://datatracker.ietf.org/doc/html/rfc6749#section-5.2"
	ErrorURIAuthzRequest  = "https://datatracker.ietf.org/doc/html/rfc6749#section-4.1.2.1"
	ErrorURIRevocation    = "https://datatracker.ietf.org/doc/html/rfc7009#section-2.1"
	ErrorURIIntrospection = "https://datatracker.ietf.org/doc/html/rfc7662#section-2.1"
	ErrorURIRegistration  = "https://datatracker.ietf.org/doc/html/rfc7591#section-3.2.2"
)

// TokenResponse is the token endpoint success body per RFC 6749 §5.1. Scope
// is populated only when the granted scope differs from the request.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// IntrospectionResponse per RFC 7662 §2.2. Only Active is guaranteed; the
// claim fields are populated for live tokens.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Jti       string `json:"jti,omitempty"`
}

// ParseScopes splits a space-delimited scope string per RFC 6749 §3.3.
func ParseScopes(s string) []string {
	return strings.Fields(s)
}

// JoinScopes is the inverse of ParseScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopesContainAll reports whether have covers every element of want.
func ScopesContainAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, s := range want {
		if !set[s] {
			return false
		}
	}
	return true
}

// ScopesEqual compares scope sets ignoring order.
func ScopesEqual(a, b []string) bool {
	return len(a) == len(b) && ScopesContainAll(a, b)
}
