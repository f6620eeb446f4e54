package oauth2

import (
	"net/http"
	"net/url"
)

// Parameter names used across the endpoints.
const (
	ParamGrantType           = "grant_type"
	ParamResponseType        = "response_type"
	ParamClientID            = "client_id"
	ParamClientSecret        = "client_secret"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamCode                = "code"
	ParamRefreshToken        = "refresh_token"
	ParamToken               = "token"
	ParamTokenTypeHint       = "token_type_hint"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamCodeVerifier        = "code_verifier"
	ParamNonce               = "nonce"
	ParamConsentAction       = "consent_action"
	ParamError               = "error"
	ParamErrorDescription    = "error_description"
	ParamErrorURI            = "error_uri"
)

// Params wraps the decoded request parameters with the multiplicity rules the
// endpoints share. It is a read-only view over url.Values.
type Params struct {
	values url.Values
}

// ParseParams decodes the request parameters for an endpoint. POST bodies
// must be application/x-www-form-urlencoded; query parameters are merged in
// for GET requests (the authorization endpoint accepts both methods).
func ParseParams(r *http.Request) (Params, error) {
	if err := r.ParseForm(); err != nil {
		return Params{}, NewError(ErrorCodeInvalidRequest, "malformed request parameters")
	}
	return Params{values: r.Form}, nil
}

// Singular returns the value of a parameter that the protocol defines as
// single-valued. Returns ("", false) when absent; an *Error when the
// parameter appears more than once. Duplicates are never tolerated.
func (p Params) Singular(name, uri string) (string, bool, *Error) {
	vs, ok := p.values[name]
	if !ok || len(vs) == 0 {
		return "", false, nil
	}
	if len(vs) != 1 {
		return "", false, InvalidParameter(name, uri)
	}
	return vs[0], true, nil
}

// RequiredSingular is Singular for parameters that must be present and
// non-empty exactly once.
func (p Params) RequiredSingular(name, uri string) (string, *Error) {
	v, ok, err := p.Singular(name, uri)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return "", InvalidParameter(name, uri)
	}
	return v, nil
}

// Has reports whether the parameter was supplied at all.
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Values returns every occurrence of a parameter the protocol defines as
// multi-valued (the consent form's scope checkboxes). Most parameters should
// go through Singular instead.
func (p Params) Values(name string) []string {
	return append([]string(nil), p.values[name]...)
}
