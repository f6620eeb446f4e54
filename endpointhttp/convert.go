package endpointhttp

import (
	"context"
	"net/http"

	"github.com/elnormous/contenttype"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

var formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")

// requireFormBody rejects POST bodies that carry any media type other than
// application/x-www-form-urlencoded before parameter parsing starts.
func requireFormBody(r *http.Request, uri string) *oauth2.Error {
	if r.Method != http.MethodPost || r.Header.Get("Content-Type") == "" {
		return nil
	}
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(formMediaType) {
		return oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidRequest,
			"request body must be application/x-www-form-urlencoded", uri)
	}
	return nil
}

type subjectKey struct{}

func withSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

func subjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// convertAuthorize parses both phases of the authorization endpoint: the
// initial authorization request and the consent decision posted back from the
// consent page (distinguished by the presence of consent_action).
func (h *Handler) convertAuthorize(r *http.Request) (authn.Request, error) {
	uri := oauth2.ErrorURIAuthzRequest
	if oerr := requireFormBody(r, uri); oerr != nil {
		return nil, oerr
	}
	params, err := oauth2.ParseParams(r)
	if err != nil {
		return nil, err
	}
	subject := subjectFromContext(r.Context())

	if params.Has(oauth2.ParamConsentAction) {
		action, oerr := params.RequiredSingular(oauth2.ParamConsentAction, uri)
		if oerr != nil {
			return nil, oerr
		}
		if action != "approve" && action != "deny" {
			return nil, oauth2.InvalidParameter(oauth2.ParamConsentAction, uri)
		}
		clientID, oerr := params.RequiredSingular(oauth2.ParamClientID, uri)
		if oerr != nil {
			return nil, oerr
		}
		req := &authn.ConsentRequest{
			ClientID: clientID,
			Subject:  subject,
			Approved: action == "approve",
			// The consent form posts one scope parameter per approved scope.
			ApprovedScopes: params.Values(oauth2.ParamScope),
		}
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{oauth2.ParamState, &req.State},
			{oauth2.ParamRedirectURI, &req.RedirectURI},
			{oauth2.ParamNonce, &req.Nonce},
			{oauth2.ParamCodeChallenge, &req.CodeChallenge},
			{oauth2.ParamCodeChallengeMethod, &req.CodeChallengeMethod},
		} {
			v, _, oerr := params.Singular(f.name, uri)
			if oerr != nil {
				return nil, oerr
			}
			*f.dst = v
		}
		return req, nil
	}

	responseType, oerr := params.RequiredSingular(oauth2.ParamResponseType, uri)
	if oerr != nil {
		return nil, oerr
	}
	clientID, oerr := params.RequiredSingular(oauth2.ParamClientID, uri)
	if oerr != nil {
		return nil, oerr
	}
	req := &authn.AuthorizationRequest{
		ClientID:     clientID,
		ResponseType: responseType,
		Subject:      subject,
	}
	var scope string
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{oauth2.ParamRedirectURI, &req.RedirectURI},
		{oauth2.ParamScope, &scope},
		{oauth2.ParamState, &req.State},
		{oauth2.ParamNonce, &req.Nonce},
		{oauth2.ParamCodeChallenge, &req.CodeChallenge},
		{oauth2.ParamCodeChallengeMethod, &req.CodeChallengeMethod},
	} {
		v, _, oerr := params.Singular(f.name, uri)
		if oerr != nil {
			return nil, oerr
		}
		*f.dst = v
	}
	req.Scopes = oauth2.ParseScopes(scope)
	return req, nil
}

// convertToken parses a token request into the grant-specific request type.
// An unknown grant_type is rejected here; a known grant_type that the client
// may not use is the provider's call.
func (h *Handler) convertToken(r *http.Request) (authn.Request, error) {
	uri := oauth2.ErrorURITokenRequest
	if oerr := requireFormBody(r, uri); oerr != nil {
		return nil, oerr
	}
	params, err := oauth2.ParseParams(r)
	if err != nil {
		return nil, err
	}

	principal, ok := authn.ClientPrincipalFromContext(r.Context())
	if !ok {
		return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidClient, "client authentication required", uri)
	}

	grantType, oerr := params.RequiredSingular(oauth2.ParamGrantType, uri)
	if oerr != nil {
		return nil, oerr
	}

	switch grantType {
	case oauth2.GrantTypeAuthorizationCode:
		code, oerr := params.RequiredSingular(oauth2.ParamCode, uri)
		if oerr != nil {
			return nil, oerr
		}
		redirectURI, _, oerr := params.Singular(oauth2.ParamRedirectURI, uri)
		if oerr != nil {
			return nil, oerr
		}
		verifier, _, oerr := params.Singular(oauth2.ParamCodeVerifier, uri)
		if oerr != nil {
			return nil, oerr
		}
		return &authn.AuthorizationCodeRequest{
			Client:       principal.Client,
			Code:         code,
			RedirectURI:  redirectURI,
			CodeVerifier: verifier,
		}, nil
	case oauth2.GrantTypeRefreshToken:
		token, oerr := params.RequiredSingular(oauth2.ParamRefreshToken, uri)
		if oerr != nil {
			return nil, oerr
		}
		scope, _, oerr := params.Singular(oauth2.ParamScope, uri)
		if oerr != nil {
			return nil, oerr
		}
		return &authn.RefreshTokenRequest{
			Client:       principal.Client,
			RefreshToken: token,
			Scopes:       oauth2.ParseScopes(scope),
		}, nil
	case oauth2.GrantTypeClientCredentials:
		scope, _, oerr := params.Singular(oauth2.ParamScope, uri)
		if oerr != nil {
			return nil, oerr
		}
		return &authn.ClientCredentialsRequest{
			Client: principal.Client,
			Scopes: oauth2.ParseScopes(scope),
		}, nil
	default:
		return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeUnsupportedGrantType,
			"OAuth 2.0 parameter: "+oauth2.ParamGrantType, uri)
	}
}

func (h *Handler) convertIntrospect(r *http.Request) (authn.Request, error) {
	token, hint, client, err := h.convertTokenReference(r, oauth2.ErrorURIIntrospection)
	if err != nil {
		return nil, err
	}
	return &authn.IntrospectionRequest{Client: client, Token: token, TokenTypeHint: hint}, nil
}

func (h *Handler) convertRevoke(r *http.Request) (authn.Request, error) {
	token, hint, client, err := h.convertTokenReference(r, oauth2.ErrorURIRevocation)
	if err != nil {
		return nil, err
	}
	return &authn.RevocationRequest{Client: client, Token: token, TokenTypeHint: hint}, nil
}

// convertTokenReference is the shared introspection/revocation converter
// shape: a required singular token and an optional singular hint.
func (h *Handler) convertTokenReference(r *http.Request, uri string) (token, hint string, client *storage.Client, err error) {
	if oerr := requireFormBody(r, uri); oerr != nil {
		return "", "", nil, oerr
	}
	params, perr := oauth2.ParseParams(r)
	if perr != nil {
		return "", "", nil, perr
	}
	principal, ok := authn.ClientPrincipalFromContext(r.Context())
	if !ok {
		return "", "", nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidClient, "client authentication required", uri)
	}
	token, oerr := params.RequiredSingular(oauth2.ParamToken, uri)
	if oerr != nil {
		return "", "", nil, oerr
	}
	hint, _, oerr = params.Singular(oauth2.ParamTokenTypeHint, uri)
	if oerr != nil {
		return "", "", nil, oerr
	}
	return token, hint, principal.Client, nil
}
