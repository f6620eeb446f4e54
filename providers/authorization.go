package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
)

// Authorization handles resource owners arriving at the authorization
// endpoint. It validates the request against the client registration, then
// either issues a code immediately (prior consent on file) or pauses the flow
// for consent.
type Authorization struct {
	deps Deps
}

// NewAuthorization constructs the authorization provider.
func NewAuthorization(deps Deps) *Authorization {
	return &Authorization{deps: deps}
}

// Supports implements authn.Provider.
func (p *Authorization) Supports(req authn.Request) bool {
	_, ok := req.(*authn.AuthorizationRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *Authorization) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	ar := req.(*authn.AuthorizationRequest)

	client, err := p.deps.Store.GetClient(ctx, ar.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		// Unknown client: never redirect, the redirect_uri is unverifiable.
		return nil, oauth2.InvalidParameter(oauth2.ParamClientID, oauth2.ErrorURIAuthzRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	redirectURI, oerr := resolveRedirectURI(client, ar.RedirectURI)
	if oerr != nil {
		return nil, oerr
	}

	// From here on the redirect URI is trusted, so protocol errors go back to
	// the client per RFC 6749 §4.1.2.1.
	fail := func(e *oauth2.Error) error {
		return &authn.RedirectError{Err: e, RedirectURI: redirectURI, State: ar.State}
	}

	if ar.ResponseType != "code" {
		return nil, fail(oauth2.NewErrorWithURI(oauth2.ErrorCodeUnsupportedResponse,
			"OAuth 2.0 parameter: "+oauth2.ParamResponseType, oauth2.ErrorURIAuthzRequest))
	}
	if !client.AllowsGrantType(oauth2.GrantTypeAuthorizationCode) {
		return nil, fail(oauth2.NewErrorWithURI(oauth2.ErrorCodeUnauthorizedClient,
			"client is not authorized for the authorization_code grant", oauth2.ErrorURIAuthzRequest))
	}
	if !oauth2.ScopesContainAll(client.Scopes, ar.Scopes) {
		return nil, fail(oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidScope,
			"OAuth 2.0 parameter: "+oauth2.ParamScope, oauth2.ErrorURIAuthzRequest))
	}
	if oerr := validateChallenge(client, ar.CodeChallenge, ar.CodeChallengeMethod); oerr != nil {
		return nil, fail(oerr)
	}

	consent, err := p.deps.Store.GetConsent(ctx, client.ID, ar.Subject)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load consent: %w", err)
	}
	if consent == nil || !oauth2.ScopesContainAll(consent.Scopes, ar.Scopes) {
		p.deps.logger().InfoContext(ctx, "authz.consent.required",
			slog.String("client_id", client.ID),
			slog.String("sub", ar.Subject))
		return &authn.ConsentRequiredResult{
			ClientID:            client.ID,
			ClientName:          client.Name,
			Subject:             ar.Subject,
			State:               ar.State,
			RedirectURI:         redirectURI,
			Nonce:               ar.Nonce,
			CodeChallenge:       ar.CodeChallenge,
			CodeChallengeMethod: ar.CodeChallengeMethod,
			RequestedScopes:     ar.Scopes,
		}, nil
	}

	return p.issueCode(ctx, client, ar.Subject, redirectURI, ar.State, ar.Nonce,
		ar.CodeChallenge, ar.CodeChallengeMethod, ar.Scopes)
}

func (p *Authorization) issueCode(ctx context.Context, client *storage.Client, subject, redirectURI, state, nonce, challenge, method string, scopes []string) (authn.Result, error) {
	code, err := p.deps.Issuer.AuthorizationCode(client.ID, subject, redirectURI, nonce, challenge, method, scopes)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.PutCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to persist authorization code: %w", err)
	}
	p.deps.logger().InfoContext(ctx, "authz.code.issued",
		slog.String("client_id", client.ID),
		slog.String("sub", subject))
	return &authn.CodeResult{RedirectURI: redirectURI, Code: code.Code, State: state}, nil
}

// resolveRedirectURI applies the RFC 6749 §3.1.2.3 matching rules: a supplied
// URI must match a registered one exactly; an omitted URI is acceptable only
// when exactly one is registered.
func resolveRedirectURI(client *storage.Client, requested string) (string, *oauth2.Error) {
	if requested != "" {
		if !client.AllowsRedirectURI(requested) {
			return "", oauth2.InvalidParameter(oauth2.ParamRedirectURI, oauth2.ErrorURIAuthzRequest)
		}
		return requested, nil
	}
	if len(client.RedirectURIs) == 1 {
		return client.RedirectURIs[0], nil
	}
	return "", oauth2.InvalidParameter(oauth2.ParamRedirectURI, oauth2.ErrorURIAuthzRequest)
}

// validateChallenge enforces PKCE: public clients must send a challenge, and
// S256 is the only accepted method.
func validateChallenge(client *storage.Client, challenge, method string) *oauth2.Error {
	if challenge == "" {
		if client.Public() {
			return oauth2.InvalidParameter(oauth2.ParamCodeChallenge, oauth2.ErrorURIAuthzRequest)
		}
		return nil
	}
	if method != CodeChallengeMethodS256 {
		return oauth2.InvalidParameter(oauth2.ParamCodeChallengeMethod, oauth2.ErrorURIAuthzRequest)
	}
	return nil
}
