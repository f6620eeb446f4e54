package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
)

// ClientCredentialsGrant issues tokens under the client's own authority. No
// refresh token is issued per RFC 6749 §4.4.3.
type ClientCredentialsGrant struct {
	deps Deps
}

// NewClientCredentialsGrant constructs the client_credentials grant provider.
func NewClientCredentialsGrant(deps Deps) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{deps: deps}
}

// Supports implements authn.Provider.
func (p *ClientCredentialsGrant) Supports(req authn.Request) bool {
	_, ok := req.(*authn.ClientCredentialsRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *ClientCredentialsGrant) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	cr := req.(*authn.ClientCredentialsRequest)
	client := cr.Client

	// Public clients hold no credential worth trusting here.
	if client.Public() || !client.AllowsGrantType(oauth2.GrantTypeClientCredentials) {
		return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeUnauthorizedClient,
			"client is not authorized for the client_credentials grant", oauth2.ErrorURITokenRequest)
	}

	granted := client.Scopes
	if len(cr.Scopes) > 0 {
		if !oauth2.ScopesContainAll(client.Scopes, cr.Scopes) {
			return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidScope,
				"OAuth 2.0 parameter: "+oauth2.ParamScope, oauth2.ErrorURITokenRequest)
		}
		granted = cr.Scopes
	}

	access, err := p.deps.Issuer.AccessToken(client.ID, client.ID, granted)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.PutAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to persist access token: %w", err)
	}

	resp := &oauth2.TokenResponse{
		AccessToken: access.Token,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   int64(p.deps.Issuer.AccessTokenTTL().Seconds()),
	}
	if len(cr.Scopes) == 0 || !oauth2.ScopesEqual(granted, cr.Scopes) {
		resp.Scope = oauth2.JoinScopes(granted)
	}

	p.deps.logger().InfoContext(ctx, "token.client_credentials.issued",
		slog.String("client_id", client.ID))
	return &authn.TokenResult{Response: resp}, nil
}
