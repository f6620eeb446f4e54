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

// AuthorizationCodeGrant exchanges a single-use authorization code for
// tokens. A replayed code revokes everything the first exchange issued.
type AuthorizationCodeGrant struct {
	deps Deps
}

// NewAuthorizationCodeGrant constructs the authorization_code grant provider.
func NewAuthorizationCodeGrant(deps Deps) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{deps: deps}
}

// Supports implements authn.Provider.
func (p *AuthorizationCodeGrant) Supports(req authn.Request) bool {
	_, ok := req.(*authn.AuthorizationCodeRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *AuthorizationCodeGrant) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	cr := req.(*authn.AuthorizationCodeRequest)
	client := cr.Client

	invalidGrant := oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidGrant,
		"OAuth 2.0 parameter: "+oauth2.ParamCode, oauth2.ErrorURITokenRequest)

	rec, err := p.deps.Store.ConsumeCode(ctx, cr.Code)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, invalidGrant
	case errors.Is(err, storage.ErrCodeAlreadyUsed):
		// Replay. Take down everything the first exchange issued.
		p.deps.logger().WarnContext(ctx, "token.code.replay",
			slog.String("client_id", client.ID))
		if rec.IssuedAccessToken != "" {
			if derr := p.deps.Store.DeleteAccessToken(ctx, rec.IssuedAccessToken); derr != nil {
				return nil, fmt.Errorf("failed to revoke replayed access token: %w", derr)
			}
		}
		if rec.IssuedRefreshToken != "" {
			if derr := revokeRefreshChain(ctx, p.deps.Store, rec.IssuedRefreshToken); derr != nil {
				return nil, fmt.Errorf("failed to revoke replayed refresh chain: %w", derr)
			}
		}
		return nil, invalidGrant
	case err != nil:
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if expired(rec.ExpiresAt) {
		return nil, invalidGrant
	}
	if rec.ClientID != client.ID {
		return nil, invalidGrant
	}
	if rec.RedirectURI != "" && rec.RedirectURI != cr.RedirectURI {
		return nil, invalidGrant
	}
	if rec.CodeChallenge != "" {
		if cr.CodeVerifier == "" || !verifyPKCE(rec.CodeChallenge, cr.CodeVerifier) {
			return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidGrant,
				"OAuth 2.0 parameter: "+oauth2.ParamCodeVerifier, oauth2.ErrorURITokenRequest)
		}
	} else if cr.CodeVerifier != "" {
		return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidGrant,
			"OAuth 2.0 parameter: "+oauth2.ParamCodeVerifier, oauth2.ErrorURITokenRequest)
	}

	access, err := p.deps.Issuer.AccessToken(client.ID, rec.Subject, rec.Scopes)
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

	rec.Used = true
	rec.IssuedAccessToken = access.Token

	if client.AllowsGrantType(oauth2.GrantTypeRefreshToken) {
		refresh, err := p.deps.Issuer.RefreshToken(client.ID, rec.Subject, rec.Scopes)
		if err != nil {
			return nil, err
		}
		if err := p.deps.Store.PutRefreshToken(ctx, refresh); err != nil {
			return nil, fmt.Errorf("failed to persist refresh token: %w", err)
		}
		resp.RefreshToken = refresh.Token
		rec.IssuedRefreshToken = refresh.Token
	}

	if hasScope(rec.Scopes, oauth2.ScopeOpenID) {
		idToken, err := p.deps.Issuer.IDToken(client.ID, rec.Subject, rec.Nonce)
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}

	// Record what was issued so a later replay of this code can revoke it.
	if err := p.deps.Store.UpdateCode(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record issued tokens: %w", err)
	}

	p.deps.logger().InfoContext(ctx, "token.code.exchanged",
		slog.String("client_id", client.ID),
		slog.String("sub", rec.Subject))
	return &authn.TokenResult{Response: resp}, nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
