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

// RefreshTokenGrant exchanges a refresh token for a fresh access token,
// rotating the refresh token on every use. Presenting a rotated token is a
// replay and revokes the whole rotation chain.
type RefreshTokenGrant struct {
	deps Deps
}

// NewRefreshTokenGrant constructs the refresh_token grant provider.
func NewRefreshTokenGrant(deps Deps) *RefreshTokenGrant {
	return &RefreshTokenGrant{deps: deps}
}

// Supports implements authn.Provider.
func (p *RefreshTokenGrant) Supports(req authn.Request) bool {
	_, ok := req.(*authn.RefreshTokenRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *RefreshTokenGrant) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	rr := req.(*authn.RefreshTokenRequest)
	client := rr.Client

	invalidGrant := oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidGrant,
		"OAuth 2.0 parameter: "+oauth2.ParamRefreshToken, oauth2.ErrorURITokenRequest)

	if !client.AllowsGrantType(oauth2.GrantTypeRefreshToken) {
		return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeUnauthorizedClient,
			"client is not authorized for the refresh_token grant", oauth2.ErrorURITokenRequest)
	}

	rec, err := p.deps.Store.GetRefreshToken(ctx, rr.RefreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalidGrant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if rec.ClientID != client.ID {
		return nil, invalidGrant
	}
	if expired(rec.ExpiresAt) {
		_ = p.deps.Store.DeleteRefreshToken(ctx, rec.Token)
		return nil, invalidGrant
	}
	if rec.Rotated {
		p.deps.logger().WarnContext(ctx, "token.refresh.replay",
			slog.String("client_id", client.ID))
		if derr := revokeRefreshChain(ctx, p.deps.Store, rec.Token); derr != nil {
			return nil, fmt.Errorf("failed to revoke replayed refresh chain: %w", derr)
		}
		return nil, invalidGrant
	}

	// RFC 6749 §6: the requested scope may narrow but never widen the
	// original grant. The rotated refresh token keeps the original scope.
	granted := rec.Scopes
	if len(rr.Scopes) > 0 {
		if !oauth2.ScopesContainAll(rec.Scopes, rr.Scopes) {
			return nil, oauth2.NewErrorWithURI(oauth2.ErrorCodeInvalidScope,
				"OAuth 2.0 parameter: "+oauth2.ParamScope, oauth2.ErrorURITokenRequest)
		}
		granted = rr.Scopes
	}

	access, err := p.deps.Issuer.AccessToken(client.ID, rec.Subject, granted)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.PutAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to persist access token: %w", err)
	}

	next, err := p.deps.Issuer.RefreshToken(client.ID, rec.Subject, rec.Scopes)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.PutRefreshToken(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	rec.Rotated = true
	rec.ReplacedBy = next.Token
	if err := p.deps.Store.UpdateRefreshToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	resp := &oauth2.TokenResponse{
		AccessToken:  access.Token,
		TokenType:    oauth2.TokenTypeBearer,
		ExpiresIn:    int64(p.deps.Issuer.AccessTokenTTL().Seconds()),
		RefreshToken: next.Token,
	}
	if !oauth2.ScopesEqual(granted, rec.Scopes) {
		resp.Scope = oauth2.JoinScopes(granted)
	}
	if hasScope(granted, oauth2.ScopeOpenID) {
		idToken, err := p.deps.Issuer.IDToken(client.ID, rec.Subject, "")
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}

	p.deps.logger().InfoContext(ctx, "token.refresh.rotated",
		slog.String("client_id", client.ID),
		slog.String("sub", rec.Subject))
	return &authn.TokenResult{Response: resp}, nil
}
