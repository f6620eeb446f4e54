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

// Introspection answers RFC 7662 queries. Unknown, expired, or otherwise dead
// tokens all produce {"active": false}; nothing in the response distinguishes
// "never existed" from "expired", so callers cannot probe the token store.
type Introspection struct {
	deps Deps
}

// NewIntrospection constructs the introspection provider.
func NewIntrospection(deps Deps) *Introspection {
	return &Introspection{deps: deps}
}

// Supports implements authn.Provider.
func (p *Introspection) Supports(req authn.Request) bool {
	_, ok := req.(*authn.IntrospectionRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *Introspection) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	ir := req.(*authn.IntrospectionRequest)
	inactive := &authn.IntrospectionResult{Response: &oauth2.IntrospectionResponse{Active: false}}

	// The hint only orders the search. A wrong or unknown hint falls through
	// to the other store per RFC 7662 §2.1.
	kinds := []string{oauth2.TokenTypeHintAccessToken, oauth2.TokenTypeHintRefreshToken}
	if ir.TokenTypeHint == oauth2.TokenTypeHintRefreshToken {
		kinds = []string{oauth2.TokenTypeHintRefreshToken, oauth2.TokenTypeHintAccessToken}
	}

	for _, kind := range kinds {
		switch kind {
		case oauth2.TokenTypeHintAccessToken:
			rec, err := p.deps.Store.GetAccessToken(ctx, ir.Token)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to look up access token: %w", err)
			}
			if expired(rec.ExpiresAt) {
				return inactive, nil
			}
			return &authn.IntrospectionResult{Response: &oauth2.IntrospectionResponse{
				Active:    true,
				Scope:     oauth2.JoinScopes(rec.Scopes),
				ClientID:  rec.ClientID,
				TokenType: oauth2.TokenTypeBearer,
				Sub:       rec.Subject,
				Iss:       p.deps.Issuer.Issuer(),
				Exp:       rec.ExpiresAt.Unix(),
				Iat:       rec.IssuedAt.Unix(),
				Jti:       rec.ID,
			}}, nil
		case oauth2.TokenTypeHintRefreshToken:
			rec, err := p.deps.Store.GetRefreshToken(ctx, ir.Token)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to look up refresh token: %w", err)
			}
			if expired(rec.ExpiresAt) || rec.Rotated {
				return inactive, nil
			}
			return &authn.IntrospectionResult{Response: &oauth2.IntrospectionResponse{
				Active:   true,
				Scope:    oauth2.JoinScopes(rec.Scopes),
				ClientID: rec.ClientID,
				Sub:      rec.Subject,
				Iss:      p.deps.Issuer.Issuer(),
				Exp:      rec.ExpiresAt.Unix(),
				Iat:      rec.IssuedAt.Unix(),
			}}, nil
		}
	}

	p.deps.logger().DebugContext(ctx, "introspect.miss",
		slog.String("client_id", ir.Client.ID))
	return inactive, nil
}
