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

// Revocation implements RFC 7009. Revoking an unknown token, an expired
// token, or a token that belongs to a different client all succeed with the
// same empty response; the endpoint never confirms whether a token existed.
// Revoking a refresh token takes its whole rotation chain with it.
type Revocation struct {
	deps Deps
}

// NewRevocation constructs the revocation provider.
func NewRevocation(deps Deps) *Revocation {
	return &Revocation{deps: deps}
}

// Supports implements authn.Provider.
func (p *Revocation) Supports(req authn.Request) bool {
	_, ok := req.(*authn.RevocationRequest)
	return ok
}

// Authenticate implements authn.Provider.
func (p *Revocation) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	rr := req.(*authn.RevocationRequest)
	success := &authn.RevocationResult{}

	kinds := []string{oauth2.TokenTypeHintAccessToken, oauth2.TokenTypeHintRefreshToken}
	if rr.TokenTypeHint == oauth2.TokenTypeHintRefreshToken {
		kinds = []string{oauth2.TokenTypeHintRefreshToken, oauth2.TokenTypeHintAccessToken}
	}

	for _, kind := range kinds {
		switch kind {
		case oauth2.TokenTypeHintAccessToken:
			rec, err := p.deps.Store.GetAccessToken(ctx, rr.Token)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to look up access token: %w", err)
			}
			if rec.ClientID != rr.Client.ID {
				// Not this client's token. Do nothing, reveal nothing.
				return success, nil
			}
			if err := p.deps.Store.DeleteAccessToken(ctx, rr.Token); err != nil {
				return nil, fmt.Errorf("failed to revoke access token: %w", err)
			}
			p.deps.logger().InfoContext(ctx, "revoke.access_token",
				slog.String("client_id", rr.Client.ID))
			return success, nil
		case oauth2.TokenTypeHintRefreshToken:
			rec, err := p.deps.Store.GetRefreshToken(ctx, rr.Token)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to look up refresh token: %w", err)
			}
			if rec.ClientID != rr.Client.ID {
				return success, nil
			}
			if err := revokeRefreshChain(ctx, p.deps.Store, rr.Token); err != nil {
				return nil, fmt.Errorf("failed to revoke refresh chain: %w", err)
			}
			p.deps.logger().InfoContext(ctx, "revoke.refresh_token",
				slog.String("client_id", rr.Client.ID))
			return success, nil
		}
	}

	// Unknown token. RFC 7009 §2.2: respond as if the revocation succeeded.
	return success, nil
}
