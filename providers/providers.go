// Package providers implements the grant-specific authentication providers
// dispatched by authn.Dispatcher: the interactive authorization and consent
// flows, the three token grants, and the introspection and revocation
// handlers. Each provider claims exactly one request type.
package providers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/authserve/oauth2-server-go/storage"
	"github.com/authserve/oauth2-server-go/tokens"
)

// Deps are the collaborators every provider shares.
type Deps struct {
	Store  storage.Store
	Issuer *tokens.Issuer
	Log    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// CodeChallengeMethodS256 is the only PKCE transform accepted. Plain is
// deliberately rejected.
const CodeChallengeMethodS256 = "S256"

// verifyPKCE checks an RFC 7636 S256 code verifier against the stored
// challenge in constant time.
func verifyPKCE(challenge, verifier string) bool {
	sum := sha256.Sum256([]byte(verifier))
	derived := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// revokeRefreshChain deletes a refresh token and every successor minted by
// rotation. Called when an old token resurfaces so the whole lineage dies
// with it.
func revokeRefreshChain(ctx context.Context, store storage.TokenStore, token string) error {
	for token != "" {
		rec, err := store.GetRefreshToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := store.DeleteRefreshToken(ctx, token); err != nil {
			return err
		}
		token = rec.ReplacedBy
	}
	return nil
}

func expired(at time.Time) bool {
	return !at.IsZero() && time.Now().After(at)
}
