package providers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/authserve/oauth2-server-go/keys"
	"github.com/authserve/oauth2-server-go/oauth2"
	"github.com/authserve/oauth2-server-go/storage"
	"github.com/authserve/oauth2-server-go/storage/memory"
	"github.com/authserve/oauth2-server-go/tokens"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	store, err := memory.New(1024)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ks, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return Deps{
		Store:  store,
		Issuer: tokens.NewIssuer("https://as.example.com", ks),
	}
}

func seedClient(t *testing.T, deps Deps, c *storage.Client) *storage.Client {
	t.Helper()
	if c.TokenEndpointAuthMethod == "" {
		c.TokenEndpointAuthMethod = storage.AuthMethodClientSecretBasic
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if err := deps.Store.PutClient(context.Background(), c); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func confidentialClient(t *testing.T, deps Deps) *storage.Client {
	t.Helper()
	return seedClient(t, deps, &storage.Client{
		ID:           "web-app",
		Name:         "Web App",
		SecretHash:   storage.HashSecret("hunter2"),
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes: []string{
			oauth2.GrantTypeAuthorizationCode,
			oauth2.GrantTypeRefreshToken,
		},
		ResponseTypes: []string{"code"},
		Scopes:        []string{"openid", "profile", "email"},
	})
}

func publicClient(t *testing.T, deps Deps) *storage.Client {
	t.Helper()
	return seedClient(t, deps, &storage.Client{
		ID:                      "spa",
		Name:                    "Single Page App",
		RedirectURIs:            []string{"https://spa.example.com/cb"},
		GrantTypes:              []string{oauth2.GrantTypeAuthorizationCode},
		ResponseTypes:           []string{"code"},
		Scopes:                  []string{"openid", "profile"},
		TokenEndpointAuthMethod: storage.AuthMethodNone,
	})
}

func grantConsent(t *testing.T, deps Deps, clientID, subject string, scopes ...string) {
	t.Helper()
	if err := deps.Store.PutConsent(context.Background(), &storage.Consent{
		ClientID:  clientID,
		Subject:   subject,
		Scopes:    scopes,
		GrantedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed consent: %v", err)
	}
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func wantOAuthError(t *testing.T, err error, code string) *oauth2.Error {
	t.Helper()
	var oerr *oauth2.Error
	if !errors.As(err, &oerr) {
		t.Fatalf("want *oauth2.Error, got %v", err)
	}
	if oerr.Code != code {
		t.Fatalf("want error code %q, got %q (%s)", code, oerr.Code, oerr.Description)
	}
	return oerr
}

func TestVerifyPKCE(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	if !verifyPKCE(pkceChallenge(verifier), verifier) {
		t.Fatal("valid verifier rejected")
	}
	if verifyPKCE(pkceChallenge(verifier), "wrong") {
		t.Fatal("invalid verifier accepted")
	}
}

func TestRevokeRefreshChain(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()

	for _, rt := range []*storage.RefreshToken{
		{Token: "r1", ClientID: "c", Rotated: true, ReplacedBy: "r2", ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "r2", ClientID: "c", Rotated: true, ReplacedBy: "r3", ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "r3", ClientID: "c", ExpiresAt: time.Now().Add(time.Hour)},
	} {
		if err := deps.Store.PutRefreshToken(ctx, rt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := revokeRefreshChain(ctx, deps.Store, "r1"); err != nil {
		t.Fatalf("revokeRefreshChain: %v", err)
	}
	for _, tok := range []string{"r1", "r2", "r3"} {
		if _, err := deps.Store.GetRefreshToken(ctx, tok); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("want %s gone, got %v", tok, err)
		}
	}
}
