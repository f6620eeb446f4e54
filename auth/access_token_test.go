package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/authserve/oauth2-server-go/auth"
	"github.com/authserve/oauth2-server-go/keys"
	"github.com/authserve/oauth2-server-go/tokens"
)

const testIssuer = "https://as.example.com"

func newKeySource(t *testing.T) *keys.Source {
	t.Helper()
	ks, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return ks
}

func TestLocalAuthenticator(t *testing.T) {
	ks := newKeySource(t)
	iss := tokens.NewIssuer(testIssuer, ks)
	ctx := context.Background()

	a, err := auth.NewLocal(ks, testIssuer, testIssuer)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		rec, err := iss.AccessToken("client-1", "alice", []string{"openid", "profile"})
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		ui, err := a.CheckAuthentication(ctx, rec.Token)
		if err != nil {
			t.Fatalf("CheckAuthentication: %v", err)
		}
		if ui.UserID() != "alice" {
			t.Fatalf("want alice, got %q", ui.UserID())
		}
		var claims struct {
			Scope    string `json:"scope"`
			ClientID string `json:"client_id"`
		}
		if err := ui.Claims(&claims); err != nil {
			t.Fatalf("Claims: %v", err)
		}
		if claims.Scope != "openid profile" || claims.ClientID != "client-1" {
			t.Fatalf("unexpected claims: %+v", claims)
		}
	})

	t.Run("opaque garbage", func(t *testing.T) {
		_, err := a.CheckAuthentication(ctx, "not-a-jwt")
		if !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		past := tokens.NewIssuer(testIssuer, ks,
			tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
		rec, err := past.AccessToken("client-1", "alice", nil)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, err := a.CheckAuthentication(ctx, rec.Token); !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := auth.NewLocal(ks, testIssuer, "https://api.example.com")
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		rec, err := iss.AccessToken("client-1", "alice", nil)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, err := other.CheckAuthentication(ctx, rec.Token); !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("missing required scope", func(t *testing.T) {
		scoped, err := auth.NewLocal(ks, testIssuer, testIssuer, auth.WithRequiredScopes("admin"))
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		rec, err := iss.AccessToken("client-1", "alice", []string{"profile"})
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, err := scoped.CheckAuthentication(ctx, rec.Token); !errors.Is(err, auth.ErrInsufficientScope) {
			t.Fatalf("want ErrInsufficientScope, got %v", err)
		}
	})

	t.Run("ID token rejected at the access token boundary", func(t *testing.T) {
		raw, err := iss.IDToken("client-1", "alice", "")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		// ID tokens lack the at+jwt header type and must never pass as
		// access tokens.
		if _, err := a.CheckAuthentication(ctx, raw); !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("any-of scope mode", func(t *testing.T) {
		scoped, err := auth.NewLocal(ks, testIssuer, testIssuer,
			auth.WithAnyRequiredScope("admin", "profile"))
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		rec, err := iss.AccessToken("client-1", "alice", []string{"profile"})
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, err := scoped.CheckAuthentication(ctx, rec.Token); err != nil {
			t.Fatalf("want success with one matching scope, got %v", err)
		}
	})
}

func TestLocalAuthenticatorKeyRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signing.pem")

	writeKey := func(t *testing.T) {
		t.Helper()
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		b := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		if err := os.WriteFile(path, b, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	writeKey(t)

	ks, err := keys.NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	iss := tokens.NewIssuer(testIssuer, ks)
	a, err := auth.NewLocal(ks, testIssuer, testIssuer)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	before, err := iss.AccessToken("c", "alice", nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, before.Token); err != nil {
		t.Fatalf("pre-rotation check: %v", err)
	}

	// Rotate the key. Tokens signed before the rotation stop verifying and
	// tokens signed after verify against the new key without rebuilding the
	// authenticator.
	writeKey(t)
	if err := ks.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, err := a.CheckAuthentication(ctx, before.Token); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("want pre-rotation token rejected, got %v", err)
	}
	after, err := iss.AccessToken("c", "alice", nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, after.Token); err != nil {
		t.Fatalf("post-rotation check: %v", err)
	}
}
