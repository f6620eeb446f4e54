package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
)

// wantRedirectError asserts the failure is redirect-safe and returns the
// wrapped protocol error.
func wantRedirectError(t *testing.T, err error, code string) *authn.RedirectError {
	t.Helper()
	var rerr *authn.RedirectError
	if !errors.As(err, &rerr) {
		t.Fatalf("want *authn.RedirectError, got %v", err)
	}
	if rerr.Err.Code != code {
		t.Fatalf("want error code %q, got %q", code, rerr.Err.Code)
	}
	return rerr
}

func TestAuthorizationUnknownClientNeverRedirects(t *testing.T) {
	deps := newTestDeps(t)
	p := NewAuthorization(deps)

	_, err := p.Authenticate(context.Background(), &authn.AuthorizationRequest{
		ClientID:     "ghost",
		RedirectURI:  "https://attacker.example.com/cb",
		ResponseType: "code",
		Subject:      "alice",
	})

	var rerr *authn.RedirectError
	if errors.As(err, &rerr) {
		t.Fatal("unknown client must not produce a redirect")
	}
	wantOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
}

func TestAuthorizationRedirectURIMatching(t *testing.T) {
	deps := newTestDeps(t)
	client := confidentialClient(t, deps)
	p := NewAuthorization(deps)

	t.Run("unregistered URI rejected without redirect", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), &authn.AuthorizationRequest{
			ClientID:     client.ID,
			RedirectURI:  "https://app.example.com/cb/extra",
			ResponseType: "code",
			Subject:      "alice",
		})
		var rerr *authn.RedirectError
		if errors.As(err, &rerr) {
			t.Fatal("unvalidated redirect URI must not produce a redirect")
		}
		wantOAuthError(t, err, oauth2.ErrorCodeInvalidRequest)
	})

	t.Run("omitted URI falls back to the sole registration", func(t *testing.T) {
		grantConsent(t, deps, client.ID, "alice", "openid")
		res, err := p.Authenticate(context.Background(), &authn.AuthorizationRequest{
			ClientID:     client.ID,
			ResponseType: "code",
			Scopes:       []string{"openid"},
			Subject:      "alice",
		})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		cr, ok := res.(*authn.CodeResult)
		if !ok {
			t.Fatalf("want CodeResult, got %T", res)
		}
		if cr.RedirectURI != "https://app.example.com/cb" {
			t.Fatalf("want registered URI, got %q", cr.RedirectURI)
		}
	})
}

func TestAuthorizationRedirectSafeErrors(t *testing.T) {
	deps := newTestDeps(t)
	client := confidentialClient(t, deps)
	p := NewAuthorization(deps)

	base := func() *authn.AuthorizationRequest {
		return &authn.AuthorizationRequest{
			ClientID:     client.ID,
			RedirectURI:  "https://app.example.com/cb",
			ResponseType: "code",
			Scopes:       []string{"openid"},
			State:        "s123",
			Subject:      "alice",
		}
	}

	t.Run("unsupported response_type", func(t *testing.T) {
		req := base()
		req.ResponseType = "token"
		_, err := p.Authenticate(context.Background(), req)
		rerr := wantRedirectError(t, err, oauth2.ErrorCodeUnsupportedResponse)
		if rerr.State != "s123" {
			t.Fatalf("state must be echoed, got %q", rerr.State)
		}
	})

	t.Run("scope outside registration", func(t *testing.T) {
		req := base()
		req.Scopes = []string{"openid", "admin"}
		_, err := p.Authenticate(context.Background(), req)
		wantRedirectError(t, err, oauth2.ErrorCodeInvalidScope)
	})

	t.Run("plain challenge method rejected", func(t *testing.T) {
		req := base()
		req.CodeChallenge = "abc"
		req.CodeChallengeMethod = "plain"
		_, err := p.Authenticate(context.Background(), req)
		wantRedirectError(t, err, oauth2.ErrorCodeInvalidRequest)
	})
}

func TestAuthorizationPublicClientRequiresPKCE(t *testing.T) {
	deps := newTestDeps(t)
	client := publicClient(t, deps)
	p := NewAuthorization(deps)

	_, err := p.Authenticate(context.Background(), &authn.AuthorizationRequest{
		ClientID:     client.ID,
		RedirectURI:  client.RedirectURIs[0],
		ResponseType: "code",
		Scopes:       []string{"openid"},
		Subject:      "alice",
	})
	wantRedirectError(t, err, oauth2.ErrorCodeInvalidRequest)
}

func TestAuthorizationConsentGate(t *testing.T) {
	deps := newTestDeps(t)
	client := confidentialClient(t, deps)
	p := NewAuthorization(deps)

	req := &authn.AuthorizationRequest{
		ClientID:     client.ID,
		RedirectURI:  client.RedirectURIs[0],
		ResponseType: "code",
		Scopes:       []string{"openid", "profile"},
		State:        "s1",
		Nonce:        "n1",
		Subject:      "alice",
	}

	t.Run("no consent on file pauses the flow", func(t *testing.T) {
		res, err := p.Authenticate(context.Background(), req)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		cr, ok := res.(*authn.ConsentRequiredResult)
		if !ok {
			t.Fatalf("want ConsentRequiredResult, got %T", res)
		}
		if cr.ClientName != "Web App" || cr.Nonce != "n1" || cr.State != "s1" {
			t.Fatalf("request parameters not carried: %+v", cr)
		}
		if len(cr.RequestedScopes) != 2 {
			t.Fatalf("want requested scopes carried, got %v", cr.RequestedScopes)
		}
	})

	t.Run("partial consent still pauses", func(t *testing.T) {
		grantConsent(t, deps, client.ID, "alice", "openid")
		res, err := p.Authenticate(context.Background(), req)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if _, ok := res.(*authn.ConsentRequiredResult); !ok {
			t.Fatalf("want ConsentRequiredResult for uncovered scope, got %T", res)
		}
	})

	t.Run("covering consent issues a code", func(t *testing.T) {
		grantConsent(t, deps, client.ID, "alice", "openid", "profile", "email")
		res, err := p.Authenticate(context.Background(), req)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		cr, ok := res.(*authn.CodeResult)
		if !ok {
			t.Fatalf("want CodeResult, got %T", res)
		}
		if cr.Code == "" || cr.State != "s1" {
			t.Fatalf("unexpected result: %+v", cr)
		}
	})
}

func TestConsentDenied(t *testing.T) {
	deps := newTestDeps(t)
	client := confidentialClient(t, deps)
	p := NewConsent(deps)

	res, err := p.Authenticate(context.Background(), &authn.ConsentRequest{
		ClientID:    client.ID,
		Subject:     "alice",
		State:       "s1",
		RedirectURI: client.RedirectURIs[0],
		Approved:    false,
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	dr, ok := res.(*authn.DeniedResult)
	if !ok {
		t.Fatalf("want DeniedResult, got %T", res)
	}
	if dr.State != "s1" {
		t.Fatalf("state must be echoed, got %q", dr.State)
	}
}

func TestConsentApproval(t *testing.T) {
	deps := newTestDeps(t)
	client := confidentialClient(t, deps)
	p := NewConsent(deps)

	t.Run("empty approved scopes is invalid_scope", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), &authn.ConsentRequest{
			ClientID:    client.ID,
			Subject:     "alice",
			RedirectURI: client.RedirectURIs[0],
			Approved:    true,
		})
		wantRedirectError(t, err, oauth2.ErrorCodeInvalidScope)
	})

	t.Run("scopes outside the registration are rejected", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), &authn.ConsentRequest{
			ClientID:       client.ID,
			Subject:        "alice",
			RedirectURI:    client.RedirectURIs[0],
			Approved:       true,
			ApprovedScopes: []string{"openid", "admin"},
		})
		wantRedirectError(t, err, oauth2.ErrorCodeInvalidScope)
	})

	t.Run("approval records consent and issues a code", func(t *testing.T) {
		res, err := p.Authenticate(context.Background(), &authn.ConsentRequest{
			ClientID:       client.ID,
			Subject:        "alice",
			State:          "s9",
			RedirectURI:    client.RedirectURIs[0],
			Approved:       true,
			ApprovedScopes: []string{"openid", "profile"},
		})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		cr, ok := res.(*authn.CodeResult)
		if !ok {
			t.Fatalf("want CodeResult, got %T", res)
		}
		if cr.Code == "" || cr.State != "s9" {
			t.Fatalf("unexpected result: %+v", cr)
		}

		consent, err := deps.Store.GetConsent(context.Background(), client.ID, "alice")
		if err != nil {
			t.Fatalf("GetConsent: %v", err)
		}
		if !oauth2.ScopesContainAll(consent.Scopes, []string{"openid", "profile"}) {
			t.Fatalf("consent not recorded: %v", consent.Scopes)
		}
	})

	t.Run("later approval merges with the prior grant", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), &authn.ConsentRequest{
			ClientID:       client.ID,
			Subject:        "alice",
			RedirectURI:    client.RedirectURIs[0],
			Approved:       true,
			ApprovedScopes: []string{"email"},
		})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		consent, err := deps.Store.GetConsent(context.Background(), client.ID, "alice")
		if err != nil {
			t.Fatalf("GetConsent: %v", err)
		}
		if !oauth2.ScopesContainAll(consent.Scopes, []string{"openid", "profile", "email"}) {
			t.Fatalf("prior scopes lost in merge: %v", consent.Scopes)
		}
	})
}
