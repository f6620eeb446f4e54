package oauth2

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func formRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParamsSingular(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		p, err := ParseParams(formRequest(t, "grant_type=authorization_code"))
		if err != nil {
			t.Fatalf("ParseParams: %v", err)
		}
		v, ok, perr := p.Singular(ParamState, ErrorURITokenRequest)
		if perr != nil {
			t.Fatalf("unexpected error: %v", perr)
		}
		if ok || v != "" {
			t.Fatalf("want absent, got ok=%v v=%q", ok, v)
		}
	})

	t.Run("present once", func(t *testing.T) {
		p, err := ParseParams(formRequest(t, "state=xyz"))
		if err != nil {
			t.Fatalf("ParseParams: %v", err)
		}
		v, ok, perr := p.Singular(ParamState, ErrorURITokenRequest)
		if perr != nil || !ok || v != "xyz" {
			t.Fatalf("want (xyz, true, nil), got (%q, %v, %v)", v, ok, perr)
		}
	})

	t.Run("duplicate is always invalid_request", func(t *testing.T) {
		p, err := ParseParams(formRequest(t, "token=abc&token=def"))
		if err != nil {
			t.Fatalf("ParseParams: %v", err)
		}
		_, _, perr := p.Singular(ParamToken, ErrorURIRevocation)
		if perr == nil {
			t.Fatal("want error for duplicate parameter")
		}
		if perr.Code != ErrorCodeInvalidRequest {
			t.Fatalf("want %s, got %s", ErrorCodeInvalidRequest, perr.Code)
		}
		if want := "OAuth 2.0 parameter: token"; perr.Description != want {
			t.Fatalf("want description %q, got %q", want, perr.Description)
		}
		if perr.URI != ErrorURIRevocation {
			t.Fatalf("want error_uri %q, got %q", ErrorURIRevocation, perr.URI)
		}
	})

	t.Run("duplicate identical values still rejected", func(t *testing.T) {
		p, err := ParseParams(formRequest(t, "client_id=a&client_id=a"))
		if err != nil {
			t.Fatalf("ParseParams: %v", err)
		}
		if _, _, perr := p.Singular(ParamClientID, ErrorURITokenRequest); perr == nil {
			t.Fatal("want error for repeated identical values")
		}
	})
}

func TestParamsRequiredSingular(t *testing.T) {
	p, err := ParseParams(formRequest(t, "grant_type="))
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}

	if _, perr := p.RequiredSingular(ParamGrantType, ErrorURITokenRequest); perr == nil {
		t.Fatal("want error for empty required parameter")
	}
	if _, perr := p.RequiredSingular(ParamCode, ErrorURITokenRequest); perr == nil {
		t.Fatal("want error for missing required parameter")
	}
}

func TestParamsMergesQueryForGET(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/authorize?client_id=abc&response_type=code", nil)
	p, err := ParseParams(r)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	v, perr := p.RequiredSingular(ParamClientID, ErrorURIAuthzRequest)
	if perr != nil || v != "abc" {
		t.Fatalf("want abc, got (%q, %v)", v, perr)
	}
}

func TestParamsValues(t *testing.T) {
	p, err := ParseParams(formRequest(t, "scope=openid&scope=profile"))
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	got := p.Values(ParamScope)
	if len(got) != 2 || got[0] != "openid" || got[1] != "profile" {
		t.Fatalf("want [openid profile], got %v", got)
	}
}

func TestScopes(t *testing.T) {
	if got := ParseScopes("  openid   profile "); len(got) != 2 {
		t.Fatalf("want 2 scopes, got %v", got)
	}
	if got := JoinScopes([]string{"a", "b"}); got != "a b" {
		t.Fatalf("want %q, got %q", "a b", got)
	}
	if !ScopesContainAll([]string{"a", "b", "c"}, []string{"c", "a"}) {
		t.Fatal("want superset to cover subset")
	}
	if ScopesContainAll([]string{"a"}, []string{"a", "b"}) {
		t.Fatal("want missing scope to fail coverage")
	}
	if !ScopesEqual([]string{"a", "b"}, []string{"b", "a"}) {
		t.Fatal("want order-insensitive equality")
	}
	if ScopesEqual([]string{"a", "b"}, []string{"a"}) {
		t.Fatal("want length mismatch to fail equality")
	}
}
