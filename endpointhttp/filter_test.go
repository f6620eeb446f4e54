package endpointhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/oauth2"
)

// stubRevoker claims revocation requests and fails empty tokens so both the
// success and failure legs of the pipeline are reachable.
type stubRevoker struct{}

func (stubRevoker) Supports(req authn.Request) bool {
	_, ok := req.(*authn.RevocationRequest)
	return ok
}

func (stubRevoker) Authenticate(ctx context.Context, req authn.Request) (authn.Result, error) {
	rr := req.(*authn.RevocationRequest)
	if rr.Token == "" {
		return nil, oauth2.NewError(oauth2.ErrorCodeInvalidRequest, "token is required")
	}
	return &authn.RevocationResult{}, nil
}

func newRevokeFilter(t *testing.T) *Filter {
	t.Helper()
	d, err := authn.NewDispatcher([]authn.Provider{stubRevoker{}})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return &Filter{
		Endpoint: EndpointRevoke,
		Method:   http.MethodPost,
		Path:     "/oauth2/revoke",
		Convert: func(r *http.Request) (authn.Request, error) {
			if err := r.ParseForm(); err != nil {
				return nil, oauth2.NewError(oauth2.ErrorCodeInvalidRequest, "malformed body")
			}
			return &authn.RevocationRequest{Token: r.PostForm.Get("token")}, nil
		},
		Dispatch: d,
		OnSuccess: func(w http.ResponseWriter, r *http.Request, res authn.Result) {
			w.WriteHeader(http.StatusOK)
		},
		OnFailure: func(w http.ResponseWriter, r *http.Request, err error) {
			writeProtocolError(w, err)
		},
	}
}

func TestFilterMatches(t *testing.T) {
	f := newRevokeFilter(t)

	cases := []struct {
		name   string
		method string
		path   string
		want   bool
	}{
		{"method and path", http.MethodPost, "/oauth2/revoke", true},
		{"wrong method", http.MethodGet, "/oauth2/revoke", false},
		{"wrong path", http.MethodPost, "/oauth2/token", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.path, nil)
			if got := f.Matches(r); got != tc.want {
				t.Fatalf("Matches(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
			}
		})
	}

	t.Run("empty method accepts any method", func(t *testing.T) {
		any := &Filter{Path: "/oauth2/revoke"}
		if !any.Matches(httptest.NewRequest(http.MethodGet, "/oauth2/revoke", nil)) {
			t.Fatal("want a method-agnostic filter to match GET")
		}
	})
}

func TestChainDispatch(t *testing.T) {
	f := newRevokeFilter(t)

	postRevoke := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/oauth2/revoke", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	t.Run("matching request is handled terminally", func(t *testing.T) {
		fallbackHit := false
		chain := &Chain{
			Filters: []*Filter{f},
			Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fallbackHit = true
			}),
		}
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, postRevoke("token=abc"))
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if fallbackHit {
			t.Fatal("fallback must not run for a handled request")
		}
	})

	t.Run("filter failure stays terminal", func(t *testing.T) {
		fallbackHit := false
		chain := &Chain{
			Filters: []*Filter{f},
			Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fallbackHit = true
			}),
		}
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, postRevoke(""))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "invalid_request") {
			t.Fatalf("want invalid_request body, got %s", rec.Body.String())
		}
		if fallbackHit {
			t.Fatal("fallback must not run when a filter owned the request")
		}
	})

	t.Run("non-matching request falls through untouched", func(t *testing.T) {
		fallbackHit := false
		chain := &Chain{
			Filters: []*Filter{f},
			Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fallbackHit = true
				w.WriteHeader(http.StatusNoContent)
			}),
		}
		for _, req := range []*http.Request{
			httptest.NewRequest(http.MethodGet, "/oauth2/revoke", nil),
			httptest.NewRequest(http.MethodPost, "/oauth2/other", nil),
		} {
			fallbackHit = false
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)
			if !fallbackHit {
				t.Fatalf("%s %s: want fallback to run", req.Method, req.URL.Path)
			}
			if rec.Code != http.StatusNoContent {
				t.Fatalf("%s %s: want the fallback's status, got %d", req.Method, req.URL.Path, rec.Code)
			}
		}
	})

	t.Run("first matching filter wins", func(t *testing.T) {
		shadow := newRevokeFilter(t)
		shadow.OnSuccess = func(w http.ResponseWriter, r *http.Request, res authn.Result) {
			w.WriteHeader(http.StatusTeapot)
		}
		chain := &Chain{Filters: []*Filter{f, shadow}}
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, postRevoke("token=abc"))
		if rec.Code != http.StatusOK {
			t.Fatalf("want the first filter's 200, got %d", rec.Code)
		}
	})

	t.Run("no fallback answers 404", func(t *testing.T) {
		chain := &Chain{Filters: []*Filter{f}}
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})
}
