package authn

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name     string
	supports func(Request) bool
	result   Result
}

func (p *fakeProvider) Supports(req Request) bool { return p.supports(req) }

func (p *fakeProvider) Authenticate(ctx context.Context, req Request) (Result, error) {
	return p.result, nil
}

func supportsType[T Request]() func(Request) bool {
	return func(req Request) bool {
		_, ok := req.(T)
		return ok
	}
}

func TestNewDispatcherRequiresProviders(t *testing.T) {
	if _, err := NewDispatcher(nil); err == nil {
		t.Fatal("want error for empty provider list")
	}
}

func TestDispatchFirstMatchWins(t *testing.T) {
	first := &fakeProvider{
		name:     "first",
		supports: supportsType[*ClientCredentialsRequest](),
		result:   &TokenResult{},
	}
	second := &fakeProvider{
		name:     "second",
		supports: supportsType[*ClientCredentialsRequest](),
		result:   &IntrospectionResult{},
	}
	d, err := NewDispatcher([]Provider{first, second})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	res, err := d.Authenticate(context.Background(), &ClientCredentialsRequest{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, ok := res.(*TokenResult); !ok {
		t.Fatalf("want the first registered provider to win, got %T", res)
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	cc := &fakeProvider{
		supports: supportsType[*ClientCredentialsRequest](),
		result:   &TokenResult{},
	}
	rev := &fakeProvider{
		supports: supportsType[*RevocationRequest](),
		result:   &RevocationResult{},
	}
	d, err := NewDispatcher([]Provider{cc, rev})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	res, err := d.Authenticate(context.Background(), &RevocationRequest{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, ok := res.(*RevocationResult); !ok {
		t.Fatalf("want RevocationResult, got %T", res)
	}
}

func TestDispatchMiss(t *testing.T) {
	d, err := NewDispatcher([]Provider{&fakeProvider{
		supports: supportsType[*RevocationRequest](),
		result:   &RevocationResult{},
	}})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if d.Covers(&RefreshTokenRequest{}) {
		t.Fatal("Covers must report false for an unclaimed request type")
	}
	_, err = d.Authenticate(context.Background(), &RefreshTokenRequest{})
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("want ErrNoProvider, got %v", err)
	}
}

func TestClientPrincipalContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := ClientPrincipalFromContext(ctx); ok {
		t.Fatal("empty context must carry no principal")
	}

	p := &ClientPrincipal{Method: "client_secret_basic"}
	ctx = WithClientPrincipal(ctx, p)
	got, ok := ClientPrincipalFromContext(ctx)
	if !ok || got != p {
		t.Fatal("principal round trip failed")
	}

	ctx = ClearClientPrincipal(ctx)
	if _, ok := ClientPrincipalFromContext(ctx); ok {
		t.Fatal("cleared context must carry no principal")
	}
}
