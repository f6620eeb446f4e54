package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider authenticates one family of requests. Implementations claim a
// request via Supports and must only be handed requests they claimed.
type Provider interface {
	// Supports reports whether this provider handles the request. The
	// dispatcher asks providers in registration order and the first to
	// return true wins.
	Supports(req Request) bool

	// Authenticate processes a request this provider claimed. Protocol
	// failures are returned as *oauth2.Error; anything else is treated as an
	// internal fault by the endpoint layer.
	Authenticate(ctx context.Context, req Request) (Result, error)
}

// ErrNoProvider reports a request type no registered provider claims. This is
// a wiring defect, not a client error; the endpoint layer answers with
// server_error.
var ErrNoProvider = errors.New("authn: no provider supports request")

// Dispatcher routes requests to an ordered provider list, first match wins.
type Dispatcher struct {
	providers []Provider
	log       *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher builds a dispatcher over the given providers. At least one
// provider is required; registration order is significant.
func NewDispatcher(providers []Provider, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(providers) == 0 {
		return nil, errors.New("authn: at least one provider is required")
	}
	d := &Dispatcher{
		providers: append([]Provider(nil), providers...),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Covers reports whether any registered provider claims the request. Used at
// startup to turn a missing provider into a construction error instead of a
// runtime miss.
func (d *Dispatcher) Covers(req Request) bool {
	for _, p := range d.providers {
		if p.Supports(req) {
			return true
		}
	}
	return false
}

// Authenticate hands the request to the first provider that claims it.
func (d *Dispatcher) Authenticate(ctx context.Context, req Request) (Result, error) {
	for _, p := range d.providers {
		if !p.Supports(req) {
			continue
		}
		return p.Authenticate(ctx, req)
	}
	d.log.ErrorContext(ctx, "authn.dispatch.miss",
		slog.String("request_type", fmt.Sprintf("%T", req)))
	return nil, fmt.Errorf("%w: %T", ErrNoProvider, req)
}
