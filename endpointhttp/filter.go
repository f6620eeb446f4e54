package endpointhttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/authserve/oauth2-server-go/authn"
	"github.com/authserve/oauth2-server-go/internal/logctx"
	"github.com/authserve/oauth2-server-go/oauth2"
)

// Endpoint names the pipeline endpoints whose success and failure handlers
// can be replaced via options.
type Endpoint string

const (
	EndpointAuthorize  Endpoint = "authorize"
	EndpointToken      Endpoint = "token"
	EndpointIntrospect Endpoint = "introspect"
	EndpointRevoke     Endpoint = "revoke"
)

// Converter parses transport-level parameters into a typed, unauthenticated
// request. Converters fail only with *oauth2.Error values.
type Converter func(r *http.Request) (authn.Request, error)

// SuccessHandler serializes an authenticated result into the wire response.
type SuccessHandler func(w http.ResponseWriter, r *http.Request, res authn.Result)

// FailureHandler serializes a protocol error into the wire response.
type FailureHandler func(w http.ResponseWriter, r *http.Request, err error)

// Filter is one endpoint's instantiation of the request pipeline. It is an
// http.Handler; Matches additionally exposes the routing decision so filters
// can be composed into a Chain outside a ServeMux.
type Filter struct {
	Endpoint  Endpoint
	Method    string // "" accepts any method
	Path      string
	Convert   Converter
	Dispatch  *authn.Dispatcher
	OnSuccess SuccessHandler
	OnFailure FailureHandler

	log *slog.Logger
}

// Matches reports whether the filter owns this request.
func (f *Filter) Matches(r *http.Request) bool {
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	return r.URL.Path == f.Path
}

func (f *Filter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logctx.WithGrantData(r.Context(), &logctx.GrantData{Endpoint: string(f.Endpoint)})
	r = r.WithContext(ctx)

	req, err := f.Convert(r)
	if err != nil {
		f.fail(w, r, err)
		return
	}
	res, err := f.Dispatch.Authenticate(r.Context(), req)
	if err != nil {
		f.fail(w, r, err)
		return
	}
	f.OnSuccess(w, r, res)
	f.logger().InfoContext(r.Context(), "endpoint.ok",
		slog.String("endpoint", string(f.Endpoint)),
		slog.Duration("dur", time.Since(start)))
}

// fail clears any partially established client identity from the context
// before handing off, so error serialization never observes it.
func (f *Filter) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := authn.ClearClientPrincipal(r.Context())
	f.logger().InfoContext(ctx, "endpoint.fail",
		slog.String("endpoint", string(f.Endpoint)),
		slog.String("err", err.Error()))
	f.OnFailure(w, r.WithContext(ctx), err)
}

func (f *Filter) logger() *slog.Logger {
	if f.log != nil {
		return f.log
	}
	return slog.Default()
}

// Chain composes filters in order; the first whose Matches returns true
// handles the request terminally, and non-matching requests fall through to
// the next handler.
type Chain struct {
	Filters  []*Filter
	Fallback http.Handler
}

func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, f := range c.Filters {
		if f.Matches(r) {
			f.ServeHTTP(w, r)
			return
		}
	}
	if c.Fallback != nil {
		c.Fallback.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// writeJSON writes a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProtocolError serializes err as an RFC 6749 §5.2 JSON error body.
// Non-protocol errors are masked as server_error so internal detail never
// reaches the client.
func writeProtocolError(w http.ResponseWriter, err error) {
	var oerr *oauth2.Error
	if !errors.As(err, &oerr) {
		writeJSON(w, http.StatusInternalServerError,
			oauth2.NewError(oauth2.ErrorCodeServerError, "internal error"))
		return
	}
	status := http.StatusBadRequest
	if oerr.Code == oauth2.ErrorCodeInvalidClient {
		status = http.StatusUnauthorized
	}
	if oerr.Code == oauth2.ErrorCodeServerError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, oerr)
}
