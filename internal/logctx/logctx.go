// Package logctx enriches slog records with request-scoped attributes pulled
// from the context. Handlers wrap a base slog.Handler; code anywhere below
// the HTTP layer logs normally and still gets the request, client, and grant
// attributes attached.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if cd, ok := ctx.Value(clientDataKey{}).(*ClientData); ok {
		r.AddAttrs(slog.Group("client",
			slog.String("id", cd.ClientID),
			slog.String("auth_method", cd.AuthMethod),
		))
	}

	if gd, ok := ctx.Value(grantDataKey{}).(*GrantData); ok {
		r.AddAttrs(slog.Group("grant",
			slog.String("type", gd.GrantType),
			slog.String("endpoint", gd.Endpoint),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type clientDataKey struct{}

// ClientData identifies the authenticated (or claimed) OAuth client and how
// it authenticated.
type ClientData struct {
	ClientID   string
	AuthMethod string
}

func WithClientData(ctx context.Context, data *ClientData) context.Context {
	return context.WithValue(ctx, clientDataKey{}, data)
}

type grantDataKey struct{}

// GrantData records which endpoint and grant type a request is exercising.
type GrantData struct {
	GrantType string
	Endpoint  string
}

func WithGrantData(ctx context.Context, data *GrantData) context.Context {
	return context.WithValue(ctx, grantDataKey{}, data)
}
