package http

import (
	"context"
	"net/http"

	"github.com/w-h-a/therapist/server"
)

type middlewareKey struct{}

func WithMiddleware(ms ...func(h http.Handler) http.Handler) server.Option {
	return func(o *server.Options) {
		o.Context = context.WithValue(o.Context, middlewareKey{}, ms)
	}
}

func MiddlewareFrom(ctx context.Context) ([]func(h http.Handler) http.Handler, bool) {
	ms, ok := ctx.Value(middlewareKey{}).([]func(h http.Handler) http.Handler)
	return ms, ok
}

type allowAnyOriginKey struct{}

// WithAllowAnyOrigin lets browsers on other origins open the chat socket.
func WithAllowAnyOrigin(allow bool) server.Option {
	return func(o *server.Options) {
		o.Context = context.WithValue(o.Context, allowAnyOriginKey{}, allow)
	}
}

func AllowAnyOriginFrom(ctx context.Context) bool {
	allow, _ := ctx.Value(allowAnyOriginKey{}).(bool)
	return allow
}
