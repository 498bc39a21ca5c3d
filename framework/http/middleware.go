package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/container"
)

// RequestKey is the container key of the current *http.Request once
// RegisterRequest has run.
const RequestKey = "request"

type requestKey struct{}

var errNoRequest = errors.New("http: no request in context")

// RequestFromContext returns the request stored by ScopeMiddleware. Its
// context carries the request scope.
func RequestFromContext(ctx context.Context) (*http.Request, bool) {
	holder, ok := ctx.Value(requestKey{}).(*requestHolder)
	if !ok || holder.r == nil {
		return nil, false
	}
	return holder.r, true
}

type requestHolder struct{ r *http.Request }

// ScopeMiddleware opens a container scope for every request. Scoped
// entries resolved through the request context live exactly as long as
// the request.
func ScopeMiddleware(c *container.Container) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := c.BeginScope(r.Context())
			holder := &requestHolder{}
			scoped := r.WithContext(context.WithValue(ctx, requestKey{}, holder))
			holder.r = scoped
			c.Logger().Debug("request scope opened",
				zap.String("scope", scope.ID()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			next.ServeHTTP(w, scoped)
		})
	}
}

// RegisterRequest binds RequestKey as a scoped entry yielding the
// request served in the current scope.
func RegisterRequest(c *container.Container) error {
	return c.Register(container.Scoped, RequestKey, func(ctx context.Context) (*http.Request, error) {
		r, ok := RequestFromContext(ctx)
		if !ok {
			return nil, errNoRequest
		}
		return r, nil
	})
}
