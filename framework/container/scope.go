package container

import (
	"context"

	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/future"
)

// ── Scopes ────────────────────────────────────────────────────────────────────

// Scope caches the instances of scoped entries for one unit of work,
// typically a request. A scope travels inside a context.Context; every
// goroutine started with a derived context observes the same scope.
type Scope struct {
	instances *Repository[*future.Future]
	parent    *Scope
}

// ID returns the unique identifier of the scope.
func (s *Scope) ID() string { return s.instances.ID() }

// Parent returns the scope that was active when s was created, or nil.
// Scoped instances are never shared with the parent.
func (s *Scope) Parent() *Scope { return s.parent }

// Len returns the number of scoped instances cached so far.
func (s *Scope) Len() int { return s.instances.Len() }

// scopeKey binds scopes to the container that created them, so two
// containers never observe each other's scopes.
type scopeKey struct {
	c *Container
}

// GetScope returns the scope carried by ctx, or nil outside of any scope.
func (c *Container) GetScope(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey{c: c}).(*Scope)
	return scope
}

// BeginScope returns a context carrying a new scope. The scope lives as long
// as the returned context is in use; there is nothing to close.
//
//	ctx, scope := c.BeginScope(r.Context())
//	next.ServeHTTP(w, r.WithContext(ctx))
func (c *Container) BeginScope(ctx context.Context) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := &Scope{
		instances: NewRepository[*future.Future](),
		parent:    c.GetScope(ctx),
	}
	c.metrics.observeScope()
	c.logger.Debug("container scope created", zap.String("scope", scope.ID()))
	return context.WithValue(ctx, scopeKey{c: c}, scope), scope
}

// CreateScope runs fn inside a new scope and returns its error.
//
//	err := c.CreateScope(ctx, func(ctx context.Context) error {
//	    user, err := container.Resolve[*User](ctx, c, "current-user")
//	    ...
//	})
func (c *Container) CreateScope(ctx context.Context, fn func(ctx context.Context) error) error {
	scoped, _ := c.BeginScope(ctx)
	return fn(scoped)
}

// WithScope runs fn inside a new scope of c and returns its result.
func WithScope[T any](ctx context.Context, c *Container, fn func(ctx context.Context) (T, error)) (T, error) {
	scoped, _ := c.BeginScope(ctx)
	return fn(scoped)
}
