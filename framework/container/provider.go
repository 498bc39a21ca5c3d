package container

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/future"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the registrations of one feature.
//
// Register is called first for every provider. Boot is called after ALL
// providers have been registered, making it safe to resolve other entries
// inside Boot.
//
//	type MailProvider struct{ container.BaseProvider }
//
//	func (p *MailProvider) Register(app *container.Container) error {
//	    return app.Register(container.Singleton, "mailer", NewMailer, container.WithParams("config"))
//	}
//
//	func (p *MailProvider) Boot(ctx context.Context, app *container.Container) error {
//	    mailer, err := container.Resolve[*Mailer](ctx, app, "mailer")
//	    if err != nil {
//	        return err
//	    }
//	    return mailer.Ping(ctx)
//	}
type ServiceProvider interface {
	// Register binds entries into the container.
	// Do NOT resolve other entries here, use Boot for that.
	Register(app *Container) error

	// Boot is called after all providers are registered.
	Boot(ctx context.Context, app *Container) error

	// Provides returns the keys this provider binds.
	// Only deferred providers need to list them.
	Provides() []any

	// IsDeferred returns true if the provider should be registered only
	// when one of its Provides() keys is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with no-op implementations of Boot,
// Provides and IsDeferred. Embed it and only override what you need.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) error { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }
func (p *BaseProvider) Provides() []any                        { return nil }
func (p *BaseProvider) IsDeferred() bool                       { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots ServiceProviders, including deferred
// providers.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[ServiceProvider]*deferredLoad
	registered map[ServiceProvider]bool
	booted     bool
}

type deferredLoad struct {
	once sync.Once
	err  error
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		deferred:   make(map[ServiceProvider]*deferredLoad),
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register method, unless it is
// deferred. A provider added after Boot is booted immediately.
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		r.deferred[provider] = &deferredLoad{}
		r.mu.Unlock()
		return r.bindDeferred(provider)
	}
	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	if err := provider.Register(r.app); err != nil {
		return fmt.Errorf("register %T: %w", provider, err)
	}
	if booted {
		if err := provider.Boot(context.Background(), r.app); err != nil {
			return fmt.Errorf("boot %T: %w", provider, err)
		}
	}
	return nil
}

// bindDeferred binds a placeholder entry for each deferred key. The first
// resolution of any of them registers the provider for real.
func (r *ProviderRegistry) bindDeferred(provider ServiceProvider) error {
	for _, key := range provider.Provides() {
		if err := r.app.Bind(&deferredEntry{key: key, registry: r, provider: provider}); err != nil {
			return err
		}
	}
	r.app.logger.Debug("deferred provider registered", zap.String("provider", fmt.Sprintf("%T", provider)))
	return nil
}

// load registers and, once booted, boots a deferred provider exactly once.
func (r *ProviderRegistry) load(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	state := r.deferred[provider]
	r.mu.Unlock()

	state.once.Do(func() {
		if err := provider.Register(r.app); err != nil {
			state.err = fmt.Errorf("register %T: %w", provider, err)
			return
		}
		r.mu.Lock()
		r.eager = append(r.eager, provider)
		booted := r.booted
		r.mu.Unlock()
		if booted {
			if err := provider.Boot(ctx, r.app); err != nil {
				state.err = fmt.Errorf("boot %T: %w", provider, err)
			}
		}
	})
	return state.err
}

// Boot calls Boot on all registered providers, in registration order.
// Must be called after ALL providers have been registered.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := make([]ServiceProvider, len(r.eager))
	copy(providers, r.eager)
	r.mu.Unlock()

	for _, provider := range providers {
		if err := provider.Boot(ctx, r.app); err != nil {
			return fmt.Errorf("boot %T: %w", provider, err)
		}
	}
	return nil
}

// Booted returns true if Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the providers registered so far, deferred ones included
// once loaded.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServiceProvider, len(r.eager))
	copy(out, r.eager)
	return out
}

// ── Deferred placeholder ──────────────────────────────────────────────────────

// deferredEntry stands in for a key of a deferred provider until the
// provider binds the real entry.
type deferredEntry struct {
	key      any
	registry *ProviderRegistry
	provider ServiceProvider
}

func (e *deferredEntry) Key() any             { return e.key }
func (e *deferredEntry) Lifecycle() Lifecycle { return Transient }

func (e *deferredEntry) Load(ctx context.Context, _ Loader) *future.Future {
	if err := e.registry.load(ctx, e.provider); err != nil {
		return future.Rejected(err)
	}
	app := e.registry.app
	if current, ok := app.Entry(e.key); ok && current == Entry(e) {
		return future.Rejected(fmt.Errorf("container: deferred provider %T did not bind [%s]",
			e.provider, formatKey(e.key)))
	}
	// The placeholder key is already on the resolution chain.
	return app.makeFuture(ctx, e.key, false)
}
