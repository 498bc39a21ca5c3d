// Package container provides a key-based dependency-injection container and
// a Service Provider system for Go.
//
// # Overview
//
// The container maps keys to producers. A key is any comparable value, most
// often a string. A producer is either an object-like value, a constructor
// created with Construct, or a function. Every entry has one of three
// lifecycles:
//
//   - Transient: a new instance on every resolution
//   - Scoped: one instance per scope, a scope being carried by a context.Context
//   - Singleton: one instance for the life of the entry
//
// # Container Lifecycle
//
//  1. Create: c := container.New(container.WithLogger(logger))
//  2. Register providers: registry.Register(&MyProvider{})
//  3. Boot: registry.Boot(ctx), after which it is safe to resolve everything after this
//  4. Serve requests, each inside its own scope
//
// # Entries
//
//	// Transient: new instance every Make()
//	c.AddTransient("clock", func() *Clock { return &Clock{} })
//
//	// Parameters are resolved by key and passed in order
//	c.AddTransient("greeter", NewGreeter, container.WithParams("config", "clock"))
//
//	// A leading context.Context parameter receives the resolution context
//	c.AddSingleton("db", func(ctx context.Context, cfg *Config) (*sql.DB, error) {
//	    return openDB(ctx, cfg)
//	}, container.WithParams("config"))
//
//	// Constructors fill exported fields in declaration order, then call Init()
//	c.AddScoped("session", container.Construct[Session](), container.WithParams("db"))
//
//	// Pre-built value
//	c.Instance("config", cfg)
//
//	// Alias
//	c.Alias("cache", "cache-manager")
//
// # Asynchronous producers
//
// A producer returning a *future.Future is asynchronous. Resolution stays
// synchronous while every producer is synchronous; as soon as one parameter
// is pending, the dependent resolution waits for it. Make waits for the
// final instance, MakeFuture returns it without waiting.
//
//	c.AddSingleton("remote", func(ctx context.Context) *future.Future {
//	    return future.Go(ctx, dialRemote)
//	})
//	remote, err := c.Make(ctx, "remote")
//
// # Resolving
//
//	// Untyped
//	raw, err := c.Make(ctx, "cache")
//
//	// Generic (preferred, no type assertion required)
//	cache, err := container.Resolve[*RedisCache](ctx, c, "cache")
//
// # Scopes
//
//	err := c.CreateScope(ctx, func(ctx context.Context) error {
//	    session, err := container.Resolve[*Session](ctx, c, "session")
//	    ...
//	})
//
// Scoped entries resolved outside of a scope fail with ScopeEntryScopeError.
//
// # Lazy entries
//
// Lazy() entries resolve to a *Proxy. The producer runs when the proxy is
// first used, and only once. Lazy producers must be synchronous.
//
//	c.AddSingleton("report", BuildReport, container.Lazy())
//	p := container.MustResolve[*container.Proxy](ctx, c, "report")
//	title, err := p.Get("Title")
//
// # Circuit breakers
//
// WithBreaker guards a producer that talks to something unreliable. After
// MaxFailures consecutive failures the producer is no longer called until
// the breaker's timeout passes.
//
//	c.AddSingleton("search", dialSearch, container.WithBreaker(container.DefaultBreakerConfig("search")))
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) error {
//	    return app.Register(container.Singleton, "mailer", NewMailer, container.WithParams("config"))
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot(ctx)
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool { return true }
//	func (p *HeavyProvider) Provides() []any  { return []any{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) error {
//	    // only called on first app.Make(ctx, "heavy")
//	    return app.Register(container.Singleton, "heavy", heavySetup)
//	}
package container
