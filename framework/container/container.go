package container

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/future"
)

// SelfKey is the key under which every container binds itself.
const SelfKey = "container"

const tracerName = "github.com/km-arc/go-atlas/framework/container"

// ── Container ─────────────────────────────────────────────────────────────────

// Container maps keys to entries and resolves them.
//
// It supports:
//   - AddTransient / AddScoped / AddSingleton / Instance / Alias
//   - Make / MakeFuture / Resolve (generic)
//   - Parameter keys, asynchronous producers and lazy proxies
//   - Scopes carried by context.Context
//   - Rebound and resolved callbacks
type Container struct {
	entries *Repository[Entry]

	mu sync.RWMutex

	// alias → canonical key
	aliases map[any]any

	// key → callbacks fired when the key is bound again
	reboundCallbacks map[any][]func(key any)

	afterResolving []func(key, instance any)

	// keys resolved successfully at least once since they were bound
	resolved map[any]struct{}

	config       any
	logger       *zap.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	strictRebind bool
}

// Option configures a Container.
type Option func(*Container)

// WithConfig attaches an application configuration, returned by Config.
func WithConfig(config any) Option {
	return func(c *Container) { c.config = config }
}

// WithLogger sets the logger used for registration and resolution events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records resolutions and scopes into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Container) { c.metrics = metrics }
}

// WithTracerProvider sets the provider of the tracer that spans every resolution.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Container) {
		if provider != nil {
			c.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithStrictRebind rejects binding a key again once it has been resolved.
func WithStrictRebind(strict bool) Option {
	return func(c *Container) { c.strictRebind = strict }
}

// New creates a container bound to itself under SelfKey.
func New(opts ...Option) *Container {
	c := &Container{
		entries:          NewRepository[Entry](),
		aliases:          make(map[any]any),
		reboundCallbacks: make(map[any][]func(any)),
		resolved:         make(map[any]struct{}),
		logger:           zap.NewNop(),
		tracer:           otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Instance(SelfKey, c)
	return c
}

// Config returns the configuration passed with WithConfig.
func (c *Container) Config() any { return c.config }

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// ID returns the unique identifier of the container entry repository.
func (c *Container) ID() string { return c.entries.ID() }

// ── Registration ──────────────────────────────────────────────────────────────

// AddTransient binds key to a producer invoked on every resolution.
//
//	c.AddTransient("mailer", NewMailer, container.WithParams("config"))
func (c *Container) AddTransient(key, producer any, opts ...EntryOption) *Container {
	return c.mustRegister(Transient, key, producer, opts)
}

// AddScoped binds key to a producer invoked once per scope.
//
//	c.AddScoped("session", container.Construct[Session](), container.WithParams("request-id"))
func (c *Container) AddScoped(key, producer any, opts ...EntryOption) *Container {
	return c.mustRegister(Scoped, key, producer, opts)
}

// AddSingleton binds key to a producer invoked once.
//
//	c.AddSingleton("db", func(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
//	    return sql.Open("postgres", cfg.Get("DATABASE_URL", ""))
//	}, container.WithParams("config"))
func (c *Container) AddSingleton(key, producer any, opts ...EntryOption) *Container {
	return c.mustRegister(Singleton, key, producer, opts)
}

// Instance binds key to an already built value.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(key, value any) *Container {
	return c.mustRegister(Singleton, key, value, nil)
}

func (c *Container) mustRegister(lifecycle Lifecycle, key, producer any, opts []EntryOption) *Container {
	if err := c.Register(lifecycle, key, producer, opts...); err != nil {
		panic(err.Error())
	}
	return c
}

// Register creates an entry of the given lifecycle and binds it.
func (c *Container) Register(lifecycle Lifecycle, key, producer any, opts ...EntryOption) error {
	var (
		e   Entry
		err error
	)
	switch lifecycle {
	case Transient:
		e, err = NewTransientEntry(key, producer, opts...)
	case Scoped:
		e, err = NewScopedEntry(key, producer, opts...)
	case Singleton:
		e, err = NewSingletonEntry(key, producer, opts...)
	default:
		err = fmt.Errorf("container: unknown lifecycle %s", lifecycle)
	}
	if err != nil {
		return err
	}
	return c.Bind(e)
}

// Bind binds a prepared entry under its key, replacing any previous entry
// together with its cached instances.
func (c *Container) Bind(e Entry) error {
	if err := validKey(e.Key()); err != nil {
		return err
	}

	c.mu.Lock()
	key := c.canonical(e.Key())
	old, replaced := c.entries.Get(key)
	if replaced && c.strictRebind && wasLoaded(old) {
		c.mu.Unlock()
		return &RebindError{Key: key}
	}
	c.entries.Set(key, e)
	delete(c.resolved, key)
	callbacks := c.reboundCallbacks[key]
	c.mu.Unlock()

	fields := []zap.Field{zap.String("key", formatKey(key)), zap.String("lifecycle", e.Lifecycle().String())}
	if !replaced {
		c.logger.Debug("container entry bound", fields...)
		return nil
	}
	if _, placeholder := old.(*deferredEntry); placeholder {
		c.logger.Debug("deferred container entry bound", fields...)
	} else {
		c.logger.Warn("container entry rebound", fields...)
	}
	for _, callback := range callbacks {
		callback(key)
	}
	return nil
}

func wasLoaded(e Entry) bool {
	loaded, ok := e.(interface{ Loaded() bool })
	return ok && loaded.Loaded()
}

// Alias registers an alternative key for key.
//
//	c.Alias("cache", "cache-manager")
func (c *Container) Alias(key, alias any) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := validKey(alias); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.canonical(key)
	if target == alias {
		return fmt.Errorf("container: [%s] is aliased to itself", formatKey(alias))
	}
	c.aliases[alias] = target
	return nil
}

// Remove unbinds key and discards its cached instances.
func (c *Container) Remove(key any) error {
	if err := validKey(key); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key = c.canonical(key)
	if !c.entries.Delete(key) {
		return &UnknownKeyError{Key: key}
	}
	delete(c.resolved, key)
	c.logger.Debug("container entry removed", zap.String("key", formatKey(key)))
	return nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Make resolves key and waits for the instance.
//
//	raw, err := c.Make(ctx, "cache")
func (c *Container) Make(ctx context.Context, key any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.MakeFuture(ctx, key).Await(ctx)
}

// MakeFuture resolves key without waiting. The future is already settled
// when the entry and all of its parameters resolve synchronously.
func (c *Container) MakeFuture(ctx context.Context, key any) *future.Future {
	return c.makeFuture(ctx, key, true)
}

type resolvingKey struct {
	c *Container
}

// resolving is the chain of keys under construction, innermost first.
type resolving struct {
	key    any
	parent *resolving
}

func (r *resolving) path(next any) []any {
	var path []any
	for node := r; node != nil; node = node.parent {
		path = append(path, node.key)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return append(path, next)
}

func (c *Container) makeFuture(ctx context.Context, key any, checkCycle bool) *future.Future {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validKey(key); err != nil {
		return future.Rejected(err)
	}
	requested := key
	key = c.lookupCanonical(key)

	e, ok := c.entries.Get(key)
	if !ok {
		return future.Rejected(&UnknownKeyError{Key: requested})
	}

	chain, _ := ctx.Value(resolvingKey{c: c}).(*resolving)
	if checkCycle {
		for node := chain; node != nil; node = node.parent {
			if node.key == key {
				err := &CycleError{Path: chain.path(key)}
				c.logger.Debug("container dependency cycle", zap.Error(err))
				return future.Rejected(err)
			}
		}
	}
	ctx = context.WithValue(ctx, resolvingKey{c: c}, &resolving{key: key, parent: chain})

	lifecycle := e.Lifecycle()
	ctx, span := c.tracer.Start(ctx, "container.make", trace.WithAttributes(
		attribute.String("container.key", formatKey(key)),
		attribute.String("container.lifecycle", lifecycle.String()),
	))
	start := time.Now()

	result := e.Load(ctx, c)
	future.OnSettled(result, func(instance any, err error) {
		elapsed := time.Since(start)
		c.metrics.observeResolution(lifecycle, err, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			c.logger.Debug("container resolution failed",
				zap.String("key", formatKey(key)), zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		span.End()
		c.logger.Debug("container resolved",
			zap.String("key", formatKey(key)),
			zap.String("lifecycle", lifecycle.String()),
			zap.Duration("elapsed", elapsed))
		c.markResolved(key, e)
		c.fireAfterResolving(key, instance)
	})
	return result
}

// Resolve resolves key and asserts the instance to T. A lazy proxy is
// materialized unless T can hold the proxy itself. A nil instance yields
// the zero T.
//
//	cache, err := container.Resolve[*RedisCache](ctx, c, "cache")
func Resolve[T any](ctx context.Context, c *Container, key any) (T, error) {
	var zero T
	instance, err := c.Make(ctx, key)
	if err != nil || instance == nil {
		return zero, err
	}
	if typed, ok := instance.(T); ok {
		return typed, nil
	}
	if proxy, ok := instance.(*Proxy); ok {
		return Force[T](proxy)
	}
	return zero, fmt.Errorf("container: [%s] resolved to %T, not %s",
		formatKey(key), instance, reflect.TypeOf((*T)(nil)).Elem())
}

// MustResolve is like Resolve but panics on failure.
//
//	cache := container.MustResolve[*RedisCache](ctx, c, "cache")
func MustResolve[T any](ctx context.Context, c *Container, key any) T {
	instance, err := Resolve[T](ctx, c, key)
	if err != nil {
		panic(err.Error())
	}
	return instance
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Has reports whether key, or the key it aliases, is bound.
func (c *Container) Has(key any) bool {
	if validKey(key) != nil {
		return false
	}
	return c.entries.Has(c.lookupCanonical(key))
}

// Entry returns the entry bound to key.
func (c *Container) Entry(key any) (Entry, bool) {
	if validKey(key) != nil {
		return nil, false
	}
	return c.entries.Get(c.lookupCanonical(key))
}

// Resolved reports whether key has been resolved successfully since it was bound.
func (c *Container) Resolved(key any) bool {
	if validKey(key) != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.resolved[c.canonical(key)]
	return ok
}

// Keys returns the bound keys in registration order.
func (c *Container) Keys() []any {
	return c.entries.Keys()
}

// Flush unbinds every key and alias. The container stays bound to itself.
func (c *Container) Flush() {
	c.mu.Lock()
	c.entries.Clear()
	c.aliases = make(map[any]any)
	c.resolved = make(map[any]struct{})
	c.mu.Unlock()
	c.Instance(SelfKey, c)
}

// canonical resolves an alias to its canonical key (must hold mu).
func (c *Container) canonical(key any) any {
	if target, ok := c.aliases[key]; ok {
		return target
	}
	return key
}

func (c *Container) lookupCanonical(key any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canonical(key)
}

func (c *Container) markResolved(key any, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries.Get(key); ok && current == e {
		c.resolved[key] = struct{}{}
	}
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback fired whenever key is bound again.
//
//	c.Rebinding("config", func(key any) { reloadRoutes() })
func (c *Container) Rebinding(key any, callback func(key any)) {
	if validKey(key) != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key = c.canonical(key)
	c.reboundCallbacks[key] = append(c.reboundCallbacks[key], callback)
}

// AfterResolving registers a callback fired after any key resolves successfully.
func (c *Container) AfterResolving(callback func(key, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, callback)
}

func (c *Container) fireAfterResolving(key, instance any) {
	c.mu.RLock()
	callbacks := c.afterResolving
	c.mu.RUnlock()
	for _, callback := range callbacks {
		callback(key, instance)
	}
}
