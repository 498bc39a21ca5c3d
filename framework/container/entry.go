package container

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sony/gobreaker"

	"github.com/km-arc/go-atlas/framework/future"
)

// ── Lifecycles ────────────────────────────────────────────────────────────────

// Lifecycle decides how long a resolved instance is reused.
type Lifecycle int

const (
	// Transient entries build a new instance on every resolution.
	Transient Lifecycle = iota
	// Scoped entries build one instance per container scope.
	Scoped
	// Singleton entries build one instance for the life of the entry.
	Singleton
)

func (l Lifecycle) String() string {
	switch l {
	case Transient:
		return "transient"
	case Scoped:
		return "scoped"
	case Singleton:
		return "singleton"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int(l))
	}
}

// ── Entry interfaces ──────────────────────────────────────────────────────────

// Loader is what an entry needs from the container to resolve itself.
type Loader interface {
	MakeFuture(ctx context.Context, key any) *future.Future
	GetScope(ctx context.Context) *Scope
}

// Entry binds a key to a producer under a lifecycle policy.
type Entry interface {
	Key() any
	Lifecycle() Lifecycle
	Load(ctx context.Context, loader Loader) *future.Future
}

// ── Entry options ─────────────────────────────────────────────────────────────

// EntryOption configures an entry at registration.
type EntryOption func(*entryOptions)

type entryOptions struct {
	params  []any
	lazy    bool
	breaker *gobreaker.CircuitBreaker
}

// WithParams declares the keys resolved and passed to the producer, in order.
//
//	c.AddTransient("greeter", NewGreeter, container.WithParams("config", "logger"))
func WithParams(keys ...any) EntryOption {
	return func(o *entryOptions) { o.params = append(o.params, keys...) }
}

// Lazy defers construction until the resolved *Proxy is first used.
func Lazy() EntryOption {
	return func(o *entryOptions) { o.lazy = true }
}

// ── Shared entry state ────────────────────────────────────────────────────────

type entry struct {
	key      any
	params   []any
	resolver *resolver
	loaded   atomic.Bool
}

func (e *entry) init(key, producer any, opts []EntryOption) error {
	var o entryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := validKey(key); err != nil {
		return err
	}
	for _, param := range o.params {
		if err := validKey(param); err != nil {
			return err
		}
	}
	r, err := newResolver(key, producer, o.lazy)
	if err != nil {
		return err
	}
	r.breaker = o.breaker
	e.key, e.params, e.resolver = key, o.params, r
	return nil
}

// Key returns the key the entry is bound to.
func (e *entry) Key() any { return e.key }

// Params returns a copy of the parameter keys.
func (e *entry) Params() []any {
	out := make([]any, len(e.params))
	copy(out, e.params)
	return out
}

// Kind returns how the producer is invoked.
func (e *entry) Kind() ProducerKind { return e.resolver.kind }

// IsLazy reports whether the entry resolves to a *Proxy.
func (e *entry) IsLazy() bool { return e.resolver.lazy }

// Loaded reports whether Load has been called at least once.
func (e *entry) Loaded() bool { return e.loaded.Load() }

// resolve makes every parameter, then invokes the producer. It stays
// synchronous while every parameter is already settled.
func (e *entry) resolve(ctx context.Context, loader Loader) *future.Future {
	e.loaded.Store(true)
	params := make([]*future.Future, len(e.params))
	for index, key := range e.params {
		params[index] = loader.MakeFuture(ctx, key)
	}
	return future.Then(future.All(params...), func(values any) (any, error) {
		return e.resolver.load(ctx, values.([]any))
	})
}

// ── Transient ─────────────────────────────────────────────────────────────────

// TransientEntry builds a new instance on every Load.
type TransientEntry struct {
	entry
}

// NewTransientEntry creates a transient entry.
func NewTransientEntry(key, producer any, opts ...EntryOption) (*TransientEntry, error) {
	e := &TransientEntry{}
	if err := e.init(key, producer, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *TransientEntry) Lifecycle() Lifecycle { return Transient }

// Load resolves a fresh instance.
func (e *TransientEntry) Load(ctx context.Context, loader Loader) *future.Future {
	return e.resolve(ctx, loader)
}

// ── Singleton ─────────────────────────────────────────────────────────────────

// SingletonEntry builds its instance once and shares it with every caller.
// Concurrent first loads share the same in-flight future. A failed build is
// forgotten, so the next Load tries again.
type SingletonEntry struct {
	entry

	mu       sync.Mutex
	instance *future.Future
}

// NewSingletonEntry creates a singleton entry.
func NewSingletonEntry(key, producer any, opts ...EntryOption) (*SingletonEntry, error) {
	e := &SingletonEntry{}
	if err := e.init(key, producer, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *SingletonEntry) Lifecycle() Lifecycle { return Singleton }

// Load returns the shared instance, building it on first use.
func (e *SingletonEntry) Load(ctx context.Context, loader Loader) *future.Future {
	e.mu.Lock()
	if e.instance != nil {
		instance := e.instance
		e.mu.Unlock()
		return instance
	}
	pending := future.New()
	e.instance = pending
	e.mu.Unlock()

	// The instance outlives the caller, so the caller's cancellation must not reach it.
	built := future.Then(e.resolve(context.WithoutCancel(ctx), loader), e.validate)
	future.OnSettled(built, func(value any, err error) {
		if err != nil {
			e.mu.Lock()
			if e.instance == pending {
				e.instance = nil
			}
			e.mu.Unlock()
		}
		pending.Settle(value, err)
	})
	return pending
}

// Instance returns the cached instance future, or nil before the first Load.
func (e *SingletonEntry) Instance() *future.Future {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instance
}

func (e *SingletonEntry) validate(value any) (any, error) {
	if !isObject(value) {
		return nil, &SingletonEntryTypeError{Key: e.key, Value: value}
	}
	return value, nil
}

// ── Scoped ────────────────────────────────────────────────────────────────────

// ScopedEntry builds one instance per scope. Loading it outside of a scope
// fails with ScopeEntryScopeError.
type ScopedEntry struct {
	entry
}

// NewScopedEntry creates a scoped entry.
func NewScopedEntry(key, producer any, opts ...EntryOption) (*ScopedEntry, error) {
	e := &ScopedEntry{}
	if err := e.init(key, producer, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ScopedEntry) Lifecycle() Lifecycle { return Scoped }

// Load returns the instance of the scope carried by ctx.
func (e *ScopedEntry) Load(ctx context.Context, loader Loader) *future.Future {
	scope := loader.GetScope(ctx)
	if scope == nil {
		return future.Rejected(&ScopeEntryScopeError{Key: e.key})
	}

	// Instances are cached per entry, so a rebound key starts fresh in live scopes.
	pending := future.New()
	if existing, loaded := scope.instances.GetOrSet(e, pending); loaded {
		return existing
	}

	built := future.Then(e.resolve(ctx, loader), e.validate)
	future.OnSettled(built, func(value any, err error) {
		if err != nil {
			scope.instances.CompareAndDelete(e, pending)
		}
		pending.Settle(value, err)
	})
	return pending
}

func (e *ScopedEntry) validate(value any) (any, error) {
	if !isObject(value) {
		return nil, &ScopeEntryTypeError{Key: e.key, Value: value}
	}
	return value, nil
}

// isObject reports whether value has reference identity, so that sharing it
// between callers shares one instance.
func isObject(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.(*Proxy); ok {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan:
		return !v.IsNil()
	default:
		return false
	}
}
