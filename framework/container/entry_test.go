package container_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-atlas/framework/container"
	"github.com/km-arc/go-atlas/framework/future"
)

// mockLoader serves parameters from a fixed table, values or futures.
type mockLoader struct {
	mu     sync.Mutex
	values map[any]any
	scope  *container.Scope
	calls  []any
}

func (l *mockLoader) MakeFuture(_ context.Context, key any) *future.Future {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, key)
	value, ok := l.values[key]
	if !ok {
		return future.Rejected(&container.UnknownKeyError{Key: key})
	}
	return future.From(value)
}

func (l *mockLoader) GetScope(context.Context) *container.Scope { return l.scope }

func delayed(v any) *future.Future {
	return future.Go(context.Background(), func(context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return v, nil
	})
}

type pair struct {
	First  any
	Second any
}

type counter struct{ n int }

func await(t *testing.T, f *future.Future) any {
	t.Helper()
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	return v
}

// ── Entry base ────────────────────────────────────────────────────────────────

func TestTransientEntry_FunctionWithParams(t *testing.T) {
	loader := &mockLoader{values: map[any]any{"a": "foo", "b": 42}}
	e, err := container.NewTransientEntry("pair", func(a string, b int) *pair {
		return &pair{First: a, Second: b}
	}, container.WithParams("a", "b"))
	require.NoError(t, err)

	f := e.Load(context.Background(), loader)
	require.True(t, f.Settled(), "synchronous parameters must resolve synchronously")
	got := await(t, f).(*pair)
	assert.Equal(t, &pair{First: "foo", Second: 42}, got)
	assert.Equal(t, []any{"a", "b"}, loader.calls)
	assert.Equal(t, container.KindFunc, e.Kind())
	assert.Equal(t, []any{"a", "b"}, e.Params())
}

func TestTransientEntry_PendingParamsKeepOrder(t *testing.T) {
	loader := &mockLoader{values: map[any]any{
		"slow": delayed("first"),
		"fast": "second",
	}}
	e, err := container.NewTransientEntry("pair", container.Construct[pair](), container.WithParams("slow", "fast"))
	require.NoError(t, err)

	f := e.Load(context.Background(), loader)
	assert.False(t, f.Settled())
	got := await(t, f).(*pair)
	assert.Equal(t, "first", got.First)
	assert.Equal(t, "second", got.Second)
}

func TestTransientEntry_ParamFailureRejects(t *testing.T) {
	loader := &mockLoader{values: map[any]any{}}
	e, err := container.NewTransientEntry("pair", container.Construct[pair](), container.WithParams("missing"))
	require.NoError(t, err)

	_, err = e.Load(context.Background(), loader).Result()
	var unknown *container.UnknownKeyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Key)
}

func TestTransientEntry_FreshInstances(t *testing.T) {
	e, err := container.NewTransientEntry("counter", func() *counter { return &counter{} })
	require.NoError(t, err)
	loader := &mockLoader{}

	first := await(t, e.Load(context.Background(), loader))
	second := await(t, e.Load(context.Background(), loader))
	assert.NotSame(t, first, second)
	assert.Equal(t, container.Transient, e.Lifecycle())
}

func TestTransientEntry_ValueProducer(t *testing.T) {
	value := &counter{n: 7}
	e, err := container.NewTransientEntry("value", value, container.WithParams("ignored"))
	require.NoError(t, err)

	got := await(t, e.Load(context.Background(), &mockLoader{values: map[any]any{"ignored": 1}}))
	assert.Same(t, value, got)
	assert.Equal(t, container.KindValue, e.Kind())
}

func TestNewEntry_InvalidProducers(t *testing.T) {
	tests := []struct {
		name     string
		producer any
	}{
		{"Nil", nil},
		{"Int", 42},
		{"String", "value"},
		{"Bool", true},
		{"NilFunc", (func())(nil)},
		{"NilPointer", (*counter)(nil)},
		{"NonStructConstructor", container.ConstructType(nil)},
		{"BadSignature", func() (int, int) { return 0, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := container.NewTransientEntry("key", tt.producer)
			var typeErr *container.EntryTypeError
			assert.ErrorAs(t, err, &typeErr)
		})
	}
}

func TestNewEntry_InvalidKey(t *testing.T) {
	_, err := container.NewSingletonEntry([]string{"not", "comparable"}, &counter{})
	var keyErr *container.InvalidKeyError
	assert.ErrorAs(t, err, &keyErr)

	_, err = container.NewSingletonEntry("key", &counter{}, container.WithParams(nil))
	assert.ErrorAs(t, err, &keyErr)
}

// ── Singleton ─────────────────────────────────────────────────────────────────

func TestSingletonEntry_SameInstance(t *testing.T) {
	var calls atomic.Int32
	e, err := container.NewSingletonEntry("counter", func() *counter {
		calls.Add(1)
		return &counter{}
	})
	require.NoError(t, err)
	loader := &mockLoader{}

	first := await(t, e.Load(context.Background(), loader))
	second := await(t, e.Load(context.Background(), loader))
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, container.Singleton, e.Lifecycle())
}

func TestSingletonEntry_PendingFirstLoadShared(t *testing.T) {
	var calls atomic.Int32
	e, err := container.NewSingletonEntry("remote", func() *future.Future {
		calls.Add(1)
		return delayed(&counter{})
	})
	require.NoError(t, err)
	loader := &mockLoader{}

	first := e.Load(context.Background(), loader)
	second := e.Load(context.Background(), loader)
	assert.Same(t, first, second)
	assert.Same(t, await(t, first), await(t, second))
	assert.EqualValues(t, 1, calls.Load())
}

func TestSingletonEntry_ConcurrentFirstLoad(t *testing.T) {
	var calls atomic.Int32
	e, err := container.NewSingletonEntry("counter", func() *counter {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return &counter{}
	})
	require.NoError(t, err)
	loader := &mockLoader{}

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = e.Load(context.Background(), loader).Await(context.Background())
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, result := range results {
		assert.Same(t, results[0], result)
	}
}

func TestSingletonEntry_NonObjectRejected(t *testing.T) {
	tests := []struct {
		name     string
		producer any
	}{
		{"Number", func() int { return 1 }},
		{"String", func() string { return "value" }},
		{"Function", func() func() { return func() {} }},
		{"StructCopy", pair{}},
		{"Nil", func() *counter { return nil }},
		{"AsyncNumber", func() *future.Future { return delayed(3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := container.NewSingletonEntry("key", tt.producer)
			require.NoError(t, err)

			_, err = e.Load(context.Background(), &mockLoader{}).Await(context.Background())
			var typeErr *container.SingletonEntryTypeError
			assert.ErrorAs(t, err, &typeErr)
		})
	}
}

func TestSingletonEntry_FailureIsRetried(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	e, err := container.NewSingletonEntry("flaky", func() (*counter, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &counter{}, nil
	})
	require.NoError(t, err)
	loader := &mockLoader{}

	_, err = e.Load(context.Background(), loader).Result()
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, e.Instance())

	got := await(t, e.Load(context.Background(), loader))
	assert.IsType(t, &counter{}, got)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSingletonEntry_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := container.NewSingletonEntry("conn", func(ctx context.Context) (*counter, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &counter{}, nil
	})
	require.NoError(t, err)

	_, err = e.Load(ctx, &mockLoader{}).Result()
	assert.NoError(t, err)
}

// ── Scoped ────────────────────────────────────────────────────────────────────

func TestScopedEntry_RequiresScope(t *testing.T) {
	e, err := container.NewScopedEntry("session", func() *counter { return &counter{} })
	require.NoError(t, err)

	_, err = e.Load(context.Background(), &mockLoader{}).Result()
	var scopeErr *container.ScopeEntryScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, "session", scopeErr.Key)
}

func TestScopedEntry_OneInstancePerScope(t *testing.T) {
	c := container.New()
	e, err := container.NewScopedEntry("session", func() *counter { return &counter{} })
	require.NoError(t, err)

	_, first := c.BeginScope(context.Background())
	_, second := c.BeginScope(context.Background())

	inFirst := &mockLoader{scope: first}
	a := await(t, e.Load(context.Background(), inFirst))
	b := await(t, e.Load(context.Background(), inFirst))
	assert.Same(t, a, b)
	assert.Equal(t, 1, first.Len())

	other := await(t, e.Load(context.Background(), &mockLoader{scope: second}))
	assert.NotSame(t, a, other)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestScopedEntry_NonObjectRejectedAndEvicted(t *testing.T) {
	c := container.New()
	_, scope := c.BeginScope(context.Background())
	e, err := container.NewScopedEntry("n", func() int { return 5 })
	require.NoError(t, err)

	_, err = e.Load(context.Background(), &mockLoader{scope: scope}).Result()
	var typeErr *container.ScopeEntryTypeError
	assert.ErrorAs(t, err, &typeErr)
	assert.Zero(t, scope.Len())
}

func TestLifecycle_String(t *testing.T) {
	assert.Equal(t, "transient", container.Transient.String())
	assert.Equal(t, "scoped", container.Scoped.String())
	assert.Equal(t, "singleton", container.Singleton.String())
	assert.Equal(t, "Lifecycle(9)", container.Lifecycle(9).String())
}
