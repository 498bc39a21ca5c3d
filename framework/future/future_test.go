package future_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-atlas/framework/future"
)

func later(v any, err error) *future.Future {
	return future.Go(context.Background(), func(context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return v, err
	})
}

func TestResolvedAndRejected(t *testing.T) {
	f := future.Resolved("ok")
	require.True(t, f.Settled())
	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	f = future.Rejected(boom)
	_, err = f.Result()
	assert.ErrorIs(t, err, boom)
}

func TestResult_Pending(t *testing.T) {
	f := future.New()
	_, err := f.Result()
	assert.ErrorIs(t, err, future.ErrPending)
	assert.False(t, f.Settled())
}

func TestSettle_OnlyOnce(t *testing.T) {
	f := future.New()
	assert.True(t, f.Settle(1, nil))
	assert.False(t, f.Settle(2, nil))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFrom(t *testing.T) {
	pending := future.New()
	assert.Same(t, pending, future.From(pending))

	v, err := future.From(42).Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGo_RecoversPanics(t *testing.T) {
	f := future.Go(context.Background(), func(context.Context) (any, error) {
		panic("exploded")
	})
	_, err := f.Await(context.Background())

	var panicErr *future.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "exploded", panicErr.Value)
}

func TestAwait_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := future.New().Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThen_SettledRunsSynchronously(t *testing.T) {
	called := false
	f := future.Then(future.Resolved(2), func(v any) (any, error) {
		called = true
		return v.(int) * 21, nil
	})

	assert.True(t, called)
	require.True(t, f.Settled())
	v, _ := f.Result()
	assert.Equal(t, 42, v)
}

func TestThen_SkipsOnError(t *testing.T) {
	boom := errors.New("boom")
	f := future.Then(future.Rejected(boom), func(any) (any, error) {
		t.Fatal("fn must not run")
		return nil, nil
	})
	_, err := f.Result()
	assert.ErrorIs(t, err, boom)
}

func TestThen_FlattensPendingResult(t *testing.T) {
	f := future.Then(later("inner", nil), func(v any) (any, error) {
		return later(v.(string)+"-outer", nil), nil
	})

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inner-outer", v)
}

func TestAll(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []*future.Future
		want    []any
		settled bool
	}{
		{"Empty", nil, []any{}, true},
		{"AllSettled", []*future.Future{future.Resolved(1), future.Resolved(2)}, []any{1, 2}, true},
		{"Mixed", []*future.Future{future.Resolved(1), later(2, nil), future.Resolved(3)}, []any{1, 2, 3}, false},
		{"SlowFirst", []*future.Future{later("a", nil), future.Resolved("b")}, []any{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := future.All(tt.inputs...)
			assert.Equal(t, tt.settled, f.Settled())

			v, err := f.Await(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestAll_RejectsOnFirstError(t *testing.T) {
	boom := errors.New("boom")

	_, err := future.All(future.Resolved(1), future.Rejected(boom)).Result()
	assert.ErrorIs(t, err, boom)

	_, err = future.All(later(1, nil), later(nil, boom)).Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFollowAndOnSettled(t *testing.T) {
	src := later("value", nil)
	dst := future.New()
	dst.Follow(src)

	v, err := dst.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	seen := make(chan any, 1)
	future.OnSettled(dst, func(v any, _ error) { seen <- v })
	assert.Equal(t, "value", <-seen)
}
