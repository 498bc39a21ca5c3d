// Package future provides a settle-once result cell used by the container to
// represent values that may still be under construction.
//
// A Future is settled exactly once, either with a value or with an error.
// Chains built with Then and All stay synchronous as long as every input is
// already settled, so purely synchronous dependency graphs never start
// goroutines.
//
//	f := future.Go(ctx, func(ctx context.Context) (any, error) {
//	    return connect(ctx)
//	})
//	conn, err := f.Await(ctx)
package future

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is a value that is either pending or settled.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// New returns a pending future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future settled with v.
func Resolved(v any) *Future {
	f := New()
	f.Settle(v, nil)
	return f
}

// Rejected returns a future settled with err.
func Rejected(err error) *Future {
	f := New()
	f.Settle(nil, err)
	return f
}

// From returns v itself when it is a *Future, otherwise a future resolved with v.
func From(v any) *Future {
	if f, ok := v.(*Future); ok && f != nil {
		return f
	}
	return Resolved(v)
}

// Go runs fn on a new goroutine and returns its pending result.
// A panic in fn rejects the future instead of crashing the process.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := New()
	go func() {
		v, err := protect(func() (any, error) { return fn(ctx) })
		f.Settle(v, err)
	}()
	return f
}

// Settle settles the future. Only the first call has an effect;
// it reports whether this call settled the future.
func (f *Future) Settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future already holds a result.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// ErrPending is returned by Result while the future is not settled.
var ErrPending = errors.New("future: pending")

// Result returns the settled result without blocking,
// or ErrPending while the future is not settled.
func (f *Future) Result() (any, error) {
	if !f.Settled() {
		return nil, ErrPending
	}
	return f.value, f.err
}

// Await blocks until the future settles or ctx is done.
// Giving up on ctx does not stop the work producing the value.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Follow settles f with the result of src once src settles.
func (f *Future) Follow(src *Future) {
	OnSettled(src, func(v any, err error) { f.Settle(v, err) })
}

// OnSettled calls fn with the result of f: immediately when f is settled,
// otherwise from a goroutine once it settles.
func OnSettled(f *Future, fn func(v any, err error)) {
	if f.Settled() {
		fn(f.value, f.err)
		return
	}
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}

// Then returns the future of fn applied to the value of f.
// Errors of f skip fn. A *Future returned by fn is flattened.
func Then(f *Future, fn func(v any) (any, error)) *Future {
	if f.Settled() {
		return apply(fn, f.value, f.err)
	}
	next := New()
	go func() {
		<-f.done
		next.Follow(apply(fn, f.value, f.err))
	}()
	return next
}

// All returns a future of the values of fs, in the same order.
// It settles synchronously when every input is settled, and rejects with
// the first error observed otherwise.
func All(fs ...*Future) *Future {
	pending := false
	for _, f := range fs {
		if !f.Settled() {
			pending = true
			break
		}
	}

	if !pending {
		values := make([]any, len(fs))
		for index, f := range fs {
			if f.err != nil {
				return Rejected(f.err)
			}
			values[index] = f.value
		}
		return Resolved(values)
	}

	out := New()
	go func() {
		values := make([]any, len(fs))
		group, groupCtx := errgroup.WithContext(context.Background())
		for index, f := range fs {
			group.Go(func() error {
				select {
				case <-f.done:
					values[index] = f.value
					return f.err
				case <-groupCtx.Done():
					return groupCtx.Err()
				}
			})
		}
		if err := group.Wait(); err != nil {
			out.Settle(nil, err)
			return
		}
		out.Settle(values, nil)
	}()
	return out
}

// apply runs fn guarded against panics and flattens its result.
func apply(fn func(v any) (any, error), v any, err error) *Future {
	if err != nil {
		return Rejected(err)
	}
	out, err := protect(func() (any, error) { return fn(v) })
	if err != nil {
		return Rejected(err)
	}
	return From(out)
}

// PanicError carries a recovered panic value and its stack.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("future: panic: %v", e.Value)
}

func protect(fn func() (any, error)) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			value, err = nil, &PanicError{Value: recovered, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}
