package container

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker guarding a producer.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// Consecutive producer failures that open the breaker.
	MaxFailures uint32
	// OnStateChange is called on every transition, may be nil.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig opens after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// WithBreaker guards the producer with a circuit breaker. While open,
// resolution fails fast with an InvocationError wrapping
// gobreaker.ErrOpenState instead of calling the producer.
//
// Only the synchronous producer call is guarded: a producer returning a
// *future.Future counts as successful once the future is returned.
func WithBreaker(cfg BreakerConfig) EntryOption {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: cfg.OnStateChange,
	})
	return func(o *entryOptions) { o.breaker = cb }
}

func (r *resolver) guarded(ctx context.Context, params []any) (any, error) {
	value, err := r.breaker.Execute(func() (any, error) {
		return r.produce(ctx, params)
	})
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return nil, &InvocationError{Producer: r.name, Err: fmt.Errorf("breaker %q: %w", r.breaker.Name(), err)}
	}
	return value, err
}
