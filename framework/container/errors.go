package container

import (
	"fmt"
	"reflect"
	"strings"
)

// ── Registration errors ───────────────────────────────────────────────────────

// EntryTypeError reports a producer that is neither object-like nor a function.
type EntryTypeError struct {
	Key      any
	Producer any
}

func (e *EntryTypeError) Error() string {
	return fmt.Sprintf("container: [%s] dependency can be only type of object or function, got %T",
		formatKey(e.Key), e.Producer)
}

// InvalidKeyError reports a nil or non-comparable key.
type InvalidKeyError struct {
	Key any
}

func (e *InvalidKeyError) Error() string {
	if e.Key == nil {
		return "container: key cannot be nil"
	}
	return fmt.Sprintf("container: key of type %T is not comparable", e.Key)
}

// RebindError reports a rejected rebinding in strict rebind mode.
type RebindError struct {
	Key any
}

func (e *RebindError) Error() string {
	return fmt.Sprintf("container: [%s] is already bound and resolved, rebinding is disabled", formatKey(e.Key))
}

// ── Resolution errors ─────────────────────────────────────────────────────────

// UnknownKeyError reports a key with no bound entry.
type UnknownKeyError struct {
	Key any
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("container: key [%s] is not bound to any container entry", formatKey(e.Key))
}

// SingletonEntryTypeError reports a singleton producer that settled with a non-object value.
type SingletonEntryTypeError struct {
	Key   any
	Value any
}

func (e *SingletonEntryTypeError) Error() string {
	return fmt.Sprintf("container: [%s] singleton dependency cannot be resolved with non object type %T",
		formatKey(e.Key), e.Value)
}

// ScopeEntryTypeError reports a scoped producer that settled with a non-object value.
type ScopeEntryTypeError struct {
	Key   any
	Value any
}

func (e *ScopeEntryTypeError) Error() string {
	return fmt.Sprintf("container: [%s] scope dependency cannot be resolved with non object type %T",
		formatKey(e.Key), e.Value)
}

// ScopeEntryScopeError reports a scoped key resolved outside of any scope.
type ScopeEntryScopeError struct {
	Key any
}

func (e *ScopeEntryScopeError) Error() string {
	return fmt.Sprintf("container: [%s] scope dependency cannot be resolved without container scope", formatKey(e.Key))
}

// LazyResolutionTypeError reports a lazy producer that yielded a future.
type LazyResolutionTypeError struct {
	Type reflect.Type
}

func (e *LazyResolutionTypeError) Error() string {
	if e.Type == nil {
		return "container: lazy load entry shouldn't be a future"
	}
	return fmt.Sprintf("container: lazy load entry [%s] shouldn't be a future", e.Type)
}

// CycleError reports a key requested again while it is still being resolved.
type CycleError struct {
	Path []any
}

func (e *CycleError) Error() string {
	keys := make([]string, 0, len(e.Path))
	for _, key := range e.Path {
		keys = append(keys, formatKey(key))
	}
	return fmt.Sprintf("container: dependency cycle detected: %s", strings.Join(keys, " -> "))
}

// InvocationError wraps a failure returned or caused by a producer.
type InvocationError struct {
	Producer string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("container: failed to invoke %s: %v", e.Producer, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// formatKey renders a key for error messages and log fields.
func formatKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprintf("%v", key)
	}
}
