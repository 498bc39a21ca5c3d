package container

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Repository is an ordered key → value store with a unique identity.
//
// The container keeps its entries in one Repository[Entry]; every scope
// keeps its cached instances in a Repository[*future.Future] of its own.
type Repository[V comparable] struct {
	id    string
	mu    sync.RWMutex
	keys  []any
	items map[any]V
}

// NewRepository creates an empty repository with a fresh UUID identity.
func NewRepository[V comparable]() *Repository[V] {
	return &Repository[V]{
		id:    uuid.NewString(),
		items: make(map[any]V),
	}
}

// ID returns the unique identifier of the repository.
func (r *Repository[V]) ID() string { return r.id }

// Has returns true if the key is present.
func (r *Repository[V]) Has(key any) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[key]
	return ok
}

// Get returns the value stored under key.
func (r *Repository[V]) Get(key any) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Set stores value under key and returns the replaced value, if any.
func (r *Repository[V]) Set(key any, value V) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced := r.items[key]
	if !replaced {
		r.keys = append(r.keys, key)
	}
	r.items[key] = value
	return prev, replaced
}

// GetOrSet returns the existing value for key, or stores value.
// The boolean is true when the value was already present.
func (r *Repository[V]) GetOrSet(key any, value V) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[key]; ok {
		return existing, true
	}
	r.keys = append(r.keys, key)
	r.items[key] = value
	return value, false
}

// Delete removes key and reports whether it was present.
func (r *Repository[V]) Delete(key any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delete(key)
}

// CompareAndDelete removes key only while it still maps to value.
func (r *Repository[V]) CompareAndDelete(key any, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.items[key]; !ok || current != value {
		return false
	}
	return r.delete(key)
}

// Keys returns the keys in insertion order.
func (r *Repository[V]) Keys() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]any, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of stored keys.
func (r *Repository[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Clear removes every key.
func (r *Repository[V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = nil
	r.items = make(map[any]V)
}

// delete must hold mu.Lock.
func (r *Repository[V]) delete(key any) bool {
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	for index, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:index], r.keys[index+1:]...)
			break
		}
	}
	return true
}

// validKey rejects keys that cannot be used as map keys.
func validKey(key any) error {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return &InvalidKeyError{Key: key}
	}
	return nil
}
