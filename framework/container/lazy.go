package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-atlas/framework/future"
)

// ── Lazy proxy ────────────────────────────────────────────────────────────────

// ErrNoMember is returned by proxy accessors when the field, map entry or
// method does not exist on the materialized instance.
var ErrNoMember = errors.New("container: proxy member not found")

// Proxy stands in for an instance whose construction is deferred until first
// use. Entries registered with Lazy() resolve to a *Proxy; every accessor
// materializes the instance exactly once and forwards to it.
//
//	c.AddSingleton("report", buildReport, container.Lazy())
//	p := container.MustResolve[*container.Proxy](ctx, c, "report")
//	title, err := p.Get("Title")  // buildReport runs here
type Proxy struct {
	typ   reflect.Type
	build func() (any, error)

	once     sync.Once
	resolved atomic.Bool
	value    any
	err      error
}

func newProxy(typ reflect.Type, build func() (any, error)) *Proxy {
	return &Proxy{typ: typ, build: build}
}

// Value materializes the instance. Later calls return the same result.
func (p *Proxy) Value() (any, error) {
	p.once.Do(func() {
		value, err := p.build()
		if err == nil {
			if _, async := value.(*future.Future); async {
				value, err = nil, &LazyResolutionTypeError{Type: p.typ}
			}
		}
		p.value, p.err = value, err
		p.build = nil
		p.resolved.Store(true)
	})
	return p.value, p.err
}

// Resolved reports whether the instance has been materialized.
func (p *Proxy) Resolved() bool { return p.resolved.Load() }

// Type returns the type of the proxied instance. The declared producer type
// is used when it is concrete; otherwise the instance is materialized.
func (p *Proxy) Type() reflect.Type {
	if p.typ != nil && p.typ.Kind() != reflect.Interface {
		return p.typ
	}
	value, err := p.Value()
	if err != nil || value == nil {
		return p.typ
	}
	return reflect.TypeOf(value)
}

// Is reports whether the proxied instance is assignable to typ.
func (p *Proxy) Is(typ reflect.Type) bool {
	actual := p.Type()
	if actual == nil || typ == nil {
		return false
	}
	return actual.AssignableTo(typ)
}

// IsA reports whether the proxied instance is assignable to T.
func IsA[T any](p *Proxy) bool {
	return p.Is(reflect.TypeOf((*T)(nil)).Elem())
}

// Force materializes the proxy and asserts the instance to T.
func Force[T any](p *Proxy) (T, error) {
	var zero T
	value, err := p.Value()
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("container: proxy holds %T, not %s", value, reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}

// Get reads an exported struct field or a string-keyed map entry.
func (p *Proxy) Get(name string) (any, error) {
	target, err := p.target()
	if err != nil {
		return nil, err
	}
	switch target.Kind() {
	case reflect.Struct:
		field := target.FieldByName(name)
		if !field.IsValid() || !field.CanInterface() {
			return nil, fmt.Errorf("%w: field %s", ErrNoMember, name)
		}
		return field.Interface(), nil
	case reflect.Map:
		key, err := mapKey(target, name)
		if err != nil {
			return nil, err
		}
		item := target.MapIndex(key)
		if !item.IsValid() {
			return nil, fmt.Errorf("%w: key %s", ErrNoMember, name)
		}
		return item.Interface(), nil
	default:
		return nil, fmt.Errorf("%w: %s has no member %s", ErrNoMember, target.Type(), name)
	}
}

// Set writes an exported struct field (through a pointer) or a map entry.
func (p *Proxy) Set(name string, value any) error {
	target, err := p.target()
	if err != nil {
		return err
	}
	switch target.Kind() {
	case reflect.Struct:
		field := target.FieldByName(name)
		if !field.IsValid() {
			return fmt.Errorf("%w: field %s", ErrNoMember, name)
		}
		if !field.CanSet() {
			return fmt.Errorf("container: proxy field %s is not settable", name)
		}
		arg, err := argValue(value, field.Type())
		if err != nil {
			return err
		}
		field.Set(arg)
		return nil
	case reflect.Map:
		key, err := mapKey(target, name)
		if err != nil {
			return err
		}
		arg, err := argValue(value, target.Type().Elem())
		if err != nil {
			return err
		}
		target.SetMapIndex(key, arg)
		return nil
	default:
		return fmt.Errorf("%w: %s has no member %s", ErrNoMember, target.Type(), name)
	}
}

// Delete removes a map entry, or resets a struct field to its zero value.
func (p *Proxy) Delete(name string) error {
	target, err := p.target()
	if err != nil {
		return err
	}
	switch target.Kind() {
	case reflect.Struct:
		field := target.FieldByName(name)
		if !field.IsValid() {
			return fmt.Errorf("%w: field %s", ErrNoMember, name)
		}
		if !field.CanSet() {
			return fmt.Errorf("container: proxy field %s is not settable", name)
		}
		field.Set(reflect.Zero(field.Type()))
		return nil
	case reflect.Map:
		key, err := mapKey(target, name)
		if err != nil {
			return err
		}
		target.SetMapIndex(key, reflect.Value{})
		return nil
	default:
		return fmt.Errorf("%w: %s has no member %s", ErrNoMember, target.Type(), name)
	}
}

// Call invokes an exported method of the instance. A trailing error result
// of the method is returned as err; the other results are returned in order.
func (p *Proxy) Call(method string, args ...any) ([]any, error) {
	value, err := p.Value()
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: method %s on nil", ErrNoMember, method)
	}
	fn := reflect.ValueOf(value).MethodByName(method)
	if !fn.IsValid() {
		return nil, fmt.Errorf("%w: method %s", ErrNoMember, method)
	}

	fnType := fn.Type()
	fixed := fnType.NumIn()
	if fnType.IsVariadic() {
		fixed--
	}
	if len(args) < fixed || (!fnType.IsVariadic() && len(args) > fixed) {
		return nil, fmt.Errorf("container: proxy method %s takes %d arguments, got %d", method, fixed, len(args))
	}

	in := make([]reflect.Value, 0, len(args))
	for index, arg := range args {
		argType := fnType.In(min(index, fnType.NumIn()-1))
		if fnType.IsVariadic() && index >= fixed {
			argType = argType.Elem()
		}
		converted, err := argValue(arg, argType)
		if err != nil {
			return nil, fmt.Errorf("container: proxy method %s argument %d: %w", method, index, err)
		}
		in = append(in, converted)
	}

	out := fn.Call(in)
	if n := len(out); n > 0 && fnType.Out(n-1) == errorType {
		last := out[n-1]
		out = out[:n-1]
		if !last.IsNil() {
			err = last.Interface().(error)
		}
	}
	results := make([]any, len(out))
	for index, result := range out {
		results[index] = result.Interface()
	}
	return results, err
}

func (p *Proxy) String() string {
	if p.typ == nil {
		return "Proxy"
	}
	return fmt.Sprintf("Proxy[%s]", p.typ)
}

// target materializes the instance and dereferences pointers, so struct
// fields reached through a pointer are settable.
func (p *Proxy) target() (reflect.Value, error) {
	value, err := p.Value()
	if err != nil {
		return reflect.Value{}, err
	}
	target := reflect.ValueOf(value)
	for target.Kind() == reflect.Ptr || target.Kind() == reflect.Interface {
		if target.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil %s", ErrNoMember, target.Type())
		}
		target = target.Elem()
	}
	if !target.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: proxy holds nil", ErrNoMember)
	}
	return target, nil
}

func mapKey(m reflect.Value, name string) (reflect.Value, error) {
	keyType := m.Type().Key()
	if keyType.Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("%w: map key type %s is not a string", ErrNoMember, keyType)
	}
	return reflect.ValueOf(name).Convert(keyType), nil
}
