package container

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sony/gobreaker"
)

// ── Producer classification ───────────────────────────────────────────────────

// ProducerKind tells how a registered producer turns parameters into a value.
// It is decided once, when the entry is created.
type ProducerKind int

const (
	// KindValue producers are returned as they are; parameters are ignored.
	KindValue ProducerKind = iota + 1

	// KindConstructor producers allocate a new struct and inject the
	// parameters into its exported fields, in declaration order.
	KindConstructor

	// KindFunc producers are functions called with the parameters as arguments.
	KindFunc
)

func (k ProducerKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindConstructor:
		return "constructor"
	case KindFunc:
		return "func"
	default:
		return fmt.Sprintf("ProducerKind(%d)", int(k))
	}
}

// Constructor marks a struct type as constructible by the container.
//
//	c.AddTransient("mailer", container.Construct[SMTPMailer](), container.WithParams("config", "logger"))
//
// is the container equivalent of `&SMTPMailer{cfg, logger}`.
type Constructor struct {
	typ reflect.Type
}

// Construct returns the constructor of the struct type T.
func Construct[T any]() *Constructor {
	return ConstructType(reflect.TypeOf((*T)(nil)).Elem())
}

// ConstructType returns the constructor of the struct type typ.
// A non-struct type is rejected when the constructor is registered.
func ConstructType(typ reflect.Type) *Constructor {
	return &Constructor{typ: typ}
}

// Type returns the type of the produced values, a pointer to the struct.
func (c *Constructor) Type() reflect.Type {
	return reflect.PointerTo(c.typ)
}

func (c *Constructor) String() string {
	return fmt.Sprintf("Construct[%s]", c.typ)
}

// Initializer is called by constructor producers once parameters are injected.
type Initializer interface {
	Init() error
}

// ── Resolver ──────────────────────────────────────────────────────────────────

// resolver normalizes a producer into a uniform invocation.
type resolver struct {
	kind     ProducerKind
	name     string
	producer any
	lazy     bool

	// KindFunc: function value and signature details.
	fn       reflect.Value
	takesCtx bool
	outError bool

	// KindConstructor: struct type and injectable field indexes.
	structType reflect.Type
	fields     []int

	// Declared type of produced values, nil when unknown.
	outType reflect.Type

	breaker *gobreaker.CircuitBreaker
}

// newResolver classifies producer; it fails with EntryTypeError when the
// producer is neither object-like nor a function.
func newResolver(key, producer any, lazy bool) (*resolver, error) {
	r := &resolver{producer: producer, lazy: lazy}
	invalid := &EntryTypeError{Key: key, Producer: producer}

	if ctor, ok := producer.(*Constructor); ok {
		if ctor == nil || ctor.typ == nil || ctor.typ.Kind() != reflect.Struct {
			return nil, invalid
		}
		r.kind = KindConstructor
		r.name = ctor.String()
		r.structType = ctor.typ
		r.outType = ctor.Type()
		for index := 0; index < ctor.typ.NumField(); index++ {
			if ctor.typ.Field(index).IsExported() {
				r.fields = append(r.fields, index)
			}
		}
		return r, nil
	}

	if producer == nil {
		return nil, invalid
	}

	value := reflect.ValueOf(producer)
	switch value.Kind() {
	case reflect.Func:
		if value.IsNil() {
			return nil, invalid
		}
		if err := r.indexFunc(value); err != nil {
			return nil, fmt.Errorf("%w: %v", invalid, err)
		}
		return r, nil
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.UnsafePointer:
		if value.IsNil() {
			return nil, invalid
		}
	case reflect.Struct, reflect.Array:
	default:
		return nil, invalid
	}

	r.kind = KindValue
	r.name = fmt.Sprintf("Value[%T]", producer)
	r.outType = value.Type()
	return r, nil
}

// indexFunc validates and records a function producer signature.
func (r *resolver) indexFunc(fn reflect.Value) error {
	fnType := fn.Type()
	r.kind = KindFunc
	r.name = fmt.Sprintf("Factory[%s]", fnType)
	r.fn = fn
	r.takesCtx = fnType.NumIn() > 0 && fnType.In(0) == contextType

	switch numOut := fnType.NumOut(); {
	case numOut == 0:
	case numOut == 1 && fnType.Out(0) == errorType:
		r.outError = true
	case numOut == 1:
		r.outType = fnType.Out(0)
	case numOut == 2 && fnType.Out(1) == errorType:
		r.outType = fnType.Out(0)
		r.outError = true
	default:
		return fmt.Errorf("unsupported signature %s", fnType)
	}
	return nil
}

// load invokes the producer with already-resolved parameters. The result
// may be a *future.Future for asynchronous producers, or a *Proxy when the
// resolver is lazy.
func (r *resolver) load(ctx context.Context, params []any) (any, error) {
	if r.lazy {
		return newProxy(r.outType, func() (any, error) {
			return r.invoke(ctx, params)
		}), nil
	}
	return r.invoke(ctx, params)
}

func (r *resolver) invoke(ctx context.Context, params []any) (any, error) {
	if r.breaker != nil {
		return r.guarded(ctx, params)
	}
	return r.produce(ctx, params)
}

func (r *resolver) produce(ctx context.Context, params []any) (any, error) {
	switch r.kind {
	case KindConstructor:
		return r.construct(params)
	case KindFunc:
		return r.call(ctx, params)
	default:
		return r.producer, nil
	}
}

// construct allocates the struct and injects params positionally.
func (r *resolver) construct(params []any) (any, error) {
	if len(params) > len(r.fields) {
		return nil, &InvocationError{Producer: r.name,
			Err: fmt.Errorf("got %d parameters for %d exported fields", len(params), len(r.fields))}
	}

	instance := reflect.New(r.structType)
	for index, param := range params {
		field := instance.Elem().Field(r.fields[index])
		arg, err := argValue(param, field.Type())
		if err != nil {
			return nil, &InvocationError{Producer: r.name,
				Err: fmt.Errorf("field %s: %w", r.structType.Field(r.fields[index]).Name, err)}
		}
		field.Set(arg)
	}

	if initializer, ok := instance.Interface().(Initializer); ok {
		if err := initializer.Init(); err != nil {
			return nil, &InvocationError{Producer: r.name, Err: err}
		}
	}
	return instance.Interface(), nil
}

// call invokes the function producer, splatting params as arguments.
func (r *resolver) call(ctx context.Context, params []any) (any, error) {
	fnType := r.fn.Type()
	offset := 0
	in := make([]reflect.Value, 0, len(params)+1)
	if r.takesCtx {
		offset = 1
		in = append(in, reflect.ValueOf(ctx))
	}

	fixed := fnType.NumIn() - offset
	if fnType.IsVariadic() {
		fixed--
	}
	if len(params) < fixed || (!fnType.IsVariadic() && len(params) > fixed) {
		return nil, &InvocationError{Producer: r.name,
			Err: fmt.Errorf("got %d parameters, want %d", len(params), fixed)}
	}

	for index, param := range params {
		var argType reflect.Type
		if fnType.IsVariadic() && index >= fixed {
			argType = fnType.In(fnType.NumIn() - 1).Elem()
		} else {
			argType = fnType.In(index + offset)
		}
		arg, err := argValue(param, argType)
		if err != nil {
			return nil, &InvocationError{Producer: r.name, Err: fmt.Errorf("argument %d: %w", index, err)}
		}
		in = append(in, arg)
	}

	out := r.fn.Call(in)
	if r.outError {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return nil, &InvocationError{Producer: r.name, Err: last.Interface().(error)}
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// argValue converts a resolved parameter into an argument of type typ.
// A lazy proxy is forced when the target type cannot hold the proxy itself.
func argValue(param any, typ reflect.Type) (reflect.Value, error) {
	if param == nil {
		if isNillableType(typ) {
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", typ)
	}

	value := reflect.ValueOf(param)
	if value.Type().AssignableTo(typ) {
		return value, nil
	}

	if proxy, ok := param.(*Proxy); ok {
		forced, err := proxy.Value()
		if err != nil {
			return reflect.Value{}, err
		}
		return argValue(forced, typ)
	}

	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", value.Type(), typ)
}

// isNillableType returns true whether the specified type kind could accept nil.
func isNillableType(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Interface, reflect.Func:
		return true
	default:
		return false
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)
