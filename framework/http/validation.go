package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Errors holds validation errors.
// JSON output: {"errors": {"field": ["msg1", "msg2"]}}
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) Error() string {
	fields := make([]string, 0, len(e.Bag))
	for field := range e.Bag {
		fields = append(fields, field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the `validate` struct tags of v. Field failures are
// returned as *Errors keyed by the json name of the field.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})

	err := validate.Struct(v)
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}
	bag := &Errors{}
	for _, failure := range failures {
		bag.add(failure.Field(), message(failure))
	}
	return bag
}

func message(failure validator.FieldError) string {
	field := failure.Field()
	switch failure.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s.", field, failure.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s.", field, failure.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
