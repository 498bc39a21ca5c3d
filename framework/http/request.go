package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/km-arc/go-atlas/framework/container"
)

const maxMemory = 32 << 20 // 32 MB

// Request wraps *http.Request with helpers for binding, validation and
// resolving request-scoped services.
type Request struct {
	raw *http.Request
	app *container.Container
}

// NewRequest wraps a standard *http.Request. app may be nil when the
// request never resolves services.
func NewRequest(r *http.Request, app *container.Container) *Request {
	return &Request{raw: r, app: app}
}

// Raw returns the underlying *http.Request.
func (req *Request) Raw() *http.Request { return req.raw }

// Context returns the request context, carrying the request scope when
// ScopeMiddleware is installed.
func (req *Request) Context() context.Context { return req.raw.Context() }

// Make resolves key inside the request scope.
//
//	raw, err := req.Make("cart")
func (req *Request) Make(key any) (any, error) {
	if req.app == nil {
		return nil, errors.New("http: request has no container")
	}
	return req.app.Make(req.Context(), key)
}

// Service resolves key inside the request scope and asserts it to T.
//
//	cart, err := gohttp.Service[*Cart](req, "cart")
func Service[T any](req *Request, key any) (T, error) {
	if req.app == nil {
		var zero T
		return zero, errors.New("http: request has no container")
	}
	return container.Resolve[T](req.Context(), req.app, key)
}

// ── Binding ──────────────────────────────────────────────────────────────────

// Bind decodes the request body into v.
// Supports JSON and application/x-www-form-urlencoded / multipart.
func (req *Request) Bind(v any) error {
	ct := req.ContentType()

	switch {
	case strings.Contains(ct, "application/json"):
		return req.bindJSON(v)
	case strings.Contains(ct, "multipart/form-data"):
		if err := req.raw.ParseMultipartForm(maxMemory); err != nil {
			return err
		}
		return bindForm(req.raw.MultipartForm.Value, v)
	default:
		if err := req.raw.ParseForm(); err != nil {
			return err
		}
		return bindForm(map[string][]string(req.raw.PostForm), v)
	}
}

// BindAndValidate binds the body into v, then validates its `validate` tags.
// Validation failures are returned as *Errors.
//
//	var payload struct {
//	    Email string `json:"email" validate:"required,email"`
//	}
//	if err := req.BindAndValidate(&payload); err != nil { ... }
func (req *Request) BindAndValidate(v any) error {
	if err := req.Bind(v); err != nil {
		return err
	}
	return Validate(v)
}

func (req *Request) bindJSON(v any) error {
	defer req.raw.Body.Close()
	body, err := io.ReadAll(req.raw.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(body, v)
}

// bindForm maps form values onto a struct through its json tags.
func bindForm(values map[string][]string, v any) error {
	m := make(map[string]any, len(values))
	for k, vals := range values {
		if len(vals) == 1 {
			m[k] = vals[0]
		} else {
			m[k] = vals
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ── Input helpers ────────────────────────────────────────────────────────────

// Input returns a single input value (query string OR post body).
func (req *Request) Input(key string, fallback ...string) string {
	_ = req.raw.ParseForm()
	v := req.raw.FormValue(key)
	if v == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return v
}

// Query returns a query-string value.
func (req *Request) Query(key string, fallback ...string) string {
	v := req.raw.URL.Query().Get(key)
	if v == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return v
}

// RouteParam returns a URL route parameter (chi).
func (req *Request) RouteParam(key string) string {
	return chi.URLParam(req.raw, key)
}

// Header returns a request header value.
func (req *Request) Header(key string) string {
	return req.raw.Header.Get(key)
}

// BearerToken extracts the token from Authorization: Bearer <token>.
func (req *Request) BearerToken() string {
	auth := req.raw.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// ContentType returns the Content-Type header value.
func (req *Request) ContentType() string {
	return req.raw.Header.Get("Content-Type")
}

// IsJSON returns true when the request expects a JSON response.
func (req *Request) IsJSON() bool {
	return strings.Contains(req.raw.Header.Get("Accept"), "application/json") ||
		strings.Contains(req.ContentType(), "application/json")
}
