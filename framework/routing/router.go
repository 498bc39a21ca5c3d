package routing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/container"
	gohttp "github.com/km-arc/go-atlas/framework/http"
)

// Router wraps chi.Router and resolves controllers from a container.
type Router struct {
	mux chi.Router
	app *container.Container
}

// New creates a Router with sane defaults (RequestID, RealIP, Logger,
// Recoverer) and opens a container scope for every request.
func New(app *container.Container) *Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(gohttp.ScopeMiddleware(app))
	return &Router{mux: r, app: app}
}

// Container returns the container controllers are resolved from.
func (r *Router) Container() *container.Container { return r.app }

// ── HTTP verbs ───────────────────────────────────────────────────────────────

func (r *Router) Get(pattern string, h http.HandlerFunc)    { r.mux.Get(pattern, h) }
func (r *Router) Post(pattern string, h http.HandlerFunc)   { r.mux.Post(pattern, h) }
func (r *Router) Put(pattern string, h http.HandlerFunc)    { r.mux.Put(pattern, h) }
func (r *Router) Patch(pattern string, h http.HandlerFunc)  { r.mux.Patch(pattern, h) }
func (r *Router) Delete(pattern string, h http.HandlerFunc) { r.mux.Delete(pattern, h) }

// Handle registers h for every method at pattern.
func (r *Router) Handle(pattern string, h http.Handler) { r.mux.Handle(pattern, h) }

// ── Groups & Prefixes ────────────────────────────────────────────────────────

// Group creates an inline group sharing the parent's prefix.
func (r *Router) Group(fn func(r *Router)) {
	r.mux.Group(func(mx chi.Router) {
		fn(&Router{mux: mx, app: r.app})
	})
}

// Prefix creates a sub-router mounted under pattern.
func (r *Router) Prefix(pattern string, fn func(r *Router)) {
	r.mux.Route(pattern, func(mx chi.Router) {
		fn(&Router{mux: mx, app: r.app})
	})
}

// Middleware adds one or more middleware to the router.
func (r *Router) Middleware(mw ...func(http.Handler) http.Handler) {
	r.mux.Use(mw...)
}

// ── Controllers ──────────────────────────────────────────────────────────────

// Controller routes method and pattern to the http.Handler bound at key.
// The handler is resolved inside the request scope on every request, so
// scoped controllers and their dependencies never leak across requests.
//
//	app.AddScoped("users.show", func(r *http.Request, repo *UserRepo) http.Handler { ... },
//	    container.WithParams(gohttp.RequestKey, "users"))
//	router.Controller(http.MethodGet, "/users/{id}", "users.show")
func (r *Router) Controller(method, pattern string, key any) {
	app := r.app
	r.mux.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h, err := resolveHandler(req.Context(), app, key)
		if err != nil {
			app.Logger().Error("controller resolution failed",
				zap.String("key", fmt.Sprint(key)),
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err))
			gohttp.NewResponse(w).Fail(err)
			return
		}
		h.ServeHTTP(w, req)
	}))
}

func resolveHandler(ctx context.Context, app *container.Container, key any) (http.Handler, error) {
	v, err := container.Resolve[any](ctx, app, key)
	if err != nil {
		return nil, err
	}
	switch h := v.(type) {
	case http.Handler:
		return h, nil
	case func(http.ResponseWriter, *http.Request):
		return http.HandlerFunc(h), nil
	default:
		return nil, fmt.Errorf("routing: %v resolved to %T, not an http.Handler", key, v)
	}
}

// ── Resource routes ──────────────────────────────────────────────────────────

// ResourceController handles the standard RESTful routes of a resource.
//
//	GET    /photos           → c.Index
//	POST   /photos           → c.Store
//	GET    /photos/{id}      → c.Show
//	PUT    /photos/{id}      → c.Update
//	DELETE /photos/{id}      → c.Destroy
type ResourceController interface {
	Index(w http.ResponseWriter, r *http.Request)
	Store(w http.ResponseWriter, r *http.Request)
	Show(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Destroy(w http.ResponseWriter, r *http.Request)
}

func (r *Router) Resource(pattern string, c ResourceController) {
	r.mux.Get(pattern, c.Index)
	r.mux.Post(pattern, c.Store)
	r.mux.Get(pattern+"/{id}", c.Show)
	r.mux.Put(pattern+"/{id}", c.Update)
	r.mux.Patch(pattern+"/{id}", c.Update)
	r.mux.Delete(pattern+"/{id}", c.Destroy)
}

// Param extracts a URL route parameter.
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// ServeHTTP implements http.Handler so Router can be passed to http.Server.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}
