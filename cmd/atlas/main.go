// Command atlas runs a demo HTTP service whose controllers and their
// dependencies are resolved from the container per request.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/app"
	"github.com/km-arc/go-atlas/framework/container"
	gohttp "github.com/km-arc/go-atlas/framework/http"
	"github.com/km-arc/go-atlas/framework/providers"
	"github.com/km-arc/go-atlas/framework/routing"
)

func main() {
	application, err := app.Load() // loads .env automatically
	if err != nil {
		zap.NewExample().Fatal("failed to create application", zap.Error(err))
	}

	if err := application.Register(&UserServiceProvider{}); err != nil {
		application.Logger().Fatal("failed to register users", zap.Error(err))
	}

	r := application.Router()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		gohttp.NewResponse(w).Success(map[string]any{"message": "Welcome to Atlas!"})
	})
	r.Prefix("/api/v1", func(api *routing.Router) {
		api.Controller(http.MethodGet, "/users", "users.index")
		api.Controller(http.MethodPost, "/users", "users.store")
		api.Controller(http.MethodGet, "/users/{id}", "users.show")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil {
		application.Logger().Fatal("server error", zap.Error(err))
	}
}

// ── Domain ───────────────────────────────────────────────────────────────────

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
}

// UserStore is an in-memory store shared by every request.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]User
	order []string
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]User)}
}

func (s *UserStore) All() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id])
	}
	return out
}

func (s *UserStore) Find(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *UserStore) Save(u User) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = uuid.NewString()
	s.users[u.ID] = u
	s.order = append(s.order, u.ID)
	return u
}

// Audit collects what one request did; it is scoped, so every request
// gets a fresh one that all of the request's services share.
type Audit struct {
	RequestID string
	logger    *zap.Logger
}

func (a *Audit) Record(action string, fields ...zap.Field) {
	a.logger.Info(action, append(fields, zap.String("request", a.RequestID))...)
}

// ── Controllers ──────────────────────────────────────────────────────────────

type UserController struct {
	app.Controller
	Users *UserStore
	Audit *Audit
}

func (c *UserController) Index(w http.ResponseWriter, r *http.Request) {
	c.Audit.Record("users listed")
	c.Response(w).Success(c.Users.All())
}

func (c *UserController) Store(w http.ResponseWriter, r *http.Request) {
	req, res := c.Request(r), c.Response(w)
	var u User
	if err := req.BindAndValidate(&u); err != nil {
		res.Fail(err)
		return
	}
	u = c.Users.Save(u)
	c.Audit.Record("user created", zap.String("user", u.ID))
	res.Created(u)
}

func (c *UserController) Show(w http.ResponseWriter, r *http.Request) {
	u, ok := c.Users.Find(routing.Param(r, "id"))
	if !ok {
		c.Response(w).NotFound()
		return
	}
	c.Response(w).Success(u)
}

// ── Provider ─────────────────────────────────────────────────────────────────

type UserServiceProvider struct {
	container.BaseProvider
}

func (p *UserServiceProvider) Register(c *container.Container) error {
	c.AddSingleton("users", NewUserStore)
	c.AddScoped("audit", func(r *http.Request, logger *zap.Logger) *Audit {
		return &Audit{RequestID: middleware.GetReqID(r.Context()), logger: logger}
	}, container.WithParams(gohttp.RequestKey, providers.LoggerKey))
	c.AddScoped("users.controller", func(store *UserStore, audit *Audit) *UserController {
		return &UserController{Controller: app.Controller{App: c}, Users: store, Audit: audit}
	}, container.WithParams("users", "audit"))

	for key, action := range map[string]func(*UserController) http.HandlerFunc{
		"users.index": func(uc *UserController) http.HandlerFunc { return uc.Index },
		"users.store": func(uc *UserController) http.HandlerFunc { return uc.Store },
		"users.show":  func(uc *UserController) http.HandlerFunc { return uc.Show },
	} {
		c.AddTransient(key, action, container.WithParams("users.controller"))
	}
	return nil
}
