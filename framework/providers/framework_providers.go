package providers

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/config"
	"github.com/km-arc/go-atlas/framework/container"
	gohttp "github.com/km-arc/go-atlas/framework/http"
	"github.com/km-arc/go-atlas/framework/logging"
	"github.com/km-arc/go-atlas/framework/routing"
)

// Keys bound by the framework providers.
const (
	ConfigKey   = "config"
	LoggerKey   = "logger"
	RouterKey   = "router"
	RegistryKey = "metrics.registry"
	MetricsKey  = "metrics"
	HealthKey   = "health"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the application configuration as "config".
//
// Bound keys:
//   - "config"         → *config.Config
//   - "configuration"  → alias of "config"
//
// When Config is nil the configuration is loaded from File and EnvFiles
// on first use. When Container.WatchFile is set, Boot starts a watcher
// that rebinds "config" after every valid change.
type ConfigServiceProvider struct {
	container.BaseProvider
	Config   *config.Config
	File     string
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) error {
	if p.Config != nil {
		if err := app.Register(container.Singleton, ConfigKey, p.Config); err != nil {
			return err
		}
	} else {
		file, envFiles := p.File, p.EnvFiles
		if err := app.Register(container.Singleton, ConfigKey, func() (*config.Config, error) {
			return config.LoadFile(file, envFiles...)
		}); err != nil {
			return err
		}
	}
	return app.Alias(ConfigKey, "configuration")
}

func (p *ConfigServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	cfg, err := container.Resolve[*config.Config](ctx, app, ConfigKey)
	if err != nil {
		return err
	}
	if cfg.Container.WatchFile == "" {
		return nil
	}

	w := config.NewWatcher(cfg.Container.WatchFile, cfg, app.Logger(), p.EnvFiles...)
	w.OnChange(func(next *config.Config) {
		if err := app.Register(container.Singleton, ConfigKey, next); err != nil {
			app.Logger().Error("failed to rebind configuration", zap.Error(err))
		}
	})
	go func() {
		if err := w.Run(ctx); err != nil {
			app.Logger().Error("configuration watcher stopped", zap.Error(err))
		}
	}()
	return nil
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider binds the application logger as "logger". A nil
// Logger is built from the "config" log section.
type LoggingServiceProvider struct {
	container.BaseProvider
	Logger *zap.Logger
}

func (p *LoggingServiceProvider) Register(app *container.Container) error {
	if p.Logger != nil {
		return app.Register(container.Singleton, LoggerKey, p.Logger)
	}
	return app.Register(container.Singleton, LoggerKey, func(cfg *config.Config) (*zap.Logger, error) {
		return logging.New(cfg.Log)
	}, container.WithParams(ConfigKey))
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router and the request-scoped
// "request" entry.
//
// Bound keys:
//   - "router"   → *routing.Router
//   - "request"  → *http.Request (scoped)
type RoutingServiceProvider struct {
	container.BaseProvider
}

func (p *RoutingServiceProvider) Register(app *container.Container) error {
	if err := gohttp.RegisterRequest(app); err != nil {
		return err
	}
	return app.Register(container.Singleton, RouterKey, routing.New, container.WithParams(container.SelfKey))
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider exposes a Prometheus registry on the router.
//
// Bound keys:
//   - "metrics.registry"  → *prometheus.Registry
//   - "metrics"           → *container.Metrics, when Metrics is set
type MetricsServiceProvider struct {
	container.BaseProvider
	Registry *prometheus.Registry
	Metrics  *container.Metrics
	Path     string // default: "/metrics"
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func (p *MetricsServiceProvider) Register(app *container.Container) error {
	if p.Registry == nil {
		p.Registry = NewRegistry()
	}
	if err := app.Register(container.Singleton, RegistryKey, p.Registry); err != nil {
		return err
	}
	if p.Metrics == nil {
		return nil
	}
	return app.Register(container.Singleton, MetricsKey, p.Metrics)
}

func (p *MetricsServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	router, err := container.Resolve[*routing.Router](ctx, app, RouterKey)
	if err != nil {
		return err
	}
	path := p.Path
	if path == "" {
		path = "/metrics"
	}
	router.Handle(path, promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{Registry: p.Registry}))
	return nil
}

// ── HealthServiceProvider ─────────────────────────────────────────────────────

// HealthServiceProvider is deferred: the "health" controller is registered
// the first time it is resolved, normally by the first /healthz request.
type HealthServiceProvider struct {
	container.BaseProvider
}

func (p *HealthServiceProvider) IsDeferred() bool { return true }
func (p *HealthServiceProvider) Provides() []any  { return []any{HealthKey} }

func (p *HealthServiceProvider) Register(app *container.Container) error {
	return app.Register(container.Singleton, HealthKey, func(cfg *config.Config) http.Handler {
		return &healthHandler{app: app, name: cfg.App.Name}
	}, container.WithParams(ConfigKey))
}

type healthHandler struct {
	app  *container.Container
	name string
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	gohttp.NewResponse(w).Success(map[string]any{
		"status":   "ok",
		"app":      h.name,
		"services": len(h.app.Keys()),
	})
}
