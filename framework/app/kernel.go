package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/km-arc/go-atlas/framework/config"
	"github.com/km-arc/go-atlas/framework/container"
	gohttp "github.com/km-arc/go-atlas/framework/http"
	"github.com/km-arc/go-atlas/framework/logging"
	"github.com/km-arc/go-atlas/framework/providers"
	"github.com/km-arc/go-atlas/framework/routing"
	"github.com/km-arc/go-atlas/framework/tracing"
)

// Application is the top-level application container.
// It embeds the Container and ProviderRegistry so user code can call
// app.AddSingleton(), app.Make() and app.Register() directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
}

// Load reads the configuration from the environment and creates the
// application.
func Load(envFiles ...string) (*Application, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New creates the application for cfg and registers the framework
// providers.
func New(cfg *config.Config) (*Application, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &Application{config: cfg, logger: logger}

	opts := []container.Option{
		container.WithConfig(cfg),
		container.WithLogger(logger),
		container.WithStrictRebind(cfg.Container.StrictRebind),
	}

	var metrics *container.Metrics
	if cfg.Container.Metrics {
		a.registry = providers.NewRegistry()
		if metrics, err = container.NewMetrics(cfg.Container.MetricsNamespace, a.registry); err != nil {
			return nil, err
		}
		opts = append(opts, container.WithMetrics(metrics))
	}

	if cfg.Container.Tracing {
		a.tracer, err = tracing.NewProvider(context.Background(), tracing.Options{
			ServiceName: cfg.App.Name,
			Environment: cfg.App.Env,
			Endpoint:    cfg.Container.TracingEndpoint,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, container.WithTracerProvider(a.tracer))
	}

	a.Container = container.New(opts...)
	a.Providers = container.NewProviderRegistry(a.Container)

	// Framework core providers, in boot order.
	core := []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LoggingServiceProvider{Logger: logger},
		&providers.RoutingServiceProvider{},
		&providers.HealthServiceProvider{},
	}
	if a.registry != nil {
		core = append(core, &providers.MetricsServiceProvider{Registry: a.registry, Metrics: metrics})
	}
	for _, p := range core {
		if err := a.Register(p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers and mounts /healthz.
func (a *Application) Boot(ctx context.Context) error {
	if a.Providers.Booted() {
		return nil
	}
	a.Router().Controller(http.MethodGet, "/healthz", providers.HealthKey)
	return a.Providers.Boot(ctx)
}

// Config returns the configuration the application was created with.
func (a *Application) Config() *config.Config { return a.config }

// Router resolves *routing.Router from the container.
func (a *Application) Router() *routing.Router {
	return container.MustResolve[*routing.Router](context.Background(), a.Container, providers.RouterKey)
}

// Run boots the application (if needed) and serves HTTP on the
// configured port until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.config.App.Port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It shuts the server down
// gracefully, within App.ShutdownTimeout, once ctx is done.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.Boot(ctx); err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	a.logger.Info("application started",
		zap.String("app", a.config.App.Name),
		zap.String("env", a.config.App.Env),
		zap.String("addr", ln.Addr().String()))

	select {
	case err := <-served:
		a.shutdownTelemetry()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.App.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down", zap.Duration("timeout", a.config.App.ShutdownTimeout))
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	a.shutdownTelemetry()
	return err
}

func (a *Application) shutdownTelemetry() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.App.ShutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.config.App.Debug }
func (a *Application) Version() string     { return "0.1.0" }

// Controller is an embeddable base for HTTP controllers resolved from
// the container.
type Controller struct {
	App *container.Container
}

func (c *Controller) Request(r *http.Request) *gohttp.Request {
	return gohttp.NewRequest(r, c.App)
}

func (c *Controller) Response(w http.ResponseWriter) *gohttp.Response {
	return gohttp.NewResponse(w)
}
