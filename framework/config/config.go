package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the central typed configuration struct.
// Embed or extend it in your app's own AppConfig.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	Container ContainerConfig `yaml:"container"`
}

type AppConfig struct {
	Name            string        `yaml:"name" validate:"required"`
	Env             string        `yaml:"env" validate:"oneof=local production testing"`
	Debug           bool          `yaml:"debug"`
	URL             string        `yaml:"url" validate:"omitempty,url"`
	Port            string        `yaml:"port" validate:"required,numeric"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// ContainerConfig tunes the dependency-injection container. WatchFile is
// the YAML file reloaded on change, empty to disable hot reloading.
type ContainerConfig struct {
	StrictRebind     bool   `yaml:"strict_rebind"`
	Metrics          bool   `yaml:"metrics"`
	MetricsNamespace string `yaml:"metrics_namespace" validate:"required_if=Metrics true"`
	Tracing          bool   `yaml:"tracing"`
	TracingEndpoint  string `yaml:"tracing_endpoint" validate:"omitempty,hostname_port"`
	WatchFile        string `yaml:"watch_file"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:            "Atlas",
			Env:             "local",
			Debug:           true,
			URL:             "http://localhost",
			Port:            "8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Container: ContainerConfig{
			MetricsNamespace: "atlas",
		},
	}
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg, err := config.Load()
func Load(envFiles ...string) (*Config, error) {
	return LoadFile("", envFiles...)
}

// LoadFile is Load with a YAML file applied between the defaults and the
// environment. Environment variables always win.
//
//	cfg, err := config.LoadFile("config/app.yaml")
func LoadFile(path string, envFiles ...string) (*Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	c.App.Name = env("APP_NAME", c.App.Name)
	c.App.Env = env("APP_ENV", c.App.Env)
	c.App.Debug = envBool("APP_DEBUG", c.App.Debug)
	c.App.URL = env("APP_URL", c.App.URL)
	c.App.Port = env("APP_PORT", c.App.Port)
	c.App.ShutdownTimeout = envDuration("APP_SHUTDOWN_TIMEOUT", c.App.ShutdownTimeout)

	c.Log.Level = env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env("LOG_FORMAT", c.Log.Format)

	c.Container.StrictRebind = envBool("CONTAINER_STRICT_REBIND", c.Container.StrictRebind)
	c.Container.Metrics = envBool("CONTAINER_METRICS", c.Container.Metrics)
	c.Container.MetricsNamespace = env("CONTAINER_METRICS_NAMESPACE", c.Container.MetricsNamespace)
	c.Container.Tracing = envBool("CONTAINER_TRACING", c.Container.Tracing)
	c.Container.TracingEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", c.Container.TracingEndpoint)
	c.Container.WatchFile = env("CONTAINER_WATCH_FILE", c.Container.WatchFile)
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
