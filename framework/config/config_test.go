package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-atlas/framework/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func missingEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(missingEnv(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"App.Name", cfg.App.Name, "Atlas"},
		{"App.Env", cfg.App.Env, "local"},
		{"App.Port", cfg.App.Port, "8000"},
		{"App.ShutdownTimeout", cfg.App.ShutdownTimeout, 10 * time.Second},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "console"},
		{"Container.StrictRebind", cfg.Container.StrictRebind, false},
		{"Container.MetricsNamespace", cfg.Container.MetricsNamespace, "atlas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("APP_NAME", "MyApp")
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("CONTAINER_STRICT_REBIND", "true")

	cfg, err := config.Load(missingEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "MyApp", cfg.App.Name)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, 3*time.Second, cfg.App.ShutdownTimeout)
	assert.True(t, cfg.Container.StrictRebind)
}

func TestLoad_AppDebugFalse(t *testing.T) {
	t.Setenv("APP_DEBUG", "false")
	cfg, err := config.Load(missingEnv(t))
	require.NoError(t, err)
	if cfg.App.Debug {
		t.Error("expected App.Debug to be false")
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	// godotenv never overrides variables that are already set.
	t.Setenv("LOG_FORMAT", "json")
	path := writeFile(t, "test.env", "LOG_LEVEL=debug\nLOG_FORMAT=console\n")
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFile_YAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, "app.yaml", `
app:
  name: FromYAML
  port: "7000"
  shutdown_timeout: 2s
container:
  metrics: true
  metrics_namespace: yaml_ns
`)
	t.Setenv("APP_PORT", "7100")

	cfg, err := config.LoadFile(path, missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "FromYAML", cfg.App.Name)
	assert.Equal(t, "7100", cfg.App.Port)
	assert.Equal(t, 2*time.Second, cfg.App.ShutdownTimeout)
	assert.True(t, cfg.Container.Metrics)
	assert.Equal(t, "yaml_ns", cfg.Container.MetricsNamespace)
	assert.Equal(t, "local", cfg.App.Env, "sections missing from the file keep their defaults")
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv(t))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "app: [unterminated")
	_, err = config.LoadFile(bad, missingEnv(t))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		valid  bool
	}{
		{"Defaults", func(*config.Config) {}, true},
		{"MissingName", func(c *config.Config) { c.App.Name = "" }, false},
		{"UnknownEnv", func(c *config.Config) { c.App.Env = "staging" }, false},
		{"NonNumericPort", func(c *config.Config) { c.App.Port = "http" }, false},
		{"BadURL", func(c *config.Config) { c.App.URL = "not a url" }, false},
		{"BadTracingEndpoint", func(c *config.Config) { c.Container.TracingEndpoint = "collector" }, false},
		{"TracingEndpoint", func(c *config.Config) { c.Container.TracingEndpoint = "localhost:4317" }, true},
		{"UnknownLogLevel", func(c *config.Config) { c.Log.Level = "verbose" }, false},
		{"MetricsWithoutNamespace", func(c *config.Config) {
			c.Container.Metrics = true
			c.Container.MetricsNamespace = ""
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_InvalidEnvironmentFails(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	_, err := config.Load(missingEnv(t))
	assert.Error(t, err)
}

// ── Get helpers ───────────────────────────────────────────────────────────────

func TestGet_Fallback(t *testing.T) {
	if got := config.Get("ATLAS_UNSET_KEY", "fallback"); got != "fallback" {
		t.Errorf("Get fallback: got %q", got)
	}
	t.Setenv("ATLAS_SET_KEY", "value")
	if got := config.Get("ATLAS_SET_KEY", "fallback"); got != "value" {
		t.Errorf("Get: got %q", got)
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("ATLAS_INT", "42")
	t.Setenv("ATLAS_NOT_INT", "forty-two")
	if got := config.GetInt("ATLAS_INT", 0); got != 42 {
		t.Errorf("GetInt: got %d, want 42", got)
	}
	if got := config.GetInt("ATLAS_NOT_INT", 7); got != 7 {
		t.Errorf("GetInt invalid: got %d, want fallback 7", got)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("ATLAS_BOOL", "true")
	if !config.GetBool("ATLAS_BOOL", false) {
		t.Error("GetBool: expected true")
	}
	if config.GetBool("ATLAS_UNSET_BOOL", false) {
		t.Error("GetBool fallback: expected false")
	}
}
