package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-atlas/framework/config"
)

func startWatcher(t *testing.T, path string) (*config.Watcher, <-chan *config.Config) {
	t.Helper()
	initial, err := config.LoadFile(path, missingEnv(t))
	require.NoError(t, err)

	w := config.NewWatcher(path, initial, nil, missingEnv(t))
	w.SetDebounce(10 * time.Millisecond)
	changes := make(chan *config.Config, 4)
	w.OnChange(func(cfg *config.Config) { changes <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the watcher time to register before the test writes.
	time.Sleep(50 * time.Millisecond)
	return w, changes
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "app.yaml", "app:\n  name: Before\n")
	w, changes := startWatcher(t, path)
	assert.Equal(t, "Before", w.Current().App.Name)

	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: After\n"), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, "After", cfg.App.Name)
		assert.Same(t, cfg, w.Current())
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after the file changed")
	}
}

func TestWatcher_KeepsConfigOnInvalidReload(t *testing.T) {
	path := writeFile(t, "app.yaml", "app:\n  name: Valid\n")
	w, changes := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: verbose\n"), 0o600))

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload to %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, "Valid", w.Current().App.Name)
}
