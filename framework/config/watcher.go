package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a YAML config file when it changes on disk and hands
// every valid, different result to its callbacks.
type Watcher struct {
	path     string
	envFiles []string
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
}

// NewWatcher watches path, starting from initial. logger may be nil.
func NewWatcher(path string, initial *Config, logger *zap.Logger, envFiles ...string) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		envFiles: envFiles,
		logger:   logger,
		debounce: defaultDebounce,
		current:  initial,
	}
}

// SetDebounce changes how long the watcher waits for writes to settle.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Current returns the last loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run blocks, reloading on change, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	// Editors often replace the file, so watch its directory.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("configuration hot reloading enabled", zap.String("file", w.path))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := LoadFile(w.path, w.envFiles...)
	if err != nil {
		w.logger.Error("invalid configuration after reload", zap.String("file", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	if reflect.DeepEqual(w.current, next) {
		w.mu.Unlock()
		w.logger.Debug("configuration unchanged after reload")
		return
	}
	w.current = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	for _, callback := range callbacks {
		callback(next)
	}
	w.logger.Info("configuration reloaded",
		zap.String("file", w.path),
		zap.Int("callbacks_notified", len(callbacks)))
}
