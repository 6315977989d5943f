package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"focusguard/internal/core/model"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the bursts of events editors produce on save.
const DefaultReloadDebounce = 200 * time.Millisecond

// WatchSettings reloads path whenever it changes and passes the result to
// onChange until ctx ends. The parent directory is watched so atomic
// rename-on-save is seen. A file that fails to parse is logged and skipped.
func WatchSettings(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func(model.Settings)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(debounce)
			case <-timer.C:
				settings, err := LoadSettings(path, logger)
				if err != nil {
					logger.Warn("settings reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("settings reloaded", "path", path)
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", "error", err)
			}
		}
	}()
	return nil
}
