package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes every valid
// configuration to apply. Invalid edits are logged and ignored, so the last
// good configuration stays active.
//
// The parent directory is watched rather than the file itself, since most
// editors save by renaming a temporary file over the original.
//
// Arguments:
//   - ctx: Stops the watcher.
//   - path: The configuration file.
//   - logger: Receives reload results.
//   - apply: Called with each newly loaded configuration.
//
// Returns:
//   - error: nil when ctx is done, otherwise a watcher error.
//
// @example
// go config.Watch(ctx, path, logger, func(cfg *config.Config) {
//     detector.UpdateConfig(cfg.Motion)
// })
func Watch(ctx context.Context, path string, logger *zap.Logger, apply func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))

		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				logger.Warn("config reload rejected", zap.String("path", abs), zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.String("path", abs))
			apply(cfg)
		}
	}
}
