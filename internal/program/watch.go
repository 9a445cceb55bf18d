package program

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDuration = 100 * time.Millisecond

// Watch reloads the programs file whenever it changes and hands the parsed
// programs to apply. It watches the parent directory so editors that replace
// the file are handled. A file that fails to parse is logged and skipped; the
// previously applied programs stay registered. Watch blocks until ctx ends.
func Watch(ctx context.Context, path string, logger *zap.Logger, apply func([]Program)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

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
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceDuration)

		case <-debounce.C:
			programs, err := LoadFile(abs)
			if err != nil {
				logger.Warn("programs reload failed", zap.String("path", abs), zap.Error(err))
				continue
			}
			logger.Info("programs reloaded", zap.String("path", abs), zap.Int("count", len(programs)))
			apply(programs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("programs watcher error", zap.Error(err))
		}
	}
}
