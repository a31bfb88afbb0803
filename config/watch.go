package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more changes before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the configuration whenever one of the loader's files
// changes and passes the result to onChange. Invalid configurations are
// logged and skipped. Watch blocks until ctx is done.
//
// The parent directories are watched rather than the files so that editors
// which replace files on save are still seen.
func (l *Loader) Watch(ctx context.Context, debounce time.Duration, onChange func(*Config)) error {
	files := l.Files()
	if len(files) == 0 {
		<-ctx.Done()
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	watched := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := fsw.Add(filepath.Dir(abs)); err != nil {
			return err
		}
	}
	l.logger.Info("Watching config files", "files", files)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("Config watcher error", "error", err)

		case <-timer.C:
			cfg, err := l.Load()
			if err != nil {
				l.logger.Warn("Config reload failed, keeping previous config", "error", err)
				continue
			}
			l.logger.Info("Config reloaded", slog.Int("files", len(files)))
			onChange(cfg)
		}
	}
}
