package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the holder's config file whenever it changes on disk and
// calls onReload with the new config. A reload that fails to parse or
// validate is logged and skipped — the last good config stays active.
// Blocks until ctx is canceled; run it in its own goroutine.
func Watch(ctx context.Context, holder *Holder, onReload func(*Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(holder.Path()); err != nil {
		return err
	}

	logger.Info("watching config file", slog.String("path", holder.Path()))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				// Editors that replace the file emit Rename/Remove then
				// Create; re-add the path so we keep following it.
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					_ = watcher.Add(holder.Path())
				}

				continue
			}

			cfg, loadErr := Load(holder.Path())
			if loadErr != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			holder.Update(cfg)

			logger.Info("config reloaded", slog.String("path", holder.Path()))

			if onReload != nil {
				onReload(cfg)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
