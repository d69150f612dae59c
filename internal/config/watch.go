package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadQuiet is how long Watch waits after the last write event before
// reloading, so editors that save in several writes trigger one reload.
const reloadQuiet = 250 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file settles after a write. It runs until ctx is cancelled.
//
// A failed reload (invalid YAML, rejected knob) is logged and the previous
// config stays active; onChange is only called with configs that passed
// validation.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var quiet *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic-save editors replace the file by rename, which arrives
			// as Create; plain saves arrive as Write. Everything else is noise.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if quiet == nil {
				quiet = time.NewTimer(reloadQuiet)
			} else {
				quiet.Reset(reloadQuiet)
			}
			pending = quiet.C

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

			// Re-add the watch in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
