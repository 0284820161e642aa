package fleetfile

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the fleet whenever a YAML document in the directory is
// written, created, removed or renamed, calling onReload after each
// successful reload. It runs until ctx is cancelled.
//
// A failed reload is logged and the previous fleet remains active.
func (s *Source) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	slog.Info("fleet: watching for changes", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isMachineFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			if err := s.Reload(); err != nil {
				slog.Error("fleet: reload failed, keeping previous fleet", "dir", s.dir, "err", err)
				continue
			}

			slog.Info("fleet: reloaded", "dir", s.dir, "trigger", event.Name)
			if onReload != nil {
				onReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("fleet: watcher error", "err", err)
		}
	}
}

func isMachineFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
