package studio

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches the config file and invokes onChange after each
// write or create event. The returned stop function releases the watcher.
func WatchConfig(path string, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory: editors replace the file on save, which would
	// invalidate a watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Debug("watching config", "path", path)

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				log.Debug("config changed", "file", event.Name, "event", event.Op)
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug("config watch error", "path", path, "error", err)
			}
		}
	}()

	return func() {
		if err := watcher.Close(); err != nil {
			log.Error("failed to close config watcher", "path", path, "error", err)
		}
	}, nil
}
