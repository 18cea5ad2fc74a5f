package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes and invokes onChange
// with the freshly loaded config. It returns once stop is closed. Editors
// frequently replace config files instead of writing them in place, so the
// parent directory is watched and events are filtered by name.
func Watch(path string, onChange func(*Config), stop <-chan struct{}) error {
	if path == "" {
		path = DefaultFilename()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChange(Load(path))
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		case <-stop:
			return nil
		}
	}
}
