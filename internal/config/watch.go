package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceWindow coalesces the burst of Write/Chmod events most editors and
// `mv`-based atomic saves produce for a single logical change.
const debounceWindow = 200 * time.Millisecond

// Watch re-reads path whenever it changes on disk and invokes onChange with
// the freshly parsed Config, until ctx is cancelled. The containing
// directory is watched rather than the file itself so editors that save via
// rename-over (vim, most config-management tools) still trigger a reload.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		cfg, err := LoadConfigOptional(path, true)
		if err != nil {
			log.WithError(err).Warn("config: reload failed, keeping previous config")
			return
		}
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config: watcher error")
		}
	}
}
