package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// WatchSettingsFile reloads the configuration whenever the settings file is
// rewritten on disk, so threshold and whitelist edits take effect without a
// restart. Editors often emit several events per save; reloads are debounced.
func WatchSettingsFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(settingsFilePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(settingsFilePath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
					timerC = timer.C
				} else {
					timer.Reset(watchDebounce)
				}
			case <-timerC:
				timer = nil
				timerC = nil
				log.Debug("Settings file changed on disk, reloading")
				ReadSettings()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Settings watcher error", "error", err)
			}
		}
	}()

	return nil
}
