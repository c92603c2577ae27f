package telemetry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// WatchConfigFile reapplies path through Configure every time the file
// changes, until ctx ends. The directory is watched rather than the file so
// that editors which save by rename are picked up. A reload that fails
// validation is logged and leaves the running config in place.
//
// It blocks; run it on its own goroutine:
//
//	go func() { _ = telemetry.WatchConfigFile(ctx, client, "/etc/logfire.yaml") }()
func WatchConfigFile(ctx context.Context, c *Client, path string) error {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var debounce <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			debounce = time.After(reloadDebounce)
		case <-debounce:
			debounce = nil
			reloadConfigFile(c, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Config watcher error", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		case <-ctx.Done():
			return nil
		}
	}
}

func reloadConfigFile(c *Client, path string) {
	if err := c.Configure(c.ServiceName(), c.Environment(), WithConfigFile(path)); err != nil {
		c.logger.Error("Config reload failed", map[string]interface{}{
			"path":   path,
			"error":  err.Error(),
			"impact": "Keeping previous configuration",
		})
		return
	}
	c.logger.Info("Config reloaded", map[string]interface{}{"path": path})
}
