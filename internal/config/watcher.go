package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// settleDelay lets editors finish writing before the file is re-read.
const settleDelay = time.Second / 10

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-watcher.Errors:
		return err
	case <-watcher.Events:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleDelay):
	}
	return ctx.Err()
}

// Watch calls onChange with the new configuration every time path changes,
// until ctx is cancelled. Files that fail to load are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(Config)) {
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for file change: %v", err)
				time.Sleep(time.Second)
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			log.WithField("path", path).Info("Configuration reloaded")
			onChange(cfg)
		}
	}()
}
