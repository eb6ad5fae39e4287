package config

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the streaming section of path whenever the file changes,
// until ctx is cancelled. The parent directory is watched so editors that
// save by rename are picked up too.
func Watch(ctx context.Context, path string, s *Settings, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := s.Reload(path); err != nil {
					logger.Printf("config reload failed: %v", err)
					continue
				}
				logger.Printf("config reloaded: load radius %d, hysteresis %d, budget %d",
					s.LoadRadius(), s.EvictHysteresis(), s.MaxChunksPerTick())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Printf("config watch: %v", err)
			}
		}
	}()
	return nil
}
