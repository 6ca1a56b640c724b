package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes and passes the result to onChange,
// from a goroutine of its own, until ctx is done. The directory is watched
// rather than the file so editors that replace the file are followed.
// A failed reload is passed as an error and the previous settings stay in
// the caller's hands.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(*File, error)) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
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
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				log.Debug("config: reloading", "path", abs, "op", ev.Op.String())
				onChange(Load(abs))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config: watcher", "err", err)
			}
		}
	}()
	return nil
}
