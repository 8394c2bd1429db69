package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"go-pianoroll/debug"
)

// DebounceDelay merges the burst of events an editor save produces
const DebounceDelay = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands the result to onChange
// until ctx ends. The parent directory is watched so that editors that
// replace the file on save are seen too.
func Watch(ctx context.Context, path string, onChange func(*Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(DebounceDelay)
				} else {
					timer.Reset(DebounceDelay)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				cfg, err := LoadFile(abs)
				debug.Log("config", "reloaded %s err=%v", abs, err)
				onChange(cfg, err)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				onChange(nil, err)
			}
		}
	}()
	return nil
}
