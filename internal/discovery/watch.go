package discovery

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "crossfit/pkg/logx"
)

// Watch re-reads the discovery document whenever the site rewrites it and
// delivers each parseable snapshot to onUpdate. Used by watch mode so
// scheduled re-runs see plugin/theme changes made between cycles.
//
// Events are debounced: the helper writes whole files, but editors of the
// underlying FS (and the VM's flush behaviour) can surface one logical
// rewrite as several events.
func Watch(ctx context.Context, path string, log logx.Logger, onUpdate func(*Document)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	file := filepath.Base(path)
	log.Debug("discovery watcher started", logx.String("path", path))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			doc, err := Read(path, log)
			if err != nil {
				log.Warn("discovery reload failed", logx.String("path", path), logx.Err(err))
				return
			}
			onUpdate(doc)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				log.Warn("discovery watch error", logx.Err(err))
			}
		}
	}
}
