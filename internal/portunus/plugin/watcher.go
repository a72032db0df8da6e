package plugin

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const watchOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch marks the cache stale whenever a manifest in the plugin directory
// is created, written, removed or renamed.  It returns once the watcher is
// running; the watch stops when ctx is done or Close is called.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugin watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return fmt.Errorf("plugin watcher: watch %s: %w", r.dir, err)
	}

	r.watchMu.Lock()
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.watcher = w
	r.watchMu.Unlock()

	go r.watchLoop(ctx, w)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			r.watchMu.Lock()
			if r.watcher == w {
				r.watcher = nil
			}
			r.watchMu.Unlock()
			w.Close()
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&watchOps == 0 {
				continue
			}
			if match, _ := filepath.Match(r.pattern, filepath.Base(ev.Name)); !match {
				continue
			}
			r.log.Debug("plugin directory changed", "path", ev.Name, "op", ev.Op.String())
			r.MarkStale()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warn("plugin watcher error", "error", err)
		}
	}
}
