package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/logging"
)

// debounceWindow absorbs the burst of rename+create events most editors
// produce for a single logical save (write to a temp file, then rename
// over the original).
const debounceWindow = 250 * time.Millisecond

// watcher holds the fsnotify handle behind Configuration.Watch, kept
// separate so Configuration itself stays free of fsnotify's API surface.
type watcher struct {
	fsw   *fsnotify.Watcher
	timer *time.Timer
	mu    sync.Mutex
	done  chan struct{}
}

// Watch starts watching the file this Configuration was last loaded from
// for external edits, reloading and re-publishing Changed whenever the
// file settles after a write. Reload failures (a half-written or
// momentarily invalid document) are logged and otherwise ignored — the
// in-memory tree is left untouched until a subsequent edit parses clean.
// Calling Watch a second time replaces any watch already in progress.
func (c *Configuration) Watch() error {
	c.mu.RLock()
	path := c.filePath
	c.mu.RUnlock()
	if path == "" {
		return errkind.NewValidation("cannot watch: configuration has no associated file")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return err
	}

	c.stopWatch()

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()

	go w.run(path, c)
	return nil
}

// StopWatch stops a watch started by Watch. Safe to call even if no watch
// is in progress.
func (c *Configuration) StopWatch() {
	c.stopWatch()
}

func (c *Configuration) stopWatch() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w == nil {
		return
	}
	close(w.done)
	w.fsw.Close()
}

func (w *watcher) run(path string, c *Configuration) {
	for {
		select {
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(debounceWindow, func() {
				if err := c.Load(path); err != nil {
					logging.WithField("path", path).Warnf("config watch: reload failed: %v", err)
				}
			})
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.WithField("path", path).Warnf("config watch: %v", err)
		case <-w.done:
			return
		}
	}
}
