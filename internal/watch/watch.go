// Package watch reloads the pattern set when files in the pattern directory
// change. Bursts of events (editors write, rename and chmod in one save) are
// collapsed into one reload.
package watch

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"blockpatterns.dev/internal/catalogs"
)

const DefaultDebounce = 250 * time.Millisecond

type ReloadFunc func(ctx context.Context) error

type Watcher struct {
	dir      string
	debounce time.Duration
	reload   ReloadFunc
	log      *log.Logger

	fw      *fsnotify.Watcher
	reloads atomic.Uint64
	failed  atomic.Uint64
}

func New(dir string, debounce time.Duration, reload ReloadFunc, logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{dir: dir, debounce: debounce, reload: reload, log: logger, fw: fw}, nil
}

// Reloads counts reload attempts; Failed counts the ones that returned an
// error.
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }
func (w *Watcher) Failed() uint64  { return w.failed.Load() }

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("watch %s: %v", w.dir, err)
		case <-timerC:
			timerC = nil
			w.reloads.Add(1)
			if err := w.reload(ctx); err != nil {
				w.failed.Add(1)
				w.log.Printf("reload after change in %s failed: %v", w.dir, err)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !catalogs.IsPatternFile(ev.Name) {
		return false
	}
	// Editors leave dotfiles and swap files next to the real one.
	if base := filepath.Base(ev.Name); len(base) > 0 && base[0] == '.' {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
