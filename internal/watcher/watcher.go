// Package watcher keeps the code graph current while the workspace changes
// on disk. Filesystem events are debounced so one save burst becomes one
// re-index batch.
package watcher

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codegraph/internal/parser"
)

// DefaultDebounce batches rapid successive events for the same edit.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives debounced filesystem changes. Changed paths exist and
// should be re-parsed; removed paths are gone and should leave the graph.
type Handler interface {
	FilesChanged(paths []string)
	FilesRemoved(paths []string)
}

type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]bool
	removed map[string]bool
	timer   *time.Timer
}

func New(handler Handler, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsw,
		handler:   handler,
		debounce:  debounce,
		pending:   map[string]bool{},
		removed:   map[string]bool{},
	}, nil
}

// Watch registers root and every subdirectory. Directories created later
// are picked up from create events in the run loop.
func (w *Watcher) Watch(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != root && (name == ".git" || name == "node_modules" || name == "__pycache__") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch before files inside them
	// produce events. Adding a file path is harmless.
	if event.Op.Has(fsnotify.Create) {
		_ = w.fsWatcher.Add(event.Name)
	}

	if !parser.Supported(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.removed[event.Name] = true
		delete(w.pending, event.Name)
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.pending[event.Name] = true
		delete(w.removed, event.Name)
	default:
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changed := keys(w.pending)
	removed := keys(w.removed)
	w.pending = map[string]bool{}
	w.removed = map[string]bool{}
	w.mu.Unlock()

	if len(changed) > 0 {
		w.handler.FilesChanged(changed)
	}
	if len(removed) > 0 {
		w.handler.FilesRemoved(removed)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
