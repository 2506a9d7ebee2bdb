// Package watcher drives the dev loop: it watches a project tree for file
// changes and invokes a callback, debounced so bursts of writes from editors
// and code generators trigger a single run.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aetherlens/pkg/logging"
)

// DefaultDebounce is used when no debounce window is configured.
const DefaultDebounce = 2 * time.Second

// ignoredDirs are never watched and never trigger the callback.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".astro":       true,
	"__pycache__":  true,
	".aether":      true,
}

// Callback is invoked with the path that triggered a (debounced) change.
type Callback func(path string)

// Watcher watches a directory tree recursively and dispatches debounced
// change notifications on its own goroutine, so a slow callback never blocks
// event intake.
type Watcher struct {
	root     string
	debounce time.Duration
	callback Callback

	fsw      *fsnotify.Watcher
	pending  chan string
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	lastFired time.Time

	// now is swapped in tests.
	now func() time.Time
}

// New creates a watcher over root. A non-positive debounce falls back to
// DefaultDebounce.
func New(root string, debounce time.Duration, callback Callback) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		callback: callback,
		fsw:      fsw,
		pending:  make(chan string, 64),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive registers root and all non-ignored subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignored reports whether path sits under an ignored directory.
func ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}

// Start runs the watch loop until ctx is cancelled or Stop is called. It
// blocks; run it on its own goroutine for background watches.
func (w *Watcher) Start(ctx context.Context) error {
	go w.dispatchLoop()
	defer close(w.pending)

	logging.Info("Watcher", "watching %s (debounce %s)", w.root, w.debounce)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Watcher", "watch error: %v", err)
		}
	}
}

// handleEvent applies the ignore list, tracks newly created directories, and
// forwards debounced changes to the dispatch loop.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logging.Warn("Watcher", "watching new directory %s: %v", event.Name, err)
			}
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	now := w.now()
	fire := now.Sub(w.lastFired) > w.debounce
	if fire {
		w.lastFired = now
	}
	w.mu.Unlock()
	if !fire {
		logging.Debug("Watcher", "change to %s suppressed by debounce", event.Name)
		return
	}

	select {
	case w.pending <- event.Name:
	default:
		logging.Warn("Watcher", "dispatch queue full, dropping change to %s", event.Name)
	}
}

// dispatchLoop runs callbacks away from the event loop.
func (w *Watcher) dispatchLoop() {
	for path := range w.pending {
		logging.Info("Watcher", "change detected: %s", path)
		w.callback(path)
	}
}

// Stop terminates the watch loop. Safe to call more than once; implements
// the lifecycle handle contract.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
