package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records callback invocations.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) record(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func newTestWatcher(t *testing.T, debounce time.Duration, cb Callback) *Watcher {
	t.Helper()
	w, err := New(t.TempDir(), debounce, cb)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestHandleEvent_DebounceSuppressesBursts(t *testing.T) {
	col := &collector{}
	w := newTestWatcher(t, 2*time.Second, col.record)

	clock := time.Unix(1000, 0)
	w.now = func() time.Time { return clock }

	// Two writes half a second apart land inside one debounce window.
	w.handleEvent(fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Write})
	clock = clock.Add(500 * time.Millisecond)
	w.handleEvent(fsnotify.Event{Name: "/p/b.go", Op: fsnotify.Write})

	assert.Equal(t, 1, drainPending(w))
}

func TestHandleEvent_FiresAgainAfterWindow(t *testing.T) {
	col := &collector{}
	w := newTestWatcher(t, 2*time.Second, col.record)

	clock := time.Unix(1000, 0)
	w.now = func() time.Time { return clock }

	w.handleEvent(fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Write})
	clock = clock.Add(3 * time.Second)
	w.handleEvent(fsnotify.Event{Name: "/p/b.go", Op: fsnotify.Write})

	assert.Equal(t, 2, drainPending(w))
}

func TestHandleEvent_IgnoredDirectories(t *testing.T) {
	col := &collector{}
	w := newTestWatcher(t, time.Second, col.record)

	for _, path := range []string{
		"/p/.git/HEAD",
		"/p/node_modules/pkg/index.js",
		"/p/.astro/types.d.ts",
		"/p/__pycache__/mod.pyc",
		"/p/.aether/history/latest.json",
	} {
		w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	}

	assert.Equal(t, 0, drainPending(w))
}

func TestHandleEvent_ChmodDoesNotTrigger(t *testing.T) {
	col := &collector{}
	w := newTestWatcher(t, time.Second, col.record)

	w.handleEvent(fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Chmod})
	assert.Equal(t, 0, drainPending(w))
}

// drainPending counts queued dispatches without running the dispatch loop.
func drainPending(w *Watcher) int {
	n := 0
	for {
		select {
		case <-w.pending:
			n++
		default:
			return n
		}
	}
}

func TestWatcher_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	col := &collector{}
	w, err := New(dir, 100*time.Millisecond, col.record)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(100 * time.Millisecond) // let the loop come up
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.astro"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return col.count() >= 1 },
		2*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), time.Second, func(string) {})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	assert.NotPanics(t, func() { w.Stop() })
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored("/p/node_modules/x.js"))
	assert.True(t, ignored("/p/sub/.git/config"))
	assert.False(t, ignored("/p/src/components/Nav.astro"))
}
