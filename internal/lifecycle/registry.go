// Package lifecycle tracks background resources (watchers, processes,
// compose projects) per target directory so a stop request can tear down
// everything started for that directory.
package lifecycle

import (
	"sync"

	"aetherlens/pkg/logging"
)

// Handle is anything with stop semantics. Every background-resource wrapper
// implements it explicitly.
type Handle interface {
	Stop() error
}

// HandleFunc adapts a function into a Handle.
type HandleFunc func() error

// Stop implements Handle.
func (f HandleFunc) Stop() error { return f() }

// Registry maps target directories to the background resources started for
// them. It is the only shared-mutable-state structure in the engine and is
// guarded by a single mutex. Instances are constructor-injected, never
// reached through a package-level singleton.
type Registry struct {
	mu        sync.Mutex
	resources map[string][]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string][]Handle)}
}

// Register appends a handle for the directory. Registering for a directory
// that already has entries does not clear them.
func (r *Registry) Register(targetDir string, handle Handle) {
	if handle == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[targetDir] = append(r.resources[targetDir], handle)
}

// Stop terminates all handles registered for the directory and removes the
// entry. Per-handle errors are logged and swallowed so one failing teardown
// does not block the rest. It reports whether anything was found to stop.
func (r *Registry) Stop(targetDir string) bool {
	r.mu.Lock()
	handles, ok := r.resources[targetDir]
	if ok {
		delete(r.resources, targetDir)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	for _, h := range handles {
		if err := h.Stop(); err != nil {
			logging.Warn("Lifecycle", "failed to stop resource for %s: %v", targetDir, err)
		}
	}
	return true
}

// Active returns the directories that currently have registered resources.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	dirs := make([]string, 0, len(r.resources))
	for dir := range r.resources {
		dirs = append(dirs, dir)
	}
	return dirs
}

// Has reports whether the directory has any registered resources.
func (r *Registry) Has(targetDir string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources[targetDir]) > 0
}

// StopAll drains every entry in the registry.
func (r *Registry) StopAll() {
	for _, dir := range r.Active() {
		r.Stop(dir)
	}
}
