package pipeline

import (
	"context"
	"fmt"
	"strings"

	"aetherlens/internal/config"
	"aetherlens/internal/events"
	"aetherlens/pkg/logging"
)

// watchKey namespaces watch handles in the registry so a run's service
// handles for the same directory are not drained by StopWatch.
func watchKey(dir string) string { return dir + "::watch" }

// StartWatch begins a dev loop on targetDir: every debounced change triggers
// a pipeline run with a fresh diff. At most one watch per directory.
func (c *Controller) StartWatch(ctx context.Context, targetDir string, opts Options) error {
	if c.registry.Has(watchKey(targetDir)) {
		return fmt.Errorf("already watching %s", targetDir)
	}
	cfg, err := config.Load(targetDir, opts.Overrides)
	if err != nil {
		return &ConfigError{Err: err}
	}

	handle, err := c.newWatcher(targetDir, cfg.DevLoop.Debounce(), func(path string) {
		c.logEvent(events.NewLog(fmt.Sprintf("Change detected in %s, re-running pipeline", path)))
		runOpts := opts
		runOpts.Diff = "" // re-read the change set each trigger
		if _, rerr := c.RunPipeline(ctx, targetDir, runOpts); rerr != nil {
			logging.Error("Pipeline", rerr, "watch-triggered run failed for %s", targetDir)
		}
	})
	if err != nil {
		return fmt.Errorf("starting watcher for %s: %w", targetDir, err)
	}

	c.registry.Register(watchKey(targetDir), handle)
	c.logEvent(events.NewLog(fmt.Sprintf("Watching %s", targetDir)))
	return nil
}

// StopWatch stops the watch on targetDir. Returns false when none exists.
func (c *Controller) StopWatch(targetDir string) bool {
	stopped := c.registry.Stop(watchKey(targetDir))
	if stopped {
		c.logEvent(events.NewLog(fmt.Sprintf("Stopped watching %s", targetDir)))
	}
	return stopped
}

// ListWatches returns the directories currently being watched.
func (c *Controller) ListWatches() []string {
	var dirs []string
	for _, key := range c.registry.Active() {
		if dir, ok := strings.CutSuffix(key, "::watch"); ok {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
