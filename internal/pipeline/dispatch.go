package pipeline

import (
	"context"
	"strings"
	"sync"

	"aetherlens/internal/config"
	"aetherlens/internal/events"
	"aetherlens/internal/execenv"
	"aetherlens/internal/planner"
	"aetherlens/pkg/logging"
)

// dispatch runs every descriptor concurrently and returns exactly one result
// per descriptor, in plan order. The endpoint provider is started once, and
// only when the plan contains a visual test; a provisioning failure fails
// the visual tests but the rest still run.
func (c *Controller) dispatch(ctx context.Context, cfg config.Config, env execenv.Environment, targetDir string, tests []planner.TestDescriptor) []events.Result {
	var checker VisualChecker
	var provErr error
	if hasVisual(tests) {
		provider, err := c.newProvider(cfg, c.confirm)
		if err == nil {
			defer provider.Close()
			err = provider.Start(ctx)
		}
		if err != nil {
			provErr = &ProvisioningError{Stage: "endpoint", Err: err}
			c.logEvent(events.NewErrorLog(provErr.Error()))
		} else {
			checker = c.newChecker(provider.Endpoint(), cfg, targetDir)
			logging.Info("Pipeline", "endpoint ready at %s", provider.Endpoint())
		}
	}

	results := make([]events.Result, len(tests))
	var wg sync.WaitGroup
	for i := range tests {
		wg.Add(1)
		go func(i int, t planner.TestDescriptor) {
			defer wg.Done()
			results[i] = c.runOne(ctx, cfg, env, targetDir, t, checker, provErr)
		}(i, tests[i])
	}
	wg.Wait()
	return results
}

// runOne executes a single descriptor and emits its lifecycle events. A
// failing test is a result, never an error; siblings are not cancelled.
func (c *Controller) runOne(ctx context.Context, cfg config.Config, env execenv.Environment, targetDir string, t planner.TestDescriptor, checker VisualChecker, provErr error) events.Result {
	c.emitter.Emit(events.NewTestStarted(t.Label, t.Kind, cfg.Strategy))
	result := events.Result{Kind: t.Kind, Label: t.Label, Strategy: cfg.Strategy}
	baseline := ""

	switch t.Kind {
	case planner.KindVisual:
		if provErr != nil {
			result.Status = events.StatusFailed
			result.Error = provErr.Error()
			break
		}
		c.emitter.Emit(events.NewTestProgress(t.Label, "Capturing "+t.Path))
		outcome := checker.Check(ctx, t.Label, t.Path, t.Viewport)
		result.Artifact = outcome.Artifact
		baseline = outcome.Baseline
		if outcome.Passed {
			result.Status = events.StatusPassed
		} else {
			result.Status = events.StatusFailed
			result.Error = outcome.Error
		}

	case planner.KindSetup:
		if strings.TrimSpace(t.Command) == "" {
			result.Status = events.StatusSkipped
			break
		}
		result = c.runCommand(ctx, cfg, env, targetDir, t, result)

	default: // command
		result = c.runCommand(ctx, cfg, env, targetDir, t, result)
	}

	c.emitter.Emit(events.NewTestFinished(t.Label, result.Status, result.Error, result.Artifact, baseline))
	return result
}

// runCommand executes a command descriptor in its environment. A descriptor
// pinned to the local environment runs on the host regardless of the
// configured environment.
func (c *Controller) runCommand(ctx context.Context, cfg config.Config, env execenv.Environment, targetDir string, t planner.TestDescriptor, result events.Result) events.Result {
	runEnv := env
	if t.ExecutionEnv == config.ExecutionEnvLocal {
		runEnv = c.localEnv
	}
	c.emitter.Emit(events.NewTestProgress(t.Label, "Running: "+t.Command))
	r := runEnv.Run(ctx, t.Command, targetDir)
	result.Artifact = r.Artifact
	if r.Success {
		result.Status = events.StatusPassed
	} else {
		result.Status = events.StatusFailed
		result.Error = r.Output
	}
	return result
}

func hasVisual(tests []planner.TestDescriptor) bool {
	for _, t := range tests {
		if t.Kind == planner.KindVisual {
			return true
		}
	}
	return false
}
