// Package pipeline orchestrates a test run: prepare infrastructure, analyze
// the change set, guard quality, execute the plan, and clean up. The
// Controller is the single entry point shared by the CLI, the watch loop,
// and the MCP surface.
package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"aetherlens/internal/config"
	"aetherlens/internal/endpoint"
	"aetherlens/internal/events"
	"aetherlens/internal/execenv"
	"aetherlens/internal/lifecycle"
	"aetherlens/internal/planner"
	"aetherlens/internal/visual"
	"aetherlens/internal/watcher"
	"aetherlens/pkg/logging"
)

// Options are the call-time parameters for one run. Diff, when set, skips
// reading the change set from version control (the watch loop and RPC
// callers push their own). Force runs the full plan even with no changes.
type Options struct {
	Diff      string
	Force     bool
	Overrides config.Overrides
}

// VisualChecker abstracts the screenshot-and-compare collaborator.
type VisualChecker interface {
	Check(ctx context.Context, label, pagePath, viewport string) visual.Outcome
}

// Reporter receives the final result set for export.
type Reporter interface {
	Export(targetDir string, session Session) error
}

// Controller runs pipelines. It keeps no per-run state; concurrent runs on
// different directories are safe.
type Controller struct {
	registry *lifecycle.Registry
	emitter  *events.Emitter
	reporter Reporter
	confirm  endpoint.ConfirmFunc

	// collaborator factories, swapped in tests
	newPlanner  func(dir string) planner.Planner
	newProvider func(cfg config.Config, confirm endpoint.ConfirmFunc) (endpoint.Provider, error)
	newChecker  func(endpointURL string, cfg config.Config, dir string) VisualChecker
	newWatcher  func(dir string, debounce time.Duration, cb watcher.Callback) (lifecycle.Handle, error)
	selectEnv   func(cfg config.Config, dir string) (execenv.Environment, error)
	localEnv    execenv.Environment

	lookPath          func(string) (string, error)
	startProcess      func(ctx context.Context, dir string, svc config.ServiceSpec) (lifecycle.Handle, error)
	runServiceCommand func(ctx context.Context, dir, command string) error
	waitHealthy       func(ctx context.Context, url string, timeout time.Duration) error
	readDiff          func(ctx context.Context, dir string) string
}

// NewController wires a Controller with production collaborators. reporter
// may be nil when no export surface is configured.
func NewController(registry *lifecycle.Registry, emitter *events.Emitter, reporter Reporter, confirm endpoint.ConfirmFunc) *Controller {
	if confirm == nil {
		confirm = endpoint.AutoConfirm
	}
	return &Controller{
		registry: registry,
		emitter:  emitter,
		reporter: reporter,
		confirm:  confirm,

		newPlanner:  func(dir string) planner.Planner { return planner.NewStatic(dir) },
		newProvider: endpoint.New,
		newChecker: func(endpointURL string, cfg config.Config, dir string) VisualChecker {
			return visual.NewChecker(endpointURL, cfg.AppURL, dir, 0)
		},
		newWatcher: func(dir string, debounce time.Duration, cb watcher.Callback) (lifecycle.Handle, error) {
			w, err := watcher.New(dir, debounce, cb)
			if err != nil {
				return nil, err
			}
			go w.Start(context.Background())
			return w, nil
		},
		selectEnv: execenv.Select,
		localEnv:  execenv.NewLocal(),

		lookPath:          exec.LookPath,
		startProcess:      defaultStartProcess,
		runServiceCommand: defaultRunServiceCommand,
		waitHealthy:       defaultWaitHealthy,
		readDiff:          readGitDiff,
	}
}

// RunPipeline executes all phases for targetDir and returns one result per
// planned test. Cleanup always runs: background services stop, history is
// persisted, and the final ResultEvent is emitted, even when a phase fails.
func (c *Controller) RunPipeline(ctx context.Context, targetDir string, opts Options) (results []events.Result, err error) {
	c.logEvent(events.NewLog(fmt.Sprintf("Starting pipeline for %s", targetDir)))

	cfg, cfgErr := config.Load(targetDir, opts.Overrides)
	if cfgErr != nil {
		return nil, &ConfigError{Err: cfgErr}
	}
	env, envErr := c.selectEnv(cfg, targetDir)
	if envErr != nil {
		return nil, &ConfigError{Err: envErr}
	}

	executed := false
	defer func() {
		if executed {
			saveSession(targetDir, cfg.Strategy, results)
			if c.reporter != nil && cfg.AllureStrategy != "none" {
				if rerr := c.reporter.Export(targetDir, Session{Strategy: cfg.Strategy, Results: results}); rerr != nil {
					logging.Warn("Pipeline", "exporting report: %v", rerr)
				}
			}
			c.emitter.Emit(events.NewResult(results))
		}
		if c.registry.Stop(targetDir) {
			logging.Debug("Pipeline", "stopped background services for %s", targetDir)
		}
	}()

	// Preparation
	if perr := c.startServices(ctx, cfg, targetDir); perr != nil {
		c.logEvent(events.NewErrorLog(perr.Error()))
		return nil, perr
	}
	if perr := c.runDeployment(ctx, cfg, targetDir); perr != nil {
		c.logEvent(events.NewErrorLog(perr.Error()))
		return nil, perr
	}

	// Analysis
	diff := opts.Diff
	if diff == "" {
		diff = c.readDiff(ctx, targetDir)
	}
	if strings.TrimSpace(diff) == "" && !opts.Force {
		c.logEvent(events.NewLog("No changes detected"))
		return nil, nil
	}
	plan, planErr := c.plan(ctx, cfg, targetDir, diff)
	if planErr != nil {
		return nil, planErr
	}
	tests := plan.Tests

	// Quality Guard
	tests = append(qualityDescriptors(cfg), tests...)
	c.logEvent(events.NewLog(fmt.Sprintf("Executing %d test(s)", len(tests))))

	// Execution
	executed = true
	results = c.dispatch(ctx, cfg, env, targetDir, tests)
	return results, nil
}

// GetInsight runs analysis only, without provisioning or execution. It goes
// through the same planning path as a run, so comma-separated strategies
// produce the same merged, deduped recommendation set.
func (c *Controller) GetInsight(ctx context.Context, targetDir string, opts Options) (planner.Plan, error) {
	cfg, err := config.Load(targetDir, opts.Overrides)
	if err != nil {
		return planner.Plan{}, &ConfigError{Err: err}
	}
	diff := opts.Diff
	if diff == "" {
		diff = c.readDiff(ctx, targetDir)
	}
	return c.plan(ctx, cfg, targetDir, diff)
}

// plan invokes the planner once per comma-separated strategy label and
// merges the recommendations, first seen wins. The change classification
// comes from the first strategy's analysis.
func (c *Controller) plan(ctx context.Context, cfg config.Config, targetDir, diff string) (planner.Plan, error) {
	p := c.newPlanner(targetDir)
	var merged planner.Plan
	var lists [][]planner.TestDescriptor
	for _, strat := range strings.Split(cfg.Strategy, ",") {
		strat = strings.TrimSpace(strat)
		if strat == "" {
			continue
		}
		plan, err := p.Analyze(ctx, diff, "", strat, cfg.CustomInstruction)
		if err != nil {
			return planner.Plan{}, fmt.Errorf("planning for strategy %q: %w", strat, err)
		}
		if merged.ChangeType == "" {
			merged.ChangeType = plan.ChangeType
			merged.ImpactAnalysis = plan.ImpactAnalysis
		}
		lists = append(lists, plan.Tests)
	}
	merged.Tests = planner.Dedupe(lists...)
	if len(merged.Tests) == 0 {
		merged.Tests = []planner.TestDescriptor{planner.FallbackTest()}
	}
	return merged, nil
}

// qualityCommands maps known quality providers to their invocations. Any
// other provider string runs verbatim as a command.
var qualityCommands = map[string]string{
	"ruff":      "ruff check .",
	"sonarqube": "sonar-scanner",
}

// qualityDescriptors builds the quality-guard prefix of the plan. Quality
// checks always run on the host, never in a remote environment.
func qualityDescriptors(cfg config.Config) []planner.TestDescriptor {
	if !cfg.QualityChecks.Enabled {
		return nil
	}
	var out []planner.TestDescriptor
	for _, provider := range cfg.QualityChecks.Providers {
		command, known := qualityCommands[provider]
		if !known {
			command = provider
		}
		out = append(out, planner.TestDescriptor{
			Kind:         planner.KindCommand,
			Label:        "Quality Guard: " + provider,
			Command:      command,
			ExecutionEnv: config.ExecutionEnvLocal,
		})
	}
	return out
}

// readGitDiff reads pending changes, preferring committed-head comparison
// and falling back to the plain worktree diff.
func readGitDiff(ctx context.Context, dir string) string {
	for _, args := range [][]string{{"diff", "HEAD"}, {"diff"}} {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		out, err := cmd.Output()
		if err == nil && len(strings.TrimSpace(string(out))) > 0 {
			return string(out)
		}
	}
	return ""
}

// logEvent mirrors a log line to both the structured logger and the event
// stream.
func (c *Controller) logEvent(ev events.LogEvent) {
	if ev.Level == events.LevelError {
		logging.Error("Pipeline", nil, "%s", ev.Message)
	} else {
		logging.Info("Pipeline", "%s", ev.Message)
	}
	c.emitter.Emit(ev)
}
