// Package planner turns a change set into test descriptors. The default
// planner reads static definitions from a YAML file; richer planners (AI,
// remote) plug in behind the same interface.
package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"aetherlens/pkg/logging"
)

// Test kinds.
const (
	KindCommand = "command"
	KindVisual  = "visual"
	KindSetup   = "setup"
)

// TestDescriptor is one planned test. Command kinds carry a shell command;
// visual kinds carry a page path and optional viewport ("WxH").
type TestDescriptor struct {
	ID           string `yaml:"id" json:"id,omitempty"`
	Kind         string `yaml:"type" json:"type"`
	Label        string `yaml:"label" json:"label"`
	Command      string `yaml:"command" json:"command,omitempty"`
	Path         string `yaml:"path" json:"path,omitempty"`
	Viewport     string `yaml:"viewport" json:"viewport,omitempty"`
	Description  string `yaml:"description" json:"description,omitempty"`
	ExecutionEnv string `yaml:"executionEnv" json:"executionEnv,omitempty"`

	Tags []string `yaml:"tags" json:"tags,omitempty"`
}

// Key identifies a descriptor for deduplication across planner invocations.
func (t TestDescriptor) Key() string {
	return t.Kind + "\x00" + t.Label + "\x00" + t.Command + "\x00" + t.Path
}

// Plan is the outcome of one analysis pass.
type Plan struct {
	ChangeType     string           `json:"change_type"`
	ImpactAnalysis string           `json:"impact_analysis"`
	Tests          []TestDescriptor `json:"recommended_tests"`
}

// Planner analyzes a diff and recommends tests.
type Planner interface {
	Analyze(ctx context.Context, diff, context_, strategy, customInstruction string) (Plan, error)
}

// DefinitionsFileName is looked up in the target directory by the static
// planner.
const DefinitionsFileName = "tests.yaml"

// Static recommends every test from a YAML definitions file, with a single
// fallback audit test when no definitions exist. It never fails a run over a
// missing or broken file.
type Static struct {
	dir string
}

// NewStatic creates a static planner rooted at dir.
func NewStatic(dir string) *Static { return &Static{dir: dir} }

// Analyze implements Planner.
func (s *Static) Analyze(_ context.Context, diff, _, strategy, _ string) (Plan, error) {
	plan := Plan{
		ChangeType:     changeType(strategy),
		ImpactAnalysis: fmt.Sprintf("Analyzed %d chars of diff.", len(diff)),
		Tests:          s.loadDefinitions(),
	}
	if len(plan.Tests) == 0 {
		plan.Tests = []TestDescriptor{FallbackTest()}
	}
	return plan, nil
}

// loadDefinitions reads the YAML list, tolerating a missing or malformed
// file.
func (s *Static) loadDefinitions() []TestDescriptor {
	path := filepath.Join(s.dir, DefinitionsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var defs []TestDescriptor
	if err := yaml.Unmarshal(data, &defs); err != nil {
		logging.Warn("Planner", "ignoring malformed %s: %v", DefinitionsFileName, err)
		return nil
	}
	for i := range defs {
		if defs[i].Kind == "" {
			defs[i].Kind = KindCommand
		}
		if defs[i].Label == "" {
			defs[i].Label = defs[i].ID
		}
	}
	return defs
}

// FallbackTest is the single audit check used when a plan comes back empty.
func FallbackTest() TestDescriptor {
	return TestDescriptor{
		Kind:     KindVisual,
		Label:    "Home Layout Check (Fallback)",
		Path:     "/",
		Viewport: "1280x720",
	}
}

// changeType mirrors the classification the insight surface reports.
func changeType(strategy string) string {
	if strategy == "backend" {
		return "Backend"
	}
	return "Frontend"
}

// Dedupe merges descriptor lists, keeping the first occurrence of each key.
func Dedupe(lists ...[]TestDescriptor) []TestDescriptor {
	seen := make(map[string]bool)
	var out []TestDescriptor
	for _, list := range lists {
		for _, t := range list {
			if seen[t.Key()] {
				continue
			}
			seen[t.Key()] = true
			out = append(out, t)
		}
	}
	return out
}
