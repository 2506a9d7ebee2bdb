package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefinitions(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefinitionsFileName), []byte(content), 0o644))
}

func TestStatic_AnalyzeLoadsDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeDefinitions(t, dir, `
- id: unit
  label: Unit Tests
  command: npm test
  tags: [fast]
- id: home
  type: visual
  label: Home Page
  path: /
  viewport: 1280x720
`)

	plan, err := NewStatic(dir).Analyze(context.Background(), "some diff", "", "auto", "")
	require.NoError(t, err)

	require.Len(t, plan.Tests, 2)
	assert.Equal(t, KindCommand, plan.Tests[0].Kind) // type defaulted
	assert.Equal(t, "Unit Tests", plan.Tests[0].Label)
	assert.Equal(t, "npm test", plan.Tests[0].Command)
	assert.Equal(t, KindVisual, plan.Tests[1].Kind)
	assert.Equal(t, "/", plan.Tests[1].Path)
	assert.Equal(t, "Frontend", plan.ChangeType)
	assert.Contains(t, plan.ImpactAnalysis, "9 chars")
}

func TestStatic_LabelDefaultsToID(t *testing.T) {
	dir := t.TempDir()
	writeDefinitions(t, dir, "- id: lint\n  command: npm run lint\n")

	plan, err := NewStatic(dir).Analyze(context.Background(), "", "", "auto", "")
	require.NoError(t, err)
	require.Len(t, plan.Tests, 1)
	assert.Equal(t, "lint", plan.Tests[0].Label)
}

func TestStatic_FallbackWhenNoDefinitions(t *testing.T) {
	plan, err := NewStatic(t.TempDir()).Analyze(context.Background(), "diff", "", "auto", "")
	require.NoError(t, err)

	require.Len(t, plan.Tests, 1)
	assert.Equal(t, FallbackTest(), plan.Tests[0])
}

func TestStatic_MalformedFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeDefinitions(t, dir, "{not yaml: [")

	plan, err := NewStatic(dir).Analyze(context.Background(), "diff", "", "auto", "")
	require.NoError(t, err)
	require.Len(t, plan.Tests, 1)
	assert.Equal(t, FallbackTest(), plan.Tests[0])
}

func TestStatic_BackendStrategyClassification(t *testing.T) {
	plan, err := NewStatic(t.TempDir()).Analyze(context.Background(), "", "", "backend", "")
	require.NoError(t, err)
	assert.Equal(t, "Backend", plan.ChangeType)
}

func TestDedupe(t *testing.T) {
	a := TestDescriptor{Kind: KindCommand, Label: "Unit", Command: "npm test"}
	b := TestDescriptor{Kind: KindVisual, Label: "Home", Path: "/"}

	merged := Dedupe([]TestDescriptor{a, b}, []TestDescriptor{a}, []TestDescriptor{b, a})
	assert.Equal(t, []TestDescriptor{a, b}, merged)
}

func TestDedupe_SameLabelDifferentKind(t *testing.T) {
	a := TestDescriptor{Kind: KindCommand, Label: "Home", Command: "check home"}
	b := TestDescriptor{Kind: KindVisual, Label: "Home", Path: "/"}

	merged := Dedupe([]TestDescriptor{a, b})
	assert.Len(t, merged, 2)
}
