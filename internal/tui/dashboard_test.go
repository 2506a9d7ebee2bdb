package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aetherlens/internal/events"
)

func TestModel_TracksTestLifecycle(t *testing.T) {
	m := NewModel("/proj")

	m.apply(events.NewTestStarted("Unit", "command", "auto"))
	m.apply(events.NewTestProgress("Unit", "Running: npm test"))
	assert.Equal(t, "running", m.rows["Unit"].status)
	assert.Equal(t, "Running: npm test", m.rows["Unit"].progress)

	m.apply(events.NewTestFinished("Unit", events.StatusPassed, "", "", ""))
	assert.Equal(t, "PASSED", m.rows["Unit"].status)
	assert.Empty(t, m.rows["Unit"].progress)

	view := m.View()
	assert.Contains(t, view, "Unit")
	assert.Contains(t, view, "/proj")
}

func TestModel_OrderIsFirstStarted(t *testing.T) {
	m := NewModel("/proj")
	m.apply(events.NewTestStarted("B", "command", "auto"))
	m.apply(events.NewTestStarted("A", "command", "auto"))

	assert.Equal(t, []string{"B", "A"}, m.order)
}

func TestModel_FailureShowsFirstErrorLine(t *testing.T) {
	m := NewModel("/proj")
	m.apply(events.NewTestStarted("Home", "visual", "auto"))
	m.apply(events.NewTestFinished("Home", events.StatusFailed, "pixels differ\ndetails", "diff.png", ""))

	view := m.View()
	assert.Contains(t, view, "pixels differ")
	assert.NotContains(t, view, "details")
}

func TestModel_ResultEventEndsRun(t *testing.T) {
	m := NewModel("/proj")
	m.apply(events.NewResult(nil))
	assert.True(t, m.done)
}

func TestModel_LogBufferIsBounded(t *testing.T) {
	m := NewModel("/proj")
	for i := 0; i < 20; i++ {
		m.apply(events.NewLog("line"))
	}
	assert.Len(t, m.logs, 8)
}
