package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherlens/internal/events"
	"aetherlens/internal/pipeline"
)

func sampleSession() pipeline.Session {
	return pipeline.Session{
		SessionID: "abc123",
		Timestamp: 1735689600,
		Strategy:  "auto",
		Results: []events.Result{
			{Kind: "command", Label: "Unit", Status: events.StatusPassed, Strategy: "auto"},
			{Kind: "visual", Label: "Home", Status: events.StatusFailed, Error: "3.00% of pixels differ\nsecond line", Artifact: "home_diff.png", Strategy: "auto"},
			{Kind: "setup", Label: "Seed", Status: events.StatusSkipped, Strategy: "auto"},
		},
	}
}

func TestAllureExporter_WritesOneFilePerResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewAllureExporter().Export(dir, sampleSession()))

	entries, err := os.ReadDir(filepath.Join(dir, allureDirName))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	statuses := map[string]int{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, allureDirName, entry.Name()))
		require.NoError(t, err)
		var res allureResult
		require.NoError(t, json.Unmarshal(data, &res))
		statuses[res.Status]++
		assert.Equal(t, "finished", res.Stage)
		if res.Name == "Home" {
			assert.Equal(t, "3.00% of pixels differ\nsecond line", res.StatusDetails["message"])
		}
	}
	assert.Equal(t, map[string]int{"passed": 1, "failed": 1, "skipped": 1}, statuses)
}

func TestSummary(t *testing.T) {
	out := Summary(sampleSession())

	assert.Contains(t, out, "Session abc123")
	assert.Contains(t, out, `strategy "auto"`)
	assert.Contains(t, out, "[PASSED] Unit")
	assert.Contains(t, out, "[FAILED] Home: 3.00% of pixels differ")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "(home_diff.png)")
	assert.Contains(t, out, "1 passed, 1 failed, 1 skipped")
}
