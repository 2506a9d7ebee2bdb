// Package report turns persisted session results into human and tooling
// friendly outputs: a terminal summary and an allure-compatible result
// export.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"aetherlens/internal/events"
	"aetherlens/internal/pipeline"
	"aetherlens/pkg/logging"
)

// allureDirName is the conventional results directory picked up by allure
// tooling.
const allureDirName = "allure-results"

// allureResult is the subset of the allure result schema we populate.
type allureResult struct {
	UUID          string            `json:"uuid"`
	Name          string            `json:"name"`
	Status        string            `json:"status"`
	Stage         string            `json:"stage"`
	Start         int64             `json:"start"`
	Stop          int64             `json:"stop"`
	Labels        []allureLabel     `json:"labels"`
	StatusDetails map[string]string `json:"statusDetails,omitempty"`
}

type allureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureExporter writes one result file per test under
// <targetDir>/allure-results.
type AllureExporter struct{}

// NewAllureExporter creates the exporter.
func NewAllureExporter() *AllureExporter { return &AllureExporter{} }

// Export implements pipeline.Reporter.
func (e *AllureExporter) Export(targetDir string, session pipeline.Session) error {
	dir := filepath.Join(targetDir, allureDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	now := time.Now().UnixMilli()
	for _, r := range session.Results {
		res := allureResult{
			UUID:   uuid.NewString(),
			Name:   r.Label,
			Status: allureStatus(r.Status),
			Stage:  "finished",
			Start:  now,
			Stop:   now,
			Labels: []allureLabel{
				{Name: "suite", Value: "aether-lens"},
				{Name: "testType", Value: r.Kind},
			},
		}
		if r.Error != "" {
			res.StatusDetails = map[string]string{"message": r.Error}
		}
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result %s: %w", r.Label, err)
		}
		path := filepath.Join(dir, res.UUID+"-result.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	logging.Info("Report", "exported %d result(s) to %s", len(session.Results), dir)
	return nil
}

// allureStatus maps a result status onto allure's vocabulary.
func allureStatus(s events.Status) string {
	switch s {
	case events.StatusPassed:
		return "passed"
	case events.StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Summary renders a session as terminal text.
func Summary(session pipeline.Session) string {
	var b strings.Builder
	when := time.Unix(int64(session.Timestamp), 0).Format(time.RFC3339)
	fmt.Fprintf(&b, "Session %s (%s, strategy %q)\n", session.SessionID, when, session.Strategy)

	passed, failed, skipped := 0, 0, 0
	for _, r := range session.Results {
		switch r.Status {
		case events.StatusPassed:
			passed++
		case events.StatusSkipped:
			skipped++
		default:
			failed++
		}
		fmt.Fprintf(&b, "  [%s] %s", r.Status, r.Label)
		if r.Error != "" {
			fmt.Fprintf(&b, ": %s", firstLine(r.Error))
		}
		if r.Artifact != "" {
			fmt.Fprintf(&b, " (%s)", r.Artifact)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d skipped\n", passed, failed, skipped)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
