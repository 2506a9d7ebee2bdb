package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"aetherlens/internal/events"
	"aetherlens/pkg/logging"
)

// historyDirName is where session records live, relative to the target
// directory.
const historyDirName = ".aether/history"

// Session is one persisted pipeline run.
type Session struct {
	SessionID string          `json:"session_id"`
	Timestamp float64         `json:"timestamp"`
	Strategy  string          `json:"strategy"`
	Results   []events.Result `json:"results"`
}

// saveSession writes the run record plus a latest.json pointer. History
// failures are logged, never escalated; a finished run's results outrank its
// bookkeeping.
func saveSession(targetDir, strategy string, results []events.Result) {
	now := time.Now()
	session := Session{
		SessionID: uuid.NewString(),
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Strategy:  strategy,
		Results:   results,
	}

	dir := filepath.Join(targetDir, historyDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("History", "creating history directory: %v", err)
		return
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		logging.Warn("History", "encoding session: %v", err)
		return
	}

	name := fmt.Sprintf("run_%d_%s.json", now.Unix(), session.SessionID[:8])
	for _, path := range []string{filepath.Join(dir, name), filepath.Join(dir, "latest.json")} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logging.Warn("History", "writing %s: %v", path, err)
		}
	}
}

// LoadLatestSession reads the most recent run record for a project.
func LoadLatestSession(targetDir string) (Session, error) {
	var session Session
	data, err := os.ReadFile(filepath.Join(targetDir, historyDirName, "latest.json"))
	if err != nil {
		return session, fmt.Errorf("no session history: %w", err)
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("decoding session history: %w", err)
	}
	return session, nil
}
