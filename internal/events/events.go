package events

import (
	"encoding/json"
	"time"
)

// Wire-format type tags. Consumers of the machine-readable stream key off
// these strings, so they are part of the external contract.
const (
	TypeTestStarted  = "test_started"
	TypeTestProgress = "test_progress"
	TypeTestFinished = "test_finished"
	TypeLog          = "log"
	TypeResult       = "result"
)

// Status is the terminal outcome of a single test.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Log levels carried by LogEvent.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is the closed union of pipeline events. Only the variants declared
// in this package implement it; the unexported marker keeps it closed.
type Event interface {
	Type() string
	Timestamp() time.Time
	isPipelineEvent()
}

// Base provides the fields shared by every event variant.
type Base struct {
	EventType string    `json:"type"`
	EventTime time.Time `json:"timestamp"`
}

// Type implements Event.
func (b Base) Type() string { return b.EventType }

// Timestamp implements Event.
func (b Base) Timestamp() time.Time { return b.EventTime }

func (b Base) isPipelineEvent() {}

func newBase(eventType string) Base {
	return Base{EventType: eventType, EventTime: time.Now()}
}

// TestStarted signals that a test has begun executing.
type TestStarted struct {
	Base
	Label    string `json:"label"`
	Kind     string `json:"test_type"`
	Strategy string `json:"strategy"`
}

// NewTestStarted creates a TestStarted event.
func NewTestStarted(label, kind, strategy string) TestStarted {
	return TestStarted{Base: newBase(TypeTestStarted), Label: label, Kind: kind, Strategy: strategy}
}

// TestProgress carries an intermediate status line for a running test.
type TestProgress struct {
	Base
	Label      string `json:"label"`
	StatusText string `json:"status_text"`
}

// NewTestProgress creates a TestProgress event.
func NewTestProgress(label, statusText string) TestProgress {
	return TestProgress{Base: newBase(TypeTestProgress), Label: label, StatusText: statusText}
}

// TestFinished signals that a test reached a terminal status.
type TestFinished struct {
	Base
	Label    string `json:"label"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Baseline string `json:"baseline,omitempty"`
}

// NewTestFinished creates a TestFinished event.
func NewTestFinished(label string, status Status, errMsg, artifact, baseline string) TestFinished {
	return TestFinished{
		Base:     newBase(TypeTestFinished),
		Label:    label,
		Status:   status,
		Error:    errMsg,
		Artifact: artifact,
		Baseline: baseline,
	}
}

// LogEvent carries a diagnostic line through the event stream so headless
// and interactive consumers see the same text.
type LogEvent struct {
	Base
	Message string `json:"message"`
	Level   string `json:"level"`
}

// NewLog creates an informational LogEvent.
func NewLog(message string) LogEvent {
	return LogEvent{Base: newBase(TypeLog), Message: message, Level: LevelInfo}
}

// NewErrorLog creates an error-level LogEvent.
func NewErrorLog(message string) LogEvent {
	return LogEvent{Base: newBase(TypeLog), Message: message, Level: LevelError}
}

// Result is the durable record of one executed test.
type Result struct {
	Kind     string `json:"type"`
	Label    string `json:"label"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Strategy string `json:"strategy"`
}

// ResultEvent carries the full result set of a pipeline run.
type ResultEvent struct {
	Base
	Results []Result `json:"results"`
}

// NewResult creates a ResultEvent.
func NewResult(results []Result) ResultEvent {
	return ResultEvent{Base: newBase(TypeResult), Results: results}
}

// Marshal renders an event as its wire-format JSON line.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
