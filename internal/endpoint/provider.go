// Package endpoint obtains a working remote-automation endpoint (a browser
// control socket) without the caller knowing whether it had to be spawned.
// Four strategies are provided: launch a local browser, attach to an
// existing endpoint (optionally spawning a container), spawn a pod, or a
// dry-run stub.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"aetherlens/internal/config"
)

// State is the provisioning state of a provider.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateWaitingReady
	StateConnected
	StateClosed
)

// String makes State satisfy the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLaunching:
		return "Launching"
	case StateWaitingReady:
		return "WaitingReady"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConfirmFunc asks for confirmation before a fallback or a local launch. It
// may be interactive; non-interactive contexts use AutoConfirm.
type ConfirmFunc func(prompt string, defaultAnswer bool) bool

// AutoConfirm answers every prompt with its default. Used for headless and
// RPC-driven runs.
func AutoConfirm(_ string, defaultAnswer bool) bool { return defaultAnswer }

// ErrReadinessTimeout is returned when an endpoint never becomes ready
// within the configured ceiling.
var ErrReadinessTimeout = errors.New("endpoint readiness timed out")

// ErrResourceDied is returned when the spawned resource exits while the
// provider is still polling for readiness.
var ErrResourceDied = errors.New("spawned endpoint resource exited before becoming ready")

// ToolNotFoundError reports a required external binary missing from PATH.
type ToolNotFoundError struct {
	Tool string
	Hint string
}

// Error implements error.
func (e *ToolNotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s not found in PATH. %s", e.Tool, e.Hint)
	}
	return fmt.Sprintf("%s not found in PATH", e.Tool)
}

// Provider obtains and owns one automation endpoint for the duration of a
// pipeline run. Instances are never shared across concurrent runs.
type Provider interface {
	// Start drives the provider to Connected or returns an error.
	Start(ctx context.Context) error

	// Endpoint returns the control socket URL once Connected.
	Endpoint() string

	// State returns the current provisioning state.
	State() State

	// Close releases the connection and tears down any owned resource.
	// Teardown is attempted even if Start partially failed.
	Close() error
}

// New builds the provider configured for the run.
func New(cfg config.Config, confirm ConfirmFunc) (Provider, error) {
	if confirm == nil {
		confirm = AutoConfirm
	}
	switch cfg.Endpoint.Strategy {
	case config.EndpointStrategyLocal, "":
		return NewLocalProvider(cfg.Endpoint.Headless, cfg.Backoff, confirm), nil
	case config.EndpointStrategyDocker:
		return NewContainerProvider(cfg.Endpoint, cfg.Backoff, confirm), nil
	case config.EndpointStrategyKubernetes:
		return NewPodProvider(cfg.Endpoint, cfg.Backoff), nil
	case config.EndpointStrategyDryRun:
		return NewDryRunProvider(), nil
	default:
		return nil, fmt.Errorf("unknown endpoint strategy %q", cfg.Endpoint.Strategy)
	}
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocating host port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// probeHTTP checks a CDP version endpoint. The ws:// control URL is probed
// through its HTTP metadata endpoint.
func probeHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// versionURL derives the HTTP readiness URL from a control socket URL.
func versionURL(endpoint string) string {
	httpURL := endpoint
	httpURL = strings.Replace(httpURL, "ws://", "http://", 1)
	httpURL = strings.Replace(httpURL, "wss://", "https://", 1)
	return strings.TrimSuffix(httpURL, "/") + "/json/version"
}
