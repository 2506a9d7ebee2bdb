package endpoint

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"aetherlens/internal/config"
	"aetherlens/pkg/logging"
)

// browserCandidates are the local browser binaries tried in order.
var browserCandidates = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

// LocalProvider launches a browser on the host with remote debugging
// enabled and owns the resulting process.
type LocalProvider struct {
	headless bool
	backoff  config.BackoffConfig
	confirm  ConfirmFunc

	state    State
	endpoint string
	proc     *exec.Cmd

	// seams for tests
	lookPath     func(string) (string, error)
	startProcess func(ctx context.Context, bin string, args ...string) (*exec.Cmd, error)
	probe        func(ctx context.Context, url string) error
	sleep        func(time.Duration)
}

// NewLocalProvider creates a provider that spawns a host browser. The
// backoff config governs the readiness poll against the debugging port.
func NewLocalProvider(headless bool, backoff config.BackoffConfig, confirm ConfirmFunc) *LocalProvider {
	if confirm == nil {
		confirm = AutoConfirm
	}
	if backoff.InitialSeconds <= 0 {
		backoff = config.Default().Backoff
	}
	return &LocalProvider{
		headless: headless,
		backoff:  backoff,
		confirm:  confirm,
		state:    StateIdle,
		lookPath: exec.LookPath,
		startProcess: func(ctx context.Context, bin string, args ...string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, bin, args...)
			if err := cmd.Start(); err != nil {
				return nil, err
			}
			return cmd, nil
		},
		probe: probeHTTP,
	}
}

// Start implements Provider.
func (l *LocalProvider) Start(ctx context.Context) error {
	if !l.confirm("Launch a local browser for visual checks?", true) {
		return fmt.Errorf("local browser launch declined")
	}

	bin, err := l.findBrowser()
	if err != nil {
		return err
	}

	port, err := freePort()
	if err != nil {
		return err
	}

	l.state = StateLaunching
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--user-data-dir=" + fmt.Sprintf("/tmp/aether-lens-profile-%d", port),
	}
	if l.headless {
		args = append(args, "--headless=new")
	}
	logging.Info("Endpoint", "launching %s on debugging port %d", bin, port)
	proc, err := l.startProcess(ctx, bin, args...)
	if err != nil {
		return fmt.Errorf("launching local browser: %w", err)
	}
	l.proc = proc
	l.endpoint = fmt.Sprintf("ws://127.0.0.1:%d", port)

	l.state = StateWaitingReady
	readiness := versionURL(l.endpoint)
	err = pollUntilReady(ctx, "local browser", l.backoff,
		func(ctx context.Context) error { return l.probe(ctx, readiness) },
		l.processAlive, l.sleep)
	if err != nil {
		l.Close()
		return err
	}

	l.state = StateConnected
	logging.Info("Endpoint", "connected to local browser at %s", l.endpoint)
	return nil
}

// findBrowser returns the first candidate binary present on PATH.
func (l *LocalProvider) findBrowser() (string, error) {
	for _, candidate := range browserCandidates {
		if path, err := l.lookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", &ToolNotFoundError{
		Tool: "chromium",
		Hint: "Install Chromium or Google Chrome, or switch the endpoint strategy to docker.",
	}
}

// processAlive reports an error once the spawned browser has exited.
func (l *LocalProvider) processAlive(_ context.Context) error {
	if l.proc == nil || l.proc.Process == nil {
		return nil
	}
	if l.proc.ProcessState != nil {
		return fmt.Errorf("browser process exited: %s", l.proc.ProcessState)
	}
	return nil
}

// Endpoint implements Provider.
func (l *LocalProvider) Endpoint() string { return l.endpoint }

// State implements Provider.
func (l *LocalProvider) State() State { return l.state }

// Close implements Provider. The spawned browser is terminated.
func (l *LocalProvider) Close() error {
	defer func() { l.state = StateClosed }()
	if l.proc == nil || l.proc.Process == nil {
		return nil
	}
	logging.Debug("Endpoint", "terminating local browser (pid %d)", l.proc.Process.Pid)
	if err := l.proc.Process.Kill(); err != nil {
		logging.Warn("Endpoint", "terminating local browser: %v", err)
	}
	go l.proc.Wait() // reap without blocking teardown
	l.proc = nil
	return nil
}
