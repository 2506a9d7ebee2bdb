package execenv

import (
	"context"
	"os/exec"
	"strings"

	"aetherlens/pkg/logging"
)

// Local runs commands as child processes on the host.
type Local struct{}

// NewLocal creates the local environment.
func NewLocal() *Local { return &Local{} }

// Name implements Environment.
func (l *Local) Name() string { return "local" }

// Run implements Environment. Stdout and stderr are merged, success is the
// exit code.
func (l *Local) Run(ctx context.Context, command, cwd string) Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		logging.Debug("ExecEnv", "local command failed: %s: %v", command, err)
		if output == "" {
			output = err.Error()
		}
		return Result{Success: false, Output: output}
	}
	return Result{Success: true, Output: output}
}
