package execenv

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"aetherlens/pkg/logging"
)

// Compose executes commands inside a named compose service via
// `docker compose exec`.
type Compose struct {
	serviceName string
	projectDir  string
	remoteRoot  string

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCompose creates a compose-backed environment. projectDir is the host
// project root mapped to remoteRoot inside the container.
func NewCompose(serviceName, projectDir, remoteRoot string) *Compose {
	if serviceName == "" {
		serviceName = "app"
	}
	if remoteRoot == "" {
		remoteRoot = "/app"
	}
	return &Compose{
		serviceName: serviceName,
		projectDir:  projectDir,
		remoteRoot:  remoteRoot,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Name implements Environment.
func (c *Compose) Name() string { return "docker" }

// Run implements Environment.
func (c *Compose) Run(ctx context.Context, command, cwd string) Result {
	args := []string{"compose", "exec", "-T", "--workdir", c.mapWorkdir(cwd), c.serviceName, "sh", "-c", command}

	out, err := c.runCommand(ctx, "docker", args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		logging.Debug("ExecEnv", "compose exec failed in %s: %v", c.serviceName, err)
		if output == "" {
			output = err.Error()
		}
		return Result{Success: false, Output: output}
	}
	return Result{Success: true, Output: output}
}

// mapWorkdir converts a host working directory to the container path by
// relativizing against the project root. Paths outside the project fall back
// to the remote root.
func (c *Compose) mapWorkdir(cwd string) string {
	if cwd == "" || c.projectDir == "" {
		return c.remoteRoot
	}
	rel, err := filepath.Rel(c.projectDir, cwd)
	if err != nil || strings.HasPrefix(rel, "..") {
		return c.remoteRoot
	}
	if rel == "." {
		return c.remoteRoot
	}
	return filepath.ToSlash(filepath.Join(c.remoteRoot, rel))
}
