// Package execenv abstracts where a test command runs: the local shell, a
// compose service, or a remote pod. All variants are substitutable behind
// the Environment interface.
package execenv

import (
	"context"
	"fmt"

	"aetherlens/internal/config"
)

// Result is the outcome of one command execution.
type Result struct {
	Success  bool
	Output   string
	Artifact string
}

// Environment runs a shell command on a target substrate.
type Environment interface {
	// Run executes command with cwd as the working directory and returns
	// the merged stdout/stderr.
	Run(ctx context.Context, command, cwd string) Result

	// Name identifies the environment kind for logging and events.
	Name() string
}

// Select builds the environment configured for the run. A test descriptor
// may still force the local environment for itself.
func Select(cfg config.Config, projectDir string) (Environment, error) {
	switch cfg.ExecutionEnv {
	case config.ExecutionEnvLocal, "":
		return NewLocal(), nil
	case config.ExecutionEnvDocker:
		return NewCompose(cfg.DockerConfig.ServiceName, projectDir, cfg.DockerConfig.RemoteRoot), nil
	case config.ExecutionEnvK8s:
		if cfg.K8sConfig.PodName == "" {
			return nil, fmt.Errorf("executionEnv %q requires k8sConfig.podName", cfg.ExecutionEnv)
		}
		return NewKube(cfg.K8sConfig.PodName, cfg.K8sConfig.Namespace, cfg.K8sConfig.Container), nil
	default:
		return nil, fmt.Errorf("unknown executionEnv %q", cfg.ExecutionEnv)
	}
}
