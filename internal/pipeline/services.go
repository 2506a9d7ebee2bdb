package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"aetherlens/internal/config"
	"aetherlens/internal/lifecycle"
	"aetherlens/pkg/logging"
)

// processHandle owns one background service process.
type processHandle struct {
	name string
	cmd  *exec.Cmd
}

// Stop implements lifecycle.Handle. The whole process group is signalled so
// shell-spawned children die with their parent.
func (h *processHandle) Stop() error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	logging.Debug("Services", "stopping %s (pid %d)", h.name, h.cmd.Process.Pid)
	if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGTERM); err != nil {
		if kerr := h.cmd.Process.Kill(); kerr != nil {
			return kerr
		}
	}
	go h.cmd.Wait() // reap
	return nil
}

// composeHandle tears down a compose project brought up for the run.
type composeHandle struct {
	name string
	dir  string

	runCommand func(ctx context.Context, dir, command string) error
}

// Stop implements lifecycle.Handle.
func (h *composeHandle) Stop() error {
	logging.Debug("Services", "compose down for %s", h.name)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return h.runCommand(ctx, h.dir, "docker compose down")
}

// startServices brings up every configured service and registers teardown
// handles under the target directory. The first failure aborts preparation.
func (c *Controller) startServices(ctx context.Context, cfg config.Config, targetDir string) error {
	for _, svc := range cfg.Services {
		if err := c.startService(ctx, svc, targetDir); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) startService(ctx context.Context, svc config.ServiceSpec, targetDir string) error {
	svc.Command = normalizeComposeCommand(svc.Command)
	tool := firstWord(svc.Command)
	if tool == "" {
		return &ConfigError{Err: fmt.Errorf("service %q has no command", svc.Name)}
	}
	if _, err := c.lookPath(tool); err != nil {
		return &ProvisioningError{Stage: "services", Err: &ToolNotFoundError{Tool: tool, Service: svc.Name}}
	}

	logging.Info("Services", "starting service %s: %s", svc.Name, svc.Command)
	switch svc.Strategy {
	case "compose":
		if err := c.runServiceCommand(ctx, targetDir, svc.Command); err != nil {
			return &ProvisioningError{Stage: "services", Err: fmt.Errorf("service %s: %w", svc.Name, err)}
		}
		c.registry.Register(targetDir, &composeHandle{
			name:       svc.Name,
			dir:        targetDir,
			runCommand: c.runServiceCommand,
		})
	default: // "process"
		handle, err := c.startProcess(ctx, targetDir, svc)
		if err != nil {
			return &ProvisioningError{Stage: "services", Err: fmt.Errorf("service %s: %w", svc.Name, err)}
		}
		if handle != nil {
			c.registry.Register(targetDir, handle)
		}
	}

	if svc.HealthCheck != "" {
		if err := c.waitHealthy(ctx, svc.HealthCheck, svc.HealthTimeout()); err != nil {
			return &ProvisioningError{Stage: "services", Err: fmt.Errorf("service %s: %w", svc.Name, err)}
		}
		logging.Info("Services", "service %s is healthy", svc.Name)
	}
	return nil
}

// defaultStartProcess runs the service command. Background services get
// their own process group and a registered handle; foreground ones run to
// completion.
func defaultStartProcess(ctx context.Context, dir string, svc config.ServiceSpec) (lifecycle.Handle, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", svc.Command)
	cmd.Dir = dir
	if !svc.Background {
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
		}
		return nil, nil
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processHandle{name: svc.Name, cmd: cmd}, nil
}

// defaultRunServiceCommand runs a one-shot provisioning command in dir.
func defaultRunServiceCommand(ctx context.Context, dir, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// runDeployment runs the deploy hook configured for the active endpoint
// strategy, if any, then gates on its health URL.
func (c *Controller) runDeployment(ctx context.Context, cfg config.Config, targetDir string) error {
	spec, ok := cfg.Deployment[cfg.Endpoint.Strategy]
	if !ok {
		return nil
	}
	if spec.Command != "" {
		logging.Info("Services", "running deployment hook: %s", spec.Command)
		if spec.Background {
			handle, err := c.startProcess(ctx, targetDir, config.ServiceSpec{
				Name:       "deployment",
				Command:    spec.Command,
				Background: true,
			})
			if err != nil {
				return &ProvisioningError{Stage: "deployment", Err: err}
			}
			if handle != nil {
				c.registry.Register(targetDir, handle)
			}
		} else if err := c.runServiceCommand(ctx, targetDir, spec.Command); err != nil {
			return &ProvisioningError{Stage: "deployment", Err: err}
		}
	}
	if spec.HealthCheck != "" {
		if err := c.waitHealthy(ctx, spec.HealthCheck, 60*time.Second); err != nil {
			return &ProvisioningError{Stage: "deployment", Err: err}
		}
	}
	return nil
}

// defaultWaitHealthy polls url until it answers 2xx or the timeout expires.
func defaultWaitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("%w: %s: %v", ErrHealthCheckTimeout, url, lastErr)
}

// normalizeComposeCommand rewrites the legacy docker-compose binary to the
// plugin form so the tool precheck looks for docker, not the retired wrapper.
func normalizeComposeCommand(command string) string {
	if command == "docker-compose" || strings.HasPrefix(command, "docker-compose ") {
		return "docker compose" + strings.TrimPrefix(command, "docker-compose")
	}
	return command
}

// firstWord extracts the executable name from a shell command line.
func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
