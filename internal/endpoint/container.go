package endpoint

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"aetherlens/internal/config"
	"aetherlens/pkg/logging"
)

// containerCDPPort is the debugging port exposed by headless-browser images.
const containerCDPPort = 9222

// ContainerProvider attaches to a CDP endpoint served by a container. With
// launch enabled it spawns the container itself and owns its lifetime;
// otherwise it expects one to already be running at the configured URL. When
// attaching to an unowned endpoint fails, the provider can fall back to a
// host browser after user confirmation.
type ContainerProvider struct {
	cfg     config.EndpointConfig
	backoff config.BackoffConfig
	confirm ConfirmFunc

	state       State
	endpoint    string
	containerID string
	fallback    Provider

	// seams for tests
	runDocker func(ctx context.Context, args ...string) (string, error)
	probe     func(ctx context.Context, url string) error
	newLocal  func() Provider
	sleep     func(time.Duration)
}

// NewContainerProvider creates a provider for the docker endpoint strategy.
func NewContainerProvider(cfg config.EndpointConfig, backoff config.BackoffConfig, confirm ConfirmFunc) *ContainerProvider {
	if confirm == nil {
		confirm = AutoConfirm
	}
	p := &ContainerProvider{
		cfg:     cfg,
		backoff: backoff,
		confirm: confirm,
		state:   StateIdle,
		runDocker: func(ctx context.Context, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
			return strings.TrimSpace(string(out)), err
		},
		probe: probeHTTP,
	}
	p.newLocal = func() Provider { return NewLocalProvider(cfg.Headless, backoff, confirm) }
	return p
}

// Start implements Provider.
func (c *ContainerProvider) Start(ctx context.Context) error {
	c.endpoint = c.cfg.URL
	if c.endpoint == "" {
		c.endpoint = fmt.Sprintf("ws://localhost:%d", containerCDPPort)
	}

	if c.cfg.Launch {
		if err := c.launchContainer(ctx); err != nil {
			c.Close()
			return err
		}
	}

	c.state = StateWaitingReady
	readiness := versionURL(c.endpoint)
	var alive func(context.Context) error
	if c.containerID != "" {
		alive = c.containerAlive
	}
	err := pollUntilReady(ctx, "container endpoint", c.backoff,
		func(ctx context.Context) error { return c.probe(ctx, readiness) },
		alive, c.sleep)
	if err == nil {
		c.state = StateConnected
		logging.Info("Endpoint", "connected to container endpoint at %s", c.endpoint)
		return nil
	}

	c.Close()
	// An owned container that never came up is a hard failure. Only failure
	// to reach an external endpoint offers the host-browser fallback.
	if c.cfg.Launch {
		return err
	}
	logging.Warn("Endpoint", "could not reach %s: %v", c.endpoint, err)
	if !c.confirm("Endpoint unreachable. Fall back to a local browser?", true) {
		return err
	}
	local := c.newLocal()
	if ferr := local.Start(ctx); ferr != nil {
		return fmt.Errorf("fallback to local browser failed: %w (original: %v)", ferr, err)
	}
	c.fallback = local
	c.endpoint = local.Endpoint()
	c.state = StateConnected
	return nil
}

// launchContainer spawns the configured image with the CDP port published on
// a fresh host port.
func (c *ContainerProvider) launchContainer(ctx context.Context) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return &ToolNotFoundError{Tool: "docker", Hint: "Install Docker or point endpoint.url at a running CDP endpoint."}
	}

	image := c.cfg.Image
	if image == "" {
		image = config.Default().Endpoint.Image
	}
	port, err := freePort()
	if err != nil {
		return err
	}

	c.state = StateLaunching
	logging.Info("Endpoint", "starting container %s on port %d", image, port)
	id, err := c.runDocker(ctx, "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:%d", port, containerCDPPort), image)
	if err != nil {
		return fmt.Errorf("starting container: %s: %w", id, err)
	}
	c.containerID = id
	c.endpoint = fmt.Sprintf("ws://127.0.0.1:%d", port)
	return nil
}

// containerAlive fails once the owned container stops running, so readiness
// polling aborts instead of riding out the full ceiling.
func (c *ContainerProvider) containerAlive(ctx context.Context) error {
	out, err := c.runDocker(ctx, "inspect", "-f", "{{.State.Running}}", c.containerID)
	if err != nil {
		return fmt.Errorf("container %s gone: %s", shortID(c.containerID), out)
	}
	if out != "true" {
		return fmt.Errorf("container %s is not running", shortID(c.containerID))
	}
	return nil
}

// Endpoint implements Provider.
func (c *ContainerProvider) Endpoint() string { return c.endpoint }

// State implements Provider.
func (c *ContainerProvider) State() State { return c.state }

// Close implements Provider. Only owned resources are torn down; an external
// endpoint is left untouched.
func (c *ContainerProvider) Close() error {
	defer func() { c.state = StateClosed }()
	if c.fallback != nil {
		err := c.fallback.Close()
		c.fallback = nil
		return err
	}
	if c.containerID == "" {
		return nil
	}
	logging.Debug("Endpoint", "stopping container %s", shortID(c.containerID))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if out, err := c.runDocker(ctx, "stop", c.containerID); err != nil {
		logging.Warn("Endpoint", "stopping container %s: %s: %v", shortID(c.containerID), out, err)
	}
	c.containerID = ""
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
