package endpoint

import (
	"context"

	"aetherlens/pkg/logging"
)

// DryRunProvider records the provisioning lifecycle without spawning
// anything. It lets pipelines be rehearsed on machines with no browser,
// docker daemon, or cluster access.
type DryRunProvider struct {
	state State
}

// NewDryRunProvider creates a provider that always succeeds.
func NewDryRunProvider() *DryRunProvider {
	return &DryRunProvider{state: StateIdle}
}

// Start implements Provider.
func (d *DryRunProvider) Start(_ context.Context) error {
	d.state = StateLaunching
	logging.Info("Endpoint", "[dry-run] launching endpoint")
	d.state = StateWaitingReady
	logging.Info("Endpoint", "[dry-run] waiting for endpoint readiness")
	d.state = StateConnected
	logging.Info("Endpoint", "[dry-run] connected to %s", d.Endpoint())
	return nil
}

// Endpoint implements Provider.
func (d *DryRunProvider) Endpoint() string { return "ws://dry-run.invalid:9222" }

// State implements Provider.
func (d *DryRunProvider) State() State { return d.state }

// Close implements Provider.
func (d *DryRunProvider) Close() error {
	logging.Info("Endpoint", "[dry-run] closing endpoint")
	d.state = StateClosed
	return nil
}
