package pipeline

import (
	"errors"
	"fmt"
)

// ErrHealthCheckTimeout is wrapped into a ProvisioningError when a service or
// deployment health URL never comes up.
var ErrHealthCheckTimeout = errors.New("health check timed out")

// ConfigError reports unusable configuration; the run aborts before any
// phase does work.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration error: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// ProvisioningError reports a failure bringing up run infrastructure:
// services, deployments, or the automation endpoint.
type ProvisioningError struct {
	Stage string // "services", "deployment", "endpoint"
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Stage, e.Err)
}
func (e *ProvisioningError) Unwrap() error { return e.Err }

// ToolNotFoundError reports a service command whose binary is missing from
// PATH, caught before the service is started.
type ToolNotFoundError struct {
	Tool    string
	Service string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q required by service %q not found in PATH", e.Tool, e.Service)
}
