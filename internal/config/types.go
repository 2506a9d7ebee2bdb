package config

import "time"

// ConfigFileName is the per-project configuration file, resolved relative to
// the target directory.
const ConfigFileName = "aether-lens.config.json"

// Execution environment types.
const (
	ExecutionEnvLocal  = "local"
	ExecutionEnvDocker = "docker"
	ExecutionEnvK8s    = "k8s"
)

// Endpoint provisioning strategies.
const (
	EndpointStrategyLocal      = "local"
	EndpointStrategyDocker     = "docker"
	EndpointStrategyKubernetes = "kubernetes"
	EndpointStrategyDryRun     = "dry-run"
)

// Config is the resolved configuration for one pipeline run: the project
// config file merged with call-time overrides, defaults filled in.
type Config struct {
	Strategy          string                    `json:"strategy,omitempty"`
	CustomInstruction string                    `json:"customInstruction,omitempty"`
	ExecutionEnv      string                    `json:"executionEnv,omitempty"`
	DockerConfig      DockerConfig              `json:"dockerConfig,omitempty"`
	K8sConfig         K8sConfig                 `json:"k8sConfig,omitempty"`
	Services          []ServiceSpec             `json:"services,omitempty"`
	Deployment        map[string]DeploymentSpec `json:"deployment,omitempty"`
	QualityChecks     QualityChecks             `json:"qualityChecks,omitempty"`
	AllureStrategy    string                    `json:"allureStrategy,omitempty"`
	Endpoint          EndpointConfig            `json:"endpoint,omitempty"`
	AppURL            string                    `json:"appURL,omitempty"`
	Backoff           BackoffConfig             `json:"backoff,omitempty"`
	DevLoop           DevLoopConfig             `json:"devLoop,omitempty"`
}

// DockerConfig selects the compose service used by the docker execution
// environment.
type DockerConfig struct {
	ServiceName string `json:"serviceName,omitempty"`
	RemoteRoot  string `json:"remoteRoot,omitempty"`
}

// K8sConfig selects the pod used by the k8s execution environment.
type K8sConfig struct {
	PodName   string `json:"podName,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Container string `json:"container,omitempty"`
}

// ServiceSpec describes a background service brought up during Preparation.
type ServiceSpec struct {
	Name           string `json:"name"`
	Command        string `json:"command"`
	Strategy       string `json:"strategy,omitempty"` // "process" or "compose"
	HealthCheck    string `json:"healthCheck,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
	Background     bool   `json:"background,omitempty"`
}

// HealthTimeout returns the health-check ceiling for the service.
func (s ServiceSpec) HealthTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// DeploymentSpec describes the deploy hook run for a given endpoint strategy.
type DeploymentSpec struct {
	Command     string `json:"command,omitempty"`
	HealthCheck string `json:"healthCheck,omitempty"`
	Background  bool   `json:"background,omitempty"`
}

// QualityChecks configures the quality-guard phase.
type QualityChecks struct {
	Enabled   bool     `json:"enabled"`
	Providers []string `json:"providers,omitempty"`
}

// EndpointConfig configures the remote-automation endpoint provider.
type EndpointConfig struct {
	Strategy  string `json:"strategy,omitempty"`
	URL       string `json:"url,omitempty"`
	Launch    bool   `json:"launch,omitempty"`
	Image     string `json:"image,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Headless  bool   `json:"headless,omitempty"`
}

// BackoffConfig tunes the readiness-polling loop used when provisioning
// endpoints and waiting on health checks. The defaults match the behavior
// the pipeline has always had, but environments with slower cold starts can
// raise the ceiling.
type BackoffConfig struct {
	InitialSeconds float64 `json:"initialSeconds,omitempty"`
	Factor         float64 `json:"factor,omitempty"`
	MaxSeconds     float64 `json:"maxSeconds,omitempty"`
	CeilingSeconds float64 `json:"ceilingSeconds,omitempty"`
}

// Initial returns the first poll delay.
func (b BackoffConfig) Initial() time.Duration {
	return time.Duration(b.InitialSeconds * float64(time.Second))
}

// Max returns the per-attempt delay cap.
func (b BackoffConfig) Max() time.Duration {
	return time.Duration(b.MaxSeconds * float64(time.Second))
}

// Ceiling returns the hard deadline for the whole polling loop.
func (b BackoffConfig) Ceiling() time.Duration {
	return time.Duration(b.CeilingSeconds * float64(time.Second))
}

// DevLoopConfig configures the watch loop.
type DevLoopConfig struct {
	DebounceSeconds float64 `json:"debounceSeconds,omitempty"`
}

// Debounce returns the watcher debounce window.
func (d DevLoopConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceSeconds * float64(time.Second))
}

// Default returns the configuration used when the project has no config file.
func Default() Config {
	return Config{
		Strategy:       "auto",
		ExecutionEnv:   ExecutionEnvLocal,
		DockerConfig:   DockerConfig{ServiceName: "app", RemoteRoot: "/app"},
		K8sConfig:      K8sConfig{Namespace: "default", Container: "aether-lens"},
		QualityChecks:  QualityChecks{Enabled: false, Providers: []string{"ruff"}},
		AllureStrategy: "none",
		Endpoint: EndpointConfig{
			Strategy: EndpointStrategyLocal,
			Image:    "browserless/chrome:latest",
			Headless: true,
		},
		AppURL: "http://localhost:4321",
		Backoff: BackoffConfig{
			InitialSeconds: 0.5,
			Factor:         1.5,
			MaxSeconds:     5,
			CeilingSeconds: 60,
		},
		DevLoop: DevLoopConfig{DebounceSeconds: 2},
	}
}
