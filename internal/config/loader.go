package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Overrides carries call-time settings that take precedence over the project
// config file. Zero values leave the file/default value in place.
type Overrides struct {
	Strategy          string
	CustomInstruction string
	ExecutionEnv      string
	EndpointStrategy  string
	EndpointURL       string
	Launch            *bool
	Headless          *bool
	AppURL            string
	AllureStrategy    string
}

// Load resolves the configuration for a target directory: defaults, then the
// project config file if present, then call-time overrides.
func Load(targetDir string, overrides Overrides) (Config, error) {
	cfg := Default()

	path := filepath.Join(targetDir, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		fileCfg := Default()
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("malformed config file %s: %w", path, err)
		}
		cfg = mergeFile(cfg, fileCfg)
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyOverrides(&cfg, overrides)
	return cfg, nil
}

// mergeFile layers a parsed config file over the defaults. Because the file
// is unmarshalled on top of a Default() copy, scalar fields already carry the
// right value; only cross-field defaults need fixing up here.
func mergeFile(base, file Config) Config {
	cfg := file
	if cfg.Strategy == "" {
		cfg.Strategy = base.Strategy
	}
	if cfg.ExecutionEnv == "" {
		cfg.ExecutionEnv = base.ExecutionEnv
	}
	if cfg.Endpoint.Strategy == "" {
		cfg.Endpoint.Strategy = base.Endpoint.Strategy
	}
	if cfg.Endpoint.Image == "" {
		cfg.Endpoint.Image = base.Endpoint.Image
	}
	if cfg.Backoff.InitialSeconds == 0 {
		cfg.Backoff = base.Backoff
	}
	if cfg.DevLoop.DebounceSeconds == 0 {
		cfg.DevLoop = base.DevLoop
	}
	return cfg
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Strategy != "" {
		cfg.Strategy = o.Strategy
	}
	if o.CustomInstruction != "" {
		cfg.CustomInstruction = o.CustomInstruction
	}
	if o.ExecutionEnv != "" {
		cfg.ExecutionEnv = o.ExecutionEnv
	}
	if o.EndpointStrategy != "" {
		cfg.Endpoint.Strategy = o.EndpointStrategy
	}
	if o.EndpointURL != "" {
		cfg.Endpoint.URL = o.EndpointURL
	}
	if o.Launch != nil {
		cfg.Endpoint.Launch = *o.Launch
	}
	if o.Headless != nil {
		cfg.Endpoint.Headless = *o.Headless
	}
	if o.AppURL != "" {
		cfg.AppURL = o.AppURL
	}
	if o.AllureStrategy != "" {
		cfg.AllureStrategy = o.AllureStrategy
	}
	resolveEndpointURL(cfg)
}

// resolveEndpointURL fills the default attach URL for strategies that expect
// an existing endpoint.
func resolveEndpointURL(cfg *Config) {
	if cfg.Endpoint.URL != "" {
		return
	}
	switch cfg.Endpoint.Strategy {
	case EndpointStrategyDocker:
		cfg.Endpoint.URL = "ws://localhost:9222"
	case EndpointStrategyKubernetes:
		if url := os.Getenv("TEST_RUNNER_URL"); url != "" {
			cfg.Endpoint.URL = url
		} else {
			cfg.Endpoint.URL = "ws://aether-lens-sidecar:9222"
		}
	}
}

// WriteDefault writes a starter config file into the target directory. Used
// by the init command and the init_lens tool.
func WriteDefault(targetDir, strategy, endpointStrategy, allureStrategy string) (string, error) {
	cfg := Default()
	if strategy != "" {
		cfg.Strategy = strategy
	}
	if endpointStrategy != "" {
		cfg.Endpoint.Strategy = endpointStrategy
	}
	if allureStrategy != "" {
		cfg.AllureStrategy = allureStrategy
	}

	path := filepath.Join(targetDir, ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
