package endpoint

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"aetherlens/internal/config"
)

func testBackoff() config.BackoffConfig {
	return config.BackoffConfig{
		InitialSeconds: 0.5,
		Factor:         1.5,
		MaxSeconds:     5,
		CeilingSeconds: 60,
	}
}

func TestPollUntilReady_SucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	var delays []time.Duration

	err := pollUntilReady(context.Background(), "thing", testBackoff(),
		func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("not yet")
			}
			return nil
		},
		nil,
		func(d time.Duration) { delays = append(delays, d) })

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.Len(t, delays, 2)
	assert.Equal(t, 500*time.Millisecond, delays[0])
	assert.Equal(t, 750*time.Millisecond, delays[1])
}

func TestPollUntilReady_DelaysNonDecreasingAndCapped(t *testing.T) {
	attempts := 0
	var delays []time.Duration

	err := pollUntilReady(context.Background(), "thing", testBackoff(),
		func(context.Context) error {
			attempts++
			if attempts < 12 {
				return errors.New("not yet")
			}
			return nil
		},
		nil,
		func(d time.Duration) { delays = append(delays, d) })

	require.NoError(t, err)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
	assert.Equal(t, 5*time.Second, delays[len(delays)-1])
}

func TestPollUntilReady_CeilingTimesOut(t *testing.T) {
	b := config.BackoffConfig{InitialSeconds: 0.5, Factor: 1.5, MaxSeconds: 5, CeilingSeconds: 1}

	start := time.Now()
	err := pollUntilReady(context.Background(), "thing", b,
		func(context.Context) error { return errors.New("never") },
		nil,
		func(time.Duration) {}) // no real sleeping, the ceiling is wall clock

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPollUntilReady_FailsFastWhenResourceDies(t *testing.T) {
	attempts := 0
	err := pollUntilReady(context.Background(), "thing", testBackoff(),
		func(context.Context) error {
			attempts++
			return errors.New("not yet")
		},
		func(context.Context) error {
			if attempts >= 2 {
				return errors.New("exited")
			}
			return nil
		},
		func(time.Duration) {})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceDied)
	assert.Equal(t, 2, attempts)
}

func TestPollUntilReady_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pollUntilReady(ctx, "thing", testBackoff(),
		func(context.Context) error { return errors.New("never") },
		nil,
		func(time.Duration) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContainerProvider_LaunchAndConnect(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyDocker, Launch: true, Image: "browserless/chrome:latest"}
	p := NewContainerProvider(cfg, testBackoff(), AutoConfirm)
	p.sleep = func(time.Duration) {}

	var dockerCalls [][]string
	p.runDocker = func(_ context.Context, args ...string) (string, error) {
		dockerCalls = append(dockerCalls, args)
		switch args[0] {
		case "run":
			return "abcdef123456", nil
		case "inspect":
			return "true", nil
		case "stop":
			return "abcdef123456", nil
		}
		return "", errors.New("unexpected docker call")
	}
	probes := 0
	p.probe = func(context.Context, string) error {
		probes++
		if probes < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateConnected, p.State())
	assert.Contains(t, p.Endpoint(), "ws://127.0.0.1:")

	require.NoError(t, p.Close())
	assert.Equal(t, StateClosed, p.State())
	last := dockerCalls[len(dockerCalls)-1]
	assert.Equal(t, "stop", last[0])
}

func TestContainerProvider_FailsFastWhenContainerExits(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyDocker, Launch: true}
	p := NewContainerProvider(cfg, testBackoff(), AutoConfirm)
	p.sleep = func(time.Duration) {}

	probes := 0
	p.runDocker = func(_ context.Context, args ...string) (string, error) {
		switch args[0] {
		case "run":
			return "deadbeef0000", nil
		case "inspect":
			if probes >= 2 {
				return "false", nil
			}
			return "true", nil
		}
		return "", nil
	}
	p.probe = func(context.Context, string) error {
		probes++
		return errors.New("connection refused")
	}

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceDied)
	assert.Less(t, probes, 5)
}

type stubProvider struct {
	started  bool
	closed   bool
	startErr error
}

func (s *stubProvider) Start(context.Context) error { s.started = true; return s.startErr }
func (s *stubProvider) Endpoint() string            { return "ws://stub:1" }
func (s *stubProvider) State() State {
	if s.started {
		return StateConnected
	}
	return StateIdle
}
func (s *stubProvider) Close() error { s.closed = true; return nil }

func TestContainerProvider_FallsBackToLocalOnAttachFailure(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyDocker, URL: "ws://elsewhere:9222"}
	b := config.BackoffConfig{InitialSeconds: 0.01, Factor: 1.5, MaxSeconds: 0.05, CeilingSeconds: 0.05}

	confirmed := false
	p := NewContainerProvider(cfg, b, func(prompt string, def bool) bool {
		confirmed = true
		return true
	})
	p.sleep = func(time.Duration) {}
	p.probe = func(context.Context, string) error { return errors.New("unreachable") }
	stub := &stubProvider{}
	p.newLocal = func() Provider { return stub }

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, confirmed)
	assert.True(t, stub.started)
	assert.Equal(t, "ws://stub:1", p.Endpoint())
	assert.Equal(t, StateConnected, p.State())

	require.NoError(t, p.Close())
	assert.True(t, stub.closed)
}

func TestContainerProvider_NoFallbackWhenDeclined(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyDocker, URL: "ws://elsewhere:9222"}
	b := config.BackoffConfig{InitialSeconds: 0.01, Factor: 1.5, MaxSeconds: 0.05, CeilingSeconds: 0.05}

	p := NewContainerProvider(cfg, b, func(string, bool) bool { return false })
	p.sleep = func(time.Duration) {}
	p.probe = func(context.Context, string) error { return errors.New("unreachable") }
	p.newLocal = func() Provider {
		t.Fatal("fallback should not be constructed")
		return nil
	}

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
}

func TestContainerProvider_NoFallbackForOwnedLaunch(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyDocker, Launch: true}
	b := config.BackoffConfig{InitialSeconds: 0.01, Factor: 1.5, MaxSeconds: 0.05, CeilingSeconds: 0.05}

	p := NewContainerProvider(cfg, b, func(string, bool) bool {
		t.Fatal("owned launches must not prompt for fallback")
		return false
	})
	p.sleep = func(time.Duration) {}
	p.runDocker = func(_ context.Context, args ...string) (string, error) {
		if args[0] == "inspect" {
			return "true", nil
		}
		return "cafebabe", nil
	}
	p.probe = func(context.Context, string) error { return errors.New("never ready") }

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
}

func TestLocalProvider_MissingBrowserBinary(t *testing.T) {
	p := NewLocalProvider(true, testBackoff(), AutoConfirm)
	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	err := p.Start(context.Background())
	require.Error(t, err)
	var tnf *ToolNotFoundError
	require.ErrorAs(t, err, &tnf)
	assert.Equal(t, "chromium", tnf.Tool)
}

func TestLocalProvider_LaunchDeclined(t *testing.T) {
	p := NewLocalProvider(true, testBackoff(), func(string, bool) bool { return false })
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declined")
}

func TestLocalProvider_UsesConfiguredBackoff(t *testing.T) {
	b := config.BackoffConfig{InitialSeconds: 0.25, Factor: 2, MaxSeconds: 1, CeilingSeconds: 60}
	p := NewLocalProvider(true, b, AutoConfirm)
	p.lookPath = func(string) (string, error) { return "/usr/bin/chromium", nil }
	p.startProcess = func(context.Context, string, ...string) (*exec.Cmd, error) { return &exec.Cmd{}, nil }

	probes := 0
	p.probe = func(context.Context, string) error {
		probes++
		if probes < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	var delays []time.Duration
	p.sleep = func(d time.Duration) { delays = append(delays, d) }

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateConnected, p.State())
	require.Len(t, delays, 2)
	assert.Equal(t, 250*time.Millisecond, delays[0])
	assert.Equal(t, 500*time.Millisecond, delays[1])
	require.NoError(t, p.Close())
}

func TestPodProvider_AttachesToConfiguredEndpoint(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyKubernetes, URL: "ws://aether-lens-sidecar:9222"}
	p := NewPodProvider(cfg, testBackoff())
	p.sleep = func(time.Duration) {}
	p.clientFor = func() (kubernetes.Interface, *rest.Config, error) {
		t.Fatal("attaching must not build a cluster client")
		return nil, nil, nil
	}
	probes := 0
	p.probe = func(_ context.Context, url string) error {
		probes++
		assert.Equal(t, "http://aether-lens-sidecar:9222/json/version", url)
		if probes < 2 {
			return errors.New("connection refused")
		}
		return nil
	}

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, "ws://aether-lens-sidecar:9222", p.Endpoint())
	assert.Equal(t, StateConnected, p.State())
	require.NoError(t, p.Close())
	assert.Equal(t, StateClosed, p.State())
}

func TestPodProvider_AttachRequiresURL(t *testing.T) {
	p := NewPodProvider(config.EndpointConfig{Strategy: config.EndpointStrategyKubernetes}, testBackoff())
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint.url")
}

func TestPodProvider_LaunchSpawnsViaCluster(t *testing.T) {
	cfg := config.EndpointConfig{Strategy: config.EndpointStrategyKubernetes, Launch: true}
	p := NewPodProvider(cfg, testBackoff())
	called := false
	p.clientFor = func() (kubernetes.Interface, *rest.Config, error) {
		called = true
		return nil, nil, errors.New("no cluster in tests")
	}

	require.Error(t, p.Start(context.Background()))
	assert.True(t, called)
}

func TestDryRunProvider_Lifecycle(t *testing.T) {
	p := NewDryRunProvider()
	assert.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateConnected, p.State())
	assert.NotEmpty(t, p.Endpoint())

	require.NoError(t, p.Close())
	assert.Equal(t, StateClosed, p.State())
}

func TestNew_StrategySelection(t *testing.T) {
	cfg := config.Default()

	p, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, p)

	cfg.Endpoint.Strategy = config.EndpointStrategyDocker
	p, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ContainerProvider{}, p)

	cfg.Endpoint.Strategy = config.EndpointStrategyKubernetes
	p, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &PodProvider{}, p)

	cfg.Endpoint.Strategy = config.EndpointStrategyDryRun
	p, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &DryRunProvider{}, p)

	cfg.Endpoint.Strategy = "bogus"
	_, err = New(cfg, nil)
	require.Error(t, err)
}

func TestVersionURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9222/json/version", versionURL("ws://localhost:9222"))
	assert.Equal(t, "https://remote/json/version", versionURL("wss://remote/"))
	assert.Equal(t, "http://plain:9222/json/version", versionURL("http://plain:9222"))
}
