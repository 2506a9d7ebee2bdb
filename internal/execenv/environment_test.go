package execenv

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherlens/internal/config"
)

func TestLocal_Run(t *testing.T) {
	env := NewLocal()

	res := env.Run(context.Background(), "echo hello", "")
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Output)

	res = env.Run(context.Background(), "exit 3", "")
	assert.False(t, res.Success)
}

func TestLocal_RunRespectsCwd(t *testing.T) {
	dir := t.TempDir()
	env := NewLocal()

	res := env.Run(context.Background(), "pwd", dir)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, dir)
}

func TestCompose_MapWorkdir(t *testing.T) {
	env := NewCompose("web", "/home/dev/project", "/app")

	tests := []struct {
		name string
		cwd  string
		want string
	}{
		{"project root", "/home/dev/project", "/app"},
		{"subdirectory", "/home/dev/project/src/ui", "/app/src/ui"},
		{"outside project", "/tmp/elsewhere", "/app"},
		{"empty", "", "/app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.mapWorkdir(tt.cwd))
		})
	}
}

func TestCompose_RunBuildsExecArgs(t *testing.T) {
	env := NewCompose("web", "/home/dev/project", "/app")

	var gotName string
	var gotArgs []string
	env.runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte("ok\n"), nil
	}

	res := env.Run(context.Background(), "npm test", "/home/dev/project/src")
	require.True(t, res.Success)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, "docker", gotName)
	assert.Equal(t, []string{"compose", "exec", "-T", "--workdir", "/app/src", "web", "sh", "-c", "npm test"}, gotArgs)
}

func TestKube_RunRewritesToolNotFound(t *testing.T) {
	env := NewKube("app-pod", "default", "app")
	env.execStream = func(ctx context.Context, command []string, stdout, stderr *bytes.Buffer) error {
		return errors.New(`exec: "sh": executable file not found in $PATH`)
	}

	res := env.Run(context.Background(), "ls", "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "remote exec tool not found on PATH")
}

func TestKube_RunMergesStreams(t *testing.T) {
	env := NewKube("app-pod", "default", "app")
	env.execStream = func(ctx context.Context, command []string, stdout, stderr *bytes.Buffer) error {
		stdout.WriteString("line out\n")
		stderr.WriteString("line err\n")
		return nil
	}

	res := env.Run(context.Background(), "ls", "/work")
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "line out")
	assert.Contains(t, res.Output, "line err")
}

func TestSelect(t *testing.T) {
	cfg := config.Default()
	env, err := Select(cfg, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "local", env.Name())

	cfg.ExecutionEnv = config.ExecutionEnvDocker
	env, err = Select(cfg, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "docker", env.Name())

	cfg.ExecutionEnv = config.ExecutionEnvK8s
	_, err = Select(cfg, "/proj")
	require.Error(t, err) // podName missing

	cfg.K8sConfig.PodName = "app-pod"
	env, err = Select(cfg, "/proj")
	require.NoError(t, err)
	assert.Equal(t, "k8s", env.Name())

	cfg.ExecutionEnv = "bogus"
	_, err = Select(cfg, "/proj")
	require.Error(t, err)
}
