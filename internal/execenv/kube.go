package execenv

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers for kubeconfig contexts
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"

	"aetherlens/pkg/logging"
)

// remoteExecNotFoundMsg is surfaced when the exec target cannot find the
// requested binary, so the user gets install guidance instead of a raw
// stream error.
const remoteExecNotFoundMsg = "remote exec tool not found on PATH: ensure the command is installed in the pod's container image"

// Kube executes commands inside a pod via the Kubernetes exec subresource.
type Kube struct {
	podName   string
	namespace string
	container string

	// execStream is swapped in tests.
	execStream func(ctx context.Context, command []string, stdout, stderr *bytes.Buffer) error
}

// NewKube creates a pod-backed environment.
func NewKube(podName, namespace, container string) *Kube {
	if namespace == "" {
		namespace = "default"
	}
	if container == "" {
		container = "aether-lens"
	}
	k := &Kube{podName: podName, namespace: namespace, container: container}
	k.execStream = k.streamExec
	return k
}

// Name implements Environment.
func (k *Kube) Name() string { return "k8s" }

// Run implements Environment.
func (k *Kube) Run(ctx context.Context, command, cwd string) Result {
	shellCmd := command
	if cwd != "" {
		shellCmd = fmt.Sprintf("cd %s && %s", cwd, command)
	}

	var stdout, stderr bytes.Buffer
	err := k.execStream(ctx, []string{"sh", "-c", shellCmd}, &stdout, &stderr)

	output := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
	if err != nil {
		logging.Debug("ExecEnv", "pod exec failed in %s/%s: %v", k.namespace, k.podName, err)
		combined := strings.ToLower(output + " " + err.Error())
		if strings.Contains(combined, "executable file not found") ||
			(strings.Contains(combined, "not found") && strings.Contains(combined, "exec")) {
			return Result{Success: false, Output: remoteExecNotFoundMsg}
		}
		if output == "" {
			output = err.Error()
		}
		return Result{Success: false, Output: output}
	}
	return Result{Success: true, Output: output}
}

// streamExec performs the exec call with client-go's SPDY executor.
func (k *Kube) streamExec(ctx context.Context, command []string, stdout, stderr *bytes.Buffer) error {
	restCfg, err := restConfig()
	if err != nil {
		return fmt.Errorf("loading kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("creating kubernetes client: %w", err)
	}

	req := clientset.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Name(k.podName).
		Namespace(k.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: k.container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(restCfg, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("creating exec transport: %w", err)
	}
	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: stdout,
		Stderr: stderr,
	})
}

// restConfig loads the active kubeconfig context.
func restConfig() (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	return kubeConfig.ClientConfig()
}
