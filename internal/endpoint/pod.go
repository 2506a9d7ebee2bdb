package endpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers for kubeconfig contexts
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"aetherlens/internal/config"
	"aetherlens/pkg/logging"
)

// PodProvider obtains a browser endpoint from the active cluster context.
// By default it attaches to the configured in-cluster endpoint (a sidecar or
// a shared browser service); with launch enabled it spawns a single-container
// browser pod, waits for it to become Ready, and port-forwards the CDP port
// to localhost. There is no fallback: a cluster that was asked for and cannot
// deliver is a hard failure.
type PodProvider struct {
	cfg     config.EndpointConfig
	backoff config.BackoffConfig

	state    State
	endpoint string
	podName  string
	stopCh   chan struct{}

	// seams for tests
	clientFor func() (kubernetes.Interface, *rest.Config, error)
	forward   func(restCfg *rest.Config, localPort int) error
	probe     func(ctx context.Context, url string) error
	sleep     func(time.Duration)
}

// NewPodProvider creates a provider for the kubernetes endpoint strategy.
func NewPodProvider(cfg config.EndpointConfig, backoff config.BackoffConfig) *PodProvider {
	p := &PodProvider{
		cfg:     cfg,
		backoff: backoff,
		state:   StateIdle,
		probe:   probeHTTP,
	}
	p.clientFor = func() (kubernetes.Interface, *rest.Config, error) {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restCfg, err := kubeConfig.ClientConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating kubernetes client: %w", err)
		}
		return clientset, restCfg, nil
	}
	return p
}

// namespace returns the configured namespace or "default".
func (p *PodProvider) namespace() string {
	if p.cfg.Namespace != "" {
		return p.cfg.Namespace
	}
	return "default"
}

// Start implements Provider.
func (p *PodProvider) Start(ctx context.Context) error {
	if !p.cfg.Launch {
		return p.attach(ctx)
	}

	clientset, restCfg, err := p.clientFor()
	if err != nil {
		return err
	}

	image := p.cfg.Image
	if image == "" {
		image = config.Default().Endpoint.Image
	}
	p.podName = fmt.Sprintf("aether-lens-browser-%s", uuid.NewString()[:8])

	p.state = StateLaunching
	logging.Info("Endpoint", "creating pod %s/%s (%s)", p.namespace(), p.podName, image)
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   p.podName,
			Labels: map[string]string{"app.kubernetes.io/managed-by": "aether-lens"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:  "browser",
				Image: image,
				Ports: []corev1.ContainerPort{{ContainerPort: containerCDPPort}},
			}},
		},
	}
	if _, err := clientset.CoreV1().Pods(p.namespace()).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("creating pod %s: %w", p.podName, err)
	}

	p.state = StateWaitingReady
	err = pollUntilReady(ctx, "browser pod", p.backoff,
		func(ctx context.Context) error { return p.podReady(ctx, clientset) },
		func(ctx context.Context) error { return p.podAlive(ctx, clientset) },
		p.sleep)
	if err != nil {
		p.Close()
		return err
	}

	localPort, err := freePort()
	if err != nil {
		p.Close()
		return err
	}
	if p.forward == nil {
		p.forward = p.startPortForward
	}
	if err := p.forward(restCfg, localPort); err != nil {
		p.Close()
		return fmt.Errorf("forwarding to pod %s: %w", p.podName, err)
	}

	p.endpoint = fmt.Sprintf("ws://127.0.0.1:%d", localPort)
	p.state = StateConnected
	logging.Info("Endpoint", "connected to pod endpoint at %s", p.endpoint)
	return nil
}

// attach polls the configured endpoint until it answers. Without launch the
// URL is mandatory; there is nothing to spawn in its place.
func (p *PodProvider) attach(ctx context.Context) error {
	if p.cfg.URL == "" {
		return fmt.Errorf("kubernetes endpoint strategy needs endpoint.url or TEST_RUNNER_URL when launch is disabled")
	}
	p.endpoint = p.cfg.URL
	p.state = StateWaitingReady
	readiness := versionURL(p.endpoint)
	err := pollUntilReady(ctx, "kubernetes endpoint", p.backoff,
		func(ctx context.Context) error { return p.probe(ctx, readiness) },
		nil, p.sleep)
	if err != nil {
		return err
	}
	p.state = StateConnected
	logging.Info("Endpoint", "connected to kubernetes endpoint at %s", p.endpoint)
	return nil
}

// podReady succeeds once every container in the pod reports Ready.
func (p *PodProvider) podReady(ctx context.Context, clientset kubernetes.Interface) error {
	pod, err := clientset.CoreV1().Pods(p.namespace()).Get(ctx, p.podName, metav1.GetOptions{})
	if err != nil {
		return err
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return nil
		}
	}
	return fmt.Errorf("pod %s is %s", p.podName, pod.Status.Phase)
}

// podAlive fails once the pod has terminated, ending the readiness loop early.
func (p *PodProvider) podAlive(ctx context.Context, clientset kubernetes.Interface) error {
	pod, err := clientset.CoreV1().Pods(p.namespace()).Get(ctx, p.podName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("pod %s disappeared", p.podName)
		}
		return nil // transient API errors are for the probe to handle
	}
	if pod.Status.Phase == corev1.PodFailed || pod.Status.Phase == corev1.PodSucceeded {
		return fmt.Errorf("pod %s terminated with phase %s", p.podName, pod.Status.Phase)
	}
	return nil
}

// startPortForward opens the SPDY tunnel and keeps it running until Close.
func (p *PodProvider) startPortForward(restCfg *rest.Config, localPort int) error {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return err
	}
	reqURL := clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(p.namespace()).
		Name(p.podName).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(restCfg)
	if err != nil {
		return fmt.Errorf("creating SPDY round tripper: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	p.stopCh = make(chan struct{}, 1)
	readyCh := make(chan struct{})
	ports := []string{fmt.Sprintf("%d:%d", localPort, containerCDPPort)}
	forwarder, err := portforward.NewOnAddresses(dialer, []string{"127.0.0.1"}, ports, p.stopCh, readyCh, io.Discard, io.Discard)
	if err != nil {
		return fmt.Errorf("creating port forwarder: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- forwarder.ForwardPorts() }()

	select {
	case <-readyCh:
		return nil
	case err := <-errCh:
		return fmt.Errorf("port forward terminated: %w", err)
	case <-time.After(30 * time.Second):
		close(p.stopCh)
		p.stopCh = nil
		return fmt.Errorf("port forward to %s never became ready", p.podName)
	}
}

// Endpoint implements Provider.
func (p *PodProvider) Endpoint() string { return p.endpoint }

// State implements Provider.
func (p *PodProvider) State() State { return p.state }

// Close implements Provider. The forward tunnel is stopped and the pod
// deleted; a pod that is already gone is not an error.
func (p *PodProvider) Close() error {
	defer func() { p.state = StateClosed }()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	if p.podName == "" {
		return nil
	}
	clientset, _, err := p.clientFor()
	if err != nil {
		logging.Warn("Endpoint", "deleting pod %s: %v", p.podName, err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logging.Debug("Endpoint", "deleting pod %s/%s", p.namespace(), p.podName)
	if err := clientset.CoreV1().Pods(p.namespace()).Delete(ctx, p.podName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		logging.Warn("Endpoint", "deleting pod %s: %v", p.podName, err)
	}
	p.podName = ""
	return nil
}
