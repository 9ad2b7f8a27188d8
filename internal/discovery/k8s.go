package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

// K8sOracleConfig configures the Kubernetes Endpoints-watching Oracle,
// grounded on the teacher's K8sClientConfig
// (internal/infrastructure/k8s/client.go): same field names and
// defaults, repurposed from Secret discovery to Endpoints discovery.
type K8sOracleConfig struct {
	Namespace       string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Logger          *slog.Logger
}

// DefaultK8sOracleConfig returns the same defaults as the teacher's
// DefaultK8sClientConfig.
func DefaultK8sOracleConfig() *K8sOracleConfig {
	return &K8sOracleConfig{
		Namespace:       "default",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		Logger:          slog.Default(),
	}
}

// K8sOracle resolves a service_name to its current Endpoints subsets by
// polling the Kubernetes API on a timer and caching the result, so
// Nodes() itself never makes a blocking API call.
type K8sOracle struct {
	clientset kubernetes.Interface
	config    *K8sOracleConfig

	mu    sync.RWMutex
	nodes map[string][]routestore.Node // Endpoints name -> nodes, refreshed by pollLoop

	metrics *metrics.DiscoveryMetrics

	stopCh chan struct{}
}

// Observe wires m into every future refresh poll this oracle performs
// (pkg/metrics.DiscoveryMetrics). Safe to call after NewK8sOracle has
// already run its initial synchronous refresh.
func (o *K8sOracle) Observe(m *metrics.DiscoveryMetrics) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics = m
}

// NewK8sOracle builds an Oracle using in-cluster configuration and
// starts its Endpoints refresh loop. It performs an initial health
// check the same way the teacher's NewK8sClient does before returning.
func NewK8sOracle(config *K8sOracleConfig) (*K8sOracle, error) {
	if config == nil {
		config = DefaultK8sOracleConfig()
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("discovery: load in-cluster config: %w", err)
	}
	restConfig.Timeout = config.Timeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("discovery: create clientset: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := clientset.Discovery().ServerVersion(); err != nil {
		return nil, fmt.Errorf("discovery: k8s API health check failed: %w", err)
	}
	_ = healthCtx

	o := &K8sOracle{
		clientset: clientset,
		config:    config,
		nodes:     make(map[string][]routestore.Node),
		stopCh:    make(chan struct{}),
	}
	o.refresh()
	go o.pollLoop()

	return o, nil
}

func (o *K8sOracle) pollLoop() {
	ticker := time.NewTicker(o.config.Timeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.refresh()
		}
	}
}

func (o *K8sOracle) refresh() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), o.config.Timeout)
	defer cancel()

	endpoints, err := o.retryWithBackoff(ctx, func() (*corev1.EndpointsList, error) {
		return o.clientset.CoreV1().Endpoints(o.config.Namespace).List(ctx, metav1.ListOptions{})
	})
	if err != nil {
		if o.config.Logger != nil {
			o.config.Logger.Warn("discovery: refresh failed", "err", err)
		}
		o.recordPoll("error", time.Since(start))
		return
	}

	next := make(map[string][]routestore.Node, len(endpoints.Items))
	for _, ep := range endpoints.Items {
		var nodes []routestore.Node
		for _, subset := range ep.Subsets {
			for _, addr := range subset.Addresses {
				for _, port := range subset.Ports {
					nodes = append(nodes, routestore.Node{Host: addr.IP, Port: int(port.Port), Weight: 1})
				}
			}
		}
		next[ep.Name] = nodes
	}

	o.mu.Lock()
	o.nodes = next
	o.mu.Unlock()

	o.recordPoll("success", time.Since(start))
	o.recordNodeCounts(next)
}

// recordPoll and recordNodeCounts report the outcome of one refresh to
// whatever DiscoveryMetrics Observe attached; both are no-ops until then.
func (o *K8sOracle) recordPoll(result string, elapsed time.Duration) {
	o.mu.RLock()
	m := o.metrics
	o.mu.RUnlock()
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(result).Inc()
	m.PollDuration.Observe(elapsed.Seconds())
}

func (o *K8sOracle) recordNodeCounts(next map[string][]routestore.Node) {
	o.mu.RLock()
	m := o.metrics
	o.mu.RUnlock()
	if m == nil {
		return
	}
	for serviceName, nodes := range next {
		m.NodesDiscovered.WithLabelValues(serviceName).Set(float64(len(nodes)))
	}
}

func (o *K8sOracle) retryWithBackoff(ctx context.Context, op func() (*corev1.EndpointsList, error)) (*corev1.EndpointsList, error) {
	backoff := o.config.RetryBackoff

	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		if attempt == o.config.MaxRetries {
			return nil, err
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		backoff *= 2
		if backoff > o.config.MaxRetryBackoff {
			backoff = o.config.MaxRetryBackoff
		}
	}
	return nil, fmt.Errorf("discovery: operation failed after %d retries", o.config.MaxRetries)
}

// Nodes implements Oracle by answering from the poll-maintained
// snapshot (spec §4.2 step 1).
func (o *K8sOracle) Nodes(_ context.Context, serviceName string) ([]routestore.Node, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	nodes, ok := o.nodes[serviceName]
	if !ok {
		return nil, ErrUninitialized
	}
	if len(nodes) == 0 {
		return nil, ErrNoValidUpstreamNode
	}
	return nodes, nil
}

// Close stops the refresh loop.
func (o *K8sOracle) Close() {
	close(o.stopCh)
}
