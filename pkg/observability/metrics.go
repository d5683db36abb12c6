package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stilsoft/commkit/pkg/command"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
	"github.com/stilsoft/commkit/pkg/logging"
)

// MetricsConfig configures CommandMetrics
type MetricsConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	Namespace string `json:"namespace" toml:"namespace" yaml:"namespace"` // default: commkit
	Subsystem string `json:"subsystem" toml:"subsystem" yaml:"subsystem"`

	// ListenAddress is where Start serves the metrics endpoint (default :9090)
	ListenAddress string `json:"listen_address" toml:"listen_address" yaml:"listen_address"`
	Path          string `json:"path" toml:"path" yaml:"path"` // default: /metrics

	// HistogramBuckets are in seconds
	HistogramBuckets []float64         `json:"histogram_buckets,omitempty" toml:"histogram_buckets" yaml:"histogram_buckets,omitempty"`
	ConstLabels      map[string]string `json:"const_labels,omitempty" toml:"const_labels" yaml:"const_labels,omitempty"`

	// IncludeRuntime adds the Go runtime and process collectors
	IncludeRuntime bool `json:"include_runtime" toml:"include_runtime" yaml:"include_runtime"`
}

// DefaultMetricsConfig returns a disabled configuration with the default names
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:     "commkit",
		ListenAddress: ":9090",
		Path:          "/metrics",
	}
}

// Status label values
const (
	StatusOK = "ok"
)

// CommandMetrics records command and channel measurements in a private
// Prometheus registry. It implements command.Recorder.
type CommandMetrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	channelOpsTotal    *prometheus.CounterVec
	channelOpDuration  *prometheus.HistogramVec

	mu     sync.Mutex
	server *http.Server
	addr   string
}

var _ command.Recorder = (*CommandMetrics)(nil)

// NewCommandMetrics creates and registers the command collectors
func NewCommandMetrics(config MetricsConfig) (*CommandMetrics, error) {
	if config.Namespace == "" {
		config.Namespace = "commkit"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.ListenAddress == "" {
		config.ListenAddress = ":9090"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}

	m := &CommandMetrics{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	constLabels := prometheus.Labels(config.ConstLabels)

	m.executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "command_executions_total",
		Help:        "Command executions by mode and outcome",
		ConstLabels: constLabels,
	}, []string{"mode", "status"})

	m.executionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "command_execution_duration_seconds",
		Help:        "Command execution time including retries and handlers",
		Buckets:     config.HistogramBuckets,
		ConstLabels: constLabels,
	}, []string{"mode", "status"})

	m.retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "command_retries_total",
		Help:        "Channel call retries by mode",
		ConstLabels: constLabels,
	}, []string{"mode"})

	m.validationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "command_validation_failures_total",
		Help:        "Validation failures by mode and stage",
		ConstLabels: constLabels,
	}, []string{"mode", "stage"})

	m.channelOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "channel_operations_total",
		Help:        "Channel operations by operation and outcome",
		ConstLabels: constLabels,
	}, []string{"operation", "status"})

	m.channelOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Subsystem:   config.Subsystem,
		Name:        "channel_operation_duration_seconds",
		Help:        "Channel operation latency",
		Buckets:     config.HistogramBuckets,
		ConstLabels: constLabels,
	}, []string{"operation"})

	collectorsToRegister := []prometheus.Collector{
		m.executionsTotal,
		m.executionDuration,
		m.retriesTotal,
		m.validationFailures,
		m.channelOpsTotal,
		m.channelOpDuration,
	}
	if config.IncludeRuntime {
		collectorsToRegister = append(collectorsToRegister,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range collectorsToRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

// StatusOf maps an error to a status label: "ok" or the error category
func StatusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	if commErr, ok := commerrors.AsCommError(err); ok {
		return string(commErr.Category())
	}
	if commerrors.IsCancelled(err) {
		return string(commerrors.CategoryCancelled)
	}
	if commerrors.IsTimeout(err) {
		return string(commerrors.CategoryTimeout)
	}
	return string(commerrors.CategoryTransport)
}

func (m *CommandMetrics) RecordExecution(mode command.Mode, duration time.Duration, retries int, err error) {
	status := StatusOf(err)
	m.executionsTotal.WithLabelValues(mode.String(), status).Inc()
	m.executionDuration.WithLabelValues(mode.String(), status).Observe(duration.Seconds())
}

func (m *CommandMetrics) RecordRetry(mode command.Mode, attempt int, err error) {
	m.retriesTotal.WithLabelValues(mode.String()).Inc()
}

func (m *CommandMetrics) RecordValidationFailure(mode command.Mode, stage string) {
	m.validationFailures.WithLabelValues(mode.String(), stage).Inc()
}

// RecordChannelOperation records one channel call
func (m *CommandMetrics) RecordChannelOperation(operation string, duration time.Duration, err error) {
	m.channelOpsTotal.WithLabelValues(operation, StatusOf(err)).Inc()
	m.channelOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Registry returns the registry holding the collectors
func (m *CommandMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *CommandMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Start serves the metrics endpoint on ListenAddress in the background.
// The listener is bound before Start returns so address errors surface here.
func (m *CommandMetrics) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", m.config.ListenAddress, err)
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.server = server
	m.addr = listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError("metrics endpoint stopped", logging.ErrorField(err))
		}
	}()
	return nil
}

// Addr returns the bound address while the endpoint is running
func (m *CommandMetrics) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Shutdown stops the metrics endpoint
func (m *CommandMetrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.addr = ""
	m.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
