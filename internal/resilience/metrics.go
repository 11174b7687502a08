package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/bulkhead"
)

const (
	// MetricsNamespace is the namespace for all index-guard metrics.
	MetricsNamespace = "indexguard"

	// MetricsSubsystem is the subsystem for resilient client metrics.
	MetricsSubsystem = "resilience"
)

// Metrics holds the Prometheus metrics of a Client.
type Metrics struct {
	// Call metrics
	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	RetryAttempts *prometheus.HistogramVec

	// Circuit breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Bulkhead metrics
	BulkheadRejections *prometheus.CounterVec
}

// NewMetrics creates and registers the client metrics. Bulkhead occupancy is
// read from bh at scrape time.
func NewMetrics(reg prometheus.Registerer, bh *bulkhead.Bulkhead) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initCallMetrics(factory)
	m.initBreakerMetrics(factory)
	m.initBulkheadMetrics(factory, bh)

	return m
}

func (m *Metrics) initCallMetrics(factory promauto.Factory) {
	m.CallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "calls_total",
			Help:      "Total number of backend calls by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	m.CallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "call_duration_seconds",
			Help:      "Backend call duration including queueing and retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	m.RetryAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "retry_attempts",
			Help:      "Number of attempts made per backend call",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"class"},
	)
}

func (m *Metrics) initBreakerMetrics(factory promauto.Factory) {
	m.BreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"class"},
	)

	m.BreakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker transitions by target state",
		},
		[]string{"class", "to"},
	)
}

func (m *Metrics) initBulkheadMetrics(factory promauto.Factory, bh *bulkhead.Bulkhead) {
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "bulkhead_active",
			Help:      "Number of calls currently holding a bulkhead slot",
		},
		func() float64 { return float64(bh.Stats().Active) },
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "bulkhead_queued",
			Help:      "Number of calls waiting for a bulkhead slot",
		},
		func() float64 { return float64(bh.Stats().Queued) },
	)

	m.BulkheadRejections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "bulkhead_rejections_total",
			Help:      "Total number of calls rejected by the bulkhead",
		},
		[]string{"reason"},
	)
}
