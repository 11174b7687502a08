package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// DefaultMonitorInterval is the production health loop period.
const DefaultMonitorInterval = 30 * time.Second

// Alerter accepts alerts for asynchronous delivery.
type Alerter interface {
	Dispatch(event domain.AlertEvent)
}

// AliasResolver resolves an alias to the indices behind it.
type AliasResolver interface {
	GetAliasIndices(ctx context.Context, alias string) ([]string, error)
}

// CriticalFunc is called with the concrete index name when a health result asks for rollback.
type CriticalFunc func(index, reason string)

// Monitor periodically scores the indices behind the watched aliases.
type Monitor struct {
	checker  *HealthChecker
	resolver AliasResolver
	alerts   Alerter
	clock    clock.Clock
	log      logger.Logger
	interval time.Duration
	targets  []string

	mu         sync.RWMutex
	onCritical CriticalFunc
	latest     map[string]domain.HealthCheckResult
}

// NewMonitor creates a Monitor over targets, which may be aliases or index names.
func NewMonitor(checker *HealthChecker, resolver AliasResolver, alerts Alerter, targets []string,
	interval time.Duration, clk clock.Clock, log logger.Logger,
) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		checker:  checker,
		resolver: resolver,
		alerts:   alerts,
		clock:    clk,
		log:      log,
		interval: interval,
		targets:  targets,
		latest:   make(map[string]domain.HealthCheckResult),
	}
}

// OnCritical registers the rollback callback.
func (m *Monitor) OnCritical(fn CriticalFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCritical = fn
}

// Latest returns the last result recorded for an index.
func (m *Monitor) Latest(index string) (domain.HealthCheckResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[index]
	return r, ok
}

// Run checks every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("Health monitor started",
		logger.Strings("targets", m.targets),
		logger.Duration("interval", m.interval),
	)
	for {
		m.CheckOnce(ctx)
		if err := clock.Sleep(ctx, m.clock, m.interval); err != nil {
			m.log.Info("Health monitor stopped")
			return
		}
	}
}

// CheckOnce runs one round over every watched index and acts on the results.
func (m *Monitor) CheckOnce(ctx context.Context) []domain.HealthCheckResult {
	var results []domain.HealthCheckResult
	for _, index := range m.resolve(ctx) {
		result := m.checker.Check(ctx, index)
		results = append(results, result)

		m.mu.Lock()
		m.latest[index] = result
		onCritical := m.onCritical
		m.mu.Unlock()

		m.act(result, onCritical)
	}
	return results
}

func (m *Monitor) resolve(ctx context.Context) []string {
	var indices []string
	for _, target := range m.targets {
		resolved, err := m.resolver.GetAliasIndices(ctx, target)
		if err != nil {
			m.log.Warn("Could not resolve alias, checking it directly",
				logger.String("alias", target),
				logger.Error(err),
			)
		}
		if len(resolved) == 0 {
			resolved = []string{target}
		}
		indices = append(indices, resolved...)
	}
	return indices
}

func (m *Monitor) act(result domain.HealthCheckResult, onCritical CriticalFunc) {
	policy := m.checker.Policy()
	action := policy.ActionForSeverity(result.Severity)
	if action == ActionNone {
		return
	}

	reason := fmt.Sprintf("health score %d for %s", result.Score, result.Index)
	m.log.Warn("Index health degraded",
		logger.String("index", result.Index),
		logger.Int("score", result.Score),
		logger.String("severity", string(result.Severity)),
		logger.Strings("errors", result.Details.Errors),
	)
	m.alerts.Dispatch(HealthAlert(result))

	if action == ActionRollback && onCritical != nil {
		onCritical(result.Index, reason)
	}
}

// HealthAlert builds the alert for a health result.
func HealthAlert(result domain.HealthCheckResult) domain.AlertEvent {
	d := result.Details
	msg := fmt.Sprintf("score=%d cluster=%s index=%s latency=%v error_ratio=%.4f",
		result.Score, d.ClusterStatus, d.IndexStatus, d.QueryLatency, d.ErrorRatio)
	return domain.AlertEvent{
		Timestamp: result.CheckedAt,
		Severity:  result.Severity,
		Title:     "Index health degraded: " + result.Index,
		Message:   msg,
		Metrics: map[string]float64{
			"score":                float64(result.Score),
			"query_latency_ms":     float64(d.QueryLatency.Milliseconds()),
			"indexing_error_ratio": d.ErrorRatio,
		},
	}
}
