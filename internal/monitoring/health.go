package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// Health check defaults.
const (
	DefaultQueryLatencyThreshold = time.Second
	DefaultErrorRateThreshold    = 0.05
	DefaultHealthyScore          = 100
	DefaultCriticalScore         = 25

	pointsPerCheck = 25
)

// Action is what a health result asks the caller to do.
type Action string

const (
	ActionNone     Action = "none"
	ActionAlert    Action = "alert"
	ActionRollback Action = "rollback"
)

// Policy maps health scores to severities and severities to actions.
type Policy struct {
	// HealthyScore and above is INFO.
	HealthyScore int
	// Scores above CriticalScore and below HealthyScore are WARNING; the rest CRITICAL.
	CriticalScore int
	// RollbackSeverity and above request a rollback.
	RollbackSeverity domain.Severity
}

// DefaultPolicy returns the standard thresholds: 100 healthy, 25 or less critical,
// critical triggers rollback.
func DefaultPolicy() Policy {
	return Policy{
		HealthyScore:     DefaultHealthyScore,
		CriticalScore:    DefaultCriticalScore,
		RollbackSeverity: domain.SeverityCritical,
	}
}

// SeverityFor classifies a score.
func (p Policy) SeverityFor(score int) domain.Severity {
	switch {
	case score >= p.HealthyScore:
		return domain.SeverityInfo
	case score > p.CriticalScore:
		return domain.SeverityWarning
	default:
		return domain.SeverityCritical
	}
}

// ActionFor returns the action for a score.
func (p Policy) ActionFor(score int) Action {
	return p.ActionForSeverity(p.SeverityFor(score))
}

// ActionForSeverity returns the action for a severity.
func (p Policy) ActionForSeverity(sev domain.Severity) Action {
	switch {
	case sev.AtLeast(p.RollbackSeverity):
		return ActionRollback
	case sev.AtLeast(domain.SeverityWarning):
		return ActionAlert
	default:
		return ActionNone
	}
}

// HealthBackend is the subset of the index API the health checker needs.
type HealthBackend interface {
	ClusterHealth(ctx context.Context) (string, error)
	IndexHealth(ctx context.Context, name string) (string, error)
	Search(ctx context.Context, name string, query map[string]any) (elasticsearch.SearchResult, error)
	IndexStats(ctx context.Context, name string) (elasticsearch.IndexingStats, error)
}

// HealthConfig holds the sub-check thresholds.
type HealthConfig struct {
	QueryLatencyThreshold time.Duration
	ErrorRateThreshold    float64
}

// HealthChecker scores an index from four concurrent sub-checks worth 25 points each.
type HealthChecker struct {
	backend HealthBackend
	clock   clock.Clock
	cfg     HealthConfig
	policy  Policy
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(backend HealthBackend, cfg HealthConfig, policy Policy, clk clock.Clock) *HealthChecker {
	if cfg.QueryLatencyThreshold <= 0 {
		cfg.QueryLatencyThreshold = DefaultQueryLatencyThreshold
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	return &HealthChecker{backend: backend, clock: clk, cfg: cfg, policy: policy}
}

// Policy returns the checker's scoring policy.
func (h *HealthChecker) Policy() Policy {
	return h.policy
}

var matchAllQuery = map[string]any{
	"size":  0,
	"query": map[string]any{"match_all": map[string]any{}},
}

// Check runs the sub-checks against index. Backend errors fail the affected
// sub-check and are listed in the result details.
func (h *HealthChecker) Check(ctx context.Context, index string) domain.HealthCheckResult {
	result := domain.HealthCheckResult{Index: index}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	fail := func(check string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Details.Errors = append(result.Details.Errors, fmt.Sprintf("%s: %v", check, err))
	}

	g.Go(func() error {
		status, err := h.backend.ClusterHealth(ctx)
		if err != nil {
			fail("cluster_health", err)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		result.Details.ClusterStatus = status
		result.ClusterHealth = status != elasticsearch.HealthRed
		return nil
	})

	g.Go(func() error {
		status, err := h.backend.IndexHealth(ctx, index)
		if err != nil {
			fail("index_health", err)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		result.Details.IndexStatus = status
		result.IndexHealth = status != elasticsearch.HealthRed
		return nil
	})

	g.Go(func() error {
		start := h.clock.Now()
		if _, err := h.backend.Search(ctx, index, matchAllQuery); err != nil {
			fail("query_performance", err)
			return nil
		}
		latency := h.clock.Now().Sub(start)
		mu.Lock()
		defer mu.Unlock()
		result.Details.QueryLatency = latency
		result.QueryPerformance = latency < h.cfg.QueryLatencyThreshold
		return nil
	})

	g.Go(func() error {
		stats, err := h.backend.IndexStats(ctx, index)
		if err != nil {
			fail("error_rate", err)
			return nil
		}
		ratio := stats.ErrorRatio()
		mu.Lock()
		defer mu.Unlock()
		result.Details.ErrorRatio = ratio
		result.ErrorRate = ratio < h.cfg.ErrorRateThreshold
		return nil
	})

	_ = g.Wait()

	for _, ok := range []bool{result.ClusterHealth, result.IndexHealth, result.QueryPerformance, result.ErrorRate} {
		if ok {
			result.Score += pointsPerCheck
		}
	}
	result.Healthy = result.ClusterHealth && result.IndexHealth && result.QueryPerformance && result.ErrorRate
	result.Severity = h.policy.SeverityFor(result.Score)
	result.CheckedAt = h.clock.Now()
	return result
}
