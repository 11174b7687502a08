package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// NamedQuery is a representative search request body.
type NamedQuery struct {
	Name string         `yaml:"name"`
	Body map[string]any `yaml:"body"`
}

const performanceQuerySize = 10

// DefaultPerformanceQueries returns a match_all, a full-text and a filtered query
// over the document fields.
func DefaultPerformanceQueries() []NamedQuery {
	return []NamedQuery{
		{
			Name: "match_all",
			Body: map[string]any{
				"size":  performanceQuerySize,
				"query": map[string]any{"match_all": map[string]any{}},
			},
		},
		{
			Name: "full_text",
			Body: map[string]any{
				"size": performanceQuerySize,
				"query": map[string]any{
					"match": map[string]any{"extracted_text": "document"},
				},
			},
		},
		{
			Name: "file_type_filter",
			Body: map[string]any{
				"size": performanceQuerySize,
				"query": map[string]any{
					"bool": map[string]any{
						"filter": []any{
							map[string]any{"term": map[string]any{"file_type": "pdf"}},
						},
					},
				},
			},
		},
	}
}

// QueryPerformanceRule times representative queries against the target.
type QueryPerformanceRule struct {
	backend    Backend
	clock      clock.Clock
	queries    []NamedQuery
	maxAverage time.Duration
	maxLatency time.Duration
}

// NewQueryPerformanceRule creates a performance rule. The average latency must be
// below maxAverage and every query below maxLatency.
func NewQueryPerformanceRule(backend Backend, clk clock.Clock, queries []NamedQuery, maxAverage, maxLatency time.Duration) *QueryPerformanceRule {
	return &QueryPerformanceRule{
		backend:    backend,
		clock:      clk,
		queries:    queries,
		maxAverage: maxAverage,
		maxLatency: maxLatency,
	}
}

func (r *QueryPerformanceRule) Name() string { return "query_performance" }

func (r *QueryPerformanceRule) Validate(ctx context.Context, _, target string) domain.ValidationResult {
	details := domain.PerformanceDetails{Queries: make([]domain.QueryTiming, 0, len(r.queries))}
	if len(r.queries) == 0 {
		return domain.ValidationResult{Passed: true, Message: "no queries configured", Details: details}
	}

	var total time.Duration
	for _, q := range r.queries {
		start := r.clock.Now()
		res, err := r.backend.Search(ctx, target, q.Body)
		if err != nil {
			return errorResult("query "+q.Name, err)
		}
		latency := r.clock.Now().Sub(start)

		total += latency
		details.MaxLatency = max(details.MaxLatency, latency)
		details.Queries = append(details.Queries, domain.QueryTiming{
			Query:   q.Name,
			Latency: latency,
			Hits:    res.Total,
		})
	}
	details.AverageLatency = total / time.Duration(len(r.queries))

	if details.AverageLatency >= r.maxAverage || details.MaxLatency >= r.maxLatency {
		msg := fmt.Sprintf("query latency too high: avg=%v (limit %v) max=%v (limit %v)",
			details.AverageLatency, r.maxAverage, details.MaxLatency, r.maxLatency)
		return domain.ValidationResult{Passed: false, Message: msg, Details: details}
	}
	return domain.ValidationResult{
		Passed:  true,
		Message: fmt.Sprintf("query latency ok: avg=%v max=%v", details.AverageLatency, details.MaxLatency),
		Details: details,
	}
}
