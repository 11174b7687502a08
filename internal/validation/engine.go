// Package validation checks that a freshly built target index is a faithful
// copy of its source before and after traffic is switched to it.
package validation

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// Rule is one validation check. Validate never panics on backend errors; it
// reports them as a failing result.
type Rule interface {
	Name() string
	Validate(ctx context.Context, source, target string) domain.ValidationResult
}

// Backend is the subset of the index API the default rules need.
type Backend interface {
	Count(ctx context.Context, name string) (int64, error)
	SampleIDs(ctx context.Context, name string, size int) ([]string, error)
	MultiGet(ctx context.Context, name string, ids []string) (map[string]bool, error)
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	Search(ctx context.Context, name string, query map[string]any) (elasticsearch.SearchResult, error)
}

// Report is the outcome of an engine run.
type Report struct {
	Passed     bool                      `json:"passed"`
	FailedRule string                    `json:"failed_rule,omitempty"`
	Results    []domain.ValidationResult `json:"results"`
}

// Engine runs rules in order and stops at the first failure.
type Engine struct {
	rules []Rule
	log   logger.Logger
}

// NewEngine creates an engine over rules, which run in the given order.
func NewEngine(log logger.Logger, rules ...Rule) *Engine {
	return &Engine{rules: rules, log: log}
}

// RuleNames returns the rule names in execution order.
func (e *Engine) RuleNames() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Run validates target against source.
func (e *Engine) Run(ctx context.Context, source, target string) Report {
	report := Report{Passed: true, Results: make([]domain.ValidationResult, 0, len(e.rules))}

	for _, rule := range e.rules {
		result := rule.Validate(ctx, source, target)
		result.Rule = rule.Name()
		report.Results = append(report.Results, result)

		if !result.Passed {
			report.Passed = false
			report.FailedRule = rule.Name()
			e.log.Warn("Validation rule failed",
				logger.String("rule", rule.Name()),
				logger.String("source", source),
				logger.String("target", target),
				logger.String("message", result.Message),
			)
			break
		}
		e.log.Debug("Validation rule passed",
			logger.String("rule", rule.Name()),
			logger.String("target", target),
		)
	}

	return report
}

// Config holds the thresholds of the default rules.
type Config struct {
	CountTolerance     float64
	SampleSize         int
	MGetChunkSize      int
	VectorField        string
	VectorType         string
	VectorDimensions   int
	VectorSimilarity   string
	MaxAverageLatency  time.Duration
	MaxLatency         time.Duration
	PerformanceQueries []NamedQuery
}

// Default rule thresholds.
const (
	DefaultCountTolerance    = 0.001
	DefaultSampleSize        = 100
	DefaultMGetChunkSize     = 25
	DefaultMaxAverageLatency = time.Second
	DefaultMaxLatency        = 2 * time.Second
)

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.CountTolerance <= 0 {
		c.CountTolerance = DefaultCountTolerance
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.MGetChunkSize <= 0 {
		c.MGetChunkSize = DefaultMGetChunkSize
	}
	if c.VectorField == "" {
		c.VectorField = defaultVectorField
	}
	if c.VectorType == "" {
		c.VectorType = defaultVectorType
	}
	if c.VectorDimensions <= 0 {
		c.VectorDimensions = defaultVectorDimensions
	}
	if c.VectorSimilarity == "" {
		c.VectorSimilarity = defaultVectorSimilarity
	}
	if c.MaxAverageLatency <= 0 {
		c.MaxAverageLatency = DefaultMaxAverageLatency
	}
	if c.MaxLatency <= 0 {
		c.MaxLatency = DefaultMaxLatency
	}
	if len(c.PerformanceQueries) == 0 {
		c.PerformanceQueries = DefaultPerformanceQueries()
	}
}

// DefaultRules returns the standard rule chain: count parity, sample
// existence, vector schema and query performance.
func DefaultRules(backend Backend, cfg Config, clk clock.Clock) []Rule {
	cfg.SetDefaults()
	return []Rule{
		NewDocumentCountRule(backend, cfg.CountTolerance),
		NewSampleExistenceRule(backend, cfg.SampleSize, cfg.MGetChunkSize),
		NewSchemaRule(backend, VectorSpec{
			Field:      cfg.VectorField,
			Type:       cfg.VectorType,
			Dimensions: cfg.VectorDimensions,
			Similarity: cfg.VectorSimilarity,
		}),
		NewQueryPerformanceRule(backend, clk, cfg.PerformanceQueries, cfg.MaxAverageLatency, cfg.MaxLatency),
	}
}

func errorResult(op string, err error) domain.ValidationResult {
	return domain.ValidationResult{
		Passed:  false,
		Message: op + " failed: " + err.Error(),
		Details: domain.ErrorDetails{Operation: op, Error: err.Error()},
	}
}
