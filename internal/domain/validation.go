package domain

import "time"

// ValidationResult is produced once per rule invocation.
type ValidationResult struct {
	Rule    string      `json:"rule"`
	Passed  bool        `json:"passed"`
	Message string      `json:"message"`
	Details RuleDetails `json:"details,omitempty"`
}

// RuleDetails is the rule-specific evidence attached to a result.
type RuleDetails interface {
	ruleDetails()
}

// CountDetails backs the document count parity rule.
type CountDetails struct {
	SourceCount int64   `json:"source_count"`
	TargetCount int64   `json:"target_count"`
	Difference  int64   `json:"difference"`
	Allowed     float64 `json:"allowed"`
}

// SampleDetails backs the sample existence rule.
type SampleDetails struct {
	SampleSize int      `json:"sample_size"`
	Found      int      `json:"found"`
	MissingIDs []string `json:"missing_ids,omitempty"`
}

// SchemaDetails backs the vector field schema rule.
type SchemaDetails struct {
	Field              string `json:"field"`
	Present            bool   `json:"present"`
	ExpectedType       string `json:"expected_type"`
	ActualType         string `json:"actual_type,omitempty"`
	ExpectedDimensions int    `json:"expected_dimensions"`
	ActualDimensions   int    `json:"actual_dimensions,omitempty"`
	ExpectedSimilarity string `json:"expected_similarity"`
	ActualSimilarity   string `json:"actual_similarity,omitempty"`
}

// QueryTiming is the latency of one representative query.
type QueryTiming struct {
	Query   string        `json:"query"`
	Latency time.Duration `json:"latency"`
	Hits    int64         `json:"hits"`
}

// PerformanceDetails backs the query performance rule.
type PerformanceDetails struct {
	Queries        []QueryTiming `json:"queries"`
	AverageLatency time.Duration `json:"average_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
}

// ErrorDetails is attached when the rule could not reach a verdict because a backend call failed.
type ErrorDetails struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

func (CountDetails) ruleDetails()       {}
func (SampleDetails) ruleDetails()      {}
func (SchemaDetails) ruleDetails()      {}
func (PerformanceDetails) ruleDetails() {}
func (ErrorDetails) ruleDetails()       {}
