package domain

import "time"

// HealthCheckResult combines four boolean sub-checks into a 0-100 score.
type HealthCheckResult struct {
	Index            string        `json:"index"`
	Healthy          bool          `json:"healthy"`
	Score            int           `json:"score"`
	Severity         Severity      `json:"severity"`
	ClusterHealth    bool          `json:"cluster_health"`
	IndexHealth      bool          `json:"index_health"`
	QueryPerformance bool          `json:"query_performance"`
	ErrorRate        bool          `json:"error_rate"`
	Details          HealthDetails `json:"details"`
	CheckedAt        time.Time     `json:"checked_at"`
}

// HealthDetails carries the raw observations behind each sub-check.
type HealthDetails struct {
	ClusterStatus string        `json:"cluster_status,omitempty"`
	IndexStatus   string        `json:"index_status,omitempty"`
	QueryLatency  time.Duration `json:"query_latency,omitempty"`
	ErrorRatio    float64       `json:"error_ratio"`
	Errors        []string      `json:"errors,omitempty"`
}

// MetricPoint is one time-series sample.
type MetricPoint struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Timestamp  time.Time         `json:"timestamp"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}
