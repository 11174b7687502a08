package domain

import (
	"errors"
	"slices"
	"time"
)

// ErrRunNotFound is returned by run lookups that match nothing.
var ErrRunNotFound = errors.New("migration run not found")

// MigrationState is a state of the migration state machine.
type MigrationState string

const (
	StateIdle            MigrationState = "IDLE"
	StateValidating      MigrationState = "VALIDATING"
	StateBuildingGreen   MigrationState = "BUILDING_GREEN"
	StateReindexing      MigrationState = "REINDEXING"
	StateValidatingGreen MigrationState = "VALIDATING_GREEN"
	StateSwitching       MigrationState = "SWITCHING"
	StateMonitoring      MigrationState = "MONITORING"
	StateCompleted       MigrationState = "COMPLETED"
	StateRollingBack     MigrationState = "ROLLING_BACK"
	StateFailed          MigrationState = "FAILED"
)

// IsTerminal reports whether no further transition can happen.
func (s MigrationState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MigrationError is one entry of a run's ordered error log.
type MigrationError struct {
	Timestamp time.Time      `json:"timestamp"`
	Phase     MigrationState `json:"phase"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
}

// MigrationRun is the record of one source to target migration.
type MigrationRun struct {
	ID           string          `json:"id"`
	SourceAlias  string          `json:"source_alias"`
	StagingAlias string          `json:"staging_alias"`
	Source       IndexDescriptor `json:"source"`
	Target       IndexDescriptor `json:"target"`
	State        MigrationState  `json:"state"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`

	TotalDocuments     int64 `json:"total_documents"`
	ProcessedDocuments int64 `json:"processed_documents"`
	FailedDocuments    int64 `json:"failed_documents"`
	// CurrentThroughput is in documents per second.
	CurrentThroughput      float64       `json:"current_throughput"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	ReindexTaskID          string        `json:"reindex_task_id,omitempty"`

	Errors []MigrationError `json:"errors"`
}

// Snapshot returns a deep copy that is safe to hand to other goroutines.
func (r *MigrationRun) Snapshot() MigrationRun {
	cp := *r
	cp.Errors = slices.Clone(r.Errors)
	if cp.Errors == nil {
		cp.Errors = []MigrationError{}
	}
	if r.EndTime != nil {
		end := *r.EndTime
		cp.EndTime = &end
	}
	return cp
}

// AddError appends an entry to the error log.
func (r *MigrationRun) AddError(at time.Time, sev Severity, msg string) MigrationError {
	e := MigrationError{Timestamp: at, Phase: r.State, Message: msg, Severity: sev}
	r.Errors = append(r.Errors, e)
	return e
}

// HasErrorAtLeast reports whether any entry is at least sev.
func (r *MigrationRun) HasErrorAtLeast(sev Severity) bool {
	for _, e := range r.Errors {
		if e.Severity.AtLeast(sev) {
			return true
		}
	}
	return false
}

// ProgressPercent is processed/total as a percentage, 0 when total is unknown.
func (r *MigrationRun) ProgressPercent() float64 {
	if r.TotalDocuments <= 0 {
		return 0
	}
	return float64(r.ProcessedDocuments) / float64(r.TotalDocuments) * 100
}
