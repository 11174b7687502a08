package domain

import (
	"fmt"
	"time"
)

// AlertEvent is a fire-and-forget notification.
type AlertEvent struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Severity  Severity           `json:"severity"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Subject renders the "[SEVERITY] Title" subject line.
func (a AlertEvent) Subject() string {
	return fmt.Sprintf("[%s] %s", a.Severity, a.Title)
}
