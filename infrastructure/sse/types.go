// Package sse streams migration and alert events to operators over
// Server-Sent Events.
package sse

import (
	"context"
	"time"
)

// Event is one Server-Sent Event.
// Wire format: event: <Type>\nid: <ID>\ndata: <JSON payload>\n\n
type Event struct {
	Type string `json:"type"`
	// Data must be JSON-serializable.
	Data any    `json:"data"`
	ID   string `json:"id,omitempty"`
	// Retry is the client reconnect delay in milliseconds.
	Retry int `json:"retry,omitempty"`
}

// Publisher sends events to the broker.
type Publisher interface {
	// Publish never blocks; it fails when the broker buffer is full.
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the broker.
type Subscriber interface {
	// Subscribe returns a channel closed when the subscription ends and a
	// cleanup func the caller must run. The channel is nil when the broker is
	// at capacity.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func())
	HeartbeatInterval() time.Duration
}

// Broker fans published events out to subscribers.
type Broker interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Stop() error
	ClientCount() int
}

// EventFilter reports whether a client receives an event.
type EventFilter func(event Event) bool

// ClientOptions configures one subscription.
type ClientOptions struct {
	Filter     EventFilter
	BufferSize int
}

// Event types.
const (
	EventTypeMigrationState    = "migration:state"
	EventTypeMigrationProgress = "migration:progress"
	EventTypeAlert             = "alert:raised"

	eventTypeConnected = "connected"
)

// RunScoped is implemented by payloads that belong to a migration run.
type RunScoped interface {
	MigrationRunID() string
}

// MigrationStateData is the payload for migration:state events.
type MigrationStateData struct {
	RunID     string `json:"run_id"`
	Alias     string `json:"alias"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

// MigrationRunID implements RunScoped.
func (d MigrationStateData) MigrationRunID() string { return d.RunID }

// MigrationProgressData is the payload for migration:progress events.
type MigrationProgressData struct {
	RunID      string  `json:"run_id"`
	Processed  int64   `json:"processed"`
	Total      int64   `json:"total"`
	Failed     int64   `json:"failed"`
	Percent    float64 `json:"percent"`
	Throughput float64 `json:"throughput"`
	ETASeconds float64 `json:"eta_seconds"`
	Timestamp  string  `json:"timestamp"`
}

// MigrationRunID implements RunScoped.
func (d MigrationProgressData) MigrationRunID() string { return d.RunID }

// AlertData is the payload for alert:raised events.
type AlertData struct {
	ID        string             `json:"id"`
	Severity  string             `json:"severity"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// NewMigrationStateEvent creates a migration:state event.
func NewMigrationStateEvent(runID, alias, from, to string, at time.Time) Event {
	return Event{
		Type: EventTypeMigrationState,
		Data: MigrationStateData{
			RunID:     runID,
			Alias:     alias,
			From:      from,
			To:        to,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	}
}

// NewMigrationProgressEvent creates a migration:progress event.
func NewMigrationProgressEvent(data MigrationProgressData, at time.Time) Event {
	data.Timestamp = at.UTC().Format(time.RFC3339)
	return Event{Type: EventTypeMigrationProgress, Data: data}
}

// NewAlertEvent creates an alert:raised event. The alert id doubles as the
// event id so clients can deduplicate after reconnecting.
func NewAlertEvent(data AlertData, at time.Time) Event {
	data.Timestamp = at.UTC().Format(time.RFC3339)
	return Event{Type: EventTypeAlert, ID: data.ID, Data: data}
}
