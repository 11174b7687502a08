package sse

import (
	"slices"
	"time"
)

// Default configuration values.
const (
	DefaultEventBufferSize   = 256
	DefaultClientBufferSize  = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 100
)

// Config holds broker configuration.
type Config struct {
	Enabled           bool          `env:"EVENTS_ENABLED"     yaml:"enabled"`
	EventBufferSize   int           `yaml:"event_buffer_size"`
	ClientBufferSize  int           `yaml:"client_buffer_size"`
	HeartbeatInterval time.Duration `env:"EVENTS_HEARTBEAT"   yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxClients        int           `env:"EVENTS_MAX_CLIENTS" yaml:"max_clients"`
}

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithConfig applies the non-zero fields of cfg.
func WithConfig(cfg Config) BrokerOption {
	return func(b *broker) {
		if cfg.EventBufferSize > 0 {
			b.eventBufferSize = cfg.EventBufferSize
		}
		if cfg.ClientBufferSize > 0 {
			b.clientBufferSize = cfg.ClientBufferSize
		}
		if cfg.HeartbeatInterval > 0 {
			b.heartbeatInterval = cfg.HeartbeatInterval
		}
		if cfg.ShutdownTimeout > 0 {
			b.shutdownTimeout = cfg.ShutdownTimeout
		}
		if cfg.MaxClients > 0 {
			b.maxClients = cfg.MaxClients
		}
	}
}

// ClientOption configures a subscription.
type ClientOption func(*ClientOptions)

// WithBufferSize sets the client's event buffer size.
func WithBufferSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		if size > 0 {
			opts.BufferSize = size
		}
	}
}

// WithFilter adds a filter. Multiple filters must all pass.
func WithFilter(filter EventFilter) ClientOption {
	return func(opts *ClientOptions) {
		prev := opts.Filter
		if prev == nil {
			opts.Filter = filter
			return
		}
		opts.Filter = func(event Event) bool {
			return prev(event) && filter(event)
		}
	}
}

// WithTypes passes only the listed event types.
func WithTypes(types ...string) ClientOption {
	return WithFilter(func(event Event) bool {
		return slices.Contains(types, event.Type)
	})
}

// WithRunFilter passes only events of one migration run. Events whose
// payload is not run scoped, such as alerts, are dropped.
func WithRunFilter(runID string) ClientOption {
	return WithFilter(func(event Event) bool {
		scoped, ok := event.Data.(RunScoped)
		return ok && scoped.MigrationRunID() == runID
	})
}
