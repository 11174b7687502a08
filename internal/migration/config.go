package migration

import (
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/internal/monitoring"
)

// Default configuration values.
const (
	DefaultStagingSuffix      = "_staging"
	DefaultMonitoringWindow   = 5 * time.Minute
	DefaultMonitoringInterval = 30 * time.Second
	DefaultRollbackTimeout    = 30 * time.Second
	DefaultStoreTimeout       = 5 * time.Second
)

// Config holds orchestrator timing and naming.
type Config struct {
	// StagingSuffix is appended to the source alias to name the staging alias.
	StagingSuffix string
	Poller        monitoring.PollerConfig
	// MonitoringWindow is how long the target is watched after cutover.
	MonitoringWindow   time.Duration
	MonitoringInterval time.Duration
	RollbackTimeout    time.Duration
	StoreTimeout       time.Duration
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.StagingSuffix == "" {
		c.StagingSuffix = DefaultStagingSuffix
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = monitoring.DefaultPollInterval
	}
	if c.Poller.StallPolls <= 0 {
		c.Poller.StallPolls = monitoring.DefaultStallPolls
	}
	if c.Poller.MaxPolls <= 0 {
		c.Poller.MaxPolls = monitoring.DefaultMaxPolls
	}
	if c.Poller.MaxPollErrors <= 0 {
		c.Poller.MaxPollErrors = monitoring.DefaultMaxPollErrors
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = DefaultMonitoringWindow
	}
	if c.MonitoringInterval <= 0 {
		c.MonitoringInterval = DefaultMonitoringInterval
	}
	if c.RollbackTimeout <= 0 {
		c.RollbackTimeout = DefaultRollbackTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
}
