package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/index-guard/internal/config"
	"github.com/jonesrussell/north-cloud/index-guard/internal/database"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
	"github.com/jonesrussell/north-cloud/index-guard/internal/monitoring"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
	"github.com/jonesrussell/north-cloud/index-guard/internal/validation"
)

// Services holds the wired index-guard components.
type Services struct {
	Resilience *resilience.Client
	API        *resilience.IndexClient
	Health     *monitoring.HealthChecker
	Buffer     *monitoring.Buffer
	Alerts     *monitoring.AlertDispatcher
	Migrations *migration.Manager
	// Monitor is nil when continuous monitoring is disabled.
	Monitor *monitoring.Monitor
	// Events is nil when the event stream is disabled.
	Events sse.Broker
}

// SetupServices wires the resilient client, validation, monitoring and the
// migration manager. db and rdb may be nil.
func SetupServices(
	cfg *config.Config,
	esClient *elasticsearch.Client,
	db *database.Connection,
	rdb *redis.Client,
	registry *prometheus.Registry,
	log infralogger.Logger,
) *Services {
	clk := clock.New()

	client := resilience.New(ResilienceConfig(cfg), log, resilience.WithRegisterer(registry))
	api := resilience.NewIndexClient(client, esClient)

	engine := validation.NewEngine(log, validation.DefaultRules(api, ValidationConfig(cfg), clk)...)

	health := monitoring.NewHealthChecker(api, monitoring.HealthConfig{
		QueryLatencyThreshold: cfg.Monitoring.QueryLatencyThreshold,
		ErrorRateThreshold:    cfg.Monitoring.ErrorRateThreshold,
	}, HealthPolicy(cfg), clk)

	sinks := monitoring.MultiSink{monitoring.NewPrometheusSink(registry)}
	var publisher monitoring.Publisher = monitoring.NewLogPublisher(log)
	if rdb != nil {
		sinks = append(sinks, monitoring.NewRedisStreamSink(rdb, cfg.Monitoring.MetricsStream, cfg.Monitoring.MetricsStreamMaxLen))
		publisher = monitoring.NewRedisPublisher(rdb, cfg.Monitoring.AlertChannel)
	}

	var events sse.Broker
	if cfg.Events.Enabled {
		events = sse.NewBroker(log.With(infralogger.String("component", "events")), sse.WithConfig(cfg.Events))
		publisher = monitoring.MultiPublisher{publisher, monitoring.NewStreamPublisher(events)}
	}

	buffer := monitoring.NewBuffer(sinks, monitoring.BufferConfig{
		FlushInterval:     cfg.Monitoring.FlushInterval,
		MaxPendingBatches: cfg.Monitoring.MaxPendingBatches,
	}, clk, log)

	alerts := monitoring.NewAlertDispatcher(publisher, monitoring.AlertConfig{
		RatePerSecond: cfg.Monitoring.AlertsPerSecond,
		Burst:         cfg.Monitoring.AlertBurst,
	}, clk, log)

	deps := migration.Deps{
		API:     api,
		Engine:  engine,
		Health:  health,
		Metrics: buffer,
		Alerts:  alerts,
		Clock:   clk,
		Log:     log.With(infralogger.String("component", "migration")),
	}
	if db != nil {
		deps.Store = db
	}
	if events != nil {
		deps.Events = events
	}
	manager := migration.NewManager(deps, MigrationConfig(cfg))

	s := &Services{
		Resilience: client,
		API:        api,
		Health:     health,
		Buffer:     buffer,
		Alerts:     alerts,
		Migrations: manager,
		Events:     events,
	}

	if cfg.Monitoring.Enabled && len(cfg.Monitoring.Targets) > 0 {
		s.Monitor = monitoring.NewMonitor(health, api, alerts, cfg.Monitoring.Targets,
			cfg.Monitoring.CheckInterval, clk, log.With(infralogger.String("component", "monitor")))
		if cfg.Monitoring.AutoRollback {
			s.Monitor.OnCritical(manager.SignalRollback)
		}
	}

	return s
}

// Run starts the background loops. They stop when ctx is done.
func (s *Services) Run(ctx context.Context) error {
	if s.Events != nil {
		if err := s.Events.Start(ctx); err != nil {
			return fmt.Errorf("start event broker: %w", err)
		}
	}
	go s.Buffer.Run(ctx)
	go s.Alerts.Run(ctx)
	if s.Monitor != nil {
		go s.Monitor.Run(ctx)
	}
	return nil
}

// Shutdown rolls back in-flight migrations and waits for them until ctx ends.
func (s *Services) Shutdown(ctx context.Context) error {
	return s.Migrations.Shutdown(ctx)
}

// ResilienceConfig maps the resilience settings.
func ResilienceConfig(cfg *config.Config) resilience.Config {
	r := cfg.Resilience
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = r.MaxAttempts
	policy.InitialDelay = r.InitialDelay
	policy.MaxDelay = r.MaxDelay
	policy.BackoffMultiplier = r.BackoffMultiplier

	return resilience.Config{
		FailureThreshold: r.FailureThreshold,
		SuccessThreshold: r.SuccessThreshold,
		OpenTimeout:      r.OpenTimeout,
		MonitoringPeriod: r.MonitoringPeriod,
		Retry:            policy,
		MaxConcurrent:    r.MaxConcurrent,
		MaxQueueSize:     r.MaxQueueSize,
		QueueTimeout:     r.QueueTimeout,
	}
}

// ValidationConfig maps the validation rule thresholds.
func ValidationConfig(cfg *config.Config) validation.Config {
	v := cfg.Validation
	return validation.Config{
		CountTolerance:    v.CountTolerance,
		SampleSize:        v.SampleSize,
		VectorField:       v.VectorField,
		VectorDimensions:  v.VectorDimensions,
		MaxAverageLatency: v.MaxAverageLatency,
		MaxLatency:        v.MaxLatency,
	}
}

// MigrationConfig maps the orchestrator timings.
func MigrationConfig(cfg *config.Config) migration.Config {
	m := cfg.Migration
	return migration.Config{
		StagingSuffix: m.StagingSuffix,
		Poller: monitoring.PollerConfig{
			Interval:   m.PollInterval,
			StallPolls: m.StallPolls,
		},
		MonitoringWindow:   m.MonitoringWindow,
		MonitoringInterval: m.MonitoringInterval,
	}
}

// HealthPolicy maps the score thresholds.
func HealthPolicy(cfg *config.Config) monitoring.Policy {
	return monitoring.Policy{
		HealthyScore:     cfg.Monitoring.HealthyScore,
		CriticalScore:    cfg.Monitoring.CriticalScore,
		RollbackSeverity: domain.Severity(cfg.Monitoring.RollbackSeverity),
	}
}
