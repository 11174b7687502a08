package config

import (
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/index-guard/infrastructure/config"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/index-guard/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
)

// Default configuration values.
const (
	defaultServiceName     = "index-guard"
	defaultServiceVersion  = "1.0.0"
	defaultServicePort     = 8095
	defaultDBHost          = "localhost"
	defaultDBPort          = 5432
	defaultDBUser          = "postgres"
	defaultDBName          = "index_guard"
	defaultDBSSLMode       = "disable"
	defaultDBMaxConns      = 10
	defaultDBMaxIdleConns  = 2
	defaultDBConnLifetimeM = 5
	defaultESURL           = "http://localhost:9200"
	defaultESMaxRetries    = 3
	defaultESPingTimeoutS  = 5
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"

	defaultFailureThreshold  = 5
	defaultSuccessThreshold  = 3
	defaultOpenTimeoutSec    = 60
	defaultMonitoringPeriodS = 10
	defaultMaxAttempts       = 3
	defaultInitialDelayMS    = 1000
	defaultMaxDelaySec       = 10
	defaultBackoffMultiplier = 2.0
	defaultMaxConcurrent     = 10
	defaultMaxQueueSize      = 100
	defaultQueueTimeoutSec   = 30

	defaultCountTolerance = 0.001
	defaultSampleSize     = 100
	defaultVectorField    = "image_vector"
	defaultVectorDims     = 1024

	defaultStagingSuffix      = "_staging"
	defaultPollIntervalSec    = 10
	defaultStallPolls         = 6
	defaultMonitoringWindowM  = 5
	defaultMonitoringInterval = 30

	defaultCheckIntervalSec  = 30
	defaultFlushIntervalSec  = 60
	defaultMetricsStream     = "index-guard:metrics"
	defaultMetricsStreamLen  = 10000
	defaultAlertChannel      = "index-guard:alerts"
	defaultAlertsPerSecond   = 1.0
	defaultAlertBurst        = 5
	defaultErrorRate         = 0.05
	defaultQueryLatencyMS    = 1000
	defaultHealthyScore      = 100
	defaultCriticalScore     = 25
	defaultRollbackSeverity  = "CRITICAL"
	defaultMaxPendingBatches = 10
)

// Config holds the application configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Database      DatabaseConfig      `yaml:"database"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         infraredis.Config   `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Validation    ValidationConfig    `yaml:"validation"`
	Migration     MigrationConfig     `yaml:"migration"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Events        sse.Config          `yaml:"events"`
	Profiling     profiling.Config    `yaml:"profiling"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServiceConfig holds service configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"INDEX_GUARD_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"        yaml:"debug"`
}

// DatabaseConfig holds the audit store configuration. A disabled store keeps
// run history in memory only.
type DatabaseConfig struct {
	Enabled               bool          `env:"POSTGRES_INDEX_GUARD_ENABLED"  yaml:"enabled"`
	Host                  string        `env:"POSTGRES_INDEX_GUARD_HOST"     yaml:"host"`
	Port                  int           `env:"POSTGRES_INDEX_GUARD_PORT"     yaml:"port"`
	User                  string        `env:"POSTGRES_INDEX_GUARD_USER"     yaml:"user"`
	Password              string        `env:"POSTGRES_INDEX_GUARD_PASSWORD" yaml:"password"` //nolint:gosec // G117: DB connection config
	Database              string        `env:"POSTGRES_INDEX_GUARD_DB"       yaml:"database"`
	SSLMode               string        `yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// ElasticsearchConfig holds Elasticsearch configuration.
type ElasticsearchConfig struct {
	URL         string        `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Username    string        `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password    string        `env:"ELASTICSEARCH_PASSWORD" yaml:"password"` //nolint:gosec // G117: connection config
	APIKey      string        `env:"ELASTICSEARCH_API_KEY"  yaml:"api_key"`
	MaxRetries  int           `yaml:"max_retries"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

// AuthConfig holds the control surface authentication settings.
type AuthConfig struct {
	// JWTSecret enables bearer token checks on /api/v1 when set.
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"` //nolint:gosec // G117: auth config
}

// ResilienceConfig holds breaker, retry and bulkhead parameters.
type ResilienceConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	SuccessThreshold  int           `yaml:"success_threshold"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
	MonitoringPeriod  time.Duration `yaml:"monitoring_period"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxConcurrent     int           `env:"RESILIENCE_MAX_CONCURRENT" yaml:"max_concurrent"`
	MaxQueueSize      int           `yaml:"max_queue_size"`
	QueueTimeout      time.Duration `yaml:"queue_timeout"`
}

// ValidationConfig holds pre-cutover rule thresholds.
type ValidationConfig struct {
	CountTolerance    float64       `yaml:"count_tolerance"`
	SampleSize        int           `yaml:"sample_size"`
	VectorField       string        `yaml:"vector_field"`
	VectorDimensions  int           `yaml:"vector_dimensions"`
	MaxAverageLatency time.Duration `yaml:"max_average_latency"`
	MaxLatency        time.Duration `yaml:"max_latency"`
}

// MigrationConfig holds orchestrator timings.
type MigrationConfig struct {
	StagingSuffix      string        `yaml:"staging_suffix"`
	PollInterval       time.Duration `env:"MIGRATION_POLL_INTERVAL" yaml:"poll_interval"`
	StallPolls         int           `yaml:"stall_polls"`
	MonitoringWindow   time.Duration `env:"MIGRATION_MONITORING_WINDOW" yaml:"monitoring_window"`
	MonitoringInterval time.Duration `yaml:"monitoring_interval"`
}

// MonitoringConfig holds the continuous health monitor, metrics buffer and alert settings.
type MonitoringConfig struct {
	Enabled               bool          `env:"MONITORING_ENABLED" yaml:"enabled"`
	Targets               []string      `env:"MONITORING_TARGETS" yaml:"targets"`
	CheckInterval         time.Duration `yaml:"check_interval"`
	AutoRollback          bool          `yaml:"auto_rollback"`
	FlushInterval         time.Duration `yaml:"flush_interval"`
	MaxPendingBatches     int           `yaml:"max_pending_batches"`
	MetricsStream         string        `yaml:"metrics_stream"`
	MetricsStreamMaxLen   int64         `yaml:"metrics_stream_max_len"`
	AlertChannel          string        `env:"ALERT_CHANNEL" yaml:"alert_channel"`
	AlertsPerSecond       float64       `yaml:"alerts_per_second"`
	AlertBurst            int           `yaml:"alert_burst"`
	QueryLatencyThreshold time.Duration `yaml:"query_latency_threshold"`
	ErrorRateThreshold    float64       `yaml:"error_rate_threshold"`
	HealthyScore          int           `yaml:"healthy_score"`
	CriticalScore         int           `yaml:"critical_score"`
	RollbackSeverity      string        `yaml:"rollback_severity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
	Output string `yaml:"output"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setElasticsearchDefaults(&cfg.Elasticsearch)
	cfg.Redis.SetDefaults()
	setResilienceDefaults(&cfg.Resilience)
	setValidationDefaults(&cfg.Validation)
	setMigrationDefaults(&cfg.Migration)
	setMonitoringDefaults(&cfg.Monitoring)
	cfg.Profiling.SetDefaults()
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnectionMaxLifetime == 0 {
		d.ConnectionMaxLifetime = defaultDBConnLifetimeM * time.Minute
	}
}

func setElasticsearchDefaults(e *ElasticsearchConfig) {
	if e.URL == "" {
		e.URL = defaultESURL
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = defaultESMaxRetries
	}
	if e.PingTimeout == 0 {
		e.PingTimeout = defaultESPingTimeoutS * time.Second
	}
}

func setResilienceDefaults(r *ResilienceConfig) {
	if r.FailureThreshold == 0 {
		r.FailureThreshold = defaultFailureThreshold
	}
	if r.SuccessThreshold == 0 {
		r.SuccessThreshold = defaultSuccessThreshold
	}
	if r.OpenTimeout == 0 {
		r.OpenTimeout = defaultOpenTimeoutSec * time.Second
	}
	if r.MonitoringPeriod == 0 {
		r.MonitoringPeriod = defaultMonitoringPeriodS * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = defaultMaxAttempts
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = defaultInitialDelayMS * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = defaultMaxDelaySec * time.Second
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = defaultBackoffMultiplier
	}
	if r.MaxConcurrent == 0 {
		r.MaxConcurrent = defaultMaxConcurrent
	}
	if r.MaxQueueSize == 0 {
		r.MaxQueueSize = defaultMaxQueueSize
	}
	if r.QueueTimeout == 0 {
		r.QueueTimeout = defaultQueueTimeoutSec * time.Second
	}
}

func setValidationDefaults(v *ValidationConfig) {
	if v.CountTolerance == 0 {
		v.CountTolerance = defaultCountTolerance
	}
	if v.SampleSize == 0 {
		v.SampleSize = defaultSampleSize
	}
	if v.VectorField == "" {
		v.VectorField = defaultVectorField
	}
	if v.VectorDimensions == 0 {
		v.VectorDimensions = defaultVectorDims
	}
}

func setMigrationDefaults(m *MigrationConfig) {
	if m.StagingSuffix == "" {
		m.StagingSuffix = defaultStagingSuffix
	}
	if m.PollInterval == 0 {
		m.PollInterval = defaultPollIntervalSec * time.Second
	}
	if m.StallPolls == 0 {
		m.StallPolls = defaultStallPolls
	}
	if m.MonitoringWindow == 0 {
		m.MonitoringWindow = defaultMonitoringWindowM * time.Minute
	}
	if m.MonitoringInterval == 0 {
		m.MonitoringInterval = defaultMonitoringInterval * time.Second
	}
}

func setMonitoringDefaults(m *MonitoringConfig) {
	if m.CheckInterval == 0 {
		m.CheckInterval = defaultCheckIntervalSec * time.Second
	}
	if m.FlushInterval == 0 {
		m.FlushInterval = defaultFlushIntervalSec * time.Second
	}
	if m.MaxPendingBatches == 0 {
		m.MaxPendingBatches = defaultMaxPendingBatches
	}
	if m.MetricsStream == "" {
		m.MetricsStream = defaultMetricsStream
	}
	if m.MetricsStreamMaxLen == 0 {
		m.MetricsStreamMaxLen = defaultMetricsStreamLen
	}
	if m.AlertChannel == "" {
		m.AlertChannel = defaultAlertChannel
	}
	if m.AlertsPerSecond == 0 {
		m.AlertsPerSecond = defaultAlertsPerSecond
	}
	if m.AlertBurst == 0 {
		m.AlertBurst = defaultAlertBurst
	}
	if m.QueryLatencyThreshold == 0 {
		m.QueryLatencyThreshold = defaultQueryLatencyMS * time.Millisecond
	}
	if m.ErrorRateThreshold == 0 {
		m.ErrorRateThreshold = defaultErrorRate
	}
	if m.HealthyScore == 0 {
		m.HealthyScore = defaultHealthyScore
	}
	if m.CriticalScore == 0 {
		m.CriticalScore = defaultCriticalScore
	}
	if m.RollbackSeverity == "" {
		m.RollbackSeverity = defaultRollbackSeverity
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return &infraconfig.ValidationError{Field: "database.host", Message: "is required"}
	}
	if c.Elasticsearch.URL == "" {
		return &infraconfig.ValidationError{Field: "elasticsearch.url", Message: "is required"}
	}
	if err := c.Resilience.validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateFraction("validation.count_tolerance", c.Validation.CountTolerance); err != nil {
		return err
	}
	if err := infraconfig.ValidateFraction("monitoring.error_rate_threshold", c.Monitoring.ErrorRateThreshold); err != nil {
		return err
	}
	if err := c.Monitoring.validateScores(); err != nil {
		return err
	}
	return infraconfig.ValidateLogLevel(c.Logging.Level)
}

func (r *ResilienceConfig) validate() error {
	checks := []struct {
		field string
		value int
	}{
		{"resilience.failure_threshold", r.FailureThreshold},
		{"resilience.success_threshold", r.SuccessThreshold},
		{"resilience.max_attempts", r.MaxAttempts},
		{"resilience.max_concurrent", r.MaxConcurrent},
	}
	for _, check := range checks {
		if err := infraconfig.ValidatePositive(check.field, check.value); err != nil {
			return err
		}
	}
	if r.MaxQueueSize < 0 {
		return &infraconfig.ValidationError{Field: "resilience.max_queue_size", Message: "must not be negative"}
	}
	if r.BackoffMultiplier < 1 {
		return &infraconfig.ValidationError{Field: "resilience.backoff_multiplier", Message: "must be at least 1"}
	}
	return nil
}

func (m *MonitoringConfig) validateScores() error {
	if m.HealthyScore > defaultHealthyScore || m.CriticalScore < 0 || m.CriticalScore >= m.HealthyScore {
		return &infraconfig.ValidationError{
			Field:   "monitoring.critical_score",
			Message: "must satisfy 0 <= critical_score < healthy_score <= 100",
		}
	}
	switch m.RollbackSeverity {
	case "WARNING", "ERROR", "CRITICAL":
		return nil
	default:
		return &infraconfig.ValidationError{
			Field:   "monitoring.rollback_severity",
			Message: "must be one of: WARNING, ERROR, CRITICAL",
		}
	}
}
