package elasticsearch

import (
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
)

// Config holds Elasticsearch client configuration
type Config struct {
	// URL is the Elasticsearch server URL (e.g., http://elasticsearch:9200)
	URL string `env:"ELASTICSEARCH_URL" yaml:"url"`

	Username string `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password string `env:"ELASTICSEARCH_PASSWORD" yaml:"password"` //nolint:gosec // G117: connection config

	// APIKey takes precedence over CloudID and basic auth.
	APIKey      string `env:"ELASTICSEARCH_API_KEY"       yaml:"api_key"`
	CloudID     string `env:"ELASTICSEARCH_CLOUD_ID"      yaml:"cloud_id"`
	CloudAPIKey string `env:"ELASTICSEARCH_CLOUD_API_KEY" yaml:"cloud_api_key"`

	TLS *TLSConfig `yaml:"tls"`

	// MaxRetries is the transport-level retry count (default: 3)
	MaxRetries int `yaml:"max_retries"`

	// PingTimeout bounds each connection check (default: 5s)
	PingTimeout time.Duration `yaml:"ping_timeout"`

	// ConnectPolicy controls how long startup waits for the cluster.
	// If nil, 5 attempts starting at 2s and capped at 10s are used.
	ConnectPolicy *retry.Policy `yaml:"-"`
}

// TLSConfig holds TLS configuration for Elasticsearch connections
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
}

const (
	defaultURL            = "http://localhost:9200"
	defaultMaxRetries     = 3
	defaultPingTimeout    = 5 * time.Second
	defaultConnectTries   = 5
	defaultConnectInitial = 2 * time.Second
	defaultConnectMax     = 10 * time.Second
)

// SetDefaults applies default values to the config if not set
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = defaultPingTimeout
	}
	if c.ConnectPolicy == nil {
		c.ConnectPolicy = &retry.Policy{
			MaxAttempts:       defaultConnectTries,
			InitialDelay:      defaultConnectInitial,
			MaxDelay:          defaultConnectMax,
			BackoffMultiplier: retry.DefaultBackoffMultiplier,
			// the cluster may still be booting; every ping failure is worth another try
			Classifier: func(error) bool { return true },
		}
	}
}
