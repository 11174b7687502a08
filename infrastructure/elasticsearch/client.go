// Package elasticsearch builds a verified go-elasticsearch client from Config.
package elasticsearch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
)

// NewClient creates an Elasticsearch client and waits for the cluster to answer a ping.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}

	url := normalizeURL(cfg.URL)

	transport, err := createTransport(cfg.TLS)
	if err != nil {
		return nil, err
	}

	clientConfig := es.Config{
		Addresses:  []string{url},
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
	}

	switch {
	case cfg.APIKey != "":
		clientConfig.APIKey = cfg.APIKey
	case cfg.CloudID != "" && cfg.CloudAPIKey != "":
		clientConfig.CloudID = cfg.CloudID
		clientConfig.APIKey = cfg.CloudAPIKey
	case cfg.Username != "" && cfg.Password != "":
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))

	executor := retry.NewExecutor(*cfg.ConnectPolicy)
	if err = retry.Do(ctx, executor, func(ctx context.Context) error {
		return pingElasticsearch(ctx, esClient, cfg.PingTimeout, log)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return esClient, nil
}

func normalizeURL(url string) string {
	if url == "" {
		return defaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

func createTransport(tlsConfig *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{}
	if tlsConfig == nil || !tlsConfig.Enabled {
		return transport, nil
	}

	tlsClientConfig := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify, //nolint:gosec // opt-in for development clusters
		MinVersion:         tls.VersionTLS12,
	}

	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsClientConfig.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		pem, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", tlsConfig.CAFile)
		}
		tlsClientConfig.RootCAs = pool
	}

	transport.TLSClientConfig = tlsClientConfig
	return transport, nil
}

func pingElasticsearch(ctx context.Context, client *es.Client, timeout time.Duration, log logger.Logger) error {
	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		log.Debug("Elasticsearch ping failed", logger.Error(err))
		return fmt.Errorf("ping failed: %w", err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			log.Debug("Failed to close ping response body", logger.Error(closeErr))
		}
	}()

	if res.IsError() {
		body, readErr := io.ReadAll(res.Body)
		errMsg := string(body)
		if readErr != nil {
			errMsg = fmt.Sprintf("error reading response body: %v", readErr)
		}
		log.Debug("Elasticsearch ping returned error",
			logger.String("status", res.Status()),
			logger.String("body", errMsg),
		)
		return fmt.Errorf("ping returned error [%s]: %s", res.Status(), errMsg)
	}

	return nil
}
