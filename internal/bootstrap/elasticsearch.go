package bootstrap

import (
	"context"
	"fmt"

	infraes "github.com/jonesrussell/north-cloud/index-guard/infrastructure/elasticsearch"
	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/config"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// SetupElasticsearch creates an Elasticsearch client, waiting for the cluster to answer.
func SetupElasticsearch(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*elasticsearch.Client, error) {
	esConfig := infraes.Config{
		URL:         cfg.Elasticsearch.URL,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		APIKey:      cfg.Elasticsearch.APIKey,
		MaxRetries:  cfg.Elasticsearch.MaxRetries,
		PingTimeout: cfg.Elasticsearch.PingTimeout,
	}

	raw, err := infraes.NewClient(ctx, esConfig, log)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return elasticsearch.NewClient(raw), nil
}
