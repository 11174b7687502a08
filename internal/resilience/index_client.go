package resilience

import (
	"context"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// IndexAPI is the backend surface consumed by migration, validation and monitoring.
// Both *elasticsearch.Client and *IndexClient satisfy it.
type IndexAPI interface {
	Ping(ctx context.Context) error

	CreateIndex(ctx context.Context, name string, body map[string]any) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context, name string) (int64, error)
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	PutSettings(ctx context.Context, name string, settings map[string]any) error
	Refresh(ctx context.Context, name string) error

	Search(ctx context.Context, name string, query map[string]any) (elasticsearch.SearchResult, error)
	SampleIDs(ctx context.Context, name string, size int) ([]string, error)
	MultiGet(ctx context.Context, name string, ids []string) (map[string]bool, error)

	Reindex(ctx context.Context, source, dest string) (string, error)
	GetTask(ctx context.Context, taskID string) (elasticsearch.TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error

	UpdateAliases(ctx context.Context, actions []domain.AliasAction) error
	GetAliasIndices(ctx context.Context, alias string) ([]string, error)
	IndexAliases(ctx context.Context, index string) ([]string, error)

	ClusterHealth(ctx context.Context) (string, error)
	IndexHealth(ctx context.Context, name string) (string, error)
	IndexStats(ctx context.Context, name string) (elasticsearch.IndexingStats, error)
}

var (
	_ IndexAPI = (*elasticsearch.Client)(nil)
	_ IndexAPI = (*IndexClient)(nil)
)

// IndexClient routes every backend operation through a shared Client.
type IndexClient struct {
	client  *Client
	backend IndexAPI
}

// NewIndexClient wraps backend with the resilient client.
func NewIndexClient(client *Client, backend IndexAPI) *IndexClient {
	return &IndexClient{client: client, backend: backend}
}

// Ping checks that the cluster answers.
func (c *IndexClient) Ping(ctx context.Context) error {
	return c.client.Execute(ctx, ClassQuery, "ping", c.backend.Ping)
}

func (c *IndexClient) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	return c.client.Execute(ctx, ClassAdmin, "create_index", func(ctx context.Context) error {
		return c.backend.CreateIndex(ctx, name, body)
	})
}

func (c *IndexClient) DeleteIndex(ctx context.Context, name string) error {
	return c.client.Execute(ctx, ClassAdmin, "delete_index", func(ctx context.Context) error {
		return c.backend.DeleteIndex(ctx, name)
	})
}

func (c *IndexClient) IndexExists(ctx context.Context, name string) (bool, error) {
	return Do(ctx, c.client, ClassAdmin, "index_exists", func(ctx context.Context) (bool, error) {
		return c.backend.IndexExists(ctx, name)
	})
}

func (c *IndexClient) Count(ctx context.Context, name string) (int64, error) {
	return Do(ctx, c.client, ClassQuery, "count", func(ctx context.Context) (int64, error) {
		return c.backend.Count(ctx, name)
	})
}

func (c *IndexClient) GetMapping(ctx context.Context, name string) (map[string]any, error) {
	return Do(ctx, c.client, ClassAdmin, "get_mapping", func(ctx context.Context) (map[string]any, error) {
		return c.backend.GetMapping(ctx, name)
	})
}

func (c *IndexClient) PutSettings(ctx context.Context, name string, settings map[string]any) error {
	return c.client.Execute(ctx, ClassAdmin, "put_settings", func(ctx context.Context) error {
		return c.backend.PutSettings(ctx, name, settings)
	})
}

func (c *IndexClient) Refresh(ctx context.Context, name string) error {
	return c.client.Execute(ctx, ClassAdmin, "refresh", func(ctx context.Context) error {
		return c.backend.Refresh(ctx, name)
	})
}

func (c *IndexClient) Search(ctx context.Context, name string, query map[string]any) (elasticsearch.SearchResult, error) {
	return Do(ctx, c.client, ClassQuery, "search", func(ctx context.Context) (elasticsearch.SearchResult, error) {
		return c.backend.Search(ctx, name, query)
	})
}

func (c *IndexClient) SampleIDs(ctx context.Context, name string, size int) ([]string, error) {
	return Do(ctx, c.client, ClassQuery, "sample_ids", func(ctx context.Context) ([]string, error) {
		return c.backend.SampleIDs(ctx, name, size)
	})
}

func (c *IndexClient) MultiGet(ctx context.Context, name string, ids []string) (map[string]bool, error) {
	return Do(ctx, c.client, ClassQuery, "mget", func(ctx context.Context) (map[string]bool, error) {
		return c.backend.MultiGet(ctx, name, ids)
	})
}

// Reindex starts the copy exactly once; a retried start could leave two tasks
// writing into dest.
func (c *IndexClient) Reindex(ctx context.Context, source, dest string) (string, error) {
	return Do(NoRetry(ctx), c.client, ClassReindex, "reindex", func(ctx context.Context) (string, error) {
		return c.backend.Reindex(ctx, source, dest)
	})
}

func (c *IndexClient) GetTask(ctx context.Context, taskID string) (elasticsearch.TaskStatus, error) {
	return Do(ctx, c.client, ClassReindex, "get_task", func(ctx context.Context) (elasticsearch.TaskStatus, error) {
		return c.backend.GetTask(ctx, taskID)
	})
}

func (c *IndexClient) CancelTask(ctx context.Context, taskID string) error {
	return c.client.Execute(ctx, ClassReindex, "cancel_task", func(ctx context.Context) error {
		return c.backend.CancelTask(ctx, taskID)
	})
}

func (c *IndexClient) UpdateAliases(ctx context.Context, actions []domain.AliasAction) error {
	return c.client.Execute(ctx, ClassAdmin, "update_aliases", func(ctx context.Context) error {
		return c.backend.UpdateAliases(ctx, actions)
	})
}

func (c *IndexClient) GetAliasIndices(ctx context.Context, alias string) ([]string, error) {
	return Do(ctx, c.client, ClassAdmin, "get_alias", func(ctx context.Context) ([]string, error) {
		return c.backend.GetAliasIndices(ctx, alias)
	})
}

func (c *IndexClient) IndexAliases(ctx context.Context, index string) ([]string, error) {
	return Do(ctx, c.client, ClassAdmin, "index_aliases", func(ctx context.Context) ([]string, error) {
		return c.backend.IndexAliases(ctx, index)
	})
}

func (c *IndexClient) ClusterHealth(ctx context.Context) (string, error) {
	return Do(ctx, c.client, ClassQuery, "cluster_health", c.backend.ClusterHealth)
}

func (c *IndexClient) IndexHealth(ctx context.Context, name string) (string, error) {
	return Do(ctx, c.client, ClassQuery, "index_health", func(ctx context.Context) (string, error) {
		return c.backend.IndexHealth(ctx, name)
	})
}

func (c *IndexClient) IndexStats(ctx context.Context, name string) (elasticsearch.IndexingStats, error) {
	return Do(ctx, c.client, ClassQuery, "index_stats", func(ctx context.Context) (elasticsearch.IndexingStats, error) {
		return c.backend.IndexStats(ctx, name)
	})
}
