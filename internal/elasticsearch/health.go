package elasticsearch

import "context"

// Cluster and index health colours.
const (
	HealthGreen  = "green"
	HealthYellow = "yellow"
	HealthRed    = "red"
)

// IndexingStats is the subset of _stats used for error-rate checks.
type IndexingStats struct {
	DocCount    int64 `json:"doc_count"`
	IndexTotal  int64 `json:"index_total"`
	IndexFailed int64 `json:"index_failed"`
}

// ErrorRatio is failed over total indexing operations, 0 when nothing was indexed.
func (s IndexingStats) ErrorRatio() float64 {
	if s.IndexTotal == 0 {
		return 0
	}
	return float64(s.IndexFailed) / float64(s.IndexTotal)
}

type healthResponse struct {
	Status string `json:"status"`
}

// ClusterHealth returns the cluster status colour.
func (c *Client) ClusterHealth(ctx context.Context) (string, error) {
	var body healthResponse
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err = decode("cluster health", res, err, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// IndexHealth returns the status colour of a single index or alias.
func (c *Client) IndexHealth(ctx context.Context, name string) (string, error) {
	var body healthResponse
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithIndex(name),
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err = decode("index health "+name, res, err, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// IndexStats returns document and indexing counters summed over primaries.
func (c *Client) IndexStats(ctx context.Context, name string) (IndexingStats, error) {
	var body struct {
		All struct {
			Primaries struct {
				Docs struct {
					Count int64 `json:"count"`
				} `json:"docs"`
				Indexing struct {
					IndexTotal  int64 `json:"index_total"`
					IndexFailed int64 `json:"index_failed"`
				} `json:"indexing"`
			} `json:"primaries"`
		} `json:"_all"`
	}
	res, err := c.es.Indices.Stats(
		c.es.Indices.Stats.WithIndex(name),
		c.es.Indices.Stats.WithMetric("docs", "indexing"),
		c.es.Indices.Stats.WithContext(ctx),
	)
	if err = decode("index stats "+name, res, err, &body); err != nil {
		return IndexingStats{}, err
	}

	p := body.All.Primaries
	return IndexingStats{
		DocCount:    p.Docs.Count,
		IndexTotal:  p.Indexing.IndexTotal,
		IndexFailed: p.Indexing.IndexFailed,
	}, nil
}
