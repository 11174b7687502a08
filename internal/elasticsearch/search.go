package elasticsearch

import (
	"context"
	"time"
)

// SearchResult summarises a search response.
type SearchResult struct {
	Total int64 `json:"total"`
	// Took is the server-side time reported by the backend.
	Took time.Duration `json:"took"`
	// Latency is the round trip measured by the client.
	Latency time.Duration `json:"latency"`
	IDs     []string      `json:"ids"`
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs query (a full search request body) against an index.
func (c *Client) Search(ctx context.Context, name string, query map[string]any) (SearchResult, error) {
	reader, err := jsonBody(query)
	if err != nil {
		return SearchResult{}, err
	}

	start := c.clock.Now()
	var body searchResponse
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(name),
		c.es.Search.WithBody(reader),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err = decode("search "+name, res, err, &body); err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{
		Total:   body.Hits.Total.Value,
		Took:    time.Duration(body.Took) * time.Millisecond,
		Latency: c.clock.Now().Sub(start),
		IDs:     make([]string, 0, len(body.Hits.Hits)),
	}
	for _, hit := range body.Hits.Hits {
		result.IDs = append(result.IDs, hit.ID)
	}
	return result, nil
}

// SampleIDs returns up to size random document ids from an index.
func (c *Client) SampleIDs(ctx context.Context, name string, size int) ([]string, error) {
	query := map[string]any{
		"size":    size,
		"_source": false,
		"query": map[string]any{
			"function_score": map[string]any{
				"query":        map[string]any{"match_all": map[string]any{}},
				"random_score": map[string]any{},
			},
		},
	}
	result, err := c.Search(ctx, name, query)
	if err != nil {
		return nil, err
	}
	return result.IDs, nil
}

// MultiGet reports, for each id, whether it exists in the index.
func (c *Client) MultiGet(ctx context.Context, name string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	reader, err := jsonBody(map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}

	var body struct {
		Docs []struct {
			ID    string `json:"_id"`
			Found bool   `json:"found"`
		} `json:"docs"`
	}
	res, err := c.es.Mget(reader,
		c.es.Mget.WithContext(ctx),
		c.es.Mget.WithIndex(name),
		c.es.Mget.WithSource("false"),
	)
	if err = decode("mget "+name, res, err, &body); err != nil {
		return nil, err
	}

	for _, id := range ids {
		found[id] = false
	}
	for _, doc := range body.Docs {
		if doc.Found {
			found[doc.ID] = true
		}
	}
	return found, nil
}
