package elasticsearch

import (
	"context"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// CreateIndex creates an index with the given settings and mappings body.
func (c *Client) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	req := c.es.Indices.Create
	opts := []func(*esapi.IndicesCreateRequest){req.WithContext(ctx)}
	if body != nil {
		reader, err := jsonBody(body)
		if err != nil {
			return err
		}
		opts = append(opts, req.WithBody(reader))
	}
	res, err := req(name, opts...)
	return decode("create index "+name, res, err, nil)
}

// DeleteIndex deletes an index. Deleting a missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err = decode("delete index "+name, res, err, nil); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// IndexExists reports whether name is an existing index or alias.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, decode("index exists "+name, res, err, nil)
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return false, nil
	}
	if err = decode("index exists "+name, res, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of documents in an index.
func (c *Client) Count(ctx context.Context, name string) (int64, error) {
	var body struct {
		Count int64 `json:"count"`
	}
	res, err := c.es.Count(c.es.Count.WithIndex(name), c.es.Count.WithContext(ctx))
	if err = decode("count "+name, res, err, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// GetMapping returns the "mappings" object of an index. When name is an
// alias the mapping of the first backing index is returned.
func (c *Client) GetMapping(ctx context.Context, name string) (map[string]any, error) {
	var body map[string]struct {
		Mappings map[string]any `json:"mappings"`
	}
	res, err := c.es.Indices.GetMapping(c.es.Indices.GetMapping.WithIndex(name), c.es.Indices.GetMapping.WithContext(ctx))
	if err = decode("get mapping "+name, res, err, &body); err != nil {
		return nil, err
	}
	if entry, ok := body[name]; ok {
		return entry.Mappings, nil
	}
	for _, entry := range body {
		return entry.Mappings, nil
	}
	return map[string]any{}, nil
}

// PutSettings updates dynamic index settings.
func (c *Client) PutSettings(ctx context.Context, name string, settings map[string]any) error {
	reader, err := jsonBody(map[string]any{"index": settings})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutSettings(reader,
		c.es.Indices.PutSettings.WithIndex(name),
		c.es.Indices.PutSettings.WithContext(ctx),
	)
	return decode("put settings "+name, res, err, nil)
}

// Refresh makes recent writes to an index searchable.
func (c *Client) Refresh(ctx context.Context, name string) error {
	res, err := c.es.Indices.Refresh(c.es.Indices.Refresh.WithIndex(name), c.es.Indices.Refresh.WithContext(ctx))
	return decode("refresh "+name, res, err, nil)
}
