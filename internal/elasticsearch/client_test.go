package elasticsearch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// mockTransport routes requests by "METHOD /path" and records request bodies.
type mockTransport struct {
	mu       sync.Mutex
	routes   map[string]mockResponse
	requests []recordedRequest
}

type mockResponse struct {
	status int
	body   string
}

type recordedRequest struct {
	key   string
	query string
	body  string
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.Method + " " + req.URL.Path

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}

	t.mu.Lock()
	t.requests = append(t.requests, recordedRequest{key: key, query: req.URL.RawQuery, body: string(body)})
	resp, ok := t.routes[key]
	t.mu.Unlock()

	if !ok {
		resp = mockResponse{status: http.StatusNotFound, body: `{"error":"no route ` + key + `"}`}
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(bytes.NewBufferString(resp.body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}, "Content-Type": []string{"application/json"}},
	}, nil
}

func (t *mockTransport) last(key string) recordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.requests) - 1; i >= 0; i-- {
		if t.requests[i].key == key {
			return t.requests[i]
		}
	}
	return recordedRequest{}
}

func newTestClient(t *testing.T, routes map[string]mockResponse, opts ...elasticsearch.Option) (*elasticsearch.Client, *mockTransport) {
	t.Helper()

	transport := &mockTransport{routes: routes}
	raw, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)
	return elasticsearch.NewClient(raw, opts...), transport
}

func ok(body string) mockResponse { return mockResponse{status: http.StatusOK, body: body} }

func TestClient_Count(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"POST /files_v1/_count": ok(`{"count":100000}`),
		"GET /files_v1/_count":  ok(`{"count":100000}`),
	})

	count, err := client.Count(context.Background(), "files_v1")

	require.NoError(t, err)
	assert.Equal(t, int64(100000), count)
}

func TestClient_ErrorStatusIsResponseError(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"POST /files_v1/_count": {status: http.StatusServiceUnavailable, body: `{"error":"overloaded"}`},
		"GET /files_v1/_count":  {status: http.StatusServiceUnavailable, body: `{"error":"overloaded"}`},
	})

	_, err := client.Count(context.Background(), "files_v1")

	var respErr *elasticsearch.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusServiceUnavailable, respErr.StatusCode())
	assert.Contains(t, respErr.Error(), "overloaded")
}

func TestClient_IndexExists(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"HEAD /files_v1": ok(``),
	})

	exists, err := client.IndexExists(context.Background(), "files_v1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.IndexExists(context.Background(), "files_v2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_DeleteIndexIgnoresMissing(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{})

	require.NoError(t, client.DeleteIndex(context.Background(), "files_v9"))
}

func TestClient_SearchMeasuresLatency(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	client, _ := newTestClient(t, map[string]mockResponse{
		"POST /files/_search": ok(`{"took":12,"hits":{"total":{"value":2},"hits":[{"_id":"a"},{"_id":"b"}]}}`),
	}, elasticsearch.WithClock(clk))

	result, err := client.Search(context.Background(), "files", map[string]any{"query": map[string]any{"match_all": map[string]any{}}})

	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, 12*time.Millisecond, result.Took)
	assert.Equal(t, []string{"a", "b"}, result.IDs)
	assert.GreaterOrEqual(t, result.Latency, time.Duration(0))
}

func TestClient_SampleIDsUsesRandomScore(t *testing.T) {
	client, transport := newTestClient(t, map[string]mockResponse{
		"POST /files_v1/_search": ok(`{"took":1,"hits":{"total":{"value":1},"hits":[{"_id":"doc-1"}]}}`),
	})

	ids, err := client.SampleIDs(context.Background(), "files_v1", 100)

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, ids)
	assert.Contains(t, transport.last("POST /files_v1/_search").body, "random_score")
}

func TestClient_MultiGet(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"POST /files_v2/_mget": ok(`{"docs":[{"_id":"a","found":true},{"_id":"b","found":false}]}`),
	})

	found, err := client.MultiGet(context.Background(), "files_v2", []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": false}, found)
}

func TestClient_ReindexIsAsync(t *testing.T) {
	client, transport := newTestClient(t, map[string]mockResponse{
		"POST /_reindex": ok(`{"task":"node-1:42"}`),
	})

	taskID, err := client.Reindex(context.Background(), "files_v1", "files_v2")

	require.NoError(t, err)
	assert.Equal(t, "node-1:42", taskID)
	req := transport.last("POST /_reindex")
	assert.Contains(t, req.query, "wait_for_completion=false")
	assert.Contains(t, req.body, `"dest":{"index":"files_v2"}`)
}

func TestClient_GetTask(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"GET /_tasks/node-1:42": ok(`{
			"completed": true,
			"task": {"status": {"total": 10, "created": 8, "updated": 2}},
			"response": {"failures": [{"id":"x"}]},
			"error": {"type": "search_phase_execution_exception", "reason": "boom"}
		}`),
	})

	status, err := client.GetTask(context.Background(), "node-1:42")

	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.Equal(t, int64(10), status.Total)
	assert.Equal(t, int64(10), status.Processed())
	assert.Equal(t, int64(1), status.Failures)
	assert.Equal(t, "search_phase_execution_exception: boom", status.Error)
}

func TestClient_UpdateAliasesSendsOneRequest(t *testing.T) {
	client, transport := newTestClient(t, map[string]mockResponse{
		"POST /_aliases": ok(`{"acknowledged":true}`),
	})

	err := client.UpdateAliases(context.Background(), []domain.AliasAction{
		{Type: domain.AliasRemove, Index: "files_v1", Alias: "files"},
		{Type: domain.AliasAdd, Index: "files_v2", Alias: "files"},
	})
	require.NoError(t, err)

	var payload struct {
		Actions []map[string]map[string]string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(transport.last("POST /_aliases").body), &payload))
	require.Len(t, payload.Actions, 2)
	assert.Equal(t, "files_v1", payload.Actions[0]["remove"]["index"])
	assert.Equal(t, "files_v2", payload.Actions[1]["add"]["index"])
}

func TestClient_GetAliasIndices(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"GET /_alias/files": ok(`{"files_v2":{"aliases":{"files":{}}},"files_v1":{"aliases":{"files":{}}}}`),
	})

	indices, err := client.GetAliasIndices(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, []string{"files_v1", "files_v2"}, indices)

	indices, err = client.GetAliasIndices(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestClient_IndexAliases(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"GET /files_v2/_alias": ok(`{"files_v2":{"aliases":{"files_staging":{},"files":{}}}}`),
		"GET /bare_v1/_alias":  ok(`{"bare_v1":{"aliases":{}}}`),
	})

	aliases, err := client.IndexAliases(context.Background(), "files_v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"files", "files_staging"}, aliases)

	aliases, err = client.IndexAliases(context.Background(), "bare_v1")
	require.NoError(t, err)
	assert.Empty(t, aliases)

	aliases, err = client.IndexAliases(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestClient_GetMapping(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"GET /files_v2/_mapping": ok(`{"files_v2":{"mappings":{"properties":{"image_vector":{"type":"dense_vector","dims":1024}}}}}`),
	})

	mapping, err := client.GetMapping(context.Background(), "files_v2")

	require.NoError(t, err)
	assert.Contains(t, mapping, "properties")
}

func TestClient_HealthAndStats(t *testing.T) {
	client, _ := newTestClient(t, map[string]mockResponse{
		"GET /_cluster/health":               ok(`{"status":"yellow"}`),
		"GET /_cluster/health/files_v2":      ok(`{"status":"green"}`),
		"GET /files_v2/_stats/docs,indexing": ok(`{"_all":{"primaries":{"docs":{"count":50},"indexing":{"index_total":200,"index_failed":10}}}}`),
	})

	cluster, err := client.ClusterHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, elasticsearch.HealthYellow, cluster)

	index, err := client.IndexHealth(context.Background(), "files_v2")
	require.NoError(t, err)
	assert.Equal(t, elasticsearch.HealthGreen, index)

	stats, err := client.IndexStats(context.Background(), "files_v2")
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.DocCount)
	assert.InDelta(t, 0.05, stats.ErrorRatio(), 1e-9)
}

func TestClient_PutSettingsAndRefresh(t *testing.T) {
	client, transport := newTestClient(t, map[string]mockResponse{
		"PUT /files_v2/_settings": ok(`{"acknowledged":true}`),
		"POST /files_v2/_refresh": ok(`{}`),
	})

	require.NoError(t, client.PutSettings(context.Background(), "files_v2", map[string]any{"refresh_interval": "5s"}))
	require.NoError(t, client.Refresh(context.Background(), "files_v2"))
	assert.Contains(t, transport.last("PUT /files_v2/_settings").body, `"refresh_interval":"5s"`)
}
