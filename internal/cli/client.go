package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	infraerrors "github.com/jonesrussell/north-cloud/index-guard/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/index-guard/infrastructure/http"
	"github.com/jonesrussell/north-cloud/index-guard/internal/api"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
)

// Client calls the index-guard control surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. token is sent as a
// bearer token when set.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: timeout}),
	}
}

// StartMigration starts a run and returns its id.
func (c *Client) StartMigration(ctx context.Context, req migration.StartRequest) (string, error) {
	var resp api.StartMigrationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/migrations", req, &resp); err != nil {
		return "", fmt.Errorf("start migration: %w", err)
	}
	return resp.RunID, nil
}

// GetMigration returns a run snapshot.
func (c *Client) GetMigration(ctx context.Context, id string) (domain.MigrationRun, error) {
	var run domain.MigrationRun
	if err := c.do(ctx, http.MethodGet, "/api/v1/migrations/"+url.PathEscape(id), nil, &run); err != nil {
		return domain.MigrationRun{}, fmt.Errorf("get migration %s: %w", id, err)
	}
	return run, nil
}

// ListMigrations returns known runs, newest first.
func (c *Client) ListMigrations(ctx context.Context) ([]domain.MigrationRun, error) {
	var resp struct {
		Migrations []domain.MigrationRun `json:"migrations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/migrations", nil, &resp); err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return resp.Migrations, nil
}

// Rollback requests a rollback of a run.
func (c *Client) Rollback(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/migrations/"+url.PathEscape(id)+"/rollback", nil, nil); err != nil {
		return fmt.Errorf("rollback migration %s: %w", id, err)
	}
	return nil
}

// Resilience returns breaker and bulkhead state.
func (c *Client) Resilience(ctx context.Context) (resilience.Snapshot, error) {
	var snap resilience.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/resilience", nil, &snap); err != nil {
		return resilience.Snapshot{}, fmt.Errorf("get resilience state: %w", err)
	}
	return snap, nil
}

// IndexHealth scores an index or alias.
func (c *Client) IndexHealth(ctx context.Context, index string) (domain.HealthCheckResult, error) {
	var result domain.HealthCheckResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/health/indexes/"+url.PathEscape(index), nil, &result); err != nil {
		return domain.HealthCheckResult{}, fmt.Errorf("check health of %s: %w", index, err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return httpErr
	}
	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}
