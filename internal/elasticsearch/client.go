// Package elasticsearch adapts go-elasticsearch to the index operations the
// migration and monitoring layers need.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
)

// errorBodyLimit caps how much of an error response is kept in ResponseError.
const errorBodyLimit = 4096

// ResponseError is returned when the backend answers with a non-2xx status.
type ResponseError struct {
	Op     string
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Body)
}

// StatusCode exposes the HTTP status for retry and breaker classification.
func (e *ResponseError) StatusCode() int {
	return e.Status
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.Status == http.StatusNotFound
}

// Client wraps the Elasticsearch client with the operations index-guard uses.
type Client struct {
	es    *es.Client
	clock clock.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used to measure search latency.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// NewClient wraps an existing go-elasticsearch client.
func NewClient(esClient *es.Client, opts ...Option) *Client {
	c := &Client{es: esClient, clock: clock.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Raw returns the underlying Elasticsearch client.
func (c *Client) Raw() *es.Client {
	return c.es
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	return decode("ping", res, err, nil)
}

// decode closes the response, converts error statuses into *ResponseError
// and unmarshals a successful body into out when out is non-nil.
func decode(op string, res *esapi.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, readErr := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
		msg := string(body)
		if readErr != nil {
			msg = fmt.Sprintf("error reading response body: %v", readErr)
		}
		return &ResponseError{Op: op, Status: res.StatusCode, Body: msg}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("%s: decode response: %w", op, decodeErr)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return &buf, nil
}
