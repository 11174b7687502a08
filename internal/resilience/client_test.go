package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/bulkhead"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
)

func testConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.SuccessThreshold = 1
	cfg.OpenTimeout = 30 * time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = time.Second
	cfg.MaxConcurrent = 1
	cfg.MaxQueueSize = 1
	cfg.QueueTimeout = time.Second
	return cfg
}

func newClient(t *testing.T, cfg resilience.Config) (*resilience.Client, *clock.Fake, *prometheus.Registry) {
	t.Helper()
	fake := clock.NewFake(time.Unix(0, 0))
	reg := prometheus.NewRegistry()
	c := resilience.New(cfg, logger.NewNop(),
		resilience.WithClock(fake),
		resilience.WithRegisterer(reg),
		resilience.WithJitter(func() float64 { return 0 }),
	)
	return c, fake, reg
}

func unavailable() error {
	return &elasticsearch.ResponseError{Op: "search", Status: http.StatusServiceUnavailable}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	c, fake, reg := newClient(t, testConfig())
	calls := 0
	err := c.Execute(context.Background(), resilience.ClassQuery, "search", func(context.Context) error {
		calls++
		if calls < 3 {
			return unavailable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fake.Sleeps())
	assert.InDelta(t, 1, testutil.ToFloat64(c.Metrics().CallsTotal.WithLabelValues("query", "success")), 0)
	count, gatherErr := testutil.GatherAndCount(reg, "indexguard_resilience_retry_attempts")
	require.NoError(t, gatherErr)
	assert.Equal(t, 1, count)
}

func TestClient_ExhaustedRetriesCountAsOneBreakerFailure(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	calls := 0
	err := c.Execute(context.Background(), resilience.ClassQuery, "search", func(context.Context) error {
		calls++
		return unavailable()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, c.Breaker(resilience.ClassQuery).GetStats().FailureCount)
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker(resilience.ClassQuery).State())
}

func TestClient_BreakersArePerClass(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	ctx := context.Background()
	for range 2 {
		_ = c.Execute(ctx, resilience.ClassReindex, "get_task", func(context.Context) error { return unavailable() })
	}
	require.Equal(t, circuitbreaker.StateOpen, c.Breaker(resilience.ClassReindex).State())

	err := c.Execute(ctx, resilience.ClassReindex, "get_task", func(context.Context) error { return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	require.NoError(t, c.Execute(ctx, resilience.ClassQuery, "search", func(context.Context) error { return nil }))
	assert.InDelta(t, float64(circuitbreaker.StateOpen),
		testutil.ToFloat64(c.Metrics().BreakerState.WithLabelValues("reindex")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Metrics().CallsTotal.WithLabelValues("reindex", "circuit_open")), 0)
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	ctx := context.Background()
	calls := 0
	for range 5 {
		err := c.Execute(ctx, resilience.ClassAdmin, "get_mapping", func(context.Context) error {
			calls++
			return &elasticsearch.ResponseError{Op: "get mapping", Status: http.StatusNotFound}
		})
		require.True(t, elasticsearch.IsNotFound(err))
	}

	assert.Equal(t, 5, calls, "404 is neither retried nor short-circuited")
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker(resilience.ClassAdmin).State())
}

func TestClient_NoRetryRunsOnce(t *testing.T) {
	t.Parallel()

	c, fake, _ := newClient(t, testConfig())
	calls := 0
	err := c.Execute(resilience.NoRetry(context.Background()), resilience.ClassAdmin, "update_aliases", func(context.Context) error {
		calls++
		return unavailable()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.Sleeps())
}

func TestClient_UnknownClass(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	err := c.Execute(context.Background(), resilience.Class("bogus"), "x", func(context.Context) error { return nil })
	require.ErrorIs(t, err, resilience.ErrUnknownClass)
}

func TestClient_BulkheadRejectsWhenSaturated(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.Execute(ctx, resilience.ClassQuery, "hold", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_ = c.Execute(ctx, resilience.ClassQuery, "queued", func(context.Context) error { return nil })
	}()
	require.Eventually(t, func() bool { return c.Snapshot().Bulkhead.Queued == 1 }, time.Second, time.Millisecond)

	err := c.Execute(ctx, resilience.ClassQuery, "rejected", func(context.Context) error { return nil })
	require.ErrorIs(t, err, bulkhead.ErrRejected)

	close(release)
	wg.Wait()
	assert.InDelta(t, 1, testutil.ToFloat64(c.Metrics().BulkheadRejections.WithLabelValues("queue_full")), 0)
}

func TestDo_ReturnsValue(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	got, err := resilience.Do(context.Background(), c, resilience.ClassQuery, "count", func(context.Context) (int64, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestClient_Snapshot(t *testing.T) {
	t.Parallel()

	c, _, _ := newClient(t, testConfig())
	snap := c.Snapshot()

	require.Len(t, snap.Breakers, 3)
	assert.Equal(t, "query", snap.Breakers[0].Name)
	assert.Equal(t, "CLOSED", snap.Breakers[2].State)
	assert.Equal(t, 1, snap.Bulkhead.MaxConcurrent)
}

func TestIsBackendFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"not found", &elasticsearch.ResponseError{Status: http.StatusNotFound}, false},
		{"bad request", &elasticsearch.ResponseError{Status: http.StatusBadRequest}, false},
		{"throttled", &elasticsearch.ResponseError{Status: http.StatusTooManyRequests}, true},
		{"request timeout", &elasticsearch.ResponseError{Status: http.StatusRequestTimeout}, true},
		{"unavailable", unavailable(), true},
		{"network", errors.New("connection refused"), true},
		{"wrapped exhausted", errors.Join(retry.ErrMaxAttemptsExceeded, unavailable()), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, resilience.IsBackendFailure(tc.err))
		})
	}
}
