package monitoring_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/index-guard/internal/monitoring"
	"github.com/jonesrussell/north-cloud/index-guard/internal/testhelpers"
)

type alertSink struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (a *alertSink) Dispatch(event domain.AlertEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func newMonitor(t *testing.T, backend *testhelpers.MockBackend, fake *clock.Fake, alerts monitoring.Alerter) *monitoring.Monitor {
	t.Helper()
	checker := monitoring.NewHealthChecker(backend, monitoring.HealthConfig{}, monitoring.DefaultPolicy(), fake)
	return monitoring.NewMonitor(checker, backend, alerts, []string{"docs"}, time.Minute, fake, logger.NewNop())
}

func TestMonitor_HealthyIndexRaisesNothing(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs_v2", 5)
	backend.SetAlias("docs", "docs_v2")
	alerts := &alertSink{}
	m := newMonitor(t, backend, fake, alerts)

	called := false
	m.OnCritical(func(string, string) { called = true })
	results := m.CheckOnce(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, "docs_v2", results[0].Index, "aliases are resolved to their indices")
	assert.Empty(t, alerts.events)
	assert.False(t, called)

	latest, ok := m.Latest("docs_v2")
	require.True(t, ok)
	assert.Equal(t, 100, latest.Score)
}

func TestMonitor_WarningAlertsWithoutRollback(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs_v2", 5)
	backend.SetAlias("docs", "docs_v2")
	backend.SetClusterStatus(elasticsearch.HealthRed)
	alerts := &alertSink{}
	m := newMonitor(t, backend, fake, alerts)

	called := false
	m.OnCritical(func(string, string) { called = true })
	m.CheckOnce(context.Background())

	require.Len(t, alerts.events, 1)
	assert.Equal(t, domain.SeverityWarning, alerts.events[0].Severity)
	assert.False(t, called)
}

func TestMonitor_CriticalCallsRollback(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	backend := testhelpers.NewMockBackend()
	backend.Clock = fake
	backend.SearchLatency = 5 * time.Second
	state := backend.AddIndex("docs_v2", 5)
	state.Health = elasticsearch.HealthRed
	state.Stats = elasticsearch.IndexingStats{IndexTotal: 10, IndexFailed: 5}
	backend.SetAlias("docs", "docs_v2")
	alerts := &alertSink{}
	m := newMonitor(t, backend, fake, alerts)

	var gotIndex string
	m.OnCritical(func(index, _ string) { gotIndex = index })
	m.CheckOnce(context.Background())

	assert.Equal(t, "docs_v2", gotIndex)
	require.Len(t, alerts.events, 1)
	assert.Equal(t, "[CRITICAL] Index health degraded: docs_v2", alerts.events[0].Subject())
}

func TestMonitor_UnknownAliasCheckedDirectly(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs", 1)
	m := newMonitor(t, backend, fake, &alertSink{})

	results := m.CheckOnce(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, "docs", results[0].Index)
}
