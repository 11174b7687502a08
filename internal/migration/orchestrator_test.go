package migration_test

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch/mappings"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
	"github.com/jonesrussell/north-cloud/index-guard/internal/monitoring"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
	"github.com/jonesrussell/north-cloud/index-guard/internal/testhelpers"
	"github.com/jonesrussell/north-cloud/index-guard/internal/validation"
)

type alertRecorder struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (a *alertRecorder) Dispatch(event domain.AlertEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *alertRecorder) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Subject())
	}
	return out
}

type eventRecorder struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *eventRecorder) Publish(_ context.Context, event sse.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventRecorder) ofType(eventType string) []sse.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sse.Event
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type metricRecorder struct {
	mu     sync.Mutex
	points []domain.MetricPoint
}

func (m *metricRecorder) Record(point domain.MetricPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point)
}

func (m *metricRecorder) named(name string) []domain.MetricPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MetricPoint
	for _, p := range m.points {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

type memStore struct {
	mu     sync.Mutex
	runs   map[string]domain.MigrationRun
	states []domain.MigrationState
	errors []domain.MigrationError
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]domain.MigrationRun)}
}

func (s *memStore) SaveRun(_ context.Context, run domain.MigrationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	if len(s.states) == 0 || s.states[len(s.states)-1] != run.State {
		s.states = append(s.states, run.State)
	}
	return nil
}

func (s *memStore) AppendError(_ context.Context, _ string, entry domain.MigrationError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, entry)
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (domain.MigrationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.MigrationRun{}, domain.ErrRunNotFound
	}
	return run, nil
}

func (s *memStore) ListRuns(_ context.Context, _ int) ([]domain.MigrationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MigrationRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}

func (s *memStore) stateHistory() []domain.MigrationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.states)
}

type harness struct {
	backend *testhelpers.MockBackend
	fake    *clock.Fake
	alerts  *alertRecorder
	metrics *metricRecorder
	events  *eventRecorder
	store   *memStore
	cfg     migration.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs_v1", 200)
	backend.SetAlias("docs", "docs_v1")
	return &harness{
		backend: backend,
		fake:    clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		alerts:  &alertRecorder{},
		metrics: &metricRecorder{},
		events:  &eventRecorder{},
		store:   newMemStore(),
	}
}

func (h *harness) deps() migration.Deps {
	client := resilience.New(resilience.DefaultConfig(), logger.NewNop(),
		resilience.WithClock(h.fake),
		resilience.WithRegisterer(prometheus.NewRegistry()),
		resilience.WithJitter(func() float64 { return 0 }),
	)
	api := resilience.NewIndexClient(client, h.backend)
	engine := validation.NewEngine(logger.NewNop(), validation.DefaultRules(api, validation.Config{}, h.fake)...)
	return migration.Deps{
		API:     api,
		Engine:  engine,
		Health:  monitoring.NewHealthChecker(api, monitoring.HealthConfig{}, monitoring.DefaultPolicy(), h.fake),
		Metrics: h.metrics,
		Alerts:  h.alerts,
		Store:   h.store,
		Events:  h.events,
		Clock:   h.fake,
		Log:     logger.NewNop(),
	}
}

func (h *harness) manager() *migration.Manager {
	return migration.NewManager(h.deps(), h.cfg)
}

func docsRequest() migration.StartRequest {
	return migration.StartRequest{SourceAlias: "docs", SourceIndex: "docs_v1", TargetIndex: "docs_v2"}
}

// runToEnd starts the default migration and waits for it to finish.
func (h *harness) runToEnd(t *testing.T) domain.MigrationRun {
	t.Helper()
	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	m.Wait()
	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	return run
}

func errorsAt(run domain.MigrationRun, sev domain.Severity) []string {
	var out []string
	for _, e := range run.Errors {
		if e.Severity == sev {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestOrchestrator_CompletesMigration(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.TaskScript = []elasticsearch.TaskStatus{
		{Total: 200},
		{Total: 200, Created: 100},
		{Completed: true, Total: 200, Created: 200},
	}

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	assert.Empty(t, run.Errors)
	assert.Equal(t, int64(200), run.TotalDocuments)
	assert.Equal(t, int64(200), run.ProcessedDocuments)
	assert.Equal(t, "node:1", run.ReindexTaskID)
	assert.True(t, run.Target.IsProduction)
	assert.False(t, run.Source.IsProduction)
	assert.Equal(t, 2, run.Target.Version)
	require.NotNil(t, run.EndTime)

	assert.Equal(t, []string{"docs_v2"}, h.backend.AliasIndices("docs"))
	assert.Empty(t, h.backend.AliasIndices("docs_staging"))
	assert.Equal(t, []map[string]any{mappings.ProductionSettings()}, h.backend.SettingsCalls("docs_v2"))

	assert.Equal(t, []domain.MigrationState{
		domain.StateIdle,
		domain.StateValidating,
		domain.StateBuildingGreen,
		domain.StateReindexing,
		domain.StateValidatingGreen,
		domain.StateSwitching,
		domain.StateMonitoring,
		domain.StateCompleted,
	}, h.store.stateHistory())

	progress := h.metrics.named("reindex_progress")
	require.Len(t, progress, 3)
	assert.InDelta(t, 50.0, progress[1].Value, 0.001)
	assert.Len(t, h.metrics.named("health_score"), 10, "5m window checked every 30s")
	assert.Contains(t, h.alerts.titles(), "[INFO] Migration completed: docs")

	states := h.events.ofType(sse.EventTypeMigrationState)
	require.Len(t, states, 7)
	last, ok := states[6].Data.(sse.MigrationStateData)
	require.True(t, ok)
	assert.Equal(t, "MONITORING", last.From)
	assert.Equal(t, "COMPLETED", last.To)
	assert.Equal(t, run.ID, last.RunID)
	assert.Len(t, h.events.ofType(sse.EventTypeMigrationProgress), 3)
}

func TestOrchestrator_SwitchIsOneAtomicRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	run := h.runToEnd(t)
	require.Equal(t, domain.StateCompleted, run.State)

	updates := h.backend.AliasUpdates()
	require.Len(t, updates, 2)
	assert.Equal(t, []domain.AliasAction{
		{Type: domain.AliasAdd, Index: "docs_v2", Alias: "docs_staging"},
	}, updates[0])
	assert.Equal(t, []domain.AliasAction{
		{Type: domain.AliasRemove, Index: "docs_v1", Alias: "docs"},
		{Type: domain.AliasAdd, Index: "docs_v2", Alias: "docs"},
		{Type: domain.AliasRemove, Index: "docs_v2", Alias: "docs_staging"},
	}, updates[1])
}

func TestOrchestrator_SourceValidationFailsWithoutRollback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		setup   func(h *harness)
		message string
	}{
		{
			name: "missing source",
			setup: func(h *harness) {
				h.backend = testhelpers.NewMockBackend()
			},
			message: "does not exist",
		},
		{
			name: "alias points elsewhere",
			setup: func(h *harness) {
				h.backend.AddIndex("docs_v0", 1)
				h.backend.SetAlias("docs", "docs_v0")
			},
			message: "points at [docs_v0]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			tc.setup(h)

			run := h.runToEnd(t)

			assert.Equal(t, domain.StateFailed, run.State)
			require.Len(t, run.Errors, 1)
			assert.Equal(t, domain.SeverityCritical, run.Errors[0].Severity)
			assert.Equal(t, domain.StateValidating, run.Errors[0].Phase)
			assert.Contains(t, run.Errors[0].Message, tc.message)
			assert.NotContains(t, h.store.stateHistory(), domain.StateRollingBack)
			assert.Empty(t, h.backend.AliasUpdates())
		})
	}
}

func TestOrchestrator_AliasMayNotExistYet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.SetAlias("docs")

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	assert.Equal(t, []string{"docs_v2"}, h.backend.AliasIndices("docs"))
}

func TestOrchestrator_StaleTargetIsReplaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.AddIndex("docs_v2", 7)

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	warnings := errorsAt(run, domain.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "deleted stale target")
	assert.Len(t, h.backend.Index("docs_v2").IDs, 200)
}

func TestOrchestrator_StaleTargetBehindStagingAliasIsReplaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.AddIndex("docs_v2", 7)
	h.backend.SetAlias("docs_staging", "docs_v2")

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	assert.Equal(t, []string{"docs_v2"}, h.backend.AliasIndices("docs"))
	assert.Len(t, h.backend.Index("docs_v2").IDs, 200)
}

func TestOrchestrator_TargetServedByAnotherAliasIsNeverDeleted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.AddIndex("other_v1", 50)
	h.backend.SetAlias("other", "other_v1")

	m := h.manager()
	id, err := m.Start(context.Background(), migration.StartRequest{
		SourceAlias: "docs",
		SourceIndex: "docs_v1",
		TargetIndex: "other_v1",
	})
	require.NoError(t, err)
	m.Wait()
	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, run.State)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, domain.SeverityCritical, run.Errors[0].Severity)
	assert.Equal(t, domain.StateValidating, run.Errors[0].Phase)
	assert.Contains(t, run.Errors[0].Message, "target index is in use")
	assert.Contains(t, run.Errors[0].Message, "[other]")

	require.NotNil(t, h.backend.Index("other_v1"))
	assert.Len(t, h.backend.Index("other_v1").IDs, 50)
	assert.Equal(t, []string{"other_v1"}, h.backend.AliasIndices("other"))
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
	assert.NotContains(t, h.backend.Calls(), "delete_index")
	assert.Empty(t, h.backend.AliasUpdates())
}

func TestOrchestrator_ValidationFailureRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.CopyLimit = 150

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateFailed, run.State)
	critical := errorsAt(run, domain.SeverityCritical)
	require.Len(t, critical, 1)
	assert.Contains(t, critical[0], "document_count")
	assert.Equal(t, domain.StateValidatingGreen, run.Errors[0].Phase)

	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
	assert.Empty(t, h.backend.AliasIndices("docs_staging"))
	assert.NotNil(t, h.backend.Index("docs_v2"), "target is left for inspection")
	assert.True(t, run.Source.IsProduction)

	history := h.store.stateHistory()
	assert.Equal(t, []domain.MigrationState{domain.StateRollingBack, domain.StateFailed}, history[len(history)-2:])
	assert.Contains(t, h.alerts.titles(), "[CRITICAL] Validation failed: docs_v2")
}

func TestOrchestrator_TaskErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.TaskScript = []elasticsearch.TaskStatus{{Completed: true, Error: "es_rejected_execution_exception"}}

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateFailed, run.State)
	errs := errorsAt(run, domain.SeverityError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "es_rejected_execution_exception")
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
}

func TestOrchestrator_StallIsReportedNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.Poller.StallPolls = 3
	h.backend.TaskScript = []elasticsearch.TaskStatus{
		{Total: 200, Created: 20},
		{Total: 200, Created: 20},
		{Total: 200, Created: 20},
		{Total: 200, Created: 20},
		{Completed: true, Total: 200, Created: 200},
	}

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	warnings := errorsAt(run, domain.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no progress for 3 polls")
	assert.Equal(t, domain.StateReindexing, run.Errors[0].Phase)
	assert.Contains(t, h.alerts.titles(), "[WARNING] Reindex stalled: docs_v2")
}

func TestOrchestrator_OperatorAbortDuringReindex(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.TaskScript = []elasticsearch.TaskStatus{{Total: 200, Created: 10}}
	reached, resume := make(chan struct{}), make(chan struct{})
	var once sync.Once
	h.backend.Hook = func(op string) {
		if op == "get_task" {
			once.Do(func() {
				close(reached)
				<-resume
			})
		}
	}

	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)

	<-reached
	require.NoError(t, m.Rollback(context.Background(), id))
	close(resume)
	m.Wait()

	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, run.State)
	assert.Equal(t, []string{"node:1"}, h.backend.Cancelled())
	warnings := errorsAt(run, domain.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "migration aborted: rollback requested by operator")
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
	assert.Empty(t, h.backend.AliasIndices("docs_staging"))
}

func TestOrchestrator_CriticalHealthRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.SetClusterStatus(elasticsearch.HealthRed)
	h.backend.NewIndexHealth = elasticsearch.HealthRed
	h.backend.NewIndexStats = elasticsearch.IndexingStats{IndexTotal: 10, IndexFailed: 5}

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateFailed, run.State)
	critical := errorsAt(run, domain.SeverityCritical)
	require.Len(t, critical, 1)
	assert.Contains(t, critical[0], "score 25")
	assert.Equal(t, domain.StateMonitoring, run.Errors[0].Phase)
	assert.True(t, run.Source.IsProduction)
	assert.False(t, run.Target.IsProduction)

	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
	updates := h.backend.AliasUpdates()
	assert.Equal(t, []domain.AliasAction{
		{Type: domain.AliasRemove, Index: "docs_v2", Alias: "docs"},
		{Type: domain.AliasAdd, Index: "docs_v1", Alias: "docs"},
	}, updates[len(updates)-1])
	assert.Contains(t, h.alerts.titles(), "[CRITICAL] Index health degraded: docs_v2")
	assert.Contains(t, h.alerts.titles(), "[ERROR] Migration rolled back: docs")
}

func TestOrchestrator_WarningHealthOnlyAlerts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.SetClusterStatus(elasticsearch.HealthRed)

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateCompleted, run.State)
	assert.Contains(t, h.alerts.titles(), "[WARNING] Index health degraded: docs_v2")
}

func TestOrchestrator_MonitorSignalRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	reached, resume := make(chan struct{}), make(chan struct{})
	var once sync.Once
	h.backend.Hook = func(op string) {
		if op == "cluster_health" {
			once.Do(func() {
				close(reached)
				<-resume
			})
		}
	}

	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)

	<-reached
	m.SignalRollback("other_v1", "ignored")
	m.SignalRollback("docs_v2", "error spike")
	close(resume)
	m.Wait()

	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, run.State)
	warnings := errorsAt(run, domain.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "error spike")
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
}

func TestOrchestrator_MonitorSignalIgnoredBeforeCutover(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	reached, resume := make(chan struct{}), make(chan struct{})
	var once sync.Once
	h.backend.Hook = func(op string) {
		if op == "get_task" {
			once.Do(func() {
				close(reached)
				<-resume
			})
		}
	}

	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)

	<-reached
	m.SignalRollback("docs_v2", "too early")
	close(resume)
	m.Wait()

	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, run.State)
}

func TestOrchestrator_RollbackFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.SetAlias("docs_staging", "docs_v2")
	h.backend.Fail("update_aliases", &elasticsearch.ResponseError{Op: "update aliases", Status: http.StatusServiceUnavailable})

	run := h.runToEnd(t)

	assert.Equal(t, domain.StateFailed, run.State)
	critical := errorsAt(run, domain.SeverityCritical)
	require.Len(t, critical, 1)
	assert.True(t, strings.HasPrefix(critical[0], "rollback failed"))
	assert.Equal(t, domain.StateRollingBack, run.Errors[len(run.Errors)-1].Phase)

	updates := 0
	for _, op := range h.backend.Calls() {
		if op == "update_aliases" {
			updates++
		}
	}
	assert.Equal(t, 4, updates, "staging alias retried three times, rollback sent once")
	assert.Contains(t, h.alerts.titles(), "[CRITICAL] Rollback failed: docs")
}

func TestOrchestrator_AliasAlwaysResolvesToOneIndex(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(h *harness)
		want  domain.MigrationState
		final string
	}{
		{
			name:  "cutover",
			setup: func(*harness) {},
			want:  domain.StateCompleted,
			final: "docs_v2",
		},
		{
			name: "cutover then rollback",
			setup: func(h *harness) {
				h.backend.SetClusterStatus(elasticsearch.HealthRed)
				h.backend.NewIndexHealth = elasticsearch.HealthRed
				h.backend.NewIndexStats = elasticsearch.IndexingStats{IndexTotal: 10, IndexFailed: 5}
			},
			want:  domain.StateFailed,
			final: "docs_v1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			tc.setup(h)

			type readLog struct {
				reads      int
				violations [][]string
			}
			done := make(chan struct{})
			logs := make(chan readLog, 1)
			go func() {
				var log readLog
				for {
					indices := h.backend.AliasIndices("docs")
					log.reads++
					if len(indices) != 1 {
						log.violations = append(log.violations, indices)
					}
					select {
					case <-done:
						logs <- log
						return
					default:
					}
				}
			}()

			run := h.runToEnd(t)
			close(done)
			log := <-logs

			assert.Equal(t, tc.want, run.State)
			assert.Positive(t, log.reads)
			assert.Empty(t, log.violations)
			assert.Equal(t, []string{tc.final}, h.backend.AliasIndices("docs"))
		})
	}
}

func TestRestoreAlias_LeavesOtherIndicesAlone(t *testing.T) {
	t.Parallel()

	run := domain.MigrationRun{
		SourceAlias:  "docs",
		StagingAlias: "docs_staging",
		Source:       domain.NewIndexDescriptor("docs_v1", "docs", false),
		Target:       domain.NewIndexDescriptor("docs_v2", "docs", true),
	}

	cases := []struct {
		name    string
		alias   []string
		staged  []string
		wantErr error
		want    []string
		staging []string
	}{
		{
			name:    "alias moved to a later target",
			alias:   []string{"docs_v3"},
			staged:  []string{"docs_v3"},
			wantErr: migration.ErrAliasMoved,
			want:    []string{"docs_v3"},
			staging: []string{"docs_v3"},
		},
		{
			name:    "source already serving next to another index",
			alias:   []string{"docs_v1", "docs_v3"},
			want:    []string{"docs_v1", "docs_v3"},
			staging: nil,
		},
		{
			name:    "target swapped back next to another index",
			alias:   []string{"docs_v2", "docs_v3"},
			staged:  []string{"docs_v2", "docs_v3"},
			want:    []string{"docs_v1", "docs_v3"},
			staging: []string{"docs_v3"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := testhelpers.NewMockBackend()
			for _, name := range []string{"docs_v1", "docs_v2", "docs_v3"} {
				backend.AddIndex(name, 1)
			}
			backend.SetAlias("docs", tc.alias...)
			backend.SetAlias("docs_staging", tc.staged...)

			_, err := migration.RestoreAlias(context.Background(), backend, run, true)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, backend.AliasUpdates())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, backend.AliasIndices("docs"))
			assert.Equal(t, tc.staging, backend.AliasIndices("docs_staging"))
		})
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, migration.CanTransition(domain.StateIdle, domain.StateValidating))
	assert.True(t, migration.CanTransition(domain.StateValidating, domain.StateFailed))
	assert.True(t, migration.CanTransition(domain.StateMonitoring, domain.StateRollingBack))
	assert.False(t, migration.CanTransition(domain.StateValidating, domain.StateRollingBack))
	assert.False(t, migration.CanTransition(domain.StateRollingBack, domain.StateCompleted))
	assert.False(t, migration.CanTransition(domain.StateCompleted, domain.StateRollingBack))
	assert.False(t, migration.CanTransition(domain.StateFailed, domain.StateIdle))
	assert.False(t, migration.CanTransition(domain.StateReindexing, domain.StateSwitching))
}

func TestRestoreAlias_Idempotent(t *testing.T) {
	t.Parallel()

	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs_v1", 1)
	backend.AddIndex("docs_v2", 1)
	backend.SetAlias("docs", "docs_v2")
	backend.SetAlias("docs_staging", "docs_v2")
	run := domain.MigrationRun{
		SourceAlias:  "docs",
		StagingAlias: "docs_staging",
		Source:       domain.NewIndexDescriptor("docs_v1", "docs", false),
		Target:       domain.NewIndexDescriptor("docs_v2", "docs", true),
	}

	actions, err := migration.RestoreAlias(context.Background(), backend, run, false)
	require.NoError(t, err)
	assert.Len(t, actions, 3)
	assert.Equal(t, []string{"docs_v1"}, backend.AliasIndices("docs"))

	actions, err = migration.RestoreAlias(context.Background(), backend, run, false)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Len(t, backend.AliasUpdates(), 1, "second call sends nothing")
}

func TestRestoreAlias_CreatesAliasOnlyWhenForced(t *testing.T) {
	t.Parallel()

	backend := testhelpers.NewMockBackend()
	backend.AddIndex("docs_v1", 1)
	run := domain.MigrationRun{SourceAlias: "docs", StagingAlias: "docs_staging", Source: domain.NewIndexDescriptor("docs_v1", "docs", true)}

	actions, err := migration.RestoreAlias(context.Background(), backend, run, false)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Empty(t, backend.AliasIndices("docs"))

	_, err = migration.RestoreAlias(context.Background(), backend, run, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs_v1"}, backend.AliasIndices("docs"))
}
