package migration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
)

func TestStartRequest_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  migration.StartRequest
	}{
		{"missing alias", migration.StartRequest{SourceIndex: "a", TargetIndex: "b"}},
		{"missing source", migration.StartRequest{SourceAlias: "docs", TargetIndex: "b"}},
		{"missing target", migration.StartRequest{SourceAlias: "docs", SourceIndex: "a"}},
		{"same index", migration.StartRequest{SourceAlias: "docs", SourceIndex: "a", TargetIndex: "a"}},
		{"target named like alias", migration.StartRequest{SourceAlias: "docs", SourceIndex: "a", TargetIndex: "docs"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, tc.req.Validate(), migration.ErrInvalidRequest)
		})
	}
	require.NoError(t, docsRequest().Validate())
}

func TestManager_RejectsConcurrentRunOnSameAlias(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.AddIndex("other_v1", 3)
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
	_, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	<-reached

	_, err = m.Start(context.Background(), migration.StartRequest{SourceAlias: "docs", SourceIndex: "docs_v1", TargetIndex: "docs_v3"})
	require.ErrorIs(t, err, migration.ErrMigrationInProgress)
	_, err = m.Start(context.Background(), migration.StartRequest{SourceAlias: "other", SourceIndex: "other_v1", TargetIndex: "docs_v2"})
	require.ErrorIs(t, err, migration.ErrMigrationInProgress)

	close(resume)
	m.Wait()

	id, err := m.Start(context.Background(), migration.StartRequest{SourceAlias: "other", SourceIndex: "other_v1", TargetIndex: "other_v2"})
	require.NoError(t, err)
	m.Wait()
	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, run.State)
	assert.Equal(t, "other_staging", run.StagingAlias)
}

func TestManager_ProgressFallsBackToStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stored := domain.MigrationRun{ID: "old-run", SourceAlias: "docs", State: domain.StateCompleted}
	require.NoError(t, h.store.SaveRun(context.Background(), stored))
	m := h.manager()

	run, err := m.Progress(context.Background(), "old-run")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, run.State)

	_, err = m.Progress(context.Background(), "missing")
	require.ErrorIs(t, err, migration.ErrRunNotFound)
}

func TestManager_ProgressWithoutStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	deps := h.deps()
	deps.Store = nil
	m := migration.NewManager(deps, migration.Config{})

	_, err := m.Progress(context.Background(), "missing")
	require.ErrorIs(t, err, migration.ErrRunNotFound)
}

func TestManager_RollbackCompletedRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	m.Wait()

	require.ErrorIs(t, m.Rollback(context.Background(), id), migration.ErrRunCompleted)
	assert.Equal(t, []string{"docs_v2"}, h.backend.AliasIndices("docs"))
}

func TestManager_RollbackFailedRunReappliesReversal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.CopyLimit = 0
	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	m.Wait()

	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, run.State)

	// someone repointed the alias by hand after the failure
	h.backend.SetAlias("docs", "docs_v2")
	require.NoError(t, m.Rollback(context.Background(), id))
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))

	before := len(h.backend.AliasUpdates())
	require.NoError(t, m.Rollback(context.Background(), id))
	assert.Len(t, h.backend.AliasUpdates(), before, "already reversed")
}

func TestManager_RollbackFailedRunAfterLaterCutover(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.CopyLimit = 0
	m := h.manager()
	failedID, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	m.Wait()
	failed, err := m.Progress(context.Background(), failedID)
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, failed.State)

	h.backend.CopyLimit = -1
	laterID, err := m.Start(context.Background(), migration.StartRequest{
		SourceAlias: "docs",
		SourceIndex: "docs_v1",
		TargetIndex: "docs_v3",
	})
	require.NoError(t, err)
	m.Wait()
	later, err := m.Progress(context.Background(), laterID)
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, later.State)
	require.Equal(t, []string{"docs_v3"}, h.backend.AliasIndices("docs"))

	before := len(h.backend.AliasUpdates())
	require.ErrorIs(t, m.Rollback(context.Background(), failedID), migration.ErrAliasMoved)
	assert.Equal(t, []string{"docs_v3"}, h.backend.AliasIndices("docs"), "later cutover is left alone")
	assert.Len(t, h.backend.AliasUpdates(), before)
	require.ErrorIs(t, m.Rollback(context.Background(), laterID), migration.ErrRunCompleted)
}

func TestManager_RollbackStoredRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.AddIndex("docs_v2", 1)
	h.backend.SetAlias("docs", "docs_v2")
	require.NoError(t, h.store.SaveRun(context.Background(), domain.MigrationRun{
		ID:           "crashed",
		SourceAlias:  "docs",
		StagingAlias: "docs_staging",
		Source:       domain.NewIndexDescriptor("docs_v1", "docs", false),
		Target:       domain.NewIndexDescriptor("docs_v2", "docs", true),
		State:        domain.StateMonitoring,
	}))
	m := h.manager()

	require.NoError(t, m.Rollback(context.Background(), "crashed"))
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))
	require.ErrorIs(t, m.Rollback(context.Background(), "missing"), migration.ErrRunNotFound)
}

func TestManager_ListNewestFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.store.SaveRun(context.Background(), domain.MigrationRun{ID: "older", StartTime: base}))
	require.NoError(t, h.store.SaveRun(context.Background(), domain.MigrationRun{ID: "old", StartTime: base.Add(time.Hour)}))
	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	m.Wait()

	runs, err := m.List(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}
	assert.Equal(t, []string{id, "old", "older"}, ids)
}

func TestManager_ShutdownRollsBackInFlightRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.Poller.MaxPolls = 1 << 30
	h.backend.TaskScript = []elasticsearch.TaskStatus{{Total: 200, Created: 10}}
	reached := make(chan struct{})
	var once sync.Once
	h.backend.Hook = func(op string) {
		if op == "get_task" {
			once.Do(func() { close(reached) })
		}
	}

	m := h.manager()
	id, err := m.Start(context.Background(), docsRequest())
	require.NoError(t, err)
	<-reached

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	run, err := m.Progress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, run.State)
	assert.Equal(t, []string{"node:1"}, h.backend.Cancelled())
	assert.Equal(t, []string{"docs_v1"}, h.backend.AliasIndices("docs"))

	_, err = m.Start(context.Background(), docsRequest())
	require.ErrorIs(t, err, migration.ErrManagerClosed)
}
