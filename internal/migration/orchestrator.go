// Package migration drives blue/green index migrations: validate the source,
// build and fill the target, validate it, switch the alias, watch it, and roll
// back to the source on any failure.
package migration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch/mappings"
	"github.com/jonesrussell/north-cloud/index-guard/internal/monitoring"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
	"github.com/jonesrussell/north-cloud/index-guard/internal/validation"
)

var (
	// ErrInvalidTransition is returned when a state change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid migration state transition")
	// ErrValidationFailed marks a failed validation rule.
	ErrValidationFailed = errors.New("validation failed")
	// ErrHealthCritical marks a post-cutover health result that requires rollback.
	ErrHealthCritical = errors.New("target health critical")
	// ErrAborted marks a run stopped by a rollback signal.
	ErrAborted = errors.New("migration aborted")
	// ErrTargetInUse marks a target index that another alias still serves.
	ErrTargetInUse = errors.New("target index is in use")
	// ErrAliasMoved is returned by RestoreAlias when the alias points at
	// neither the run's source nor its target.
	ErrAliasMoved = errors.New("alias no longer points at the run's source or target")
)

var transitions = map[domain.MigrationState][]domain.MigrationState{
	domain.StateIdle:            {domain.StateValidating},
	domain.StateValidating:      {domain.StateBuildingGreen, domain.StateFailed},
	domain.StateBuildingGreen:   {domain.StateReindexing, domain.StateRollingBack},
	domain.StateReindexing:      {domain.StateValidatingGreen, domain.StateRollingBack},
	domain.StateValidatingGreen: {domain.StateSwitching, domain.StateRollingBack},
	domain.StateSwitching:       {domain.StateMonitoring, domain.StateRollingBack},
	domain.StateMonitoring:      {domain.StateCompleted, domain.StateRollingBack},
	domain.StateRollingBack:     {domain.StateFailed},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to domain.MigrationState) bool {
	return slices.Contains(transitions[from], to)
}

// MetricRecorder accepts metric points; *monitoring.Buffer satisfies it.
type MetricRecorder interface {
	Record(point domain.MetricPoint)
}

// Store persists runs and their error log.
type Store interface {
	SaveRun(ctx context.Context, run domain.MigrationRun) error
	AppendError(ctx context.Context, runID string, entry domain.MigrationError) error
	GetRun(ctx context.Context, id string) (domain.MigrationRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.MigrationRun, error)
}

// Deps are the collaborators shared by every run.
type Deps struct {
	API     resilience.IndexAPI
	Engine  *validation.Engine
	Health  *monitoring.HealthChecker
	Metrics MetricRecorder
	Alerts  monitoring.Alerter
	// Store and Events are optional.
	Store  Store
	Events sse.Publisher
	Clock  clock.Clock
	Log    logger.Logger
}

type step struct {
	state domain.MigrationState
	run   func(ctx context.Context) error
}

// Orchestrator runs one migration. The run record is mutated only from the
// goroutine executing Run; other goroutines read it through Snapshot.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	poller *monitoring.TaskPoller
	log    logger.Logger

	mu       sync.RWMutex
	run      *domain.MigrationRun
	pending  string
	signaled bool
	switched bool
}

// NewOrchestrator creates an orchestrator for run, which must be in IDLE.
func NewOrchestrator(run *domain.MigrationRun, deps Deps, cfg Config) *Orchestrator {
	cfg.SetDefaults()
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		poller: monitoring.NewTaskPoller(deps.API, cfg.Poller, deps.Clock),
		log: deps.Log.With(
			logger.String("run_id", run.ID),
			logger.String("alias", run.SourceAlias),
			logger.String("source", run.Source.Name),
			logger.String("target", run.Target.Name),
		),
		run: run,
	}
}

// Snapshot returns a copy of the run record.
func (o *Orchestrator) Snapshot() domain.MigrationRun {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.run.Snapshot()
}

// Signal asks the run to roll back at its next poll. It returns false when the
// run can no longer be rolled back this way. Only the first reason is kept.
func (o *Orchestrator) Signal(reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run.State.IsTerminal() || o.run.State == domain.StateRollingBack {
		return false
	}
	if !o.signaled {
		o.signaled = true
		o.pending = reason
	}
	return true
}

func (o *Orchestrator) signalPending() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.signaled
}

func (o *Orchestrator) abortError() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return fmt.Errorf("%w: %s", ErrAborted, o.pending)
}

// Run executes the state machine to a terminal state and returns the final record.
func (o *Orchestrator) Run(ctx context.Context) domain.MigrationRun {
	o.log.Info("Migration started")
	o.persist(ctx)

	if err := o.transition(ctx, domain.StateValidating); err != nil {
		return o.Snapshot()
	}
	err := o.validateSource(ctx)
	if err == nil && o.signalPending() {
		err = o.abortError()
	}
	if err != nil {
		sev := domain.SeverityCritical
		if errors.Is(err, ErrAborted) {
			sev = domain.SeverityWarning
		}
		o.recordError(ctx, sev, err.Error())
		o.finish(ctx, domain.StateFailed)
		return o.Snapshot()
	}

	steps := []step{
		{domain.StateBuildingGreen, o.buildGreen},
		{domain.StateReindexing, o.reindex},
		{domain.StateValidatingGreen, o.validateGreen},
		{domain.StateSwitching, o.switchAlias},
		{domain.StateMonitoring, o.monitor},
	}
	for _, s := range steps {
		if err = o.transition(ctx, s.state); err != nil {
			return o.Snapshot()
		}
		err = s.run(ctx)
		if err == nil && o.signalPending() {
			err = o.abortError()
		}
		if err != nil {
			o.recordError(ctx, severityOf(err), err.Error())
			o.rollback(ctx)
			return o.Snapshot()
		}
	}

	o.finish(ctx, domain.StateCompleted)
	run := o.Snapshot()
	o.deps.Alerts.Dispatch(domain.AlertEvent{
		Severity: domain.SeverityInfo,
		Title:    "Migration completed: " + run.SourceAlias,
		Message:  fmt.Sprintf("alias %s now points at %s", run.SourceAlias, run.Target.Name),
	})
	return run
}

func severityOf(err error) domain.Severity {
	switch {
	case errors.Is(err, ErrAborted):
		return domain.SeverityWarning
	case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrHealthCritical), errors.Is(err, ErrTargetInUse):
		return domain.SeverityCritical
	default:
		return domain.SeverityError
	}
}

func (o *Orchestrator) validateSource(ctx context.Context) error {
	run := o.Snapshot()

	exists, err := o.deps.API.IndexExists(ctx, run.Source.Name)
	if err != nil {
		return fmt.Errorf("check source index: %w", err)
	}
	if !exists {
		return fmt.Errorf("source index %s does not exist", run.Source.Name)
	}

	current, err := o.deps.API.GetAliasIndices(ctx, run.SourceAlias)
	if err != nil {
		return fmt.Errorf("resolve alias %s: %w", run.SourceAlias, err)
	}
	if len(current) > 0 && !slices.Equal(current, []string{run.Source.Name}) {
		return fmt.Errorf("alias %s points at %v, not %s", run.SourceAlias, current, run.Source.Name)
	}

	if err = o.checkTargetFree(ctx, run); err != nil {
		return err
	}

	count, err := o.deps.API.Count(ctx, run.Source.Name)
	if err != nil {
		return fmt.Errorf("count source documents: %w", err)
	}

	o.mu.Lock()
	o.run.TotalDocuments = count
	o.mu.Unlock()
	o.log.Info("Source validated", logger.Int64("documents", count))
	return nil
}

func (o *Orchestrator) buildGreen(ctx context.Context) error {
	run := o.Snapshot()

	exists, err := o.deps.API.IndexExists(ctx, run.Target.Name)
	if err != nil {
		return fmt.Errorf("check target index: %w", err)
	}
	if exists {
		if err = o.checkTargetFree(ctx, run); err != nil {
			return err
		}
		if err = o.deps.API.DeleteIndex(ctx, run.Target.Name); err != nil {
			return fmt.Errorf("delete stale target: %w", err)
		}
		o.recordError(ctx, domain.SeverityWarning, "deleted stale target index "+run.Target.Name)
	}

	body, err := mappings.ToMap(mappings.DocumentIndex(true))
	if err != nil {
		return fmt.Errorf("build target mapping: %w", err)
	}
	if err = o.deps.API.CreateIndex(ctx, run.Target.Name, body); err != nil {
		return fmt.Errorf("create target index: %w", err)
	}

	staging := []domain.AliasAction{{Type: domain.AliasAdd, Index: run.Target.Name, Alias: run.StagingAlias}}
	if err = o.deps.API.UpdateAliases(ctx, staging); err != nil {
		return fmt.Errorf("add staging alias: %w", err)
	}
	o.log.Info("Target index created", logger.String("staging_alias", run.StagingAlias))
	return nil
}

// checkTargetFree fails when an existing target is served by any alias other
// than the run's staging alias. Only such a target may be replaced.
func (o *Orchestrator) checkTargetFree(ctx context.Context, run domain.MigrationRun) error {
	aliases, err := o.deps.API.IndexAliases(ctx, run.Target.Name)
	if err != nil {
		return fmt.Errorf("resolve aliases of target %s: %w", run.Target.Name, err)
	}
	foreign := slices.DeleteFunc(aliases, func(a string) bool { return a == run.StagingAlias })
	if len(foreign) > 0 {
		return fmt.Errorf("%w: %s is behind alias %v", ErrTargetInUse, run.Target.Name, foreign)
	}
	return nil
}

func (o *Orchestrator) reindex(ctx context.Context) error {
	run := o.Snapshot()

	taskID, err := o.deps.API.Reindex(ctx, run.Source.Name, run.Target.Name)
	if err != nil {
		return fmt.Errorf("start reindex: %w", err)
	}
	o.mu.Lock()
	o.run.ReindexTaskID = taskID
	o.mu.Unlock()
	o.persist(ctx)
	o.log.Info("Reindex started", logger.String("task_id", taskID))

	status, err := o.poller.Poll(ctx, taskID, o.signalPending, func(u monitoring.PollUpdate) {
		o.onPoll(ctx, u)
	})
	if err != nil {
		if errors.Is(err, monitoring.ErrPollStopped) || ctx.Err() != nil {
			o.cancelTask(ctx, taskID)
		}
		if errors.Is(err, monitoring.ErrPollStopped) {
			return o.abortError()
		}
		return fmt.Errorf("reindex task %s: %w", taskID, err)
	}
	if status.Failures > 0 {
		o.recordError(ctx, domain.SeverityWarning, fmt.Sprintf("reindex reported %d document failures", status.Failures))
	}
	o.persist(ctx)

	if err = o.deps.API.PutSettings(ctx, run.Target.Name, mappings.ProductionSettings()); err != nil {
		return fmt.Errorf("restore target settings: %w", err)
	}
	if err = o.deps.API.Refresh(ctx, run.Target.Name); err != nil {
		return fmt.Errorf("refresh target: %w", err)
	}
	o.log.Info("Reindex finished", logger.Int64("processed", status.Processed()))
	return nil
}

func (o *Orchestrator) onPoll(ctx context.Context, u monitoring.PollUpdate) {
	if u.Err != nil {
		o.log.Warn("Failed to read reindex task", logger.Int("poll", u.Poll), logger.Error(u.Err))
		return
	}

	o.mu.Lock()
	if u.Status.Total > 0 {
		o.run.TotalDocuments = u.Status.Total
	}
	o.run.ProcessedDocuments = u.Status.Processed()
	o.run.FailedDocuments = u.Status.Failures
	o.run.CurrentThroughput = u.Throughput
	o.run.EstimatedTimeRemaining = u.ETA
	progress := o.run.ProgressPercent()
	runID, target := o.run.ID, o.run.Target.Name
	data := sse.MigrationProgressData{
		RunID:      runID,
		Processed:  o.run.ProcessedDocuments,
		Total:      o.run.TotalDocuments,
		Failed:     o.run.FailedDocuments,
		Percent:    progress,
		Throughput: u.Throughput,
		ETASeconds: u.ETA.Seconds(),
	}
	o.mu.Unlock()

	now := o.deps.Clock.Now()
	dims := map[string]string{"run_id": runID, "index": target}
	o.deps.Metrics.Record(domain.MetricPoint{Name: "reindex_processed", Value: float64(u.Status.Processed()), Unit: "count", Timestamp: now, Dimensions: dims})
	o.deps.Metrics.Record(domain.MetricPoint{Name: "reindex_failed", Value: float64(u.Status.Failures), Unit: "count", Timestamp: now, Dimensions: dims})
	o.deps.Metrics.Record(domain.MetricPoint{Name: "reindex_throughput", Value: u.Throughput, Unit: "docs_per_second", Timestamp: now, Dimensions: dims})
	o.deps.Metrics.Record(domain.MetricPoint{Name: "reindex_progress", Value: progress, Unit: "percent", Timestamp: now, Dimensions: dims})
	o.emit(ctx, sse.NewMigrationProgressEvent(data, now))

	if u.Stalled {
		msg := fmt.Sprintf("reindex made no progress for %d polls at %d documents", o.cfg.Poller.StallPolls, u.Status.Processed())
		o.recordError(ctx, domain.SeverityWarning, msg)
		o.deps.Alerts.Dispatch(domain.AlertEvent{
			Severity: domain.SeverityWarning,
			Title:    "Reindex stalled: " + target,
			Message:  msg,
			Metrics:  map[string]float64{"processed": float64(u.Status.Processed()), "progress": progress},
		})
	}
}

func (o *Orchestrator) cancelTask(ctx context.Context, taskID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RollbackTimeout)
	defer cancel()
	if err := o.deps.API.CancelTask(resilience.NoRetry(cancelCtx), taskID); err != nil {
		o.log.Warn("Failed to cancel reindex task", logger.String("task_id", taskID), logger.Error(err))
	}
}

func (o *Orchestrator) validateGreen(ctx context.Context) error {
	run := o.Snapshot()
	report := o.deps.Engine.Run(ctx, run.Source.Name, run.Target.Name)

	passed := 0.0
	if report.Passed {
		passed = 1
	}
	o.deps.Metrics.Record(domain.MetricPoint{
		Name:       "validation_passed",
		Value:      passed,
		Unit:       "bool",
		Timestamp:  o.deps.Clock.Now(),
		Dimensions: map[string]string{"run_id": run.ID, "index": run.Target.Name},
	})

	if report.Passed {
		return nil
	}
	last := report.Results[len(report.Results)-1]
	o.deps.Alerts.Dispatch(domain.AlertEvent{
		Severity: domain.SeverityCritical,
		Title:    "Validation failed: " + run.Target.Name,
		Message:  fmt.Sprintf("%s: %s", last.Rule, last.Message),
	})
	return fmt.Errorf("%w: %s: %s", ErrValidationFailed, last.Rule, last.Message)
}

func (o *Orchestrator) switchAlias(ctx context.Context) error {
	run := o.Snapshot()

	current, err := o.deps.API.GetAliasIndices(ctx, run.SourceAlias)
	if err != nil {
		return fmt.Errorf("resolve alias %s: %w", run.SourceAlias, err)
	}
	staged, err := o.deps.API.GetAliasIndices(ctx, run.StagingAlias)
	if err != nil {
		return fmt.Errorf("resolve alias %s: %w", run.StagingAlias, err)
	}

	actions := make([]domain.AliasAction, 0, len(current)+len(staged)+1)
	for _, idx := range current {
		if idx != run.Target.Name {
			actions = append(actions, domain.AliasAction{Type: domain.AliasRemove, Index: idx, Alias: run.SourceAlias})
		}
	}
	actions = append(actions, domain.AliasAction{Type: domain.AliasAdd, Index: run.Target.Name, Alias: run.SourceAlias})
	for _, idx := range staged {
		actions = append(actions, domain.AliasAction{Type: domain.AliasRemove, Index: idx, Alias: run.StagingAlias})
	}

	o.mu.Lock()
	o.switched = true
	o.mu.Unlock()
	if err = o.deps.API.UpdateAliases(ctx, actions); err != nil {
		return fmt.Errorf("switch alias: %w", err)
	}

	o.mu.Lock()
	o.run.Source.IsProduction = false
	o.run.Target.IsProduction = true
	o.mu.Unlock()
	o.persist(ctx)
	o.log.Info("Alias switched", logger.Int("actions", len(actions)))
	return nil
}

func (o *Orchestrator) monitor(ctx context.Context) error {
	run := o.Snapshot()
	policy := o.deps.Health.Policy()
	deadline := o.deps.Clock.Now().Add(o.cfg.MonitoringWindow)

	for o.deps.Clock.Now().Before(deadline) {
		if o.signalPending() {
			return o.abortError()
		}

		result := o.deps.Health.Check(ctx, run.Target.Name)
		o.deps.Metrics.Record(domain.MetricPoint{
			Name:       "health_score",
			Value:      float64(result.Score),
			Unit:       "score",
			Timestamp:  result.CheckedAt,
			Dimensions: map[string]string{"run_id": run.ID, "index": run.Target.Name},
		})

		switch policy.ActionFor(result.Score) {
		case monitoring.ActionRollback:
			o.deps.Alerts.Dispatch(monitoring.HealthAlert(result))
			return fmt.Errorf("%w: score %d (%v)", ErrHealthCritical, result.Score, result.Details.Errors)
		case monitoring.ActionAlert:
			o.deps.Alerts.Dispatch(monitoring.HealthAlert(result))
		case monitoring.ActionNone:
		}

		if err := clock.Sleep(ctx, o.deps.Clock, o.cfg.MonitoringInterval); err != nil {
			return fmt.Errorf("monitoring interrupted: %w", err)
		}
	}
	return nil
}

// rollback points the alias back at the source and always ends in FAILED.
func (o *Orchestrator) rollback(ctx context.Context) {
	if err := o.transition(ctx, domain.StateRollingBack); err != nil {
		return
	}
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RollbackTimeout)
	defer cancel()

	o.mu.RLock()
	run, switched := o.run.Snapshot(), o.switched
	o.mu.RUnlock()

	actions, err := RestoreAlias(rbCtx, o.deps.API, run, switched)
	if err != nil {
		msg := "rollback failed: " + err.Error()
		o.recordError(rbCtx, domain.SeverityCritical, msg)
		o.deps.Alerts.Dispatch(domain.AlertEvent{
			Severity: domain.SeverityCritical,
			Title:    "Rollback failed: " + run.SourceAlias,
			Message:  msg,
		})
	} else {
		o.mu.Lock()
		o.run.Source.IsProduction = true
		o.run.Target.IsProduction = false
		o.mu.Unlock()
		o.log.Warn("Migration rolled back", logger.Int("alias_actions", len(actions)))
		o.deps.Alerts.Dispatch(domain.AlertEvent{
			Severity: domain.SeverityError,
			Title:    "Migration rolled back: " + run.SourceAlias,
			Message:  fmt.Sprintf("alias %s restored to %s", run.SourceAlias, run.Source.Name),
		})
	}
	o.finish(rbCtx, domain.StateFailed)
}

// RestoreAlias points run's alias back at its source in one atomic request and
// removes the run's staging alias. Only the run's own target is taken off the
// alias, and the source is added back only when the alias serves that target,
// or, with force, when the alias is empty. An alias serving neither index has
// moved on to another migration and yields ErrAliasMoved. The request is
// computed from the current alias state, so repeating it is harmless; nothing
// is sent when there is nothing to undo. The request is never retried.
func RestoreAlias(ctx context.Context, api resilience.IndexAPI, run domain.MigrationRun, force bool) ([]domain.AliasAction, error) {
	current, err := api.GetAliasIndices(ctx, run.SourceAlias)
	if err != nil {
		return nil, fmt.Errorf("resolve alias %s: %w", run.SourceAlias, err)
	}
	staged, err := api.GetAliasIndices(ctx, run.StagingAlias)
	if err != nil {
		return nil, fmt.Errorf("resolve alias %s: %w", run.StagingAlias, err)
	}

	hasSource := slices.Contains(current, run.Source.Name)
	hasTarget := slices.Contains(current, run.Target.Name)
	if len(current) > 0 && !hasSource && !hasTarget {
		return nil, fmt.Errorf("%w: %s points at %v", ErrAliasMoved, run.SourceAlias, current)
	}

	var actions []domain.AliasAction
	if hasTarget {
		actions = append(actions, domain.AliasAction{Type: domain.AliasRemove, Index: run.Target.Name, Alias: run.SourceAlias})
	}
	if !hasSource && (hasTarget || force) {
		actions = append(actions, domain.AliasAction{Type: domain.AliasAdd, Index: run.Source.Name, Alias: run.SourceAlias})
	}
	if slices.Contains(staged, run.Target.Name) {
		actions = append(actions, domain.AliasAction{Type: domain.AliasRemove, Index: run.Target.Name, Alias: run.StagingAlias})
	}
	if len(actions) == 0 {
		return nil, nil
	}
	if err = api.UpdateAliases(resilience.NoRetry(ctx), actions); err != nil {
		return nil, fmt.Errorf("restore alias %s: %w", run.SourceAlias, err)
	}
	return actions, nil
}

func (o *Orchestrator) transition(ctx context.Context, to domain.MigrationState) error {
	o.mu.Lock()
	from := o.run.State
	if !CanTransition(from, to) {
		o.mu.Unlock()
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		o.log.Error("Rejected state transition", logger.Error(err))
		return err
	}
	o.run.State = to
	runID, alias := o.run.ID, o.run.SourceAlias
	o.mu.Unlock()

	o.log.Info("Migration state changed",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
	o.persist(ctx)
	o.emit(ctx, sse.NewMigrationStateEvent(runID, alias, string(from), string(to), o.deps.Clock.Now()))
	return nil
}

// emit publishes to the event stream. A full stream drops the event.
func (o *Orchestrator) emit(ctx context.Context, event sse.Event) {
	if o.deps.Events == nil {
		return
	}
	if err := o.deps.Events.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.log.Debug("Migration event not published", logger.String("event_type", event.Type), logger.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, to domain.MigrationState) {
	end := o.deps.Clock.Now()
	o.mu.Lock()
	o.run.EndTime = &end
	o.mu.Unlock()
	if err := o.transition(ctx, to); err != nil {
		return
	}
	run := o.Snapshot()
	o.deps.Metrics.Record(domain.MetricPoint{
		Name:       "migration_duration",
		Value:      end.Sub(run.StartTime).Seconds(),
		Unit:       "seconds",
		Timestamp:  end,
		Dimensions: map[string]string{"run_id": run.ID, "state": string(to)},
	})
}

func (o *Orchestrator) recordError(ctx context.Context, sev domain.Severity, msg string) {
	o.mu.Lock()
	entry := o.run.AddError(o.deps.Clock.Now(), sev, msg)
	runID := o.run.ID
	o.mu.Unlock()

	o.log.Warn("Migration error recorded",
		logger.String("phase", string(entry.Phase)),
		logger.String("severity", string(sev)),
		logger.String("message", msg),
	)
	if o.deps.Store == nil {
		return
	}
	storeCtx, cancel := o.storeContext(ctx)
	defer cancel()
	if err := o.deps.Store.AppendError(storeCtx, runID, entry); err != nil {
		o.log.Warn("Failed to persist migration error", logger.Error(err))
	}
}

func (o *Orchestrator) persist(ctx context.Context) {
	if o.deps.Store == nil {
		return
	}
	storeCtx, cancel := o.storeContext(ctx)
	defer cancel()
	if err := o.deps.Store.SaveRun(storeCtx, o.Snapshot()); err != nil {
		o.log.Warn("Failed to persist migration run", logger.Error(err))
	}
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StoreTimeout)
}

