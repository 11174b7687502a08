package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// DefaultListLimit caps how many stored runs List merges in.
const DefaultListLimit = 100

var (
	// ErrMigrationInProgress is returned when an active run already uses the alias or target.
	ErrMigrationInProgress = errors.New("a migration is already in progress for this alias or target")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = domain.ErrRunNotFound
	// ErrRunCompleted is returned when rolling back a completed run.
	ErrRunCompleted = errors.New("migration run already completed")
	// ErrInvalidRequest is returned for malformed start requests.
	ErrInvalidRequest = errors.New("invalid migration request")
	// ErrManagerClosed is returned by Start after Shutdown.
	ErrManagerClosed = errors.New("migration manager is shut down")
)

// StartRequest names the alias to migrate and the indices involved.
type StartRequest struct {
	SourceAlias string `json:"source_alias" binding:"required"`
	SourceIndex string `json:"source_index" binding:"required"`
	TargetIndex string `json:"target_index" binding:"required"`
}

// Validate checks the request shape.
func (r StartRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.SourceAlias) == "":
		return fmt.Errorf("%w: source_alias is required", ErrInvalidRequest)
	case strings.TrimSpace(r.SourceIndex) == "":
		return fmt.Errorf("%w: source_index is required", ErrInvalidRequest)
	case strings.TrimSpace(r.TargetIndex) == "":
		return fmt.Errorf("%w: target_index is required", ErrInvalidRequest)
	case r.SourceIndex == r.TargetIndex:
		return fmt.Errorf("%w: source_index and target_index must differ", ErrInvalidRequest)
	case r.TargetIndex == r.SourceAlias:
		return fmt.Errorf("%w: target_index must not be the alias name", ErrInvalidRequest)
	}
	return nil
}

// Manager starts runs and is the control surface over them.
type Manager struct {
	deps Deps
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*Orchestrator
}

// NewManager creates a manager. Runs started through it live until they finish
// or Shutdown is called.
func NewManager(deps Deps, cfg Config) *Manager {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:   deps,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*Orchestrator),
	}
}

// Start validates req, registers a new run and executes it in the background.
func (m *Manager) Start(_ context.Context, req StartRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return "", ErrManagerClosed
	}
	for _, o := range m.runs {
		run := o.Snapshot()
		if run.State.IsTerminal() {
			continue
		}
		if run.SourceAlias == req.SourceAlias || run.Target.Name == req.TargetIndex || run.Source.Name == req.TargetIndex {
			return "", fmt.Errorf("%w: run %s", ErrMigrationInProgress, run.ID)
		}
	}

	run := &domain.MigrationRun{
		ID:           uuid.NewString(),
		SourceAlias:  req.SourceAlias,
		StagingAlias: req.SourceAlias + m.cfg.StagingSuffix,
		Source:       domain.NewIndexDescriptor(req.SourceIndex, req.SourceAlias, true),
		Target:       domain.NewIndexDescriptor(req.TargetIndex, req.SourceAlias, false),
		State:        domain.StateIdle,
		StartTime:    m.deps.Clock.Now(),
		Errors:       []domain.MigrationError{},
	}
	o := NewOrchestrator(run, m.deps, m.cfg)
	m.runs[run.ID] = o

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		final := o.Run(m.ctx)
		m.deps.Log.Info("Migration finished",
			logger.String("run_id", final.ID),
			logger.String("state", string(final.State)),
			logger.Int("errors", len(final.Errors)),
		)
	}()

	return run.ID, nil
}

// Progress returns the latest snapshot of a run, falling back to the store for
// runs this process does not hold.
func (m *Manager) Progress(ctx context.Context, id string) (domain.MigrationRun, error) {
	if o := m.lookup(id); o != nil {
		return o.Snapshot(), nil
	}
	return m.stored(ctx, id)
}

// Rollback aborts an in-flight run or re-applies the alias reversal of a failed one.
func (m *Manager) Rollback(ctx context.Context, id string) error {
	var run domain.MigrationRun
	if o := m.lookup(id); o != nil {
		if o.Signal("rollback requested by operator") {
			m.deps.Log.Info("Rollback requested", logger.String("run_id", id))
			return nil
		}
		run = o.Snapshot()
	} else {
		var err error
		if run, err = m.stored(ctx, id); err != nil {
			return err
		}
	}

	switch run.State {
	case domain.StateCompleted:
		return ErrRunCompleted
	case domain.StateRollingBack:
		return nil
	default:
		actions, err := RestoreAlias(ctx, m.deps.API, run, true)
		if err != nil {
			return err
		}
		m.deps.Log.Info("Alias reversal re-applied",
			logger.String("run_id", id),
			logger.Int("alias_actions", len(actions)),
		)
		return nil
	}
}

// SignalRollback asks every active run whose target is index and which has
// switched, or is switching, the alias to roll back.
func (m *Manager) SignalRollback(index, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.runs {
		run := o.Snapshot()
		if run.Target.Name != index {
			continue
		}
		if run.State != domain.StateSwitching && run.State != domain.StateMonitoring {
			continue
		}
		if o.Signal(reason) {
			m.deps.Log.Warn("Rollback signalled by health monitor",
				logger.String("run_id", id),
				logger.String("index", index),
				logger.String("reason", reason),
			)
		}
	}
}

// List returns the known runs, newest first.
func (m *Manager) List(ctx context.Context) ([]domain.MigrationRun, error) {
	m.mu.Lock()
	runs := make([]domain.MigrationRun, 0, len(m.runs))
	seen := make(map[string]bool, len(m.runs))
	for id, o := range m.runs {
		runs = append(runs, o.Snapshot())
		seen[id] = true
	}
	m.mu.Unlock()

	if m.deps.Store != nil {
		stored, err := m.deps.Store.ListRuns(ctx, DefaultListLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored runs: %w", err)
		}
		for _, run := range stored {
			if !seen[run.ID] {
				runs = append(runs, run)
			}
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs, nil
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels in-flight runs, which roll back, and waits for them until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for migrations: %w", ctx.Err())
	}
}

func (m *Manager) lookup(id string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *Manager) stored(ctx context.Context, id string) (domain.MigrationRun, error) {
	if m.deps.Store == nil {
		return domain.MigrationRun{}, ErrRunNotFound
	}
	run, err := m.deps.Store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return domain.MigrationRun{}, ErrRunNotFound
		}
		return domain.MigrationRun{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}
