package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// runRow is one migration_runs row.
type runRow struct {
	ID                   string       `db:"id"`
	SourceAlias          string       `db:"source_alias"`
	StagingAlias         string       `db:"staging_alias"`
	SourceIndex          string       `db:"source_index"`
	SourceVersion        int          `db:"source_version"`
	SourceIsProduction   bool         `db:"source_is_production"`
	TargetIndex          string       `db:"target_index"`
	TargetVersion        int          `db:"target_version"`
	TargetIsProduction   bool         `db:"target_is_production"`
	State                string       `db:"state"`
	StartTime            time.Time    `db:"start_time"`
	EndTime              sql.NullTime `db:"end_time"`
	TotalDocuments       int64        `db:"total_documents"`
	ProcessedDocuments   int64        `db:"processed_documents"`
	FailedDocuments      int64        `db:"failed_documents"`
	CurrentThroughput    float64      `db:"current_throughput"`
	EstimatedRemainingMS int64        `db:"estimated_time_remaining_ms"`
	ReindexTaskID        string       `db:"reindex_task_id"`
}

// errorRow is one migration_errors row.
type errorRow struct {
	RunID      string    `db:"run_id"`
	OccurredAt time.Time `db:"occurred_at"`
	Phase      string    `db:"phase"`
	Severity   string    `db:"severity"`
	Message    string    `db:"message"`
}

const runColumns = `id, source_alias, staging_alias, source_index, source_version, source_is_production,
		target_index, target_version, target_is_production, state, start_time, end_time,
		total_documents, processed_documents, failed_documents, current_throughput,
		estimated_time_remaining_ms, reindex_task_id`

func toRow(run domain.MigrationRun) runRow {
	row := runRow{
		ID:                   run.ID,
		SourceAlias:          run.SourceAlias,
		StagingAlias:         run.StagingAlias,
		SourceIndex:          run.Source.Name,
		SourceVersion:        run.Source.Version,
		SourceIsProduction:   run.Source.IsProduction,
		TargetIndex:          run.Target.Name,
		TargetVersion:        run.Target.Version,
		TargetIsProduction:   run.Target.IsProduction,
		State:                string(run.State),
		StartTime:            run.StartTime,
		TotalDocuments:       run.TotalDocuments,
		ProcessedDocuments:   run.ProcessedDocuments,
		FailedDocuments:      run.FailedDocuments,
		CurrentThroughput:    run.CurrentThroughput,
		EstimatedRemainingMS: run.EstimatedTimeRemaining.Milliseconds(),
		ReindexTaskID:        run.ReindexTaskID,
	}
	if run.EndTime != nil {
		row.EndTime = sql.NullTime{Time: *run.EndTime, Valid: true}
	}
	return row
}

func (r runRow) toDomain() domain.MigrationRun {
	run := domain.MigrationRun{
		ID:           r.ID,
		SourceAlias:  r.SourceAlias,
		StagingAlias: r.StagingAlias,
		Source: domain.IndexDescriptor{
			Name:         r.SourceIndex,
			Alias:        r.SourceAlias,
			Version:      r.SourceVersion,
			IsProduction: r.SourceIsProduction,
		},
		Target: domain.IndexDescriptor{
			Name:         r.TargetIndex,
			Alias:        r.SourceAlias,
			Version:      r.TargetVersion,
			IsProduction: r.TargetIsProduction,
		},
		State:                  domain.MigrationState(r.State),
		StartTime:              r.StartTime,
		TotalDocuments:         r.TotalDocuments,
		ProcessedDocuments:     r.ProcessedDocuments,
		FailedDocuments:        r.FailedDocuments,
		CurrentThroughput:      r.CurrentThroughput,
		EstimatedTimeRemaining: time.Duration(r.EstimatedRemainingMS) * time.Millisecond,
		ReindexTaskID:          r.ReindexTaskID,
		Errors:                 []domain.MigrationError{},
	}
	if r.EndTime.Valid {
		end := r.EndTime.Time
		run.EndTime = &end
	}
	return run
}

func (e errorRow) toDomain() domain.MigrationError {
	return domain.MigrationError{
		Timestamp: e.OccurredAt,
		Phase:     domain.MigrationState(e.Phase),
		Message:   e.Message,
		Severity:  domain.Severity(e.Severity),
	}
}

// SaveRun inserts or updates a migration run.
func (c *Connection) SaveRun(ctx context.Context, run domain.MigrationRun) error {
	query := `
		INSERT INTO migration_runs (` + runColumns + `)
		VALUES (:id, :source_alias, :staging_alias, :source_index, :source_version, :source_is_production,
			:target_index, :target_version, :target_is_production, :state, :start_time, :end_time,
			:total_documents, :processed_documents, :failed_documents, :current_throughput,
			:estimated_time_remaining_ms, :reindex_task_id)
		ON CONFLICT (id) DO UPDATE SET
			source_is_production = EXCLUDED.source_is_production,
			target_is_production = EXCLUDED.target_is_production,
			state = EXCLUDED.state,
			end_time = EXCLUDED.end_time,
			total_documents = EXCLUDED.total_documents,
			processed_documents = EXCLUDED.processed_documents,
			failed_documents = EXCLUDED.failed_documents,
			current_throughput = EXCLUDED.current_throughput,
			estimated_time_remaining_ms = EXCLUDED.estimated_time_remaining_ms,
			reindex_task_id = EXCLUDED.reindex_task_id,
			updated_at = NOW()
	`

	if _, err := c.DB.NamedExecContext(ctx, query, toRow(run)); err != nil {
		return fmt.Errorf("failed to save migration run: %w", err)
	}
	return nil
}

// AppendError adds an entry to a run's error log.
func (c *Connection) AppendError(ctx context.Context, runID string, entry domain.MigrationError) error {
	query := `
		INSERT INTO migration_errors (run_id, occurred_at, phase, severity, message)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := c.DB.ExecContext(ctx, query,
		runID,
		entry.Timestamp,
		string(entry.Phase),
		string(entry.Severity),
		entry.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append migration error: %w", err)
	}
	return nil
}

// GetRun loads a run and its error log.
func (c *Connection) GetRun(ctx context.Context, id string) (domain.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE id = $1`

	var row runRow
	if err := c.DB.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MigrationRun{}, domain.ErrRunNotFound
		}
		return domain.MigrationRun{}, fmt.Errorf("failed to get migration run: %w", err)
	}

	run := row.toDomain()
	byRun, err := c.errorsFor(ctx, []string{id})
	if err != nil {
		return domain.MigrationRun{}, err
	}
	if entries, ok := byRun[id]; ok {
		run.Errors = entries
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, with their error logs.
func (c *Connection) ListRuns(ctx context.Context, limit int) ([]domain.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs ORDER BY start_time DESC LIMIT $1`

	var rows []runRow
	if err := c.DB.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list migration runs: %w", err)
	}
	if len(rows) == 0 {
		return []domain.MigrationRun{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	byRun, err := c.errorsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	runs := make([]domain.MigrationRun, 0, len(rows))
	for _, r := range rows {
		run := r.toDomain()
		if entries, ok := byRun[r.ID]; ok {
			run.Errors = entries
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (c *Connection) errorsFor(ctx context.Context, runIDs []string) (map[string][]domain.MigrationError, error) {
	query := `
		SELECT run_id, occurred_at, phase, severity, message
		FROM migration_errors
		WHERE run_id = ANY($1)
		ORDER BY run_id, id
	`

	var rows []errorRow
	if err := c.DB.SelectContext(ctx, &rows, query, pq.Array(runIDs)); err != nil {
		return nil, fmt.Errorf("failed to load migration errors: %w", err)
	}

	byRun := make(map[string][]domain.MigrationError, len(runIDs))
	for _, r := range rows {
		byRun[r.RunID] = append(byRun[r.RunID], r.toDomain())
	}
	return byRun, nil
}
