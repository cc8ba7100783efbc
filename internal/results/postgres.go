package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS task_runs (
    run_id      TEXT PRIMARY KEY,
    task        TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    result      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    steps       INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS task_history (
    run_id      TEXT NOT NULL REFERENCES task_runs(run_id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL,
    action_type TEXT NOT NULL,
    details     JSONB NOT NULL,
    success     BOOLEAN NOT NULL,
    outcome     TEXT NOT NULL DEFAULT '',
    error_code  TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);`

const sqlInsertRun = `
INSERT INTO task_runs (run_id, task, success, result, error, steps, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO UPDATE SET
    success = EXCLUDED.success,
    result = EXCLUDED.result,
    error = EXCLUDED.error,
    steps = EXCLUDED.steps,
    finished_at = EXCLUDED.finished_at;`

const sqlDeleteHistory = `DELETE FROM task_history WHERE run_id = $1;`

const sqlInsertHistory = `
INSERT INTO task_history (run_id, seq, observed_at, action_type, details, success, outcome, error_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

// PostgresSink stores a run and its history rows in one transaction.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger
}

var _ Sink = (*PostgresSink)(nil)

// OpenPostgres connects to url, verifies the connection and creates the
// tables when missing.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	sink, err := NewPostgresSink(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an existing pool and verifies the connection.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSink{pool: pool, log: logger.Named("results.postgres")}, nil
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create results schema: %w", err)
	}
	return nil
}

// Save upserts the run row and replaces its history.
func (s *PostgresSink) Save(ctx context.Context, result *schemas.TaskResult) error {
	if result == nil {
		return fmt.Errorf("cannot save a nil result")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertRun,
		result.RunID, result.Task, result.Success, result.Result, result.Error,
		result.Steps, result.StartedAt.UTC(), result.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteHistory, result.RunID); err != nil {
		return fmt.Errorf("failed to clear history for run %s: %w", result.RunID, err)
	}

	for i, entry := range result.History {
		details, err := json.Marshal(entry.Action.Details)
		if err != nil {
			return fmt.Errorf("failed to encode action details: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlInsertHistory,
			result.RunID, i+1, entry.Timestamp.UTC(), string(entry.Action.Kind),
			details, entry.Success, entry.Result.Text(), string(entry.Result.Code),
		); err != nil {
			return fmt.Errorf("failed to insert history entry %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Saved task result.",
		zap.String("run_id", result.RunID),
		zap.Int("history_rows", len(result.History)),
	)
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
