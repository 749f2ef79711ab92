package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// PostgresStore implements ExecutionStore and DeadLetterSink on top of
// PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib"). The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
//
// Trigger payloads, logs, and error details are stored as JSONB so they stay
// queryable by operator tooling; timestamps are BIGINT Unix nanoseconds to
// keep due-retry scans driver-independent.
type PostgresStore struct {
	db *sql.DB
}

var _ ExecutionStore = (*PostgresStore)(nil)

var _ DeadLetterSink = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database and
// returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			trigger_data JSONB,
			execution_log JSONB,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			error_details JSONB,
			next_retry_at BIGINT,
			is_retryable BOOLEAN NOT NULL DEFAULT FALSE,
			started_at BIGINT,
			completed_at BIGINT,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_retry
			ON executions (status, next_retry_at)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			execution_id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, exec *api.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		args...,
	)
	return err
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	args = append(args[1:], exec.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET workflow_id = $1, tenant_id = $2, status = $3, trigger_data = $4,
			execution_log = $5, retry_count = $6, last_error = $7,
			error_details = $8, next_retry_at = $9, is_retryable = $10,
			started_at = $11, completed_at = $12, duration_ms = $13
		WHERE id = $14`,
		args...,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrExecutionNotFound
	}

	return nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE id = $1`,
		id,
	)

	exec, err := scanSQLExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	var args []any
	var clauses []string

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	return s.queryExecutions(ctx, query, args...)
}

func (s *PostgresStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at`
	args := []any{string(api.StatusFailedPendingRetry), now.UnixNano()}

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryExecutions(ctx, query, args...)
}

func (s *PostgresStore) DeadLetter(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (execution_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (execution_id) DO NOTHING`,
		executionID, time.Now().UnixNano(),
	)
	return err
}

// DeadLetteredIDs returns the execution IDs recorded in the dead_letters
// table, oldest first.
func (s *PostgresStore) DeadLetteredIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id FROM dead_letters ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) queryExecutions(ctx context.Context, query string, args ...any) ([]*api.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.Execution
	for rows.Next() {
		exec, err := scanSQLExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}
