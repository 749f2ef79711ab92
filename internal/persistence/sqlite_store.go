package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// SQLiteStore implements ExecutionStore and DeadLetterSink on top of SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the driver,
// e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Timestamps are stored as Unix nanoseconds so due-retry scans are a plain
// integer comparison.
type SQLiteStore struct {
	db *sql.DB
}

var _ ExecutionStore = (*SQLiteStore)(nil)

var _ DeadLetterSink = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			trigger_data BLOB,
			execution_log BLOB,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			error_details BLOB,
			next_retry_at INTEGER,
			is_retryable INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER,
			completed_at INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_retry
			ON executions (status, next_retry_at)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			execution_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const executionColumns = `id, workflow_id, tenant_id, status, trigger_data, execution_log,
	retry_count, last_error, error_details, next_retry_at, is_retryable,
	started_at, completed_at, duration_ms`

func (s *SQLiteStore) CreateExecution(ctx context.Context, exec *api.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return err
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	// Move id to the end for the WHERE clause.
	args = append(args[1:], exec.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET workflow_id = ?, tenant_id = ?, status = ?, trigger_data = ?,
			execution_log = ?, retry_count = ?, last_error = ?,
			error_details = ?, next_retry_at = ?, is_retryable = ?,
			started_at = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?`,
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

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE id = ?`,
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

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	var args []any
	var clauses []string

	if filter.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	return s.queryExecutions(ctx, query, args...)
}

func (s *SQLiteStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		ORDER BY next_retry_at`
	args := []any{string(api.StatusFailedPendingRetry), now.UnixNano()}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryExecutions(ctx, query, args...)
}

func (s *SQLiteStore) DeadLetter(ctx context.Context, executionID string) error {
	// Idempotent: a second hand-off for the same execution is a no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (execution_id, created_at)
		VALUES (?, ?)
		ON CONFLICT (execution_id) DO NOTHING`,
		executionID, time.Now().UnixNano(),
	)
	return err
}

// DeadLetteredIDs returns the execution IDs recorded in the dead_letters
// table, oldest first.
func (s *SQLiteStore) DeadLetteredIDs(ctx context.Context) ([]string, error) {
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

func (s *SQLiteStore) queryExecutions(ctx context.Context, query string, args ...any) ([]*api.Execution, error) {
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

// executionArgs flattens an execution into the column order of
// executionColumns.
func executionArgs(exec *api.Execution) ([]any, error) {
	trigger, err := EncodeJSON(exec.TriggerData)
	if err != nil {
		return nil, err
	}
	log, err := EncodeJSON(exec.ExecutionLog)
	if err != nil {
		return nil, err
	}
	details, err := EncodeJSON(exec.ErrorDetails)
	if err != nil {
		return nil, err
	}

	return []any{
		exec.ID,
		exec.WorkflowID,
		exec.TenantID,
		string(exec.Status),
		trigger,
		log,
		exec.RetryCount,
		exec.LastError,
		details,
		nanosOrNil(exec.NextRetryAt),
		exec.IsRetryable,
		nanosOrNil(exec.StartedAt),
		nanosOrNil(exec.CompletedAt),
		exec.DurationMS,
	}, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLExecution(row sqlScanner) (*api.Execution, error) {
	var (
		exec                             api.Execution
		statusStr                        string
		trigger, log, details            []byte
		nextRetry, startedAt, completedAt sql.NullInt64
	)

	if err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.TenantID,
		&statusStr,
		&trigger,
		&log,
		&exec.RetryCount,
		&exec.LastError,
		&details,
		&nextRetry,
		&exec.IsRetryable,
		&startedAt,
		&completedAt,
		&exec.DurationMS,
	); err != nil {
		return nil, err
	}

	exec.Status = api.Status(statusStr)

	triggerVal, err := DecodeJSON[map[string]any](trigger)
	if err != nil {
		return nil, err
	}
	exec.TriggerData = triggerVal

	logVal, err := DecodeJSON[[]api.StepResult](log)
	if err != nil {
		return nil, err
	}
	exec.ExecutionLog = logVal

	detailsVal, err := DecodeJSON[*api.ErrorDetails](details)
	if err != nil {
		return nil, err
	}
	exec.ErrorDetails = detailsVal

	exec.NextRetryAt = timeOrNil(nextRetry)
	exec.StartedAt = timeOrNil(startedAt)
	exec.CompletedAt = timeOrNil(completedAt)

	return &exec, nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
