package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TableMutation is a generic single-table data mutation.
type TableMutation struct {
	Table     string
	Operation string // "insert", "update", or "delete"
	Data      map[string]any
	Filter    map[string]any // flat equality map, ANDed
}

// TableStore applies generic data mutations for database_query actions.
type TableStore interface {
	Mutate(ctx context.Context, m TableMutation) (rowsAffected int64, err error)
}

// NewDatabaseHandler returns the handler for database_query actions.
// Required config: table, operation. Optional: data (insert/update),
// filter (update/delete).
func NewDatabaseHandler(store TableStore) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		table, err := stringField("database_query", config, "table")
		if err != nil {
			return nil, err
		}
		operation, err := stringField("database_query", config, "operation")
		if err != nil {
			return nil, err
		}

		m := TableMutation{
			Table:     table,
			Operation: operation,
			Data:      mapField(config, "data"),
			Filter:    mapField(config, "filter"),
		}

		affected, err := store.Mutate(ctx, m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": operation, "table": table, "rows_affected": affected}, nil
	})
}

// SQLTableStore implements TableStore against a database/sql database.
//
// PositionalDollar selects "$n" placeholders (PostgreSQL); the default is
// "?" (SQLite, MySQL). Table and column names are restricted to plain
// identifiers since they are interpolated into SQL.
type SQLTableStore struct {
	DB               *sql.DB
	PositionalDollar bool
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s *SQLTableStore) placeholder(n int) string {
	if s.PositionalDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLTableStore) Mutate(ctx context.Context, m TableMutation) (int64, error) {
	if !identPattern.MatchString(m.Table) {
		return 0, fmt.Errorf("database_query: invalid table name %q", m.Table)
	}

	var (
		query string
		args  []any
		err   error
	)
	switch m.Operation {
	case "insert":
		query, args, err = s.buildInsert(m)
	case "update":
		query, args, err = s.buildUpdate(m)
	case "delete":
		query, args, err = s.buildDelete(m)
	default:
		return 0, fmt.Errorf("database_query: invalid operation %q", m.Operation)
	}
	if err != nil {
		return 0, err
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// sortedKeys keeps generated SQL deterministic.
func sortedKeys(m map[string]any) ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !identPattern.MatchString(k) {
			return nil, fmt.Errorf("database_query: invalid column name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *SQLTableStore) buildInsert(m TableMutation) (string, []any, error) {
	if len(m.Data) == 0 {
		return "", nil, fmt.Errorf("database_query: invalid config: insert requires data")
	}
	keys, err := sortedKeys(m.Data)
	if err != nil {
		return "", nil, err
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = s.placeholder(i + 1)
		args[i] = m.Data[k]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.Table, strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

func (s *SQLTableStore) buildUpdate(m TableMutation) (string, []any, error) {
	if len(m.Data) == 0 {
		return "", nil, fmt.Errorf("database_query: invalid config: update requires data")
	}
	if len(m.Filter) == 0 {
		return "", nil, fmt.Errorf("database_query: invalid config: update requires a filter")
	}

	dataKeys, err := sortedKeys(m.Data)
	if err != nil {
		return "", nil, err
	}
	filterKeys, err := sortedKeys(m.Filter)
	if err != nil {
		return "", nil, err
	}

	var args []any
	sets := make([]string, len(dataKeys))
	for i, k := range dataKeys {
		args = append(args, m.Data[k])
		sets[i] = fmt.Sprintf("%s = %s", k, s.placeholder(len(args)))
	}
	wheres := make([]string, len(filterKeys))
	for i, k := range filterKeys {
		args = append(args, m.Filter[k])
		wheres[i] = fmt.Sprintf("%s = %s", k, s.placeholder(len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		m.Table, strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	return query, args, nil
}

func (s *SQLTableStore) buildDelete(m TableMutation) (string, []any, error) {
	if len(m.Filter) == 0 {
		return "", nil, fmt.Errorf("database_query: invalid config: delete requires a filter")
	}
	filterKeys, err := sortedKeys(m.Filter)
	if err != nil {
		return "", nil, err
	}

	var args []any
	wheres := make([]string, len(filterKeys))
	for i, k := range filterKeys {
		args = append(args, m.Filter[k])
		wheres[i] = fmt.Sprintf("%s = %s", k, s.placeholder(len(args)))
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", m.Table, strings.Join(wheres, " AND "))
	return query, args, nil
}
