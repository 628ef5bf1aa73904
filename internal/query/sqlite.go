package query

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orrn/labelflow/internal/faults"
)

// DataQuery is the lookup capability the resolution engine depends on:
// given fully substituted SQL, return one row or a list of rows as
// column-name/value maps. Implementations wrap driver failures in
// faults.ErrDataQuery.
type DataQuery interface {
	QueryRow(ctx context.Context, sqlText string) (map[string]string, error)
	QueryList(ctx context.Context, sqlText string) ([]map[string]string, error)
}

// SQLite runs lookups against a local SQLite article database. The
// database is the customer's, read-only from our side.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) QueryRow(ctx context.Context, sqlText string) (map[string]string, error) {
	rows, err := s.QueryList(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SQLite) QueryList(ctx context.Context, sqlText string) ([]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrDataQuery, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrDataQuery, err)
	}

	var result []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("%w: %v", faults.ErrDataQuery, err)
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if values[i].Valid {
				row[col] = values[i].String
			} else {
				row[col] = ""
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrDataQuery, err)
	}

	return result, nil
}
