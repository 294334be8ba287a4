package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brcamerge/brcamerge/internal/table"
)

// SQLiteWriter stores the unified table in a SQLite database file. Every
// column is TEXT; absent values are NULL.
type SQLiteWriter struct {
	db    *sql.DB
	table string
}

// NewSQLiteWriter opens (creating if needed) the database at path.
func NewSQLiteWriter(ctx context.Context, path, tableName string) (*SQLiteWriter, error) {
	if tableName == "" {
		tableName = "unified"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", path, err)
	}
	return &SQLiteWriter{db: db, table: tableName}, nil
}

func (s *SQLiteWriter) Name() string { return "sqlite" }

// Write drops and recreates the table, then inserts every row in one
// transaction.
func (s *SQLiteWriter) Write(ctx context.Context, t *table.Table) (int64, error) {
	cols := t.Columns()
	quoted := make([]string, len(cols))
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		defs[i] = quoted[i] + " TEXT"
		marks[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning sqlite transaction: %w", err)
	}
	defer tx.Rollback()

	name := quoteIdent(s.table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("dropping %s: %w", s.table, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("creating %s: %w", s.table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i := 0; i < t.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, cells(t.Row(i))...); err != nil {
			return n, fmt.Errorf("inserting row %d: %w", i+1, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sqlite transaction: %w", err)
	}
	return n, nil
}

func (s *SQLiteWriter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", s.table, err)
	}
	return n, nil
}

// CountDistinct returns the number of distinct non-NULL values in a column.
func (s *SQLiteWriter) CountDistinct(ctx context.Context, column string) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoteIdent(column), quoteIdent(s.table))
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting distinct %s: %w", column, err)
	}
	return n, nil
}

func (s *SQLiteWriter) Close(_ context.Context) error {
	return s.db.Close()
}
