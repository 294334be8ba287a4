package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/brcamerge/brcamerge/internal/table"
)

// PostgresWriter stores the unified table in PostgreSQL using COPY.
type PostgresWriter struct {
	conn  *pgx.Conn
	ident pgx.Identifier
}

// NewPostgresWriter connects to PostgreSQL. tableName may be schema
// qualified ("public.unified").
func NewPostgresWriter(ctx context.Context, connectionString, tableName string) (*PostgresWriter, error) {
	if tableName == "" {
		tableName = "unified"
	}
	conn, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return &PostgresWriter{conn: conn, ident: splitQualified(tableName)}, nil
}

func splitQualified(name string) pgx.Identifier {
	if schema, rel, ok := strings.Cut(name, "."); ok {
		return pgx.Identifier{schema, rel}
	}
	return pgx.Identifier{name}
}

func (p *PostgresWriter) Name() string { return "postgres" }

// Write recreates the table with TEXT columns and copies every row in one
// transaction.
func (p *PostgresWriter) Write(ctx context.Context, t *table.Table) (int64, error) {
	cols := t.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}
	name := p.ident.Sanitize()

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("dropping %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("creating %s: %w", name, err)
	}

	rows := make([][]any, t.Len())
	for i := range rows {
		rows[i] = cells(t.Row(i))
	}
	n, err := tx.CopyFrom(ctx, p.ident, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copying into %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return n, nil
}

func (p *PostgresWriter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+p.ident.Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

func (p *PostgresWriter) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
