package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/atom-ai-labs/cataloger/internal/record"
)

// Postgres implements Warehouse on a Postgres database. The dataset maps to
// a Postgres schema, created on demand; tables are created dynamically from
// inferred schemas.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Close releases the underlying pool.
func (p *Postgres) Close() error { return p.db.Close() }

func qualified(ref TableRef) string {
	return pq.QuoteIdentifier(ref.Dataset) + "." + pq.QuoteIdentifier(ref.Table)
}

// TableExists looks the table up in the catalog. A lookup failure yields
// Unknown, never Absent.
func (p *Postgres) TableExists(ctx context.Context, ref TableRef) (Existence, error) {
	var regclass sql.NullString
	err := p.db.QueryRowContext(ctx, "SELECT to_regclass($1)", qualified(ref)).Scan(&regclass)
	if err != nil {
		return Unknown, fmt.Errorf("lookup %s: %w", ref.FQN(), err)
	}
	if regclass.Valid {
		return Exists, nil
	}
	return Absent, nil
}

func sqlType(t ColumnType) string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE PRECISION"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// CreateTable creates the dataset schema if needed and the table with the
// given columns, in order.
func (p *Postgres) CreateTable(ctx context.Context, ref TableRef, schema Schema) error {
	if _, err := p.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(ref.Dataset)); err != nil {
		return fmt.Errorf("create schema %s: %w", ref.Dataset, err)
	}
	cols := make([]string, 0, len(schema))
	for _, col := range schema {
		cols = append(cols, pq.QuoteIdentifier(col.Name)+" "+sqlType(col.Type))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", qualified(ref), strings.Join(cols, ", "))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", ref.FQN(), err)
	}
	return nil
}

// InsertRows appends records as new rows. Each row is inserted with its own
// column list, so records need not be uniform in keys; missing columns are
// left NULL. No idempotency key is attached.
func (p *Postgres) InsertRows(ctx context.Context, ref TableRef, records []record.Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, rec := range records {
		fields := rec.Fields()
		if len(fields) == 0 {
			continue
		}
		cols := make([]string, 0, len(fields))
		marks := make([]string, 0, len(fields))
		args := make([]any, 0, len(fields))
		for j, f := range fields {
			cols = append(cols, pq.QuoteIdentifier(f.Name))
			marks = append(marks, fmt.Sprintf("$%d", j+1))
			args = append(args, sqlValue(f.Value))
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			qualified(ref), strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i, ref.FQN(), err)
		}
	}
	return tx.Commit()
}

// sqlValue maps record values to driver values. Nested records and arrays
// land in TEXT columns as JSON.
func sqlValue(v any) any {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// QueryAll runs an unfiltered full-table read and returns one field-mapping
// per row.
func (p *Postgres) QueryAll(ctx context.Context, ref TableRef) ([]map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT * FROM "+qualified(ref))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ref.FQN(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
