package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/atom-ai-labs/cataloger/internal/record"
)

// ColumnType is one of the primitive column types the warehouse supports.
type ColumnType string

const (
	TypeString  ColumnType = "STRING"
	TypeInt64   ColumnType = "INT64"
	TypeFloat64 ColumnType = "FLOAT64"
	TypeBool    ColumnType = "BOOL"
)

// Column is one named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered sequence of columns.
type Schema []Column

// TableRef identifies a warehouse table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// FQN renders the fully-qualified table identifier.
func (r TableRef) FQN() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

// Existence is the tri-state result of a table metadata lookup. Only Absent
// may trigger table creation; Unknown propagates as a distinct failure so a
// transient lookup error never causes a blind create.
type Existence int

const (
	Unknown Existence = iota
	Exists
	Absent
)

// ErrNoData is returned when a write is attempted with an empty record list.
var ErrNoData = errors.New("no data to save")

// ErrExistenceUnknown is returned when the metadata lookup failed for a
// reason other than absence.
var ErrExistenceUnknown = errors.New("table existence could not be determined")

// Warehouse is the narrow storage collaborator interface.
type Warehouse interface {
	TableExists(ctx context.Context, ref TableRef) (Existence, error)
	CreateTable(ctx context.Context, ref TableRef, schema Schema) error
	InsertRows(ctx context.Context, ref TableRef, records []record.Record) error
	QueryAll(ctx context.Context, ref TableRef) ([]map[string]any, error)
}
