package warehouse

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/record"
	"github.com/atom-ai-labs/cataloger/internal/telemetry"
)

const defaultSampleURL = "https://default.com"

// Writer reconciles a record batch with a concrete warehouse table: it
// resolves the table name, creates the table from an inferred schema when
// absent, and appends the rows. Rows carry no identity, so re-running the
// same batch duplicates them; deduplication is the caller's concern.
type Writer struct {
	Warehouse Warehouse
	Logger    *log.Logger
	Now       func() time.Time
}

// NewWriter builds a Writer over wh.
func NewWriter(wh Warehouse) *Writer {
	return &Writer{
		Warehouse: wh,
		Logger:    log.New(log.Writer(), "[WAREHOUSE] ", log.LstdFlags),
		Now:       time.Now,
	}
}

// Save ensures the target table exists and appends records to it, returning
// the resolved table reference. Empty input fails immediately with ErrNoData
// and causes no warehouse calls.
func (w *Writer) Save(ctx context.Context, records []record.Record, project, dataset, explicitTable string) (TableRef, error) {
	if len(records) == 0 {
		return TableRef{}, ErrNoData
	}
	logger := w.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[WAREHOUSE] ", log.LstdFlags)
	}

	table := strings.TrimSpace(explicitTable)
	if table == "" {
		now := time.Now()
		if w.Now != nil {
			now = w.Now()
		}
		table = SynthesizeTableName(records[0], now)
	}
	ref := TableRef{Project: project, Dataset: dataset, Table: table}

	existence, err := w.Warehouse.TableExists(ctx, ref)
	if err != nil {
		return TableRef{}, fmt.Errorf("%w: %s: %v", ErrExistenceUnknown, ref.FQN(), err)
	}
	switch existence {
	case Absent:
		schema := InferSchema(records[0])
		if err := w.Warehouse.CreateTable(ctx, ref, schema); err != nil {
			return TableRef{}, fmt.Errorf("create table %s: %w", ref.FQN(), err)
		}
		logger.Printf("created table %s with %d columns", ref.FQN(), len(schema))
	case Exists:
		// Appending to an existing table; the stored schema wins.
	default:
		return TableRef{}, fmt.Errorf("%w: %s", ErrExistenceUnknown, ref.FQN())
	}

	if err := w.Warehouse.InsertRows(ctx, ref, records); err != nil {
		return TableRef{}, fmt.Errorf("insert into %s: %w", ref.FQN(), err)
	}
	telemetry.RowsInserted.Add(float64(len(records)))
	logger.Printf("inserted %d rows into %s", len(records), ref.FQN())
	return ref, nil
}

// SynthesizeTableName builds the dynamic table name {YYYYMMDD}_{domain token}
// from the first record's reference URL. It checks url_ref, then url, then
// falls back to a default host. The token is the host with any www. prefix
// stripped, cut at the first dot.
func SynthesizeTableName(rec record.Record, now time.Time) string {
	sample := rec.StringValue("url_ref")
	if sample == "" {
		sample = rec.StringValue("url")
	}
	if sample == "" {
		sample = defaultSampleURL
	}
	host := ""
	if parsed, err := url.Parse(sample); err == nil {
		host = parsed.Hostname()
	}
	if host == "" {
		host = "default.com"
	}
	token := strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(token, '.'); i >= 0 {
		token = token[:i]
	}
	return now.Format("20060102") + "_" + token
}
