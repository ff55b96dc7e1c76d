package warehouse

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/record"
)

// fakeWarehouse keeps created tables and inserted rows in memory.
type fakeWarehouse struct {
	tables      map[string]Schema
	rows        map[string][]record.Record
	lookupErr   error
	createCalls int
	insertCalls int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: map[string]Schema{}, rows: map[string][]record.Record{}}
}

func (f *fakeWarehouse) TableExists(ctx context.Context, ref TableRef) (Existence, error) {
	if f.lookupErr != nil {
		return Unknown, f.lookupErr
	}
	if _, ok := f.tables[ref.FQN()]; ok {
		return Exists, nil
	}
	return Absent, nil
}

func (f *fakeWarehouse) CreateTable(ctx context.Context, ref TableRef, schema Schema) error {
	f.createCalls++
	f.tables[ref.FQN()] = schema
	return nil
}

func (f *fakeWarehouse) InsertRows(ctx context.Context, ref TableRef, records []record.Record) error {
	f.insertCalls++
	f.rows[ref.FQN()] = append(f.rows[ref.FQN()], records...)
	return nil
}

func (f *fakeWarehouse) QueryAll(ctx context.Context, ref TableRef) ([]map[string]any, error) {
	var out []map[string]any
	for _, rec := range f.rows[ref.FQN()] {
		row := map[string]any{}
		for _, fl := range rec.Fields() {
			row[fl.Name] = fl.Value
		}
		out = append(out, row)
	}
	return out, nil
}

func quietWriter(wh Warehouse, now time.Time) *Writer {
	return &Writer{Warehouse: wh, Logger: log.New(io.Discard, "", 0), Now: func() time.Time { return now }}
}

func carRecord() record.Record {
	return record.FromPairs(
		record.Field{Name: "model", Value: "Hilux"},
		record.Field{Name: "price", Value: 15999.5},
		record.Field{Name: "url_ref", Value: "https://www.example.com/cars/123"},
	)
}

func TestSaveEmptyInputFailsWithoutSideEffects(t *testing.T) {
	fake := newFakeWarehouse()
	w := quietWriter(fake, time.Now())
	_, err := w.Save(context.Background(), nil, "proj", "ds", "")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if fake.createCalls != 0 || fake.insertCalls != 0 {
		t.Fatalf("side effects on empty input: create=%d insert=%d", fake.createCalls, fake.insertCalls)
	}
}

func TestSaveSynthesizesTableName(t *testing.T) {
	fake := newFakeWarehouse()
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	w := quietWriter(fake, now)
	ref, err := w.Save(context.Background(), []record.Record{carRecord()}, "proj", "ds", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ref.Table != "20240305_example" {
		t.Fatalf("table = %q, want 20240305_example", ref.Table)
	}
	if ref.FQN() != "proj.ds.20240305_example" {
		t.Fatalf("fqn = %q", ref.FQN())
	}
}

func TestSaveExplicitTableWins(t *testing.T) {
	fake := newFakeWarehouse()
	w := quietWriter(fake, time.Now())
	ref, err := w.Save(context.Background(), []record.Record{carRecord()}, "proj", "ds", "inventory")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ref.Table != "inventory" {
		t.Fatalf("table = %q", ref.Table)
	}
}

func TestSaveCreatesAbsentTableFromInferredSchema(t *testing.T) {
	fake := newFakeWarehouse()
	w := quietWriter(fake, time.Now())
	ref, err := w.Save(context.Background(), []record.Record{carRecord()}, "proj", "ds", "cars")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	schema, ok := fake.tables[ref.FQN()]
	if !ok {
		t.Fatalf("table not created")
	}
	if len(schema) != 3 || schema[0].Name != "model" || schema[1].Type != TypeFloat64 {
		t.Fatalf("unexpected schema: %v", schema)
	}
}

func TestSaveAppendsDuplicatesOnRerun(t *testing.T) {
	fake := newFakeWarehouse()
	w := quietWriter(fake, time.Now())
	records := []record.Record{carRecord(), carRecord()}

	ref, err := w.Save(context.Background(), records, "proj", "ds", "cars")
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := w.Save(context.Background(), records, "proj", "ds", "cars"); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if fake.createCalls != 1 {
		t.Fatalf("create calls = %d, want 1", fake.createCalls)
	}
	if got := len(fake.rows[ref.FQN()]); got != 4 {
		t.Fatalf("row count = %d, want 4 (re-running must duplicate rows)", got)
	}
}

func TestSaveUnknownExistenceIsDistinctFailure(t *testing.T) {
	fake := newFakeWarehouse()
	fake.lookupErr = errors.New("metadata endpoint 503")
	w := quietWriter(fake, time.Now())
	_, err := w.Save(context.Background(), []record.Record{carRecord()}, "proj", "ds", "cars")
	if !errors.Is(err, ErrExistenceUnknown) {
		t.Fatalf("err = %v, want ErrExistenceUnknown", err)
	}
	if fake.createCalls != 0 || fake.insertCalls != 0 {
		t.Fatalf("lookup failure must not trigger create/insert: create=%d insert=%d", fake.createCalls, fake.insertCalls)
	}
}

func TestSynthesizeTableNameFallbacks(t *testing.T) {
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	viaURL := record.FromPairs(record.Field{Name: "url", Value: "https://cars.dealer.co/1"})
	if got := SynthesizeTableName(viaURL, now); got != "20240305_cars" {
		t.Fatalf("url fallback = %q", got)
	}

	noRef := record.FromPairs(record.Field{Name: "model", Value: "x"})
	if got := SynthesizeTableName(noRef, now); got != "20240305_default" {
		t.Fatalf("default fallback = %q", got)
	}
}
