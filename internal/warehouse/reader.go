package warehouse

import (
	"context"
	"encoding/json"
	"log"
)

// Reader runs full-table read-backs for the chat tool layer. Failures are
// returned as a JSON error payload instead of an error so that a tool call
// degrades into model-visible text rather than crashing the turn.
type Reader struct {
	Warehouse Warehouse
	Logger    *log.Logger
}

// NewReader builds a Reader over wh.
func NewReader(wh Warehouse) *Reader {
	return &Reader{
		Warehouse: wh,
		Logger:    log.New(log.Writer(), "[READER] ", log.LstdFlags),
	}
}

// ReadAll returns every row of the table serialized as a JSON array, or a
// {"error": ...} payload on any failure.
func (r *Reader) ReadAll(ctx context.Context, ref TableRef) string {
	logger := r.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[READER] ", log.LstdFlags)
	}
	rows, err := r.Warehouse.QueryAll(ctx, ref)
	if err != nil {
		logger.Printf("query of %s failed: %v", ref.FQN(), err)
		return errorPayload(err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		logger.Printf("serializing rows of %s failed: %v", ref.FQN(), err)
		return errorPayload(err)
	}
	logger.Printf("read %d rows from %s", len(rows), ref.FQN())
	return string(data)
}

func errorPayload(err error) string {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return `{"error":"query failed"}`
	}
	return string(data)
}
