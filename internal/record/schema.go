package record

import (
	"fmt"
	"strings"
)

// DefaultNumericField is the field that extraction prompts hint as numeric
// when the caller does not designate one.
const DefaultNumericField = "price"

// FieldSchema is the caller-supplied set of fields a successful extraction
// must populate. Exactly one field carries a numeric type hint; the rest are
// textual.
type FieldSchema struct {
	Fields       []string
	NumericField string
}

// NewFieldSchema builds a FieldSchema over fields. When numeric is empty the
// default numeric field name is used.
func NewFieldSchema(fields []string, numeric string) FieldSchema {
	if strings.TrimSpace(numeric) == "" {
		numeric = DefaultNumericField
	}
	return FieldSchema{Fields: fields, NumericField: numeric}
}

// Validate reports an error naming the first schema field that is missing or
// empty in rec. A record passing Validate has every recognized field present
// and populated.
func (s FieldSchema) Validate(rec Record) error {
	for _, name := range s.Fields {
		v, ok := rec.Get(name)
		if !ok || v == nil {
			return fmt.Errorf("missing field %q", name)
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return fmt.Errorf("empty field %q", name)
		}
	}
	return nil
}
