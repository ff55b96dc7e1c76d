package warehouse

import "github.com/atom-ai-labs/cataloger/internal/record"

// InferSchema derives an ordered column schema from one sample record.
// Inference is first-sample-wins: it runs once at table creation and is
// never reconciled against later rows. Null, nested and collection values
// fall back to STRING.
func InferSchema(rec record.Record) Schema {
	fields := rec.Fields()
	schema := make(Schema, 0, len(fields))
	for _, f := range fields {
		schema = append(schema, Column{Name: f.Name, Type: inferType(f.Value)})
	}
	return schema
}

func inferType(v any) ColumnType {
	switch v.(type) {
	case bool:
		return TypeBool
	case int64:
		return TypeInt64
	case float64:
		return TypeFloat64
	case string:
		return TypeString
	default:
		return TypeString
	}
}
