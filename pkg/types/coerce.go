package types

import "time"

// Coerce normalizes a stored value to the in-memory representation of the
// declared attribute type: int64, float64, bool, time.Time, string, []any, or
// map[string]any. Values that cannot be coerced are returned unchanged so
// that nothing is silently lost; Equal still compares them textually.
func Coerce(t AttrType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case Int:
		if n, ok := AsInt64(v); ok {
			return n
		}
	case Float:
		if f, ok := AsFloat64(v); ok {
			return f
		}
	case Bool:
		if b, ok := AsBool(v); ok {
			return b
		}
	case Time, Date:
		if ts, ok := AsTime(v); ok {
			return ts
		}
	case String, Text:
		return text(v)
	case List:
		if l, ok := v.([]any); ok {
			return l
		}
	case Map:
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return v
}

// CoerceRow normalizes every declared field of a row in place per the schema
// and returns it. Undeclared fields pass through untouched.
func CoerceRow(row Row, schema *Schema) Row {
	for _, attr := range schema.Attributes {
		if v, ok := row[attr.Name]; ok {
			row[attr.Name] = Coerce(attr.Type, v)
		}
	}
	return row
}

// FormatValue renders a normalized value for backends that store text:
// times as RFC3339, everything else unchanged.
func FormatValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}
