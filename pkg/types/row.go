package types

import (
	"strconv"
	"time"
)

// Reserved row fields present on every persisted record.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"

	// FieldDocID holds the backend-native document id on backends whose
	// identity is not a sequential integer (document stores, search indices).
	FieldDocID = "_docid"
)

// Row is one serialized record: a flat field to value map. The id field is an
// int64 once the record has been persisted.
type Row map[string]any

// ID returns the sequential integer id of the row, or 0 when unset.
func (r Row) ID() int64 {
	id, _ := AsInt64(r[FieldID])
	return id
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AsInt64 coerces the common integer representations that backends hand back
// (JSON float64, SQL int64, CSV string) into an int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsFloat64 coerces numeric representations into a float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsTime coerces a stored timestamp (time.Time or RFC3339 string) into a
// time.Time.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339Nano, t)
		}
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// AsBool coerces stored boolean representations (bool, SQL 0/1, "true").
func AsBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}
