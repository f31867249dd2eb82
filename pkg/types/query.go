package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Query maps field names to expected values or structural conditions.
// Condition values and their matching rules:
//
//   - In:      membership test against a value set
//   - Range:   inclusive bounds test
//   - Pattern: substring test, or regexp test when the expression compiles
//   - nil:     the field is null or absent
//   - scalar:  exact equality after normalizing the stored value to the same
//     textual or typed representation
//
// Adapters either push these predicates into their native query dialect or
// fall back to a full scan using Match.
type Query map[string]any

// ByID builds the canonical single-identifier query.
func ByID(id int64) Query {
	return Query{FieldID: id}
}

// In is a membership condition: the stored value must equal one element.
type In []any

// Range is an inclusive bounds condition. Min or Max may be nil to leave the
// corresponding bound open. Bounds may be numeric, string, or time values.
type Range struct {
	Min any
	Max any
}

// Pattern is a substring or regular-expression condition. The expression is
// treated as a regexp when it compiles, and as a literal substring otherwise.
// Matching is case-insensitive.
type Pattern string

// Match reports whether the row satisfies every condition in the query.
// This is the shared full-scan implementation used by adapters without a
// native predicate dialect.
func Match(row Row, q Query) bool {
	for field, cond := range q {
		if !MatchValue(row[field], cond) {
			return false
		}
	}
	return true
}

// MatchValue applies one condition to one stored value using the tie-break
// rules documented on Query.
func MatchValue(stored, cond any) bool {
	switch c := cond.(type) {
	case nil:
		return stored == nil
	case In:
		for _, v := range c {
			if Equal(stored, v) {
				return true
			}
		}
		return false
	case Range:
		return matchRange(stored, c)
	case Pattern:
		return matchPattern(stored, string(c))
	default:
		return Equal(stored, cond)
	}
}

// Equal compares a stored value to an expected scalar, normalizing numeric,
// boolean, and time representations before falling back to textual equality.
func Equal(stored, expected any) bool {
	if stored == nil || expected == nil {
		return stored == nil && expected == nil
	}
	if sf, ok := AsFloat64(stored); ok {
		if ef, ok := numeric(expected); ok {
			return sf == ef
		}
	}
	if sb, ok := stored.(bool); ok {
		if eb, ok := AsBool(expected); ok {
			return sb == eb
		}
	}
	if st, ok := stored.(time.Time); ok {
		if et, ok := AsTime(expected); ok {
			return st.Equal(et)
		}
	}
	if et, ok := expected.(time.Time); ok {
		if st, ok := AsTime(stored); ok {
			return st.Equal(et)
		}
	}
	return text(stored) == text(expected)
}

// numeric is a stricter AsFloat64 used on the expected side of a comparison:
// strings are not coerced, so "1a" never equals 1.
func numeric(v any) (float64, bool) {
	switch v.(type) {
	case string:
		return 0, false
	default:
		return AsFloat64(v)
	}
}

func matchRange(stored any, r Range) bool {
	if stored == nil {
		return false
	}
	if sf, ok := AsFloat64(stored); ok {
		if r.Min != nil {
			min, ok := AsFloat64(r.Min)
			if !ok || sf < min {
				return false
			}
		}
		if r.Max != nil {
			max, ok := AsFloat64(r.Max)
			if !ok || sf > max {
				return false
			}
		}
		return true
	}
	if st, ok := stored.(time.Time); ok {
		if r.Min != nil {
			min, ok := AsTime(r.Min)
			if !ok || st.Before(min) {
				return false
			}
		}
		if r.Max != nil {
			max, ok := AsTime(r.Max)
			if !ok || st.After(max) {
				return false
			}
		}
		return true
	}
	s := text(stored)
	if r.Min != nil && s < text(r.Min) {
		return false
	}
	if r.Max != nil && s > text(r.Max) {
		return false
	}
	return true
}

func matchPattern(stored any, expr string) bool {
	if stored == nil {
		return false
	}
	s := text(stored)
	if re, err := regexp.Compile("(?i)" + expr); err == nil {
		return re.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(expr))
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
