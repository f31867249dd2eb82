package database

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Full-scan helpers shared by adapters without a native query or aggregation
// dialect (memory, flat files, search index fallback paths).

// Filter returns the rows matching the query, preserving input order.
func Filter(rows []types.Row, q types.Query) []types.Row {
	var out []types.Row
	for _, row := range rows {
		if types.Match(row, q) {
			out = append(out, row)
		}
	}
	return out
}

// SortByID orders rows by ascending id in place.
func SortByID(rows []types.Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID() < rows[j].ID() })
}

// NextID returns one more than the largest id present, starting at 1.
func NextID(rows []types.Row) int64 {
	var max int64
	for _, row := range rows {
		if id := row.ID(); id > max {
			max = id
		}
	}
	return max + 1
}

// numericColumn collects the field's non-null values as floats. Non-numeric
// values are skipped.
func numericColumn(rows []types.Row, field string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if row[field] == nil {
			continue
		}
		if f, ok := types.AsFloat64(row[field]); ok {
			out = append(out, f)
		}
	}
	return out
}

// SumRows totals the field over the matching rows. An empty column sums to
// zero.
func SumRows(rows []types.Row, field string, q types.Query) (float64, error) {
	column := numericColumn(Filter(rows, q), field)
	if len(column) == 0 {
		return 0, nil
	}
	return stats.Sum(column)
}

// AverageRows computes the arithmetic mean of the field over the matching
// rows. An empty column averages to zero.
func AverageRows(rows []types.Row, field string, q types.Query) (float64, error) {
	column := numericColumn(Filter(rows, q), field)
	if len(column) == 0 {
		return 0, nil
	}
	return stats.Mean(column)
}

// MinRows returns the smallest non-null value of the field over the matching
// rows, or nil when every value is null.
func MinRows(rows []types.Row, field string, q types.Query) (any, error) {
	return extremum(Filter(rows, q), field, true), nil
}

// MaxRows returns the largest non-null value of the field over the matching
// rows, or nil when every value is null.
func MaxRows(rows []types.Row, field string, q types.Query) (any, error) {
	return extremum(Filter(rows, q), field, false), nil
}

// extremum picks the min or max by the value family: numeric when both sides
// coerce, time when both are timestamps, textual otherwise.
func extremum(rows []types.Row, field string, min bool) any {
	var best any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		if best == nil || (min && less(v, best)) || (!min && less(best, v)) {
			best = v
		}
	}
	return best
}

func less(a, b any) bool {
	if af, ok := types.AsFloat64(a); ok {
		if bf, ok := types.AsFloat64(b); ok {
			return af < bf
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := types.AsTime(b); ok {
			return at.Before(bt)
		}
	}
	return fmt.Sprint(types.FormatValue(a)) < fmt.Sprint(types.FormatValue(b))
}

// DistinctRows returns the unique non-null values of the field over the
// matching rows, in first-seen order.
func DistinctRows(rows []types.Row, field string, q types.Query) ([]any, error) {
	var out []any
	for _, row := range Filter(rows, q) {
		v := row[field]
		if v == nil {
			continue
		}
		dup := false
		for _, existing := range out {
			if types.Equal(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

// SampleRow returns one uniformly chosen matching row, or nil when nothing
// matches.
func SampleRow(rows []types.Row, q types.Query) (types.Row, error) {
	matched := Filter(rows, q)
	if len(matched) == 0 {
		return nil, nil
	}
	return matched[rand.Intn(len(matched))], nil
}
