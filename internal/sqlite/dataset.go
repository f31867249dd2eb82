package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Dataset is one schema-reconciled table.
type Dataset struct {
	mu     sync.Mutex
	db     *sql.DB
	table  string
	schema *types.Schema
}

// reconcile creates the table when absent and adds any missing columns.
func (d *Dataset) reconcile(schema *types.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema

	create := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT)",
		quoteIdent(d.table))
	if _, err := d.db.Exec(create); err != nil {
		return fmt.Errorf("creating table %s: %w", d.table, err)
	}

	existing, err := d.columns()
	if err != nil {
		return err
	}
	for _, attr := range schema.Persistent() {
		if attr.Name == types.FieldID {
			continue
		}
		if _, ok := existing[attr.Name]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(d.table), quoteIdent(attr.Name), columnType(attr.Type))
		if _, err := d.db.Exec(alter); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", d.table, attr.Name, err)
		}
	}
	return nil
}

// columns returns the table's current column names.
func (d *Dataset) columns() (map[string]bool, error) {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(d.table)))
	if err != nil {
		return nil, fmt.Errorf("inspecting table %s: %w", d.table, err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var (
			cid         int
			name, ctype string
			notnull     int
			dflt        sql.NullString
			pk          int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// columnNames returns the persistent attribute names in schema order.
func (d *Dataset) columnNames() []string {
	attrs := d.schema.Persistent()
	out := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attr.Name)
	}
	return out
}

// encode converts a normalized value to its stored SQL form: times as RFC3339
// text, lists and maps as JSON text.
func encode(v any) (any, error) {
	switch v.(type) {
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return types.FormatValue(v), nil
	}
}

// decode converts a scanned SQL value back to the normalized form per the
// attribute type.
func (d *Dataset) decode(column string, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	attr, ok := d.schema.Attribute(column)
	if !ok {
		return v
	}
	switch attr.Type {
	case types.List:
		if s, ok := v.(string); ok {
			var out []any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	case types.Map:
		if s, ok := v.(string); ok {
			var out map[string]any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	}
	return types.Coerce(attr.Type, v)
}

// patternMeta detects regexp metacharacters; plain substrings push down as
// LIKE, everything else post-filters in Go.
var patternMeta = regexp.MustCompile(`[.*+?()\[\]{}|^$\\]`)

// where builds the SQL predicate for the query. exact reports whether the
// predicate fully captures the query; when false the caller must post-filter
// the scanned rows with types.Match.
func (d *Dataset) where(q types.Query) (clause string, args []any, exact bool) {
	exact = true
	fields := make([]string, 0, len(q))
	for field := range q {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		if _, ok := d.schema.Attribute(field); !ok {
			exact = false
			continue
		}
		col := quoteIdent(field)
		switch c := q[field].(type) {
		case nil:
			parts = append(parts, col+" IS NULL")
		case types.In:
			if len(c) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			encoded := make([]any, 0, len(c))
			ok := true
			for _, v := range c {
				ev, err := encode(v)
				if err != nil {
					ok = false
					break
				}
				encoded = append(encoded, ev)
			}
			if !ok {
				exact = false
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c)), ", ")
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, placeholders))
			args = append(args, encoded...)
		case types.Range:
			if c.Min != nil {
				parts = append(parts, col+" >= ?")
				args = append(args, types.FormatValue(c.Min))
			}
			if c.Max != nil {
				parts = append(parts, col+" <= ?")
				args = append(args, types.FormatValue(c.Max))
			}
		case types.Pattern:
			if patternMeta.MatchString(string(c)) {
				exact = false
				continue
			}
			parts = append(parts, col+" LIKE ?")
			args = append(args, "%"+string(c)+"%")
		default:
			ev, err := encode(c)
			if err != nil {
				exact = false
				continue
			}
			parts = append(parts, col+" = ?")
			args = append(args, ev)
		}
	}
	if len(parts) == 0 {
		return "", args, exact
	}
	return " WHERE " + strings.Join(parts, " AND "), args, exact
}

// scan reads every result row into normalized form.
func (d *Dataset) scan(rows *sql.Rows) ([]types.Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []types.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := types.Row{}
		for i, col := range columns {
			row[col] = d.decode(col, values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// query runs a SELECT over the dataset with the given predicate and suffix.
func (d *Dataset) query(q types.Query, suffix string) ([]types.Row, error) {
	clause, args, exact := d.where(q)
	stmt := fmt.Sprintf("SELECT %s FROM %s%s%s",
		strings.Join(quoteAll(d.columnNames()), ", "), quoteIdent(d.table), clause, suffix)
	rows, err := d.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", d.table, err)
	}
	scanned, err := d.scan(rows)
	if err != nil {
		return nil, err
	}
	if !exact {
		scanned = database.Filter(scanned, q)
	}
	return scanned, nil
}

// Find returns the first row matching the query, by ascending id.
// Returns ErrNotFound when nothing matches.
func (d *Dataset) Find(q types.Query) (types.Row, error) {
	_, _, exact := d.where(q)
	suffix := " ORDER BY id"
	if exact {
		suffix += " LIMIT 1"
	}
	rows, err := d.query(q, suffix)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.ErrNotFound
	}
	return rows[0], nil
}

// FindAll returns every row matching the query, by ascending id.
func (d *Dataset) FindAll(q types.Query) ([]types.Row, error) {
	return d.query(q, " ORDER BY id")
}

// All returns every row, by ascending id.
func (d *Dataset) All() ([]types.Row, error) {
	return d.query(types.Query{}, " ORDER BY id")
}

// Save inserts or upserts the row and returns its id.
func (d *Dataset) Save(row types.Row) (int64, error) {
	columns := make([]string, 0, len(row))
	values := make([]any, 0, len(row))
	for _, name := range d.columnNames() {
		if name == types.FieldID && row.ID() == 0 {
			continue
		}
		v, ok := row[name]
		if !ok {
			continue
		}
		ev, err := encode(v)
		if err != nil {
			return 0, fmt.Errorf("encoding %s.%s: %w", d.table, name, err)
		}
		columns = append(columns, name)
		values = append(values, ev)
	}
	if len(columns) == 0 {
		return 0, types.ErrInvalidData
	}

	var updates []string
	for _, col := range columns {
		if col == types.FieldID {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(col), quoteIdent(col)))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		quoteIdent(d.table), strings.Join(quoteAll(columns), ", "), placeholders,
		strings.Join(updates, ", "))

	res, err := d.db.Exec(stmt, values...)
	if err != nil {
		return 0, fmt.Errorf("saving into %s: %w", d.table, err)
	}
	if id := row.ID(); id != 0 {
		return id, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Delete removes the row with the given id. Deleting an absent id returns
// ErrNotFound.
func (d *Dataset) Delete(id int64) error {
	res, err := d.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(d.table)), id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", d.table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Count returns the number of rows matching the query.
func (d *Dataset) Count(q types.Query) (int64, error) {
	clause, args, exact := d.where(q)
	if !exact {
		rows, err := d.FindAll(q)
		return int64(len(rows)), err
	}
	var count int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(d.table), clause)
	if err := d.db.QueryRow(stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", d.table, err)
	}
	return count, nil
}

// aggregate runs one SQL aggregate over the field, falling back to a full
// scan when the predicate is not fully expressible.
func (d *Dataset) aggregate(fn, field string, q types.Query) (any, bool, error) {
	if _, ok := d.schema.Attribute(field); !ok {
		return nil, true, nil
	}
	clause, args, exact := d.where(q)
	if !exact {
		return nil, false, nil
	}
	stmt := fmt.Sprintf("SELECT %s(%s) FROM %s%s", fn, quoteIdent(field), quoteIdent(d.table), clause)
	var result any
	if err := d.db.QueryRow(stmt, args...).Scan(&result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("aggregating %s on %s: %w", fn, d.table, err)
	}
	return result, true, nil
}

// Sum totals the field over matching rows.
func (d *Dataset) Sum(field string, q types.Query) (float64, error) {
	result, ok, err := d.aggregate("SUM", field, q)
	if err != nil {
		return 0, err
	}
	if !ok {
		rows, err := d.FindAll(q)
		if err != nil {
			return 0, err
		}
		return database.SumRows(rows, field, nil)
	}
	f, _ := types.AsFloat64(result)
	return f, nil
}

// Average computes the mean of the field over matching rows.
func (d *Dataset) Average(field string, q types.Query) (float64, error) {
	result, ok, err := d.aggregate("AVG", field, q)
	if err != nil {
		return 0, err
	}
	if !ok {
		rows, err := d.FindAll(q)
		if err != nil {
			return 0, err
		}
		return database.AverageRows(rows, field, nil)
	}
	f, _ := types.AsFloat64(result)
	return f, nil
}

// Min returns the smallest value of the field over matching rows.
func (d *Dataset) Min(field string, q types.Query) (any, error) {
	result, ok, err := d.aggregate("MIN", field, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		rows, err := d.FindAll(q)
		if err != nil {
			return nil, err
		}
		return database.MinRows(rows, field, nil)
	}
	return d.decode(field, result), nil
}

// Max returns the largest value of the field over matching rows.
func (d *Dataset) Max(field string, q types.Query) (any, error) {
	result, ok, err := d.aggregate("MAX", field, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		rows, err := d.FindAll(q)
		if err != nil {
			return nil, err
		}
		return database.MaxRows(rows, field, nil)
	}
	return d.decode(field, result), nil
}

// Distinct returns the unique non-null values of the field over matching
// rows.
func (d *Dataset) Distinct(field string, q types.Query) ([]any, error) {
	if _, ok := d.schema.Attribute(field); !ok {
		return nil, nil
	}
	clause, args, exact := d.where(q)
	if !exact {
		rows, err := d.FindAll(q)
		if err != nil {
			return nil, err
		}
		return database.DistinctRows(rows, field, nil)
	}
	col := quoteIdent(field)
	predicate := col + " IS NOT NULL"
	if clause == "" {
		clause = " WHERE " + predicate
	} else {
		clause += " AND " + predicate
	}
	stmt := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s ORDER BY %s", col, quoteIdent(d.table), clause, col)
	rows, err := d.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting distinct %s.%s: %w", d.table, field, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, d.decode(field, v))
	}
	return out, rows.Err()
}

// Sample returns one uniformly chosen matching row, or nil.
func (d *Dataset) Sample(q types.Query) (types.Row, error) {
	_, _, exact := d.where(q)
	if !exact {
		rows, err := d.FindAll(q)
		if err != nil {
			return nil, err
		}
		return database.SampleRow(rows, nil)
	}
	rows, err := d.query(q, " ORDER BY random() LIMIT 1")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
