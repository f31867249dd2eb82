// Package searchdb implements the search-index storage backend on SQLite
// FTS5. Each dataset is one virtual table: the schema's searchable text
// attributes are indexed columns, and the complete row travels alongside as
// an unindexed JSON document. Pattern queries on indexed columns narrow the
// candidate set through the full-text index before exact matching.
package searchdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func init() {
	if err := database.RegisterAdapter(database.Descriptor{
		Types:   []string{"search"},
		Clients: []string{"*searchdb.Adapter"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return Open(cfg)
		},
	}); err != nil {
		panic(fmt.Sprintf("registering search adapter: %v", err))
	}
}

// Adapter wraps one FTS5 index file.
type Adapter struct {
	mu       sync.Mutex
	db       *sql.DB
	datasets map[string]*Dataset
}

// Open opens (or creates) the index file under the data directory.
func Open(cfg types.Config) (*Adapter, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "search.db"))
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	return &Adapter{db: db, datasets: make(map[string]*Dataset)}, nil
}

// Name returns the backend type token.
func (a *Adapter) Name() string { return "search" }

// Dataset returns the named dataset, creating its virtual table on first use.
// FTS5 tables cannot gain columns after creation, so searchable attributes
// added after the table exists are matched by scan rather than by index.
func (a *Adapter) Dataset(name string, schema *types.Schema) (types.Dataset, error) {
	if name == "" {
		return nil, types.ErrDatasetNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.datasets[name]
	if !ok {
		ds = &Dataset{db: a.db, table: name}
		a.datasets[name] = ds
	}
	if err := ds.ensure(schema); err != nil {
		return nil, err
	}
	return ds, nil
}

// Close closes the index file.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets = make(map[string]*Dataset)
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Dataset is one FTS5-backed row set.
type Dataset struct {
	mu      sync.Mutex
	db      *sql.DB
	table   string
	schema  *types.Schema
	indexed []string
	created bool
}

// searchableColumns lists the schema's indexable text attributes.
func searchableColumns(schema *types.Schema) []string {
	var out []string
	for _, attr := range schema.Persistent() {
		if !attr.Searchable {
			continue
		}
		switch attr.Type {
		case types.String, types.Text:
			out = append(out, attr.Name)
		}
	}
	return out
}

// ensure creates the virtual table on first access.
func (d *Dataset) ensure(schema *types.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema

	if d.created {
		return nil
	}
	d.indexed = searchableColumns(schema)
	columns := append([]string{}, d.indexed...)
	columns = append(columns, "doc UNINDEXED", "rowdocid UNINDEXED", "rowid_num UNINDEXED")
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %q USING fts5(%s)",
		d.table, strings.Join(columns, ", "))
	if _, err := d.db.Exec(stmt); err != nil {
		return fmt.Errorf("creating index table %s: %w", d.table, err)
	}
	d.created = true
	return nil
}

// decodeDoc unpacks one stored JSON document into a normalized row.
func (d *Dataset) decodeDoc(doc string) (types.Row, error) {
	var row types.Row
	if err := json.Unmarshal([]byte(doc), &row); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return types.CoerceRow(row, d.schema), nil
}

// fetch returns the rows whose documents survive the given narrowing MATCH
// predicate, by ascending id.
func (d *Dataset) fetch(match string, args ...any) ([]types.Row, error) {
	stmt := fmt.Sprintf("SELECT doc FROM %q%s", d.table, match)
	rows, err := d.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index %s: %w", d.table, err)
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		row, err := d.decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	database.SortByID(out)
	return out, nil
}

// ftsToken matches pattern text that pushes down cleanly as an FTS5 phrase.
var ftsToken = regexp.MustCompile(`^[\p{L}\p{N} ]+$`)

// candidates narrows the scan with the full-text index when the query holds a
// plain-text Pattern on an indexed column. The result still needs exact
// matching; index hits are token-level.
func (d *Dataset) candidates(q types.Query) ([]types.Row, error) {
	for field, cond := range q {
		pattern, ok := cond.(types.Pattern)
		if !ok || !ftsToken.MatchString(string(pattern)) {
			continue
		}
		for _, col := range d.indexed {
			if col != field {
				continue
			}
			expr := fmt.Sprintf(`%s : "%s"`, field, strings.ReplaceAll(string(pattern), `"`, `""`))
			return d.fetch(fmt.Sprintf(" WHERE %q MATCH ?", d.table), expr)
		}
	}
	return d.fetch("")
}

// Find returns the first row matching the query, by ascending id.
// Returns ErrNotFound when nothing matches.
func (d *Dataset) Find(q types.Query) (types.Row, error) {
	rows, err := d.FindAll(q)
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
	rows, err := d.candidates(q)
	if err != nil {
		return nil, err
	}
	return database.Filter(rows, q), nil
}

// All returns every row, by ascending id.
func (d *Dataset) All() ([]types.Row, error) {
	return d.fetch("")
}

// Save replaces the indexed document by id, assigning max id plus one when
// absent. The document id is assigned once per row: an update without one
// keeps the stored document's id rather than minting a fresh one.
func (d *Dataset) Save(row types.Row) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := row.Clone()
	id := stored.ID()
	if id == 0 {
		all, err := d.fetch("")
		if err != nil {
			return 0, err
		}
		id = database.NextID(all)
		stored[types.FieldID] = id
	} else if stored[types.FieldDocID] == nil {
		if docid, ok := d.storedDocID(id); ok {
			stored[types.FieldDocID] = docid
		}
	}
	if stored[types.FieldDocID] == nil {
		stored[types.FieldDocID] = newDocID()
	}

	normalized := types.Row{}
	for k, v := range stored {
		normalized[k] = types.FormatValue(v)
	}
	doc, err := json.Marshal(normalized)
	if err != nil {
		return 0, fmt.Errorf("encoding document: %w", err)
	}

	if _, err := d.db.Exec(fmt.Sprintf("DELETE FROM %q WHERE rowid_num = ?", d.table), id); err != nil {
		return 0, fmt.Errorf("replacing in index %s: %w", d.table, err)
	}
	columns := append([]string{}, d.indexed...)
	columns = append(columns, "doc", "rowdocid", "rowid_num")
	args := make([]any, 0, len(columns))
	for _, col := range d.indexed {
		args = append(args, fmt.Sprint(types.FormatValue(stored[col])))
	}
	args = append(args, string(doc), stored[types.FieldDocID], id)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", d.table, strings.Join(columns, ", "), placeholders)
	if _, err := d.db.Exec(stmt, args...); err != nil {
		return 0, fmt.Errorf("saving into index %s: %w", d.table, err)
	}
	return id, nil
}

// storedDocID returns the document id already assigned to the row, if any.
func (d *Dataset) storedDocID(id int64) (string, bool) {
	var docid string
	err := d.db.QueryRow(
		fmt.Sprintf("SELECT rowdocid FROM %q WHERE rowid_num = ?", d.table), id).Scan(&docid)
	if err != nil || docid == "" {
		return "", false
	}
	return docid, true
}

// Delete removes the document with the given id. Deleting an absent id
// returns ErrNotFound.
func (d *Dataset) Delete(id int64) error {
	res, err := d.db.Exec(fmt.Sprintf("DELETE FROM %q WHERE rowid_num = ?", d.table), id)
	if err != nil {
		return fmt.Errorf("deleting from index %s: %w", d.table, err)
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
	rows, err := d.FindAll(q)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Sum totals the field over matching rows.
func (d *Dataset) Sum(field string, q types.Query) (float64, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return 0, err
	}
	return database.SumRows(rows, field, q)
}

// Average computes the mean of the field over matching rows.
func (d *Dataset) Average(field string, q types.Query) (float64, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return 0, err
	}
	return database.AverageRows(rows, field, q)
}

// Min returns the smallest value of the field over matching rows.
func (d *Dataset) Min(field string, q types.Query) (any, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return nil, err
	}
	return database.MinRows(rows, field, q)
}

// Max returns the largest value of the field over matching rows.
func (d *Dataset) Max(field string, q types.Query) (any, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return nil, err
	}
	return database.MaxRows(rows, field, q)
}

// Distinct returns the unique non-null values of the field over matching
// rows.
func (d *Dataset) Distinct(field string, q types.Query) ([]any, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return nil, err
	}
	return database.DistinctRows(rows, field, q)
}

// Sample returns one uniformly chosen matching row, or nil.
func (d *Dataset) Sample(q types.Query) (types.Row, error) {
	rows, err := d.candidates(q)
	if err != nil {
		return nil, err
	}
	return database.SampleRow(rows, q)
}

// newDocID generates the backend-native document id.
func newDocID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
