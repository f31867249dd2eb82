// Package filedb implements the flat-file storage backends. Each dataset is
// one file under the data directory, encoded by the backend's codec (JSON,
// YAML, or CSV); every write replaces the whole file atomically.
package filedb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func init() {
	if err := database.RegisterAdapter(database.Descriptor{
		Types:   []string{"json", "yaml", "csv"},
		Clients: []string{"*filedb.Adapter"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return Open(cfg.Backend, cfg.DataDir)
		},
	}); err != nil {
		panic(fmt.Sprintf("registering filedb adapter: %v", err))
	}
}

// Adapter holds the datasets of one flat-file database.
type Adapter struct {
	mu       sync.Mutex
	token    string
	dir      string
	codec    Codec
	datasets map[string]*Dataset
}

// Open prepares a flat-file database in the given directory, creating the
// directory when absent.
func Open(token, dir string) (*Adapter, error) {
	codec, err := codecFor(token)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Adapter{
		token:    token,
		dir:      dir,
		codec:    codec,
		datasets: make(map[string]*Dataset),
	}, nil
}

// Name returns the backend type token.
func (a *Adapter) Name() string { return a.token }

// Dataset returns the named dataset, loading its file on first use. A missing
// file is an empty dataset; it is created on the first write.
func (a *Adapter) Dataset(name string, schema *types.Schema) (types.Dataset, error) {
	if name == "" {
		return nil, types.ErrDatasetNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.datasets[name]
	if !ok {
		ds = &Dataset{
			path:  filepath.Join(a.dir, name+a.codec.Ext()),
			codec: a.codec,
		}
		a.datasets[name] = ds
	}
	ds.setSchema(schema)
	return ds, nil
}

// Close drops the in-memory dataset handles. Files are already durable.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets = make(map[string]*Dataset)
	return nil
}

// Dataset is one file-backed row collection. The file is the source of truth;
// rows are cached after the first load and written back whole on mutation.
type Dataset struct {
	mu     sync.RWMutex
	path   string
	codec  Codec
	schema *types.Schema
	rows   []types.Row
	loaded bool
}

func (d *Dataset) setSchema(schema *types.Schema) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema
}

// load reads and decodes the file once. Caller holds the write lock.
func (d *Dataset) load() error {
	if d.loaded {
		return nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			d.rows, d.loaded = nil, true
			return nil
		}
		return fmt.Errorf("reading %s: %w", d.path, err)
	}
	rows, err := d.codec.Decode(data, d.schema)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", d.path, err)
	}
	database.SortByID(rows)
	d.rows, d.loaded = rows, true
	return nil
}

// flush encodes the full row set and replaces the file using the temp-file,
// fsync, rename pattern. Caller holds the write lock.
func (d *Dataset) flush() error {
	data, err := d.codec.Encode(d.rows, d.schema)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", d.path, err)
	}
	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".flatfile-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// snapshot returns clones of the cached rows. Caller holds at least the read
// lock and has ensured the file is loaded.
func (d *Dataset) snapshot() []types.Row {
	out := make([]types.Row, len(d.rows))
	for i, row := range d.rows {
		out[i] = row.Clone()
	}
	return out
}

func (d *Dataset) loadedRows() ([]types.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.snapshot(), nil
}

// Find returns the first row matching the query, by ascending id.
// Returns ErrNotFound when nothing matches.
func (d *Dataset) Find(q types.Query) (types.Row, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if types.Match(row, q) {
			return row, nil
		}
	}
	return nil, types.ErrNotFound
}

// FindAll returns every row matching the query, by ascending id.
func (d *Dataset) FindAll(q types.Query) ([]types.Row, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	return database.Filter(rows, q), nil
}

// All returns every row, by ascending id.
func (d *Dataset) All() ([]types.Row, error) {
	return d.loadedRows()
}

// Save inserts or replaces the row, assigning max id plus one when the row
// has none, and rewrites the file.
func (d *Dataset) Save(row types.Row) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.load(); err != nil {
		return 0, err
	}

	stored := row.Clone()
	id := stored.ID()
	if id == 0 {
		id = database.NextID(d.rows)
		stored[types.FieldID] = id
	}
	replaced := false
	for i, existing := range d.rows {
		if existing.ID() == id {
			d.rows[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		d.rows = append(d.rows, stored)
		database.SortByID(d.rows)
	}
	if err := d.flush(); err != nil {
		return 0, err
	}
	return id, nil
}

// Delete removes the row with the given id and rewrites the file. Deleting an
// absent id returns ErrNotFound.
func (d *Dataset) Delete(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.load(); err != nil {
		return err
	}

	for i, existing := range d.rows {
		if existing.ID() == id {
			d.rows = append(d.rows[:i], d.rows[i+1:]...)
			return d.flush()
		}
	}
	return types.ErrNotFound
}

// Count returns the number of rows matching the query.
func (d *Dataset) Count(q types.Query) (int64, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return 0, err
	}
	return int64(len(database.Filter(rows, q))), nil
}

// Sum totals the field over matching rows.
func (d *Dataset) Sum(field string, q types.Query) (float64, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return 0, err
	}
	return database.SumRows(rows, field, q)
}

// Average computes the mean of the field over matching rows.
func (d *Dataset) Average(field string, q types.Query) (float64, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return 0, err
	}
	return database.AverageRows(rows, field, q)
}

// Min returns the smallest value of the field over matching rows.
func (d *Dataset) Min(field string, q types.Query) (any, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	return database.MinRows(rows, field, q)
}

// Max returns the largest value of the field over matching rows.
func (d *Dataset) Max(field string, q types.Query) (any, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	return database.MaxRows(rows, field, q)
}

// Distinct returns the unique non-null values of the field over matching
// rows.
func (d *Dataset) Distinct(field string, q types.Query) ([]any, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	return database.DistinctRows(rows, field, q)
}

// Sample returns one uniformly chosen matching row, or nil.
func (d *Dataset) Sample(q types.Query) (types.Row, error) {
	rows, err := d.loadedRows()
	if err != nil {
		return nil, err
	}
	return database.SampleRow(rows, q)
}
