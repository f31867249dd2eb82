// Package memory implements the in-process storage backend. Rows live in
// maps guarded by a read-write mutex; nothing survives the process.
package memory

import (
	"fmt"
	"sync"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func init() {
	if err := database.RegisterAdapter(database.Descriptor{
		Types:   []string{"memory"},
		Clients: []string{"*memory.Adapter"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return New(), nil
		},
	}); err != nil {
		panic(fmt.Sprintf("registering memory adapter: %v", err))
	}
}

// Adapter holds every dataset of one in-memory database.
type Adapter struct {
	mu       sync.Mutex
	datasets map[string]*Dataset
}

// New returns an empty in-memory database.
func New() *Adapter {
	return &Adapter{datasets: make(map[string]*Dataset)}
}

// Name returns the backend type token.
func (a *Adapter) Name() string { return "memory" }

// Dataset returns the named dataset, creating it on first use.
func (a *Adapter) Dataset(name string, schema *types.Schema) (types.Dataset, error) {
	if name == "" {
		return nil, types.ErrDatasetNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.datasets[name]
	if !ok {
		ds = &Dataset{name: name, rows: make(map[int64]types.Row)}
		a.datasets[name] = ds
	}
	ds.setSchema(schema)
	return ds, nil
}

// Close discards all datasets.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets = make(map[string]*Dataset)
	return nil
}

// Dataset is one named row collection.
type Dataset struct {
	mu     sync.RWMutex
	name   string
	schema *types.Schema
	rows   map[int64]types.Row
	nextID int64
}

func (d *Dataset) setSchema(schema *types.Schema) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema
}

// snapshot returns the rows as an id-ordered slice of clones.
func (d *Dataset) snapshot() []types.Row {
	out := make([]types.Row, 0, len(d.rows))
	for _, row := range d.rows {
		out = append(out, row.Clone())
	}
	database.SortByID(out)
	return out
}

// Find returns the first row matching the query, by ascending id.
// Returns ErrNotFound when nothing matches.
func (d *Dataset) Find(q types.Query) (types.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, row := range d.snapshot() {
		if types.Match(row, q) {
			return row, nil
		}
	}
	return nil, types.ErrNotFound
}

// FindAll returns every row matching the query, by ascending id.
func (d *Dataset) FindAll(q types.Query) ([]types.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.Filter(d.snapshot(), q), nil
}

// All returns every row, by ascending id.
func (d *Dataset) All() ([]types.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot(), nil
}

// Save inserts or replaces the row, assigning the next sequential id when the
// row has none, and returns the row's id.
func (d *Dataset) Save(row types.Row) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := row.Clone()
	id := stored.ID()
	if id == 0 {
		if d.nextID == 0 {
			d.nextID = database.NextID(d.snapshot()) - 1
		}
		d.nextID++
		id = d.nextID
		stored[types.FieldID] = id
	} else if id > d.nextID {
		d.nextID = id
	}
	d.rows[id] = stored
	return id, nil
}

// Delete removes the row with the given id. Deleting an absent id returns
// ErrNotFound.
func (d *Dataset) Delete(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rows[id]; !ok {
		return types.ErrNotFound
	}
	delete(d.rows, id)
	return nil
}

// Count returns the number of rows matching the query.
func (d *Dataset) Count(q types.Query) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int64(len(database.Filter(d.snapshot(), q))), nil
}

// Sum totals the field over matching rows.
func (d *Dataset) Sum(field string, q types.Query) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.SumRows(d.snapshot(), field, q)
}

// Average computes the mean of the field over matching rows.
func (d *Dataset) Average(field string, q types.Query) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.AverageRows(d.snapshot(), field, q)
}

// Min returns the smallest value of the field over matching rows.
func (d *Dataset) Min(field string, q types.Query) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.MinRows(d.snapshot(), field, q)
}

// Max returns the largest value of the field over matching rows.
func (d *Dataset) Max(field string, q types.Query) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.MaxRows(d.snapshot(), field, q)
}

// Distinct returns the unique non-null values of the field over matching
// rows.
func (d *Dataset) Distinct(field string, q types.Query) ([]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.DistinctRows(d.snapshot(), field, q)
}

// Sample returns one uniformly chosen matching row, or nil.
func (d *Dataset) Sample(q types.Query) (types.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return database.SampleRow(d.snapshot(), q)
}
