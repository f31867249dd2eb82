package types

// Adapter is a live backend connection. One adapter serves every dataset of
// its backend; Dataset hands out a per-dataset accessor after reconciling the
// schema, creating the dataset if missing and adding any missing fields.
// Existing fields are never dropped or resized.
//
// Adapters provide no concurrency guarantees beyond those of the underlying
// client, and no retries: every Dataset operation maps to exactly one logical
// backend call. Callers needing cancellation apply it at the connection layer.
type Adapter interface {
	// Name returns the backend type token ("memory", "sqlite", ...).
	Name() string

	// Dataset returns the accessor for the named dataset, reconciling its
	// schema on first access for the life of the process.
	Dataset(name string, schema *Schema) (Dataset, error)

	// Close releases the backend connection. Idempotent.
	Close() error
}

// Dataset is the storage-primitive contract every adapter implements for one
// dataset. Queries are either pushed down to the backend's native dialect or
// evaluated with Match over a full scan; both yield identical results.
type Dataset interface {
	// Find returns the first row matching the query.
	// Returns ErrNotFound if nothing matches.
	Find(q Query) (Row, error)

	// FindAll returns every row matching the query.
	FindAll(q Query) ([]Row, error)

	// All returns every row in the dataset.
	All() ([]Row, error)

	// Save creates or updates the row and returns its sequential integer id,
	// assigning one if absent. On backends whose native identity is not a
	// sequential integer the id is computed as one more than the observed
	// maximum; this is best-effort and not safe under concurrent writers.
	Save(row Row) (int64, error)

	// Delete removes the row with the given id.
	// Returns ErrNotFound if no such row exists.
	Delete(id int64) error

	// Aggregates. A nil or empty query covers the whole dataset.
	Count(q Query) (int64, error)
	Sum(field string, q Query) (float64, error)
	Average(field string, q Query) (float64, error)
	Min(field string, q Query) (any, error)
	Max(field string, q Query) (any, error)
	Distinct(field string, q Query) ([]any, error)

	// Sample returns a random matching row, or ErrNotFound.
	Sample(q Query) (Row, error)
}

// Config carries backend selection and connection parameters for setting up
// a database.
type Config struct {
	Backend  string            `json:"backend" yaml:"backend"`
	DataDir  string            `json:"data_dir" yaml:"data_dir"`
	URI      string            `json:"uri" yaml:"uri"`
	Database string            `json:"database" yaml:"database"`
	Options  map[string]string `json:"options" yaml:"options"`
}

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	return nil
}
