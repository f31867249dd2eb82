// Package sqlite implements the SQL storage backend over an embedded SQLite
// database. Tables are reconciled against the declared schema on dataset
// access: missing tables are created and missing columns added, existing
// columns are never dropped or retyped.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func init() {
	if err := database.RegisterAdapter(database.Descriptor{
		Types:   []string{"sqlite"},
		Clients: []string{"*sql.DB"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return Open(cfg)
		},
	}); err != nil {
		panic(fmt.Sprintf("registering sqlite adapter: %v", err))
	}
}

// Adapter wraps one SQLite database file.
type Adapter struct {
	mu       sync.Mutex
	db       *sql.DB
	datasets map[string]*Dataset
}

// Open opens (or creates) the database file. The path comes from the config
// URI when set, otherwise DataDir/strata.db.
func Open(cfg types.Config) (*Adapter, error) {
	path := cfg.URI
	if path == "" {
		dir := cfg.DataDir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dir, "strata.db")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	return &Adapter{db: db, datasets: make(map[string]*Dataset)}, nil
}

// DB exposes the underlying connection for client-based adapter lookup.
func (a *Adapter) DB() *sql.DB { return a.db }

// Name returns the backend type token.
func (a *Adapter) Name() string { return "sqlite" }

// Dataset returns the named dataset after reconciling its table against the
// schema.
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
	if err := ds.reconcile(schema); err != nil {
		return nil, err
	}
	return ds, nil
}

// Close closes the database connection.
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

// columnType maps an attribute type to its SQLite column declaration.
func columnType(t types.AttrType) string {
	switch t {
	case types.Int:
		return "INTEGER"
	case types.Float:
		return "REAL"
	case types.Bool:
		return "BOOLEAN"
	case types.Time:
		return "TIMESTAMP"
	case types.Date:
		return "DATE"
	case types.String:
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

// quoteIdent wraps an identifier in double quotes for safe interpolation.
func quoteIdent(name string) string { return `"` + name + `"` }

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = quoteIdent(name)
	}
	return out
}
