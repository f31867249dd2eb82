package database

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/strata/pkg/types"
)

var (
	dbMu      sync.Mutex
	databases = map[string]types.Adapter{}
	order     []string
	primary   string
)

// Setup builds a connection for the given backend type token and registers it
// under the name. The first database set up becomes the primary unless
// SetPrimary is called.
func Setup(name, token string, cfg types.Config) (types.Adapter, error) {
	desc, ok := ByType(token)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrAdapterUnknown, token)
	}
	cfg.Backend = token
	adapter, err := desc.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("setting up database %q: %w", name, err)
	}
	if err := Add(name, adapter); err != nil {
		adapter.Close()
		return nil, err
	}
	logger.Info("database set up",
		zap.String("name", name), zap.String("backend", token))
	return adapter, nil
}

// Add registers an already-built connection under the given name. Attaching a
// name that is already taken returns ErrAlreadyAttached.
func Add(name string, adapter types.Adapter) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if _, ok := databases[name]; ok {
		return fmt.Errorf("database %q: %w", name, types.ErrAlreadyAttached)
	}
	order = append(order, name)
	databases[name] = adapter
	return nil
}

// Detach removes the named connection from the registry and closes it.
// Detaching a name that is not attached returns ErrDetached.
func Detach(name string) error {
	dbMu.Lock()
	adapter, ok := databases[name]
	if !ok {
		dbMu.Unlock()
		return fmt.Errorf("database %q: %w", name, types.ErrDetached)
	}
	delete(databases, name)
	for i, n := range order {
		if n == name {
			order = append(order[:i], order[i+1:]...)
			break
		}
	}
	if primary == name {
		primary = ""
	}
	dbMu.Unlock()
	return adapter.Close()
}

// DB returns the named connection, or nil.
func DB(name string) types.Adapter {
	dbMu.Lock()
	defer dbMu.Unlock()
	return databases[name]
}

// Primary returns the designated primary connection, falling back to the
// first registered one. Returns nil when no database is configured.
func Primary() types.Adapter {
	dbMu.Lock()
	defer dbMu.Unlock()

	if primary != "" {
		if db, ok := databases[primary]; ok {
			return db
		}
	}
	if len(order) > 0 {
		return databases[order[0]]
	}
	return nil
}

// SetPrimary designates the named connection as the primary one.
func SetPrimary(name string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if _, ok := databases[name]; !ok {
		return fmt.Errorf("database %q is not registered", name)
	}
	primary = name
	return nil
}

// NameFor returns the registry name of the given connection, or "".
func NameFor(adapter types.Adapter) string {
	dbMu.Lock()
	defer dbMu.Unlock()

	for name, db := range databases {
		if db == adapter {
			return name
		}
	}
	return ""
}

// Names returns the registered database names in registration order.
func Names() []string {
	dbMu.Lock()
	defer dbMu.Unlock()

	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Freeze ends the declaration phase: subsequent RegisterAdapter calls fail.
func Freeze() {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	frozen = true
}

// Reset clears the database registry and unfreezes the adapter registry.
// Adapter descriptors persist: they register once at package init and are
// process-wide. Intended for tests.
func Reset() {
	adapterMu.Lock()
	frozen = false
	adapterMu.Unlock()

	dbMu.Lock()
	databases = map[string]types.Adapter{}
	order = nil
	primary = ""
	dbMu.Unlock()
}
