// Package database holds the process-wide adapter and database registries.
// Both are populated during a one-time declaration phase at startup; Freeze
// marks the end of that phase, after which registration fails and reads need
// no locking discipline from callers. Concurrent declaration is unsupported.
package database

import (
	"fmt"
	"sync"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Descriptor maps backend type tokens and backend client type names to a
// builder producing a live connection. At most one descriptor may be
// registered per distinct type token.
type Descriptor struct {
	// Types are the backend type tokens this adapter serves ("sqlite", ...).
	Types []string

	// Clients are the Go type names of the connection objects this adapter
	// produces (as printed by %T), used for lookup by client.
	Clients []string

	// Build constructs a live connection from the config.
	Build func(cfg types.Config) (types.Adapter, error)
}

var (
	adapterMu sync.Mutex
	adapters  []Descriptor
	frozen    bool
)

// RegisterAdapter adds a descriptor to the registry. Registering a duplicate
// type token or registering after Freeze is an error.
func RegisterAdapter(d Descriptor) error {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	if frozen {
		return types.ErrRegistryFrozen
	}
	if len(d.Types) == 0 || d.Build == nil {
		return fmt.Errorf("invalid adapter descriptor: type tokens and builder are required")
	}
	for _, existing := range adapters {
		for _, t := range existing.Types {
			for _, nt := range d.Types {
				if t == nt {
					return fmt.Errorf("adapter type %q is already registered", t)
				}
			}
		}
	}
	adapters = append(adapters, d)
	return nil
}

// ByType returns the descriptor registered for the given backend type token.
func ByType(token string) (Descriptor, bool) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	for _, d := range adapters {
		for _, t := range d.Types {
			if t == token {
				return d, true
			}
		}
	}
	return Descriptor{}, false
}

// ByClient returns the descriptor whose client type names include the dynamic
// type of the given connection object. Returns ErrAdapterUnknown when no
// descriptor claims the type and ErrAdapterAmbiguous when more than one does.
func ByClient(client any) (Descriptor, error) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	name := fmt.Sprintf("%T", client)
	var found []Descriptor
	for _, d := range adapters {
		for _, c := range d.Clients {
			if c == name {
				found = append(found, d)
				break
			}
		}
	}
	switch len(found) {
	case 0:
		return Descriptor{}, fmt.Errorf("%w: client %s", types.ErrAdapterUnknown, name)
	case 1:
		return found[0], nil
	default:
		return Descriptor{}, fmt.Errorf("%w: client %s", types.ErrAdapterAmbiguous, name)
	}
}

// AdapterTypes returns every registered backend type token.
func AdapterTypes() []string {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	var out []string
	for _, d := range adapters {
		out = append(out, d.Types...)
	}
	return out
}
