package model

import (
	"sync"
)

// Process-wide registries for declared types and relationships. Both are
// mutated only during the startup declaration phase; Freeze ends that phase.
// Concurrent declaration is unsupported by design.
var (
	registryMu    sync.Mutex
	typesByName   = map[string]*Type{}
	relationships = map[string]map[string]*Relationship{}
	frozen        bool
)

// TypeFor resolves a declared type by dataset name or model name. Returns nil
// when no such type has been declared yet.
func TypeFor(name string) *Type {
	registryMu.Lock()
	defer registryMu.Unlock()

	if t, ok := typesByName[name]; ok {
		return t
	}
	for _, t := range typesByName {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Types returns every declared type.
func Types() []*Type {
	registryMu.Lock()
	defer registryMu.Unlock()

	out := make([]*Type, 0, len(typesByName))
	for _, t := range typesByName {
		out = append(out, t)
	}
	return out
}

// Freeze ends the declaration phase. Subsequent Declare and AddRelationship
// calls fail; registry reads after Freeze are safe without locking because
// nothing mutates them anymore.
func Freeze() {
	registryMu.Lock()
	defer registryMu.Unlock()
	frozen = true
}

// ResetRegistry clears declared types and relationships and unfreezes the
// registries. Intended for tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	typesByName = map[string]*Type{}
	relationships = map[string]map[string]*Relationship{}
	frozen = false
}
