package model

import (
	"fmt"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// AddRelationship registers a relationship under its owner dataset and method
// name. Registration is idempotent: re-adding an equal relationship replaces
// the stored copy and performs no further synthesis, while declaring a
// different relationship under an already-taken (owner, method) key is an
// error. Unless the target dataset already holds any relationship pointing
// back at the owner, the inverse relationship is synthesized and registered
// too. For joined kinds whose join FK names were inferred by convention,
// helper OneToOne relationships from the join dataset back to each side are
// registered so join records resolve their endpoints.
func AddRelationship(rel *Relationship) error {
	if rel == nil {
		return fmt.Errorf("nil relationship")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	return addRelationshipLocked(rel, true)
}

func addRelationshipLocked(rel *Relationship, synthesize bool) error {
	if frozen {
		return fmt.Errorf("adding relationship %s.%s: %w", rel.From, rel.MethodName, types.ErrRegistryFrozen)
	}
	byMethod := relationships[rel.From]
	if byMethod == nil {
		byMethod = map[string]*Relationship{}
		relationships[rel.From] = byMethod
	}
	if existing, ok := byMethod[rel.MethodName]; ok {
		if !existing.Equal(rel) {
			return fmt.Errorf("relationship %s.%s is already declared as %s to %s",
				rel.From, rel.MethodName, existing.Kind, existing.To)
		}
		// Already registered; the inverse and helpers are in place.
		byMethod[rel.MethodName] = rel
		return nil
	}
	byMethod[rel.MethodName] = rel
	if !synthesize {
		return nil
	}

	if !anyPointingBack(rel.To, rel.From) {
		opposite, err := rel.Opposite()
		if err != nil {
			return err
		}
		if err := addRelationshipLocked(opposite, false); err != nil {
			return err
		}
	}

	if rel.Kind == ManyToMany || rel.Kind == OneThroughOne {
		if rel.inferredThroughAttr {
			if err := addJoinHelper(rel.Through, rel.From, rel.ThroughAttribute); err != nil {
				return err
			}
		}
		if rel.inferredThroughCol {
			if err := addJoinHelper(rel.Through, rel.To, rel.ThroughColumn); err != nil {
				return err
			}
		}
	}
	return nil
}

// addJoinHelper registers a FK-side OneToOne from the join dataset to one
// endpoint, skipping when the join dataset already reaches that endpoint.
func addJoinHelper(through, to, attribute string) error {
	if anyPointingBack(through, to) {
		return nil
	}
	helper, err := NewRelationship(OneToOne, through, to, "",
		WithForeignKey(true), WithAttribute(attribute), WithForms(false))
	if err != nil {
		return err
	}
	return addRelationshipLocked(helper, false)
}

// anyPointingBack reports whether any relationship registered on the from
// dataset targets the to dataset, under any method name. Callers hold
// registryMu.
func anyPointingBack(from, to string) bool {
	for _, rel := range relationships[from] {
		if rel.To == to {
			return true
		}
	}
	return false
}

// RelationshipFor resolves the relationship registered on the owner under the
// method name, or nil. The owner may be a *Type, a *Record, or a dataset
// name.
func RelationshipFor(owner any, method string) *Relationship {
	ds := ownerDataset(owner)
	if ds == "" {
		return nil
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	return relationships[ds][method]
}

// RelationshipsFor returns every relationship registered on the owner.
func RelationshipsFor(owner any) []*Relationship {
	ds := ownerDataset(owner)
	if ds == "" {
		return nil
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	out := make([]*Relationship, 0, len(relationships[ds]))
	for _, rel := range relationships[ds] {
		out = append(out, rel)
	}
	return out
}

// HasRelationship reports whether the owner declares the named relationship.
func HasRelationship(owner any, method string) bool {
	return RelationshipFor(owner, method) != nil
}

func ownerDataset(owner any) string {
	switch v := owner.(type) {
	case string:
		if t := TypeFor(v); t != nil {
			return t.DatasetName()
		}
		return v
	case *Type:
		return v.DatasetName()
	case *Record:
		return v.Type().DatasetName()
	default:
		return ""
	}
}

// HasOne declares a OneToOne relationship where the target holds the foreign
// key.
func (t *Type) HasOne(to string, opts ...Option) (*Relationship, error) {
	rel, err := NewRelationship(OneToOne, t.datasetName, to, "", opts...)
	if err != nil {
		return nil, err
	}
	return rel, AddRelationship(rel)
}

// HasMany declares a OneToMany relationship.
func (t *Type) HasMany(to string, opts ...Option) (*Relationship, error) {
	rel, err := NewRelationship(OneToMany, t.datasetName, to, "", opts...)
	if err != nil {
		return nil, err
	}
	return rel, AddRelationship(rel)
}

// BelongsTo declares a ManyToOne relationship; the declaring type holds the
// foreign key.
func (t *Type) BelongsTo(to string, opts ...Option) (*Relationship, error) {
	rel, err := NewRelationship(ManyToOne, t.datasetName, to, "", opts...)
	if err != nil {
		return nil, err
	}
	return rel, AddRelationship(rel)
}

// HasManyThrough declares a ManyToMany relationship via the join dataset.
func (t *Type) HasManyThrough(to, through string, opts ...Option) (*Relationship, error) {
	rel, err := NewRelationship(ManyToMany, t.datasetName, to, through, opts...)
	if err != nil {
		return nil, err
	}
	return rel, AddRelationship(rel)
}

// HasOneThrough declares a OneThroughOne relationship via the join dataset,
// unique on both sides.
func (t *Type) HasOneThrough(to, through string, opts ...Option) (*Relationship, error) {
	rel, err := NewRelationship(OneThroughOne, t.datasetName, to, through, opts...)
	if err != nil {
		return nil, err
	}
	return rel, AddRelationship(rel)
}
