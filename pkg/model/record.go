package model

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Record is one persistable instance of a declared type. A record with a
// non-zero id is considered to exist in its backend; saving assigns the id on
// first save.
type Record struct {
	typ       *Type
	attrs     types.Row
	changeSet *ChangeSet

	// staged holds association values assigned in memory but not yet
	// reconciled against the backend. Keyed by relationship method name;
	// reconciled (and cleared) on save.
	staged map[string][]*Record
}

// Type returns the record's declared type.
func (r *Record) Type() *Type { return r.typ }

// ID returns the sequential integer id, or 0 before the first save.
func (r *Record) ID() int64 { return r.attrs.ID() }

// Persisted reports whether the record has been assigned an identity.
func (r *Record) Persisted() bool { return r.ID() != 0 }

// Get returns the named attribute value, or nil when unset or undeclared.
func (r *Record) Get(name string) any {
	if !r.typ.HasAttribute(name) {
		return nil
	}
	return r.attrs[name]
}

// Set assigns the named attribute, coercing the value to its declared type.
// Unknown attributes are added to the schema when the type's config allows
// field creation, and dropped with a warning otherwise.
func (r *Record) Set(name string, value any) {
	if !r.typ.HasAttribute(name) {
		if !r.typ.config.CreateMissingFields {
			logger.Warn("unknown attribute dropped",
				zap.String("model", r.typ.name), zap.String("attribute", name))
			return
		}
		r.typ.AddAttribute(types.Attribute{Name: name, Type: inferAttrType(value)})
	}
	attr, _ := r.typ.Schema().Attribute(name)
	if value == nil {
		r.attrs[name] = nil
		return
	}
	r.attrs[name] = types.Coerce(attr.Type, value)
}

// Attributes returns a copy of the record's current attribute values.
func (r *Record) Attributes() types.Row { return r.attrs.Clone() }

// Serialize returns the record's persistent attributes as a row.
func (r *Record) Serialize() types.Row {
	out := types.Row{}
	for _, attr := range r.typ.Schema().Persistent() {
		if v, ok := r.attrs[attr.Name]; ok {
			out[attr.Name] = v
		}
	}
	return out
}

// ChangeSet returns the record's change tracker.
func (r *Record) ChangeSet() *ChangeSet { return r.changeSet }

// SetAssociated stages association values for the named relationship. The
// staged set is reconciled on the next save: targets are linked (unsaved ones
// saved first) and anything previously linked but absent is disassociated.
func (r *Record) SetAssociated(method string, records ...*Record) {
	r.staged[method] = append([]*Record(nil), records...)
}

// Related retrieves the currently linked records for the named relationship.
func (r *Record) Related(method string) ([]*Record, error) {
	rel := RelationshipFor(r.typ, method)
	if rel == nil {
		return nil, fmt.Errorf("no relationship %q on %s", method, r.typ.name)
	}
	return rel.Retrieve(r)
}

// RelatedOne retrieves the single linked record for a singular relationship.
func (r *Record) RelatedOne(method string) (*Record, error) {
	rel := RelationshipFor(r.typ, method)
	if rel == nil {
		return nil, fmt.Errorf("no relationship %q on %s", method, r.typ.name)
	}
	return rel.RetrieveOne(r)
}

// Validate runs the type's validations and returns the attribute to failure
// messages map. An empty map means the record is valid.
func (r *Record) Validate() map[string][]string {
	errs := map[string][]string{}
	for _, v := range r.typ.Validations() {
		if v.Valid(r) {
			continue
		}
		msgs := errs[v.Attribute()]
		if !contains(msgs, v.Message()) {
			errs[v.Attribute()] = append(msgs, v.Message())
		}
	}
	return errs
}

// Valid reports whether every declared validation passes.
func (r *Record) Valid() bool { return len(r.Validate()) == 0 }

// Save persists the record and reconciles its staged associations.
func (r *Record) Save() error { return r.save(false) }

// SaveWithoutAssociations persists the record but skips association
// reconciliation. Used by the association engine itself to avoid recursion
// when saving targets.
func (r *Record) SaveWithoutAssociations() error { return r.save(true) }

// save runs the fixed lifecycle: validate, uniqueness check, no-op check,
// adapter save, association cascade, reload, change-set reset.
func (r *Record) save(skipAssociations bool) error {
	logger.Debug("saving record",
		zap.String("model", r.typ.name), zap.Int64("id", r.ID()))

	if errs := r.Validate(); len(errs) > 0 {
		return &types.InvalidModelError{Model: r.typ.name, Errors: errs}
	}

	collides, remoteID, err := r.existsNotEqual()
	if err != nil {
		return err
	}
	if collides {
		if !r.typ.config.MergeIfExist {
			return &types.UniquenessError{Model: r.typ.name, UniqueBy: r.typ.config.UniqueBy}
		}
		r.attrs[types.FieldID] = remoteID
	}

	if !r.changeSet.Dirty() {
		return nil
	}
	changed := fieldNames(r.changeSet.Diff())

	now := time.Now().UTC().Truncate(time.Second)
	if ts, ok := types.AsTime(r.attrs[types.FieldCreatedAt]); !ok || ts.IsZero() {
		r.attrs[types.FieldCreatedAt] = now
	}
	r.attrs[types.FieldUpdatedAt] = now

	ds, err := r.typ.Dataset()
	if err != nil {
		return err
	}
	id, err := ds.Save(r.Serialize())
	if err != nil {
		return fmt.Errorf("saving %s: %w", r.typ.name, err)
	}
	r.attrs[types.FieldID] = id

	if !skipAssociations {
		if err := r.saveAssociations(); err != nil {
			return err
		}
	}

	if err := r.Refresh(); err != nil {
		return err
	}
	if r.typ.history != nil && len(changed) > 0 {
		r.typ.history(r, changed)
	}
	return nil
}

// saveAssociations reconciles every staged association set: unsaved targets
// are saved first, then the relationship links the full set.
func (r *Record) saveAssociations() error {
	for method, targets := range r.staged {
		rel := RelationshipFor(r.typ, method)
		if rel == nil {
			return fmt.Errorf("no relationship %q on %s", method, r.typ.name)
		}
		resolved := make([]any, 0, len(targets))
		for _, target := range targets {
			if target == nil {
				continue
			}
			if !target.Persisted() {
				if err := target.SaveWithoutAssociations(); err != nil {
					return err
				}
			}
			resolved = append(resolved, target)
		}
		if err := rel.Associate(r, resolved...); err != nil {
			return err
		}
	}
	r.staged = map[string][]*Record{}
	return nil
}

// Update assigns the given attributes and saves. Unknown attributes follow
// Set's field-creation rules.
func (r *Record) Update(params types.Row) error {
	for name, value := range params {
		r.Set(name, value)
	}
	return r.Save()
}

// Refresh reloads the record's attributes from the backend, normalizing any
// adapter-side transformations, and resets the change-set.
func (r *Record) Refresh() error {
	if !r.Persisted() {
		return nil
	}
	fresh, err := r.typ.Find(r.ID())
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("refreshing %s %d: %w", r.typ.name, r.ID(), types.ErrNotFound)
	}
	r.attrs = fresh.attrs
	r.changeSet.Reset()
	return nil
}

// Delete cascades to associated records per each relationship's cascade flag,
// then removes the record from its backend. Cascade failures are accumulated
// best-effort: one failing relationship does not stop the rest, but the call
// reports the aggregate failure. A failing backend delete is reported
// immediately.
func (r *Record) Delete() error {
	logger.Debug("deleting record",
		zap.String("model", r.typ.name), zap.Int64("id", r.ID()))

	var cascadeErrs []error
	for _, rel := range RelationshipsFor(r.typ) {
		if err := rel.DeleteCascade(r); err != nil {
			cascadeErrs = append(cascadeErrs, fmt.Errorf("cascading %s.%s: %w", r.typ.name, rel.MethodName, err))
		}
	}

	ds, err := r.typ.Dataset()
	if err != nil {
		return err
	}
	if err := ds.Delete(r.ID()); err != nil {
		return fmt.Errorf("deleting %s %d: %w", r.typ.name, r.ID(), err)
	}
	return errors.Join(cascadeErrs...)
}

// Exists reports whether the backend holds a record matching this one's
// uniqueness key set. The match is by logical identity, not necessarily id.
func (r *Record) Exists() (bool, error) {
	return r.typ.Exists(r.uniqueByQuery())
}

// existsNotEqual reports whether a record matching this one's uniqueness key
// set exists under a different identity, returning that identity. This is how
// save detects the need for a merge or a uniqueness conflict.
func (r *Record) existsNotEqual() (bool, int64, error) {
	item, err := r.typ.Find(r.uniqueByQuery())
	if err != nil {
		return false, 0, err
	}
	if item == nil || sameRecord(item, r) {
		return false, 0, nil
	}
	return true, item.ID(), nil
}

// uniqueByQuery builds the existence query from the type's UniqueBy config.
func (r *Record) uniqueByQuery() types.Query {
	q := types.Query{}
	for _, field := range r.typ.config.UniqueBy {
		q[field] = r.attrs[field]
	}
	return q
}

// Title returns the record's display label for form descriptors: the
// configured title field when set, otherwise "<model> <id>".
func (r *Record) Title() string {
	if v := r.Get(r.typ.config.TitleField); v != nil {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%s %d", r.typ.name, r.ID())
}

// matchesSearch implements the portable search fallback over searchable
// attributes.
func (r *Record) matchesSearch(query string) bool {
	for _, attr := range r.typ.Schema().Attributes {
		if !attr.Searchable {
			continue
		}
		v := r.attrs[attr.Name]
		if v == nil {
			continue
		}
		switch attr.Type {
		case types.Int, types.Float:
			if types.Equal(v, query) {
				return true
			}
		case types.Bool:
			// Bool fields are not searchable.
		default:
			if types.MatchValue(v, types.Pattern(query)) {
				return true
			}
		}
	}
	return false
}

// sameRecord reports whether two records denote the same persisted entity:
// same type and same non-zero id, or the same in-memory object.
func sameRecord(a, b *Record) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	return a.typ == b.typ && a.ID() != 0 && a.ID() == b.ID()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fieldNames(row types.Row) []string {
	out := make([]string, 0, len(row))
	for k := range row {
		out = append(out, k)
	}
	return out
}
