package model

import (
	"fmt"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Kind enumerates the five relationship variants. The set is closed: every
// operation dispatches on the tag rather than open-ended subtyping.
type Kind int

const (
	OneToOne Kind = iota
	OneToMany
	ManyToOne
	ManyToMany
	OneThroughOne
)

// String returns the snake_case name of the relationship kind.
func (k Kind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToOne:
		return "many_to_one"
	case ManyToMany:
		return "many_to_many"
	case OneThroughOne:
		return "one_through_one"
	default:
		return "unknown"
	}
}

// Relationship describes a directed link from one dataset to another.
// From/To are required and immutable after construction; the referenced type
// handles resolve lazily so relationships can be declared before their target
// types exist. Two relationships are equal iff they share kind, owner
// dataset, and method name.
type Relationship struct {
	Kind      Kind
	From      string // owner dataset
	To        string // target dataset
	Attribute string // field read on the source side of the join
	Column    string // field read on the target side of the join

	// MethodName is the accessor name installed on the owner type; it keys
	// the relationship in the registry.
	MethodName string

	Singular   bool
	Cascade    bool
	ForeignKey bool // OneToOne: the owner side holds the FK
	Forms      bool // participate in form descriptors

	// Join-type fields (ManyToMany and OneThroughOne only).
	Through          string
	ThroughAttribute string
	ThroughColumn    string

	// inferredThroughAttr/Col record that the join FK names were derived by
	// convention rather than declared; inferred names get helper
	// relationships registered from the join type back to each side.
	inferredThroughAttr bool
	inferredThroughCol  bool
}

// Option adjusts a relationship during construction.
type Option func(*Relationship)

// WithAttribute overrides the source-side join field.
func WithAttribute(name string) Option { return func(r *Relationship) { r.Attribute = name } }

// WithColumn overrides the target-side join field.
func WithColumn(name string) Option { return func(r *Relationship) { r.Column = name } }

// WithMethodName overrides the accessor name installed on the owner type.
func WithMethodName(name string) Option { return func(r *Relationship) { r.MethodName = name } }

// WithCascade overrides the kind's default cascade behavior. ManyToMany and
// ManyToOne never cascade regardless of this flag.
func WithCascade(cascade bool) Option { return func(r *Relationship) { r.Cascade = cascade } }

// WithForeignKey puts the foreign key on the owner side of a OneToOne.
func WithForeignKey(owner bool) Option { return func(r *Relationship) { r.ForeignKey = owner } }

// WithForms toggles participation in form descriptors.
func WithForms(forms bool) Option { return func(r *Relationship) { r.Forms = forms } }

// WithThroughAttribute declares the join type's FK field pointing at the
// owner side.
func WithThroughAttribute(name string) Option {
	return func(r *Relationship) { r.ThroughAttribute = name }
}

// WithThroughColumn declares the join type's FK field pointing at the target
// side.
func WithThroughColumn(name string) Option {
	return func(r *Relationship) { r.ThroughColumn = name }
}

// NewRelationship constructs a relationship of the given kind with the
// kind-conventional defaults applied, then the options, then the derived
// join-field names. through is required for ManyToMany and OneThroughOne and
// must be empty otherwise.
func NewRelationship(kind Kind, from, to, through string, opts ...Option) (*Relationship, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("relationship requires from and to datasets")
	}
	r := &Relationship{Kind: kind, From: from, To: to, Through: through}

	switch kind {
	case OneToOne:
		r.Singular, r.Cascade, r.Forms = true, true, true
	case OneToMany:
		r.Singular, r.Cascade, r.Forms = false, false, false
	case ManyToOne:
		r.Singular, r.Cascade, r.Forms = true, false, true
	case ManyToMany:
		r.Singular, r.Cascade, r.Forms = false, false, true
	case OneThroughOne:
		r.Singular, r.Cascade, r.Forms = true, true, true
	default:
		return nil, fmt.Errorf("unknown relationship kind %d", kind)
	}

	for _, opt := range opts {
		opt(r)
	}

	joined := kind == ManyToMany || kind == OneThroughOne
	if joined && r.Through == "" {
		return nil, fmt.Errorf("%s relationship from %s to %s requires a join dataset", kind, from, to)
	}
	if !joined && r.Through != "" {
		return nil, fmt.Errorf("%s relationship does not take a join dataset", kind)
	}

	if r.MethodName == "" {
		if r.Singular {
			r.MethodName = Singularize(to)
		} else {
			r.MethodName = to
		}
	}
	if r.Attribute == "" {
		switch {
		case kind == OneToOne && r.ForeignKey, kind == ManyToOne:
			r.Attribute = foreignKey(to)
		case kind == OneToOne:
			r.Attribute = types.FieldID
		default:
			r.Attribute = types.FieldID
		}
	}
	if r.Column == "" {
		switch {
		case kind == OneToOne && !r.ForeignKey:
			r.Column = foreignKey(from)
		case kind == OneToMany:
			r.Column = foreignKey(from)
		default:
			r.Column = types.FieldID
		}
	}
	if joined {
		if r.ThroughAttribute == "" {
			r.ThroughAttribute = foreignKey(from)
			r.inferredThroughAttr = true
		}
		if r.ThroughColumn == "" {
			r.ThroughColumn = foreignKey(to)
			r.inferredThroughCol = true
		}
	}
	return r, nil
}

// Equal reports registry identity: same kind, owner dataset, and method name.
func (r *Relationship) Equal(o *Relationship) bool {
	return o != nil && r.Kind == o.Kind && r.From == o.From && r.MethodName == o.MethodName
}

// Opposite synthesizes the inverse relationship: From/To and
// Attribute/Column swapped, kind flipped per variant. It is a pure function
// of the receiver and performs no registry mutation.
func (r *Relationship) Opposite() (*Relationship, error) {
	swap := []Option{WithAttribute(r.Column), WithColumn(r.Attribute)}
	switch r.Kind {
	case OneToOne:
		return NewRelationship(OneToOne, r.To, r.From, "",
			append(swap, WithForeignKey(!r.ForeignKey))...)
	case OneToMany:
		return NewRelationship(ManyToOne, r.To, r.From, "", swap...)
	case ManyToOne:
		return NewRelationship(OneToMany, r.To, r.From, "", swap...)
	case ManyToMany:
		return NewRelationship(ManyToMany, r.To, r.From, r.Through, swap...)
	case OneThroughOne:
		return NewRelationship(OneThroughOne, r.To, r.From, r.Through, swap...)
	default:
		return nil, fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

// Model resolves the target type handle.
func (r *Relationship) Model() (*Type, error) {
	t := TypeFor(r.To)
	if t == nil {
		return nil, fmt.Errorf("no type declared for dataset %q", r.To)
	}
	return t, nil
}

// ThroughModel resolves the join type handle.
func (r *Relationship) ThroughModel() (*Type, error) {
	t := TypeFor(r.Through)
	if t == nil {
		return nil, fmt.Errorf("no type declared for join dataset %q", r.Through)
	}
	return t, nil
}

// ownerType resolves the owner type handle.
func (r *Relationship) ownerType() (*Type, error) {
	t := TypeFor(r.From)
	if t == nil {
		return nil, fmt.Errorf("no type declared for dataset %q", r.From)
	}
	return t, nil
}

// requireTargetField surfaces schema mismatches at call time: the target type
// must declare the target-side join field.
func (r *Relationship) requireTargetField(target *Type, field string) error {
	if !target.HasAttribute(field) {
		return &types.InvalidAssociationError{From: r.From, To: target.Name(), Field: field}
	}
	return nil
}

// ensureOwnerField checks that the FK field exists on the owner side,
// auto-creating it as an integer attribute when the owner's config allows.
func (r *Relationship) ensureOwnerField(owner *Type, field string) error {
	if owner.HasAttribute(field) {
		return nil
	}
	if !owner.Config().CreateMissingFields {
		return &types.InvalidAssociationError{From: r.To, To: owner.Name(), Field: field}
	}
	owner.AddAttribute(types.Attribute{Name: field, Type: types.Int})
	return nil
}

// resolveTarget accepts an already-hydrated record or a raw identifier.
func (r *Relationship) resolveTarget(v any) (*Record, error) {
	if rec, ok := v.(*Record); ok {
		return rec, nil
	}
	m, err := r.Model()
	if err != nil {
		return nil, err
	}
	rec, err := m.Find(v)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("associating %s: target %v: %w", r.MethodName, v, types.ErrNotFound)
	}
	return rec, nil
}

// orient returns (a, b) ordered so that a belongs to the owner dataset. Both
// orders are accepted for symmetric checks on joined relationships.
func (r *Relationship) orient(a, b *Record) (*Record, *Record) {
	if a.Type().DatasetName() == r.To && b.Type().DatasetName() == r.From {
		return b, a
	}
	return a, b
}

// Retrieve returns the currently linked records. A record with no identity
// yet has no links: the result is empty without touching the backend.
func (r *Relationship) Retrieve(a *Record) ([]*Record, error) {
	if a == nil || !a.Persisted() {
		return nil, nil
	}
	m, err := r.Model()
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case OneToOne, ManyToOne:
		if r.Kind == ManyToOne || r.ForeignKey {
			if err := r.ensureOwnerField(a.Type(), r.Attribute); err != nil {
				return nil, err
			}
		}
		if err := r.requireTargetField(m, r.Column); err != nil {
			return nil, err
		}
		rec, err := m.Find(types.Query{r.Column: a.Get(r.Attribute)})
		if err != nil || rec == nil {
			return nil, err
		}
		return []*Record{rec}, nil

	case OneToMany:
		if err := r.requireTargetField(m, r.Column); err != nil {
			return nil, err
		}
		return m.FindAll(types.Query{r.Column: a.Get(r.Attribute)})

	case ManyToMany:
		ids, err := r.joinedIDs(a)
		if err != nil || len(ids) == 0 {
			return nil, err
		}
		return m.FindAll(types.Query{r.Column: types.In(ids)})

	case OneThroughOne:
		through, err := r.ThroughModel()
		if err != nil {
			return nil, err
		}
		join, err := through.Find(types.Query{r.ThroughAttribute: a.Get(r.Attribute)})
		if err != nil || join == nil {
			return nil, err
		}
		rec, err := m.Find(types.Query{r.Column: join.Get(r.ThroughColumn)})
		if err != nil || rec == nil {
			return nil, err
		}
		return []*Record{rec}, nil

	default:
		return nil, fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

// RetrieveOne returns the single linked record of a singular relationship,
// or nil.
func (r *Relationship) RetrieveOne(a *Record) (*Record, error) {
	linked, err := r.Retrieve(a)
	if err != nil || len(linked) == 0 {
		return nil, err
	}
	return linked[0], nil
}

// joinedIDs returns the deduplicated target-side ids present in join records
// for the owner.
func (r *Relationship) joinedIDs(a *Record) ([]any, error) {
	through, err := r.ThroughModel()
	if err != nil {
		return nil, err
	}
	joins, err := through.FindAll(types.Query{r.ThroughAttribute: a.Get(r.Attribute)})
	if err != nil {
		return nil, err
	}
	var ids []any
	for _, join := range joins {
		v := join.Get(r.ThroughColumn)
		if v == nil {
			continue
		}
		dup := false
		for _, existing := range ids {
			if types.Equal(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, v)
		}
	}
	return ids, nil
}

// Associated reports whether a and b are currently linked under this
// relationship's join rule. Never true when a and b are the same record.
func (r *Relationship) Associated(a, b *Record) (bool, error) {
	if a == nil || b == nil || sameRecord(a, b) {
		return false, nil
	}
	a, b = r.orient(a, b)
	switch r.Kind {
	case OneToOne:
		rec, err := r.RetrieveOne(a)
		if err != nil {
			return false, err
		}
		return sameRecord(rec, b), nil

	case OneToMany:
		return a.Get(r.Attribute) != nil && types.Equal(b.Get(r.Column), a.Get(r.Attribute)), nil

	case ManyToOne:
		return a.Get(r.Attribute) != nil && types.Equal(a.Get(r.Attribute), b.Get(r.Column)), nil

	case ManyToMany:
		return r.joinExists(a, b)

	case OneThroughOne:
		exists, err := r.joinExists(a, b)
		if err != nil || !exists {
			return false, err
		}
		rec, err := r.RetrieveOne(a)
		if err != nil {
			return false, err
		}
		return sameRecord(rec, b), nil

	default:
		return false, fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

func (r *Relationship) joinExists(a, b *Record) (bool, error) {
	through, err := r.ThroughModel()
	if err != nil {
		return false, err
	}
	join, err := through.Find(types.Query{
		r.ThroughAttribute: a.Get(r.Attribute),
		r.ThroughColumn:    b.Get(r.Column),
	})
	if err != nil {
		return false, err
	}
	return join != nil, nil
}

// Associate establishes the link between a and the targets, replacing any
// prior link not present in targets. Singular relationships take exactly one
// target and silently drop the pre-existing counterpart link; plural
// relationships reconcile the full target set. Targets may be records or raw
// identifiers.
func (r *Relationship) Associate(a *Record, targets ...any) error {
	if a == nil {
		return fmt.Errorf("associate requires an owner record")
	}
	if r.Singular && len(targets) > 1 {
		return fmt.Errorf("%s relationship %s.%s takes a single target", r.Kind, r.From, r.MethodName)
	}

	resolved := make([]*Record, 0, len(targets))
	for _, t := range targets {
		if t == nil {
			continue
		}
		rec, err := r.resolveTarget(t)
		if err != nil {
			return err
		}
		resolved = append(resolved, rec)
	}

	switch r.Kind {
	case OneToOne:
		return r.associateOneToOne(a, resolved)
	case ManyToOne:
		return r.associateManyToOne(a, resolved)
	case OneToMany:
		return r.associateOneToMany(a, resolved)
	case ManyToMany:
		return r.associateManyToMany(a, resolved)
	case OneThroughOne:
		return r.associateOneThroughOne(a, resolved)
	default:
		return fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

func (r *Relationship) associateOneToOne(a *Record, targets []*Record) error {
	if len(targets) == 0 {
		return r.DisassociateAll(a)
	}
	b := targets[0]
	if ok, err := r.Associated(a, b); err != nil || ok {
		return err
	}
	if err := r.DisassociateAll(a); err != nil {
		return err
	}
	if r.ForeignKey {
		if err := r.ensureOwnerField(a.Type(), r.Attribute); err != nil {
			return err
		}
		return a.Update(types.Row{r.Attribute: b.Get(r.Column)})
	}
	m, err := r.Model()
	if err != nil {
		return err
	}
	if err := r.ensureOwnerField(m, r.Column); err != nil {
		return err
	}
	return b.Update(types.Row{r.Column: a.Get(r.Attribute)})
}

func (r *Relationship) associateManyToOne(a *Record, targets []*Record) error {
	if len(targets) == 0 {
		return r.DisassociateAll(a)
	}
	b := targets[0]
	if err := r.ensureOwnerField(a.Type(), r.Attribute); err != nil {
		return err
	}
	if ok, err := r.Associated(a, b); err != nil || ok {
		return err
	}
	return a.Update(types.Row{r.Attribute: b.Get(r.Column)})
}

func (r *Relationship) associateOneToMany(a *Record, targets []*Record) error {
	current, err := r.Retrieve(a)
	if err != nil {
		return err
	}
	for _, existing := range current {
		if !containsRecord(targets, existing) {
			if err := r.Disassociate(a, existing); err != nil {
				return err
			}
		}
	}
	for _, b := range targets {
		ok, err := r.Associated(a, b)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := b.Update(types.Row{r.Column: a.Get(r.Attribute)}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relationship) associateManyToMany(a *Record, targets []*Record) error {
	through, err := r.ThroughModel()
	if err != nil {
		return err
	}
	current, err := r.Retrieve(a)
	if err != nil {
		return err
	}
	for _, b := range targets {
		ok, err := r.Associated(a, b)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		_, err = through.Create(types.Row{
			r.ThroughAttribute: a.Get(r.Attribute),
			r.ThroughColumn:    b.Get(r.Column),
		})
		if err != nil {
			return err
		}
	}
	for _, existing := range current {
		if !containsRecord(targets, existing) {
			if err := r.Disassociate(a, existing); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Relationship) associateOneThroughOne(a *Record, targets []*Record) error {
	if len(targets) == 0 {
		return r.DisassociateAll(a)
	}
	b := targets[0]
	ok, err := r.Associated(a, b)
	if err != nil || ok {
		return err
	}
	through, err := r.ThroughModel()
	if err != nil {
		return err
	}
	// Uniqueness on both sides: clear every join touching either record
	// before creating the new link.
	if err := r.deleteJoins(through, types.Query{r.ThroughAttribute: a.Get(r.Attribute)}); err != nil {
		return err
	}
	if err := r.deleteJoins(through, types.Query{r.ThroughColumn: b.Get(r.Column)}); err != nil {
		return err
	}
	_, err = through.Create(types.Row{
		r.ThroughAttribute: a.Get(r.Attribute),
		r.ThroughColumn:    b.Get(r.Column),
	})
	return err
}

// Disassociate removes exactly the link between a and b. Removing a link
// that does not exist is a no-op success.
func (r *Relationship) Disassociate(a, b *Record) error {
	if a == nil || b == nil {
		return nil
	}
	a, b = r.orient(a, b)
	switch r.Kind {
	case OneToOne:
		if r.ForeignKey {
			owner, err := r.ownerType()
			if err != nil {
				return err
			}
			return clearField(owner, r.Attribute, b.Get(r.Column))
		}
		m, err := r.Model()
		if err != nil {
			return err
		}
		return clearField(m, r.Column, a.Get(r.Attribute))

	case ManyToOne:
		ok, err := r.Associated(a, b)
		if err != nil || !ok {
			return err
		}
		return a.Update(types.Row{r.Attribute: nil})

	case OneToMany:
		ok, err := r.Associated(a, b)
		if err != nil || !ok {
			return err
		}
		return b.Update(types.Row{r.Column: nil})

	case ManyToMany:
		through, err := r.ThroughModel()
		if err != nil {
			return err
		}
		return r.deleteJoins(through, types.Query{
			r.ThroughAttribute: a.Get(r.Attribute),
			r.ThroughColumn:    b.Get(r.Column),
		})

	case OneThroughOne:
		through, err := r.ThroughModel()
		if err != nil {
			return err
		}
		if err := r.deleteJoins(through, types.Query{r.ThroughAttribute: a.Get(r.Attribute)}); err != nil {
			return err
		}
		return r.deleteJoins(through, types.Query{r.ThroughColumn: b.Get(r.Column)})

	default:
		return fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

// DisassociateAll removes every link the owner currently holds under this
// relationship.
func (r *Relationship) DisassociateAll(a *Record) error {
	linked, err := r.Retrieve(a)
	if err != nil {
		return err
	}
	for _, b := range linked {
		if err := r.Disassociate(a, b); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCascade is the hook invoked when the owner is deleted. ManyToMany
// never deletes targets but removes the owner's join rows; ManyToOne never
// touches the target at all. The other kinds delete linked records when their
// cascade flag is set.
func (r *Relationship) DeleteCascade(a *Record) error {
	switch r.Kind {
	case ManyToMany:
		return r.DisassociateAll(a)
	case ManyToOne:
		return nil
	}
	if !r.Cascade {
		return nil
	}
	switch r.Kind {
	case OneToOne:
		if r.ForeignKey {
			// The FK lives on the deleted record; nothing to cascade.
			return nil
		}
		rec, err := r.RetrieveOne(a)
		if err != nil || rec == nil {
			return err
		}
		return rec.Delete()

	case OneToMany:
		linked, err := r.Retrieve(a)
		if err != nil {
			return err
		}
		for _, rec := range linked {
			if err := rec.Delete(); err != nil {
				return err
			}
		}
		return nil

	case OneThroughOne:
		rec, err := r.RetrieveOne(a)
		if err != nil {
			return err
		}
		// Remove the join rows first so the target's own cascade cannot
		// loop back through them.
		if err := r.DisassociateAll(a); err != nil {
			return err
		}
		if rec != nil {
			return rec.Delete()
		}
		return nil

	default:
		return fmt.Errorf("unknown relationship kind %d", r.Kind)
	}
}

// deleteJoins removes every join record matching the query.
func (r *Relationship) deleteJoins(through *Type, q types.Query) error {
	joins, err := through.FindAll(q)
	if err != nil {
		return err
	}
	for _, join := range joins {
		if err := join.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// clearField nulls the field on every record of t currently holding the
// value.
func clearField(t *Type, field string, value any) error {
	if value == nil {
		return nil
	}
	matches, err := t.FindAll(types.Query{field: value})
	if err != nil {
		return err
	}
	for _, rec := range matches {
		if err := rec.Update(types.Row{field: nil}); err != nil {
			return err
		}
	}
	return nil
}

func containsRecord(list []*Record, r *Record) bool {
	for _, item := range list {
		if sameRecord(item, r) {
			return true
		}
	}
	return false
}
