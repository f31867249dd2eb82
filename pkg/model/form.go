package model

import "github.com/mesh-intelligence/strata/pkg/types"

// ParticipatesInForms reports whether the relationship contributes a field to
// form descriptors. Plural ownership over a FK on the target side does not
// render as a field on the owner, so OneToMany defaults off; every other kind
// defaults on. The Forms flag overrides.
func (r *Relationship) ParticipatesInForms() bool { return r.Forms }

// FormField builds the form descriptor for the relationship as seen from the
// owner record: a select for singular kinds, a multi_select for plural ones,
// with options mapping every target id to its display title and the current
// value pre-selected.
func (r *Relationship) FormField(a *Record) (*types.FormField, error) {
	m, err := r.Model()
	if err != nil {
		return nil, err
	}
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	options := make(map[int64]string, len(all))
	for _, rec := range all {
		options[rec.ID()] = rec.Title()
	}

	field := &types.FormField{Name: r.MethodName, Options: options}
	linked, err := r.Retrieve(a)
	if err != nil {
		return nil, err
	}
	if r.Singular {
		field.Kind = types.FormSelect
		if len(linked) > 0 {
			field.Value = []int64{linked[0].ID()}
		}
	} else {
		field.Kind = types.FormMultiSelect
		ids := make([]int64, 0, len(linked))
		for _, rec := range linked {
			ids = append(ids, rec.ID())
		}
		field.Value = ids
	}
	return field, nil
}

// FormFields builds the form descriptors for a record: one entry per
// non-transient attribute is left to callers rendering schemas; this covers
// the relationship-backed fields only.
func FormFields(a *Record) ([]*types.FormField, error) {
	var out []*types.FormField
	for _, rel := range RelationshipsFor(a) {
		if !rel.ParticipatesInForms() {
			continue
		}
		field, err := rel.FormField(a)
		if err != nil {
			return nil, err
		}
		out = append(out, field)
	}
	return out, nil
}
