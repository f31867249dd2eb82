package model

import "github.com/mesh-intelligence/strata/pkg/types"

// ChangeSet tracks the delta between a record's last-persisted serialized
// form and its current in-memory form. It decides whether a save is a no-op
// and feeds the change-history hook.
type ChangeSet struct {
	record   *Record
	original types.Row
	previous types.Row
}

// newChangeSet snapshots the record's current serialized form as original.
func newChangeSet(r *Record) *ChangeSet {
	cs := &ChangeSet{record: r, previous: types.Row{}}
	cs.original = r.Serialize()
	return cs
}

// Diff returns the attributes whose current value differs from the original
// snapshot. For a record that does not yet exist in storage the full
// serialized form is returned.
func (c *ChangeSet) Diff() types.Row {
	current := c.record.Serialize()
	if !c.record.Persisted() {
		return current
	}
	diff := types.Row{}
	for k, v := range current {
		if !types.Equal(v, c.original[k]) {
			diff[k] = v
		}
	}
	for k, v := range c.original {
		if _, ok := current[k]; !ok && v != nil {
			diff[k] = nil
		}
	}
	return diff
}

// Dirty reports whether the record has pending changes: a non-empty diff, or
// staged association values that differ from what a freshly reloaded copy of
// the record would report.
func (c *ChangeSet) Dirty() bool {
	if !c.record.Persisted() {
		return true
	}
	if len(c.Diff()) > 0 {
		return true
	}
	return c.associationsChanged()
}

// Original returns the snapshot taken at construction or last save.
func (c *ChangeSet) Original() types.Row { return c.original.Clone() }

// Previous returns the pre-save values of the fields changed by the last
// committed save.
func (c *ChangeSet) Previous() types.Row { return c.previous.Clone() }

// Reset commits the current state as the new original snapshot, remembering
// the displaced values of changed fields in Previous.
func (c *ChangeSet) Reset() {
	diff := c.Diff()
	prev := types.Row{}
	for k := range diff {
		prev[k] = c.original[k]
	}
	c.previous = prev
	c.original = c.record.Serialize()
}

// associationsChanged compares each staged association set against the
// currently linked records in the backend.
func (c *ChangeSet) associationsChanged() bool {
	if !c.record.Persisted() {
		// A new record's diff is its full serialization; staged values do
		// not need a separate signal.
		return len(c.record.staged) > 0
	}
	for method, staged := range c.record.staged {
		rel := RelationshipFor(c.record.typ, method)
		if rel == nil {
			continue
		}
		current, err := rel.Retrieve(c.record)
		if err != nil {
			return true
		}
		if !sameRecordSet(staged, current) {
			return true
		}
	}
	return false
}

// sameRecordSet compares two record sets by identity, ignoring order.
func sameRecordSet(a, b []*Record) bool {
	if len(a) != len(b) {
		return false
	}
	for _, ra := range a {
		found := false
		for _, rb := range b {
			if sameRecord(ra, rb) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
