package model

// Validation is the pluggable predicate contract consumed by the save
// lifecycle. Concrete rule types live outside the core.
type Validation interface {
	// Attribute is the field this validation constrains.
	Attribute() string

	// Message is the human-readable failure description.
	Message() string

	// Valid reports whether the record satisfies the constraint.
	Valid(r *Record) bool
}

// ValidationFunc adapts a plain predicate into a Validation.
type ValidationFunc struct {
	Attr string
	Msg  string
	Fn   func(r *Record) bool
}

func (v ValidationFunc) Attribute() string    { return v.Attr }
func (v ValidationFunc) Message() string      { return v.Msg }
func (v ValidationFunc) Valid(r *Record) bool { return v.Fn(r) }
