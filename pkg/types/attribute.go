package types

// AttrType enumerates the declared types an attribute can carry. Adapters map
// these to the most specific native column type their backend offers.
type AttrType int

const (
	String AttrType = iota
	Text
	Int
	Float
	Bool
	Time
	Date
	List
	Map
)

// String returns the lower-case name of the attribute type.
func (t AttrType) String() string {
	switch t {
	case String:
		return "string"
	case Text:
		return "text"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case Date:
		return "date"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Attribute describes one declared field of a record type. The full attribute
// list is produced up front at type declaration; adapters reconcile it against
// the live dataset before the first query.
type Attribute struct {
	Name       string
	Type       AttrType
	Default    any
	Required   bool
	Searchable bool
	// Transient attributes live only in memory and are never written to the
	// backend.
	Transient bool
}

// Schema is the typed attribute-descriptor list for one dataset.
type Schema struct {
	Name       string
	Attributes []Attribute
}

// Attribute returns the descriptor with the given name, or false.
func (s *Schema) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Has reports whether the schema declares an attribute with the given name.
func (s *Schema) Has(name string) bool {
	_, ok := s.Attribute(name)
	return ok
}

// Persistent returns the attributes that are written to the backend.
func (s *Schema) Persistent() []Attribute {
	out := make([]Attribute, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		if !a.Transient {
			out = append(out, a)
		}
	}
	return out
}
