package types

// Form field kinds emitted for associations that participate in forms.
const (
	FormSelect      = "select"
	FormMultiSelect = "multi_select"
)

// FormField is the descriptor handed to a form-rendering collaborator for one
// association: a single- or multi-select over the associated type's records.
type FormField struct {
	Name    string
	Kind    string
	Value   any
	Options map[int64]string
}
