package model

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// HistoryFunc is the change-history collaborator hook: it receives the names
// of the fields that changed on every successful save with a non-empty diff.
type HistoryFunc func(r *Record, changed []string)

// Definition describes a record type to declare. Name is required; everything
// else has conventional defaults (PluralName and DatasetName derived from
// Name, DefaultConfig, the primary database).
type Definition struct {
	Name        string
	PluralName  string
	DatasetName string
	Attributes  []types.Attribute
	Config      *Config
	Validations []Validation
	DB          types.Adapter
	History     HistoryFunc
}

// Type is a declared record type bound to a dataset. All query operations run
// against the adapter the type resolves to: its explicit binding if set,
// otherwise the primary database at call time.
type Type struct {
	mu          sync.Mutex
	name        string
	pluralName  string
	datasetName string
	schema      *types.Schema
	config      Config
	validations []Validation
	db          types.Adapter
	history     HistoryFunc
}

// Declare registers a record type. The identity and timestamp attributes
// (id, created_at, updated_at) are added when absent.
func Declare(def Definition) (*Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("type declaration requires a name")
	}

	plural := def.PluralName
	if plural == "" {
		plural = Pluralize(def.Name)
	}
	dataset := def.DatasetName
	if dataset == "" {
		dataset = plural
	}

	cfg := DefaultConfig()
	if def.Config != nil {
		cfg = *def.Config
		if len(cfg.UniqueBy) == 0 {
			cfg.UniqueBy = []string{types.FieldID}
		}
		if cfg.TitleField == "" {
			cfg.TitleField = "name"
		}
	}

	t := &Type{
		name:        def.Name,
		pluralName:  plural,
		datasetName: dataset,
		schema:      &types.Schema{Name: dataset, Attributes: withReservedAttributes(def.Attributes)},
		config:      cfg,
		validations: append([]Validation(nil), def.Validations...),
		db:          def.DB,
		history:     def.History,
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if frozen {
		return nil, types.ErrRegistryFrozen
	}
	if existing, ok := typesByName[dataset]; ok {
		return existing, fmt.Errorf("dataset %q is already declared", dataset)
	}
	typesByName[dataset] = t

	logger.Debug("declared type",
		zap.String("model", t.name),
		zap.String("dataset", dataset),
		zap.Int("attributes", len(t.schema.Attributes)))
	return t, nil
}

// withReservedAttributes prepends id/created_at/updated_at when missing.
func withReservedAttributes(attrs []types.Attribute) []types.Attribute {
	has := func(name string) bool {
		for _, a := range attrs {
			if a.Name == name {
				return true
			}
		}
		return false
	}
	out := make([]types.Attribute, 0, len(attrs)+3)
	if !has(types.FieldID) {
		out = append(out, types.Attribute{Name: types.FieldID, Type: types.Int})
	}
	if !has(types.FieldCreatedAt) {
		out = append(out, types.Attribute{Name: types.FieldCreatedAt, Type: types.Time})
	}
	if !has(types.FieldUpdatedAt) {
		out = append(out, types.Attribute{Name: types.FieldUpdatedAt, Type: types.Time})
	}
	return append(out, attrs...)
}

// Name returns the singular model name.
func (t *Type) Name() string { return t.name }

// PluralName returns the plural model name.
func (t *Type) PluralName() string { return t.pluralName }

// DatasetName returns the backing dataset name.
func (t *Type) DatasetName() string { return t.datasetName }

// Config returns the type's behavior configuration.
func (t *Type) Config() Config { return t.config }

// Schema returns the type's attribute descriptor list.
func (t *Type) Schema() *types.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema
}

// HasAttribute reports whether the type declares the named attribute.
func (t *Type) HasAttribute(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema.Has(name)
}

// AddAttribute appends an attribute to the type's schema. Used by the
// association engine to auto-create missing foreign-key fields when the
// type's config allows it.
func (t *Type) AddAttribute(attr types.Attribute) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema.Has(attr.Name) {
		return
	}
	attrs := append(append([]types.Attribute(nil), t.schema.Attributes...), attr)
	t.schema = &types.Schema{Name: t.schema.Name, Attributes: attrs}
}

// AddValidation appends a validation to the type.
func (t *Type) AddValidation(v Validation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.validations = append(t.validations, v)
}

// Validations returns the type's declared validations.
func (t *Type) Validations() []Validation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Validation(nil), t.validations...)
}

// DB returns the adapter this type persists through: the explicit binding
// when set, otherwise the primary database.
func (t *Type) DB() types.Adapter {
	if t.db != nil {
		return t.db
	}
	return database.Primary()
}

// Dataset resolves the type's backend dataset accessor.
func (t *Type) Dataset() (types.Dataset, error) {
	db := t.DB()
	if db == nil {
		return nil, types.ErrNoDatabase
	}
	return db.Dataset(t.datasetName, t.Schema())
}

// New constructs an in-memory record with attribute defaults applied and the
// given values overlaid. Unknown fields are added to the schema when the
// type's config allows field creation, and dropped with a warning otherwise.
func (t *Type) New(attrs types.Row) *Record {
	row := types.Row{}
	for _, attr := range t.Schema().Attributes {
		if attr.Default != nil {
			row[attr.Name] = types.Coerce(attr.Type, attr.Default)
		}
	}
	for name, value := range attrs {
		if !t.HasAttribute(name) {
			if !t.config.CreateMissingFields {
				logger.Warn("unknown attribute dropped",
					zap.String("model", t.name), zap.String("attribute", name))
				continue
			}
			t.AddAttribute(types.Attribute{Name: name, Type: inferAttrType(value)})
		}
		attr, _ := t.Schema().Attribute(name)
		row[name] = types.Coerce(attr.Type, value)
	}

	r := &Record{typ: t, attrs: row, staged: map[string][]*Record{}}
	r.changeSet = newChangeSet(r)
	return r
}

// hydrate builds a record from a backend row, normalizing stored values to
// their declared types.
func (t *Type) hydrate(row types.Row) *Record {
	if row == nil {
		return nil
	}
	r := &Record{typ: t, attrs: types.CoerceRow(row.Clone(), t.Schema()), staged: map[string][]*Record{}}
	r.changeSet = newChangeSet(r)
	return r
}

func (t *Type) hydrateAll(rows []types.Row) []*Record {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, t.hydrate(row))
	}
	return out
}

// asQuery accepts either a single identifier or a field query.
func asQuery(query any) (types.Query, error) {
	switch q := query.(type) {
	case types.Query:
		return q, nil
	case map[string]any:
		return types.Query(q), nil
	case int:
		return types.ByID(int64(q)), nil
	case int64:
		return types.ByID(q), nil
	case nil:
		return types.Query{}, nil
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrInvalidFilter, query)
	}
}

// Find returns the first record matching the query (an id or a field map).
// Returns (nil, nil) when nothing matches.
func (t *Type) Find(query any) (*Record, error) {
	q, err := asQuery(query)
	if err != nil {
		return nil, err
	}
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	row, err := ds.Find(q)
	if err == types.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.hydrate(row), nil
}

// FindAll returns every record matching the query.
func (t *Type) FindAll(q types.Query) ([]*Record, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	rows, err := ds.FindAll(q)
	if err != nil {
		return nil, err
	}
	return t.hydrateAll(rows), nil
}

// All returns every record in the dataset.
func (t *Type) All() ([]*Record, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	rows, err := ds.All()
	if err != nil {
		return nil, err
	}
	return t.hydrateAll(rows), nil
}

// First returns the record with the lowest id, or nil.
func (t *Type) First() (*Record, error) {
	all, err := t.sortedAll()
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// Last returns the record with the highest id, or nil.
func (t *Type) Last() (*Record, error) {
	all, err := t.sortedAll()
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[len(all)-1], nil
}

func (t *Type) sortedAll() ([]*Record, error) {
	all, err := t.All()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	return all, nil
}

// Count returns the number of matching records.
func (t *Type) Count(q types.Query) (int64, error) {
	ds, err := t.Dataset()
	if err != nil {
		return 0, err
	}
	return ds.Count(q)
}

// Sum totals a numeric field across matching records.
func (t *Type) Sum(field string, q types.Query) (float64, error) {
	ds, err := t.Dataset()
	if err != nil {
		return 0, err
	}
	return ds.Sum(field, q)
}

// Average computes the mean of a numeric field across matching records.
func (t *Type) Average(field string, q types.Query) (float64, error) {
	ds, err := t.Dataset()
	if err != nil {
		return 0, err
	}
	return ds.Average(field, q)
}

// Min returns the smallest value of the field across matching records.
func (t *Type) Min(field string, q types.Query) (any, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	return ds.Min(field, q)
}

// Max returns the largest value of the field across matching records.
func (t *Type) Max(field string, q types.Query) (any, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	return ds.Max(field, q)
}

// Distinct returns the unique values of the field across matching records.
func (t *Type) Distinct(field string, q types.Query) ([]any, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	return ds.Distinct(field, q)
}

// Sample returns a random matching record, or nil.
func (t *Type) Sample(q types.Query) (*Record, error) {
	ds, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	row, err := ds.Sample(q)
	if err == types.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.hydrate(row), nil
}

// Exists reports whether a record matches the query (an id or a field map).
func (t *Type) Exists(query any) (bool, error) {
	r, err := t.Find(query)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// Page returns one page of records ordered by id, sized by the type's
// PaginateAt config. With pagination disabled only page 1 returns results
// (everything).
func (t *Type) Page(index int) ([]*Record, error) {
	if index < 1 {
		return nil, nil
	}
	if t.config.PaginateAt <= 0 {
		if index == 1 {
			return t.sortedAll()
		}
		return nil, nil
	}
	all, err := t.sortedAll()
	if err != nil {
		return nil, err
	}
	offset := (index - 1) * t.config.PaginateAt
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + t.config.PaginateAt
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Search scans searchable attributes for the query string: substring match on
// text fields, exact match on numeric fields when the query parses as a
// number. Backends with a native search dialect may do better; this is the
// portable fallback.
func (t *Type) Search(query string) ([]*Record, error) {
	all, err := t.All()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range all {
		if r.matchesSearch(query) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create constructs a record from the payload and saves it.
func (t *Type) Create(attrs types.Row) (*Record, error) {
	r := t.New(attrs)
	if err := r.Save(); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateMany creates one record per payload, stopping at the first failure.
func (t *Type) CreateMany(payloads ...types.Row) ([]*Record, error) {
	out := make([]*Record, 0, len(payloads))
	for _, payload := range payloads {
		r, err := t.Create(payload)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CreateOrUpdate finds a record whose uniqueness key set matches the payload
// exactly (every UniqueBy field must match) and updates it with the full
// payload, or creates a new record when none matches.
func (t *Type) CreateOrUpdate(attrs types.Row) (*Record, error) {
	query := types.Query{}
	for _, field := range t.config.UniqueBy {
		query[field] = attrs[field]
	}
	existing, err := t.Find(query)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := existing.Update(attrs); err != nil {
			return nil, err
		}
		return existing, nil
	}
	return t.Create(attrs)
}

// CreateOrUpdateMany applies CreateOrUpdate per payload, stopping at the
// first failure.
func (t *Type) CreateOrUpdateMany(payloads []types.Row) ([]*Record, error) {
	out := make([]*Record, 0, len(payloads))
	for _, payload := range payloads {
		r, err := t.CreateOrUpdate(payload)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// inferAttrType picks a declared type for a dynamically added field.
func inferAttrType(v any) types.AttrType {
	switch v.(type) {
	case int, int32, int64:
		return types.Int
	case float32, float64:
		return types.Float
	case bool:
		return types.Bool
	case time.Time:
		return types.Time
	case []any:
		return types.List
	case map[string]any:
		return types.Map
	default:
		return types.String
	}
}
