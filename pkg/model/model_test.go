package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/internal/memory"
	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// setupDB resets the registries and binds a fresh in-memory database as
// primary.
func setupDB(t *testing.T) {
	t.Helper()
	ResetRegistry()
	database.Reset()
	database.Add("test", memory.New())
	t.Cleanup(func() {
		ResetRegistry()
		database.Reset()
	})
}

func declareIngredient(t *testing.T) *Type {
	t.Helper()
	typ, err := Declare(Definition{
		Name: "ingredient",
		Attributes: []types.Attribute{
			{Name: "name", Type: types.String, Searchable: true},
			{Name: "grams", Type: types.Float, Default: 0.0},
			{Name: "organic", Type: types.Bool, Default: false},
		},
	})
	require.NoError(t, err)
	return typ
}

func TestDeclare(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	t.Run("derives names", func(t *testing.T) {
		assert.Equal(t, "ingredient", typ.Name())
		assert.Equal(t, "ingredients", typ.PluralName())
		assert.Equal(t, "ingredients", typ.DatasetName())
	})

	t.Run("reserved attributes are prepended", func(t *testing.T) {
		assert.True(t, typ.HasAttribute(types.FieldID))
		assert.True(t, typ.HasAttribute(types.FieldCreatedAt))
		assert.True(t, typ.HasAttribute(types.FieldUpdatedAt))
	})

	t.Run("lookup by model or dataset name", func(t *testing.T) {
		assert.Same(t, typ, TypeFor("ingredient"))
		assert.Same(t, typ, TypeFor("ingredients"))
		assert.Nil(t, TypeFor("absent"))
	})

	t.Run("duplicate dataset rejected", func(t *testing.T) {
		existing, err := Declare(Definition{Name: "ingredient"})
		assert.Error(t, err)
		assert.Same(t, typ, existing)
	})

	t.Run("frozen registry rejects declaration", func(t *testing.T) {
		Freeze()
		defer func() { frozen = false }()
		_, err := Declare(Definition{Name: "latecomer"})
		assert.ErrorIs(t, err, types.ErrRegistryFrozen)
	})
}

func TestNew(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	t.Run("defaults and coercion", func(t *testing.T) {
		r := typ.New(types.Row{"name": "flour", "grams": "500"})
		assert.Equal(t, "flour", r.Get("name"))
		assert.Equal(t, 500.0, r.Get("grams"))
		assert.Equal(t, false, r.Get("organic"))
		assert.False(t, r.Persisted())
	})

	t.Run("unknown fields are added when allowed", func(t *testing.T) {
		r := typ.New(types.Row{"name": "flour", "origin": "local"})
		assert.True(t, typ.HasAttribute("origin"))
		assert.Equal(t, "local", r.Get("origin"))
	})
}

func TestNewDropsUnknownFieldsWhenDisallowed(t *testing.T) {
	setupDB(t)
	cfg := DefaultConfig()
	cfg.CreateMissingFields = false
	typ, err := Declare(Definition{
		Name:       "spice",
		Attributes: []types.Attribute{{Name: "name", Type: types.String}},
		Config:     &cfg,
	})
	require.NoError(t, err)

	r := typ.New(types.Row{"name": "cumin", "color": "brown"})
	assert.False(t, typ.HasAttribute("color"))
	assert.Nil(t, r.Get("color"))
}

func TestCreateAndFind(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	flour, err := typ.Create(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)
	sugar, err := typ.Create(types.Row{"name": "sugar", "grams": 200.0})
	require.NoError(t, err)

	t.Run("ids are sequential", func(t *testing.T) {
		assert.Equal(t, int64(1), flour.ID())
		assert.Equal(t, int64(2), sugar.ID())
	})

	t.Run("timestamps set on create", func(t *testing.T) {
		created, ok := types.AsTime(flour.Get(types.FieldCreatedAt))
		require.True(t, ok)
		assert.WithinDuration(t, time.Now(), created, 5*time.Second)
	})

	t.Run("find by id", func(t *testing.T) {
		r, err := typ.Find(flour.ID())
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "flour", r.Get("name"))
	})

	t.Run("find by query", func(t *testing.T) {
		r, err := typ.Find(types.Query{"grams": types.Range{Max: 300.0}})
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "sugar", r.Get("name"))
	})

	t.Run("find miss returns nil without error", func(t *testing.T) {
		r, err := typ.Find(types.Query{"name": "salt"})
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("first and last", func(t *testing.T) {
		first, err := typ.First()
		require.NoError(t, err)
		last, err := typ.Last()
		require.NoError(t, err)
		assert.Equal(t, flour.ID(), first.ID())
		assert.Equal(t, sugar.ID(), last.ID())
	})

	t.Run("count and exists", func(t *testing.T) {
		count, err := typ.Count(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		ok, err := typ.Exists(flour.ID())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSaveValidates(t *testing.T) {
	setupDB(t)
	typ, err := Declare(Definition{
		Name:       "spice",
		Attributes: []types.Attribute{{Name: "name", Type: types.String}},
		Validations: []Validation{ValidationFunc{
			Attr: "name",
			Msg:  "must be present",
			Fn:   func(r *Record) bool { return r.Get("name") != nil && r.Get("name") != "" },
		}},
	})
	require.NoError(t, err)

	_, err = typ.Create(types.Row{})
	var invalid *types.InvalidModelError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"must be present"}, invalid.Errors["name"])

	_, err = typ.Create(types.Row{"name": "cumin"})
	assert.NoError(t, err)
}

func TestSaveUniqueness(t *testing.T) {
	setupDB(t)
	cfg := DefaultConfig()
	cfg.UniqueBy = []string{"name"}
	typ, err := Declare(Definition{
		Name:       "spice",
		Attributes: []types.Attribute{{Name: "name", Type: types.String}},
		Config:     &cfg,
	})
	require.NoError(t, err)

	_, err = typ.Create(types.Row{"name": "cumin"})
	require.NoError(t, err)

	_, err = typ.Create(types.Row{"name": "cumin"})
	var uniq *types.UniquenessError
	require.ErrorAs(t, err, &uniq)
	assert.Equal(t, []string{"name"}, uniq.UniqueBy)
}

func TestSaveMergeIfExist(t *testing.T) {
	setupDB(t)
	cfg := DefaultConfig()
	cfg.UniqueBy = []string{"name"}
	cfg.MergeIfExist = true
	typ, err := Declare(Definition{
		Name: "spice",
		Attributes: []types.Attribute{
			{Name: "name", Type: types.String},
			{Name: "grams", Type: types.Float},
		},
		Config: &cfg,
	})
	require.NoError(t, err)

	original, err := typ.Create(types.Row{"name": "cumin", "grams": 10.0})
	require.NoError(t, err)

	merged, err := typ.Create(types.Row{"name": "cumin", "grams": 20.0})
	require.NoError(t, err)
	assert.Equal(t, original.ID(), merged.ID())

	count, err := typ.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	reloaded, err := typ.Find(original.ID())
	require.NoError(t, err)
	assert.Equal(t, 20.0, reloaded.Get("grams"))
}

func TestSaveNoOpWhenClean(t *testing.T) {
	setupDB(t)
	var calls [][]string
	typ, err := Declare(Definition{
		Name:       "spice",
		Attributes: []types.Attribute{{Name: "name", Type: types.String}},
		History:    func(r *Record, changed []string) { calls = append(calls, changed) },
	})
	require.NoError(t, err)

	r, err := typ.Create(types.Row{"name": "cumin"})
	require.NoError(t, err)
	require.Len(t, calls, 1)

	// A save with no changes must not touch the backend or the history hook.
	require.NoError(t, r.Save())
	assert.Len(t, calls, 1)

	require.NoError(t, r.Update(types.Row{"name": "coriander"}))
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1], "name")
}

func TestCreateOrUpdate(t *testing.T) {
	setupDB(t)
	cfg := DefaultConfig()
	cfg.UniqueBy = []string{"kind", "name"}
	typ, err := Declare(Definition{
		Name: "spice",
		Attributes: []types.Attribute{
			{Name: "kind", Type: types.String},
			{Name: "name", Type: types.String},
			{Name: "grams", Type: types.Float},
		},
		Config: &cfg,
	})
	require.NoError(t, err)

	first, err := typ.CreateOrUpdate(types.Row{"kind": "seed", "name": "cumin", "grams": 10.0})
	require.NoError(t, err)

	t.Run("full key match updates", func(t *testing.T) {
		same, err := typ.CreateOrUpdate(types.Row{"kind": "seed", "name": "cumin", "grams": 30.0})
		require.NoError(t, err)
		assert.Equal(t, first.ID(), same.ID())
		assert.Equal(t, 30.0, same.Get("grams"))
	})

	t.Run("partial key match creates", func(t *testing.T) {
		other, err := typ.CreateOrUpdate(types.Row{"kind": "bark", "name": "cumin", "grams": 5.0})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID(), other.ID())

		count, err := typ.Count(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestChangeSet(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	r, err := typ.Create(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)

	t.Run("clean after save", func(t *testing.T) {
		assert.False(t, r.ChangeSet().Dirty())
		assert.Empty(t, r.ChangeSet().Diff())
	})

	t.Run("diff tracks changed fields", func(t *testing.T) {
		r.Set("grams", 250.0)
		diff := r.ChangeSet().Diff()
		require.Len(t, diff, 1)
		assert.Equal(t, 250.0, diff["grams"])
		assert.True(t, r.ChangeSet().Dirty())
	})

	t.Run("previous holds displaced values after save", func(t *testing.T) {
		require.NoError(t, r.Save())
		assert.False(t, r.ChangeSet().Dirty())
		assert.Equal(t, 500.0, r.ChangeSet().Previous()["grams"])
	})
}

func TestUpdateAndRefresh(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	r, err := typ.Create(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)

	require.NoError(t, r.Update(types.Row{"grams": 100.0}))

	stale, err := typ.Find(r.ID())
	require.NoError(t, err)
	require.NoError(t, stale.Update(types.Row{"grams": 75.0}))

	require.NoError(t, r.Refresh())
	assert.Equal(t, 75.0, r.Get("grams"))
}

func TestDelete(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	r, err := typ.Create(types.Row{"name": "flour"})
	require.NoError(t, err)
	require.NoError(t, r.Delete())

	found, err := typ.Find(r.ID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPage(t *testing.T) {
	setupDB(t)
	cfg := DefaultConfig()
	cfg.PaginateAt = 2
	typ, err := Declare(Definition{
		Name:       "spice",
		Attributes: []types.Attribute{{Name: "name", Type: types.String}},
		Config:     &cfg,
	})
	require.NoError(t, err)

	for _, name := range []string{"anise", "basil", "cumin", "dill", "fennel"} {
		_, err := typ.Create(types.Row{"name": name})
		require.NoError(t, err)
	}

	page1, err := typ.Page(1)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "anise", page1[0].Get("name"))

	page3, err := typ.Page(3)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "fennel", page3[0].Get("name"))

	empty, err := typ.Page(4)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := typ.Page(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	_, err := typ.Create(types.Row{"name": "whole wheat flour"})
	require.NoError(t, err)
	_, err = typ.Create(types.Row{"name": "sugar"})
	require.NoError(t, err)

	hits, err := typ.Search("flour")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "whole wheat flour", hits[0].Get("name"))

	none, err := typ.Search("salt")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTitle(t *testing.T) {
	setupDB(t)
	typ := declareIngredient(t)

	r, err := typ.Create(types.Row{"name": "flour"})
	require.NoError(t, err)
	assert.Equal(t, "flour", r.Title())

	anon, err := typ.Create(types.Row{})
	require.NoError(t, err)
	assert.Equal(t, "ingredient 2", anon.Title())
}

func TestNoDatabaseConfigured(t *testing.T) {
	ResetRegistry()
	database.Reset()
	t.Cleanup(func() {
		ResetRegistry()
		database.Reset()
	})

	typ, err := Declare(Definition{Name: "orphan"})
	require.NoError(t, err)

	_, err = typ.Find(int64(1))
	assert.ErrorIs(t, err, types.ErrNoDatabase)
}
