package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func testSchema() *types.Schema {
	return &types.Schema{Name: "ingredients", Attributes: []types.Attribute{
		{Name: "id", Type: types.Int},
		{Name: "name", Type: types.String},
		{Name: "grams", Type: types.Float},
	}}
}

func testDataset(t *testing.T) types.Dataset {
	t.Helper()
	ds, err := New().Dataset("ingredients", testSchema())
	require.NoError(t, err)
	return ds
}

func TestRegisteredAdapter(t *testing.T) {
	desc, ok := database.ByType("memory")
	require.True(t, ok)

	adapter, err := desc.Build(types.Config{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", adapter.Name())
	require.NoError(t, adapter.Close())
}

func TestSaveAssignsSequentialIDs(t *testing.T) {
	ds := testDataset(t)

	first, err := ds.Save(types.Row{"name": "flour"})
	require.NoError(t, err)
	second, err := ds.Save(types.Row{"name": "sugar"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestSaveReplacesByID(t *testing.T) {
	ds := testDataset(t)

	id, err := ds.Save(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)

	_, err = ds.Save(types.Row{"id": id, "name": "flour", "grams": 250.0})
	require.NoError(t, err)

	row, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, 250.0, row["grams"])

	count, err := ds.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSaveDoesNotReuseDeletedIDs(t *testing.T) {
	ds := testDataset(t)

	id, err := ds.Save(types.Row{"name": "flour"})
	require.NoError(t, err)
	require.NoError(t, ds.Delete(id))

	next, err := ds.Save(types.Row{"name": "sugar"})
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestFind(t *testing.T) {
	ds := testDataset(t)
	_, err := ds.Save(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)
	_, err = ds.Save(types.Row{"name": "sugar", "grams": 200.0})
	require.NoError(t, err)

	t.Run("by field", func(t *testing.T) {
		row, err := ds.Find(types.Query{"name": "sugar"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), row.ID())
	})

	t.Run("lowest id wins", func(t *testing.T) {
		row, err := ds.Find(types.Query{"grams": types.Range{Min: 0}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), row.ID())
	})

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		_, err := ds.Find(types.Query{"name": "salt"})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	ds := testDataset(t)
	id, err := ds.Save(types.Row{"name": "flour"})
	require.NoError(t, err)

	require.NoError(t, ds.Delete(id))
	assert.ErrorIs(t, ds.Delete(id), types.ErrNotFound)
}

func TestAggregates(t *testing.T) {
	ds := testDataset(t)
	for _, row := range []types.Row{
		{"name": "flour", "grams": 500.0},
		{"name": "sugar", "grams": 200.0},
		{"name": "salt", "grams": 5.0},
	} {
		_, err := ds.Save(row)
		require.NoError(t, err)
	}

	sum, err := ds.Sum("grams", nil)
	require.NoError(t, err)
	assert.Equal(t, 705.0, sum)

	avg, err := ds.Average("grams", nil)
	require.NoError(t, err)
	assert.Equal(t, 235.0, avg)

	min, err := ds.Min("grams", nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, min)

	max, err := ds.Max("grams", nil)
	require.NoError(t, err)
	assert.Equal(t, 500.0, max)

	names, err := ds.Distinct("name", nil)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	sample, err := ds.Sample(types.Query{"name": "salt"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sample.ID())
}

func TestSavedRowsAreIsolated(t *testing.T) {
	ds := testDataset(t)
	row := types.Row{"name": "flour"}
	id, err := ds.Save(row)
	require.NoError(t, err)

	// Mutating the caller's row must not touch the stored copy.
	row["name"] = "mutated"

	stored, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, "flour", stored["name"])
}
