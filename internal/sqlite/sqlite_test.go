package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func testSchema() *types.Schema {
	return &types.Schema{Name: "ingredients", Attributes: []types.Attribute{
		{Name: "id", Type: types.Int},
		{Name: "created_at", Type: types.Time},
		{Name: "name", Type: types.String},
		{Name: "grams", Type: types.Float},
		{Name: "organic", Type: types.Bool},
		{Name: "tags", Type: types.List},
	}}
}

func openTest(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := Open(types.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestRegisteredAdapter(t *testing.T) {
	_, ok := database.ByType("sqlite")
	assert.True(t, ok)
}

func TestTableReconciliation(t *testing.T) {
	adapter := openTest(t)

	_, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

	t.Run("missing columns are added", func(t *testing.T) {
		wider := testSchema()
		wider.Attributes = append(wider.Attributes, types.Attribute{Name: "origin", Type: types.String})
		ds, err := adapter.Dataset("ingredients", wider)
		require.NoError(t, err)

		id, err := ds.Save(types.Row{"name": "flour", "origin": "local"})
		require.NoError(t, err)

		row, err := ds.Find(types.ByID(id))
		require.NoError(t, err)
		assert.Equal(t, "local", row["origin"])
	})
}

func TestSaveAndFind(t *testing.T) {
	adapter := openTest(t)
	ds, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	id, err := ds.Save(types.Row{
		"name":       "flour",
		"grams":      500.0,
		"organic":    true,
		"created_at": now,
		"tags":       []any{"baking"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	row, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, "flour", row["name"])
	assert.Equal(t, 500.0, row["grams"])
	assert.Equal(t, true, row["organic"])
	assert.Equal(t, []any{"baking"}, row["tags"])

	ts, ok := row["created_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, now.Equal(ts))
}

func TestUpsertByID(t *testing.T) {
	adapter := openTest(t)
	ds, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

	id, err := ds.Save(types.Row{"name": "flour", "grams": 500.0})
	require.NoError(t, err)

	returned, err := ds.Save(types.Row{"id": id, "name": "flour", "grams": 250.0})
	require.NoError(t, err)
	assert.Equal(t, id, returned)

	count, err := ds.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	row, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, 250.0, row["grams"])
}

func TestQueryPushDown(t *testing.T) {
	adapter := openTest(t)
	ds, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

	for _, row := range []types.Row{
		{"name": "flour", "grams": 500.0},
		{"name": "sugar", "grams": 200.0},
		{"name": "sea salt", "grams": 5.0},
		{"name": "saffron"},
	} {
		_, err := ds.Save(row)
		require.NoError(t, err)
	}

	t.Run("membership", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"name": types.In{"flour", "sugar"}})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("range", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"grams": types.Range{Min: 100.0, Max: 600.0}})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("substring pattern", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"name": types.Pattern("sa")})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("regexp pattern falls back to scan", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"name": types.Pattern("^sa")})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("null", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"grams": nil})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "saffron", rows[0]["name"])
	})

	t.Run("find miss", func(t *testing.T) {
		_, err := ds.Find(types.Query{"name": "pepper"})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	adapter := openTest(t)
	ds, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

	id, err := ds.Save(types.Row{"name": "flour"})
	require.NoError(t, err)
	require.NoError(t, ds.Delete(id))
	assert.ErrorIs(t, ds.Delete(id), types.ErrNotFound)
}

func TestAggregates(t *testing.T) {
	adapter := openTest(t)
	ds, err := adapter.Dataset("ingredients", testSchema())
	require.NoError(t, err)

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

	min, err := ds.Min("grams", types.Query{"name": types.In{"flour", "sugar"}})
	require.NoError(t, err)
	assert.Equal(t, 200.0, min)

	count, err := ds.Count(types.Query{"grams": types.Range{Min: 100.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	names, err := ds.Distinct("name", nil)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	sample, err := ds.Sample(types.Query{"name": "salt"})
	require.NoError(t, err)
	assert.Equal(t, "salt", sample["name"])
}
