package searchdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func testSchema() *types.Schema {
	return &types.Schema{Name: "notes", Attributes: []types.Attribute{
		{Name: "id", Type: types.Int},
		{Name: "title", Type: types.String, Searchable: true},
		{Name: "body", Type: types.Text, Searchable: true},
		{Name: "stars", Type: types.Int},
	}}
}

func openTest(t *testing.T) types.Dataset {
	t.Helper()
	adapter, err := Open(types.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	ds, err := adapter.Dataset("notes", testSchema())
	require.NoError(t, err)
	return ds
}

func seed(t *testing.T, ds types.Dataset) {
	t.Helper()
	for _, row := range []types.Row{
		{"title": "shopping list", "body": "eggs flour butter", "stars": int64(1)},
		{"title": "reading list", "body": "three novels", "stars": int64(4)},
		{"title": "recipe", "body": "fold the flour gently", "stars": int64(5)},
	} {
		_, err := ds.Save(row)
		require.NoError(t, err)
	}
}

func TestRegisteredAdapter(t *testing.T) {
	_, ok := database.ByType("search")
	assert.True(t, ok)
}

func TestSaveAssignsIDsAndDocIDs(t *testing.T) {
	ds := openTest(t)

	first, err := ds.Save(types.Row{"title": "shopping list"})
	require.NoError(t, err)
	second, err := ds.Save(types.Row{"title": "reading list"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	row, err := ds.Find(types.ByID(first))
	require.NoError(t, err)
	assert.NotEmpty(t, row[types.FieldDocID])
}

func TestSaveReplacesByID(t *testing.T) {
	ds := openTest(t)

	id, err := ds.Save(types.Row{"title": "shopping list", "stars": int64(1)})
	require.NoError(t, err)
	_, err = ds.Save(types.Row{"id": id, "title": "shopping list", "stars": int64(3)})
	require.NoError(t, err)

	count, err := ds.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	row, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["stars"])
}

func TestDocIDStableAcrossUpdates(t *testing.T) {
	ds := openTest(t)

	id, err := ds.Save(types.Row{"title": "shopping list", "stars": int64(1)})
	require.NoError(t, err)
	row, err := ds.Find(types.ByID(id))
	require.NoError(t, err)
	docid := row[types.FieldDocID]
	require.NotEmpty(t, docid)

	// An update serialized without the document id keeps the assigned one.
	_, err = ds.Save(types.Row{"id": id, "title": "shopping list", "stars": int64(3)})
	require.NoError(t, err)

	row, err = ds.Find(types.ByID(id))
	require.NoError(t, err)
	assert.Equal(t, docid, row[types.FieldDocID])
}

func TestPatternSearch(t *testing.T) {
	ds := openTest(t)
	seed(t, ds)

	t.Run("token pattern on indexed column", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"body": types.Pattern("flour")})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("pattern with regexp syntax scans", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{"title": types.Pattern("^read")})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "reading list", rows[0]["title"])
	})

	t.Run("mixed query", func(t *testing.T) {
		rows, err := ds.FindAll(types.Query{
			"body":  types.Pattern("flour"),
			"stars": types.Range{Min: 2},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "recipe", rows[0]["title"])
	})
}

func TestDelete(t *testing.T) {
	ds := openTest(t)
	id, err := ds.Save(types.Row{"title": "shopping list"})
	require.NoError(t, err)

	require.NoError(t, ds.Delete(id))
	assert.ErrorIs(t, ds.Delete(id), types.ErrNotFound)

	_, err = ds.Find(types.ByID(id))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAggregates(t *testing.T) {
	ds := openTest(t)
	seed(t, ds)

	sum, err := ds.Sum("stars", nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum)

	avg, err := ds.Average("stars", types.Query{"stars": types.Range{Min: 2}})
	require.NoError(t, err)
	assert.Equal(t, 4.5, avg)

	max, err := ds.Max("stars", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), max)

	titles, err := ds.Distinct("title", nil)
	require.NoError(t, err)
	assert.Len(t, titles, 3)
}
