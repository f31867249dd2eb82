package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/types"
)

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Dataset(name string, schema *types.Schema) (types.Dataset, error) {
	return nil, types.ErrDatasetNotFound
}
func (f *fakeAdapter) Close() error { return nil }

func TestRegisterAdapter(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	build := func(cfg types.Config) (types.Adapter, error) {
		return &fakeAdapter{name: cfg.Backend}, nil
	}

	require.NoError(t, RegisterAdapter(Descriptor{Types: []string{"left"}, Build: build}))

	t.Run("duplicate token rejected", func(t *testing.T) {
		err := RegisterAdapter(Descriptor{Types: []string{"left"}, Build: build})
		assert.Error(t, err)
	})

	t.Run("missing builder rejected", func(t *testing.T) {
		err := RegisterAdapter(Descriptor{Types: []string{"right"}})
		assert.Error(t, err)
	})

	t.Run("lookup by type", func(t *testing.T) {
		_, ok := ByType("left")
		assert.True(t, ok)
		_, ok = ByType("absent")
		assert.False(t, ok)
	})

	t.Run("frozen registry rejects registration", func(t *testing.T) {
		Freeze()
		defer Reset()
		err := RegisterAdapter(Descriptor{Types: []string{"late"}, Build: build})
		assert.ErrorIs(t, err, types.ErrRegistryFrozen)
	})
}

func TestByClient(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	require.NoError(t, RegisterAdapter(Descriptor{
		Types:   []string{"fake"},
		Clients: []string{"*database.fakeAdapter"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return &fakeAdapter{name: "fake"}, nil
		},
	}))

	_, err := ByClient(&fakeAdapter{})
	assert.NoError(t, err)

	_, err = ByClient("a string client")
	assert.ErrorIs(t, err, types.ErrAdapterUnknown)

	t.Run("two descriptors claiming one client is ambiguous", func(t *testing.T) {
		require.NoError(t, RegisterAdapter(Descriptor{
			Types:   []string{"fake-too"},
			Clients: []string{"*database.fakeAdapter"},
			Build: func(cfg types.Config) (types.Adapter, error) {
				return &fakeAdapter{name: "fake-too"}, nil
			},
		}))
		_, err := ByClient(&fakeAdapter{})
		assert.ErrorIs(t, err, types.ErrAdapterAmbiguous)
	})
}

func TestDatabaseRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first := &fakeAdapter{name: "first"}
	second := &fakeAdapter{name: "second"}

	require.NoError(t, Add("first", first))
	require.NoError(t, Add("second", second))

	t.Run("first registered is primary by default", func(t *testing.T) {
		assert.Same(t, first, Primary())
	})

	t.Run("attaching a taken name fails", func(t *testing.T) {
		err := Add("first", &fakeAdapter{name: "usurper"})
		assert.ErrorIs(t, err, types.ErrAlreadyAttached)
		assert.Same(t, first, DB("first"))
	})

	t.Run("set primary", func(t *testing.T) {
		require.NoError(t, SetPrimary("second"))
		assert.Same(t, second, Primary())
		assert.Error(t, SetPrimary("absent"))
	})

	t.Run("lookup by name and by connection", func(t *testing.T) {
		assert.Same(t, first, DB("first"))
		assert.Nil(t, DB("absent"))
		assert.Equal(t, "second", NameFor(second))
		assert.Equal(t, "", NameFor(&fakeAdapter{}))
	})

	t.Run("names preserve registration order", func(t *testing.T) {
		assert.Equal(t, []string{"first", "second"}, Names())
	})

	t.Run("setup fails on unknown backend", func(t *testing.T) {
		_, err := Setup("db", "no-such-backend", types.Config{})
		assert.ErrorIs(t, err, types.ErrAdapterUnknown)
	})

	t.Run("detach removes the connection", func(t *testing.T) {
		require.NoError(t, Detach("second"))
		assert.Nil(t, DB("second"))
		assert.Equal(t, []string{"first"}, Names())
		assert.ErrorIs(t, Detach("second"), types.ErrDetached)
	})
}

func TestScanHelpers(t *testing.T) {
	rows := []types.Row{
		{"id": int64(2), "kind": "fruit", "grams": 120.0},
		{"id": int64(1), "kind": "fruit", "grams": 80.0},
		{"id": int64(3), "kind": "root", "grams": nil},
	}

	t.Run("filter", func(t *testing.T) {
		fruit := Filter(rows, types.Query{"kind": "fruit"})
		assert.Len(t, fruit, 2)
		assert.Empty(t, Filter(rows, types.Query{"kind": "leaf"}))
	})

	t.Run("sort and next id", func(t *testing.T) {
		sorted := append([]types.Row(nil), rows...)
		SortByID(sorted)
		assert.Equal(t, int64(1), sorted[0].ID())
		assert.Equal(t, int64(4), NextID(rows))
		assert.Equal(t, int64(1), NextID(nil))
	})

	t.Run("sum and average skip nulls", func(t *testing.T) {
		sum, err := SumRows(rows, "grams", nil)
		require.NoError(t, err)
		assert.Equal(t, 200.0, sum)

		avg, err := AverageRows(rows, "grams", types.Query{"kind": "fruit"})
		require.NoError(t, err)
		assert.Equal(t, 100.0, avg)

		zero, err := SumRows(rows, "grams", types.Query{"kind": "leaf"})
		require.NoError(t, err)
		assert.Equal(t, 0.0, zero)
	})

	t.Run("min max", func(t *testing.T) {
		min, err := MinRows(rows, "grams", nil)
		require.NoError(t, err)
		assert.Equal(t, 80.0, min)

		max, err := MaxRows(rows, "grams", nil)
		require.NoError(t, err)
		assert.Equal(t, 120.0, max)

		none, err := MinRows(rows, "grams", types.Query{"kind": "root"})
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("distinct", func(t *testing.T) {
		kinds, err := DistinctRows(rows, "kind", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"fruit", "root"}, kinds)
	})

	t.Run("sample", func(t *testing.T) {
		row, err := SampleRow(rows, types.Query{"kind": "root"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), row.ID())

		empty, err := SampleRow(rows, types.Query{"kind": "leaf"})
		require.NoError(t, err)
		assert.Nil(t, empty)
	})
}
