package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name     string
		stored   any
		expected any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"stored nil only", nil, "x", false},
		{"int vs int64", int64(5), 5, true},
		{"int vs float", int64(5), 5.0, true},
		{"float mismatch", 5.5, 5, false},
		{"number vs numeric string", int64(1), "1", true},
		{"number vs junk string", int64(1), "1a", false},
		{"bool vs bool", true, true, true},
		{"bool vs string", true, "true", true},
		{"bool vs int", false, 0, true},
		{"time vs rfc3339 string", now, "2026-03-14T09:26:53Z", true},
		{"rfc3339 string vs time", "2026-03-14T09:26:53Z", now, true},
		{"string equality", "alpha", "alpha", true},
		{"string case matters", "alpha", "Alpha", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.stored, tt.expected))
		})
	}
}

func TestMatchValue(t *testing.T) {
	tests := []struct {
		name   string
		stored any
		cond   any
		want   bool
	}{
		{"nil condition matches null", nil, nil, true},
		{"nil condition rejects value", "x", nil, false},
		{"in hit", int64(2), In{1, 2, 3}, true},
		{"in miss", int64(9), In{1, 2, 3}, false},
		{"empty in", int64(1), In{}, false},
		{"range inclusive lower", int64(10), Range{Min: 10, Max: 20}, true},
		{"range inclusive upper", int64(20), Range{Min: 10, Max: 20}, true},
		{"range below", int64(9), Range{Min: 10, Max: 20}, false},
		{"range open min", int64(-100), Range{Max: 0}, true},
		{"range open max", int64(100), Range{Min: 0}, true},
		{"range rejects null", nil, Range{Min: 0}, false},
		{"pattern substring", "Hello World", Pattern("world"), true},
		{"pattern regexp", "abc123", Pattern(`[a-z]+\d+`), true},
		{"pattern miss", "abc", Pattern("xyz"), false},
		{"pattern rejects null", nil, Pattern("x"), false},
		{"scalar equality", "a", "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchValue(tt.stored, tt.cond))
		})
	}
}

func TestMatch(t *testing.T) {
	row := Row{"id": int64(3), "name": "carrot", "grams": 250.0, "expired": nil}

	assert.True(t, Match(row, Query{}))
	assert.True(t, Match(row, Query{"name": "carrot", "grams": Range{Min: 100}}))
	assert.True(t, Match(row, Query{"expired": nil}))
	assert.False(t, Match(row, Query{"name": "carrot", "grams": Range{Min: 300}}))
	assert.False(t, Match(row, Query{"missing": "anything"}))
}

func TestCoerce(t *testing.T) {
	ts, ok := Coerce(Time, "2026-03-14T09:26:53Z").(time.Time)
	assert.True(t, ok)
	assert.Equal(t, 2026, ts.Year())

	assert.Equal(t, int64(7), Coerce(Int, "7"))
	assert.Equal(t, 2.5, Coerce(Float, "2.5"))
	assert.Equal(t, true, Coerce(Bool, int64(1)))
	assert.Equal(t, "42", Coerce(String, 42))
	assert.Nil(t, Coerce(Int, nil))

	// Uncoercible values pass through unchanged.
	assert.Equal(t, "not a number", Coerce(Int, "not a number"))
}

func TestRowID(t *testing.T) {
	assert.Equal(t, int64(0), Row{}.ID())
	assert.Equal(t, int64(9), Row{"id": int64(9)}.ID())
	assert.Equal(t, int64(9), Row{"id": 9.0}.ID())
	assert.Equal(t, int64(9), Row{"id": "9"}.ID())
}

func TestSchemaPersistent(t *testing.T) {
	s := &Schema{Name: "pantry", Attributes: []Attribute{
		{Name: "id", Type: Int},
		{Name: "name", Type: String},
		{Name: "scratch", Type: Map, Transient: true},
	}}

	persistent := s.Persistent()
	assert.Len(t, persistent, 2)
	assert.True(t, s.Has("scratch"))

	attr, ok := s.Attribute("name")
	assert.True(t, ok)
	assert.Equal(t, String, attr.Type)
}
