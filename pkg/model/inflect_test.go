package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"author", "authors"},
		{"book", "books"},
		{"category", "categories"},
		{"day", "days"},
		{"box", "boxes"},
		{"dish", "dishes"},
		{"match", "matches"},
		{"person", "people"},
		{"child", "children"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pluralize(tt.in), tt.in)
	}
}

func TestSingularize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"authors", "author"},
		{"categories", "category"},
		{"boxes", "box"},
		{"dishes", "dish"},
		{"matches", "match"},
		{"classes", "class"},
		{"people", "person"},
		{"children", "child"},
		{"sheep", "sheep"},
		{"class", "class"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Singularize(tt.in), tt.in)
	}
}

func TestForeignKey(t *testing.T) {
	assert.Equal(t, "author_id", foreignKey("authors"))
	assert.Equal(t, "category_id", foreignKey("categories"))
	assert.Equal(t, "person_id", foreignKey("people"))
}
