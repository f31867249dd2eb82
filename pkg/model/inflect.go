package model

import "strings"

// Minimal English inflection for deriving dataset and foreign-key names from
// model names (author -> authors, books -> book_id). Irregulars the tests and
// common schemas need are listed explicitly; everything else follows the
// basic suffix rules.

var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
}

var irregularSingulars = map[string]string{
	"people":   "person",
	"children": "child",
}

// Pluralize returns the plural form of a singular noun.
func Pluralize(word string) string {
	if word == "" {
		return word
	}
	if p, ok := irregularPlurals[word]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(word, "y") && !hasVowelBefore(word, "y"):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// Singularize returns the singular form of a plural noun. Words that do not
// look plural are returned unchanged.
func Singularize(word string) string {
	if word == "" {
		return word
	}
	if s, ok := irregularSingulars[word]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "zes"),
		strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "sses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

func hasVowelBefore(word, suffix string) bool {
	idx := len(word) - len(suffix) - 1
	if idx < 0 {
		return false
	}
	return strings.ContainsRune("aeiou", rune(word[idx]))
}

// foreignKey derives the conventional foreign-key field for a dataset name
// (books -> book_id).
func foreignKey(dataset string) string {
	return Singularize(dataset) + "_id"
}
