// Package prompt turns a free-text intent into a set of content categories and
// narrows a media list to the items an image labeler places in those categories.
package prompt

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a fixed content category.
type Category string

const (
	Landscape Category = "landscape"
	Animal    Category = "animal"
	Food      Category = "food"
	Document  Category = "document"
	Person    Category = "person"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{Landscape, Animal, Food, Document, Person}

//go:embed categories.yaml
var categoriesYAML []byte

type keywords struct {
	Prompt []string `yaml:"prompt"`
	Labels []string `yaml:"labels"`
}

var table = mustLoadTable(categoriesYAML)

func mustLoadTable(data []byte) map[Category]keywords {
	t, err := loadTable(data)
	if err != nil {
		panic(err)
	}
	return t
}

func loadTable(data []byte) (map[Category]keywords, error) {
	var raw map[string]keywords
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse category table: %w", err)
	}
	t := make(map[Category]keywords, len(raw))
	for name, kw := range raw {
		c := Category(name)
		if !slices.Contains(AllCategories, c) {
			return nil, fmt.Errorf("unknown category %q in table", name)
		}
		for i := range kw.Prompt {
			kw.Prompt[i] = Normalize(kw.Prompt[i])
		}
		for i := range kw.Labels {
			kw.Labels[i] = Normalize(kw.Labels[i])
		}
		t[c] = kw
	}
	for _, c := range AllCategories {
		if _, ok := t[c]; !ok {
			return nil, fmt.Errorf("category %q missing from table", c)
		}
	}
	return t, nil
}

// ParseCategory converts a name to a Category.
func ParseCategory(name string) (Category, error) {
	c := Category(Normalize(name))
	if !slices.Contains(AllCategories, c) {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// CategorySet is a sorted set of categories without duplicates.
type CategorySet []Category

// NewCategorySet builds a set from the given categories.
func NewCategorySet(categories ...Category) CategorySet {
	set := slices.Clone(categories)
	slices.Sort(set)
	return slices.Compact(set)
}

// Contains reports whether c is in the set.
func (s CategorySet) Contains(c Category) bool {
	_, found := slices.BinarySearch(s, c)
	return found
}

// Intersects reports whether any category of r is in the set.
func (s CategorySet) Intersects(r Result) bool {
	for c := range r {
		if s.Contains(c) {
			return true
		}
	}
	return false
}

// Key is a stable identifier for the set, empty for the empty set.
func (s CategorySet) Key() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// Vocabulary returns every label keyword known to the category table,
// sorted and without duplicates. Labelers may offer it to a model as hints.
func Vocabulary() []string {
	var out []string
	for _, c := range AllCategories {
		out = append(out, table[c].Labels...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
