package listcache

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Item is an entity held in a List.
type Item interface {
	Key() string
	// SearchFields returns the text matched by free-text queries.
	SearchFields() []string
	// Facet returns the value of a named facet, or "" when the entity has none.
	Facet(name string) string
}

// Counted is implemented by items carrying denormalized counters.
type Counted interface {
	Counter(column string) (int, bool)
}

// Sortable is implemented by items with numeric sort keys.
type Sortable interface {
	SortValue(key string) (float64, bool)
}

// FacetAll selects every value of a facet.
const FacetAll = "all"

// Query is a filter over a list. The zero Query matches everything.
type Query struct {
	Text   string
	Facets map[string]string
}

// Direction is a sort direction.
type Direction string

// Directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection returns Desc for "desc" (any case) and Asc otherwise.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Desc)) {
		return Desc
	}
	return Asc
}

// folder normalizes strings for case-insensitive comparison. It reuses one
// Caser, so a folder must stay on a single goroutine.
type folder struct {
	caser cases.Caser
}

func newFolder() *folder {
	return &folder{caser: cases.Fold()}
}

func (f *folder) fold(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	return f.caser.String(norm.NFKC.String(s))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// foldFields returns the folded search fields of every item.
func foldFields[T Item](items []T) [][]string {
	f := newFolder()
	out := make([][]string, len(items))
	for i, item := range items {
		fields := item.SearchFields()
		folded := make([]string, len(fields))
		for j, field := range fields {
			folded[j] = f.fold(field)
		}
		out[i] = folded
	}
	return out
}

// Filter returns the items matching q, in their original order.
// Text matches a substring of any search field; facets match by equality and
// combine with AND. An empty facet value or "all" leaves that facet open.
func Filter[T Item](items []T, q Query) []T {
	return filter(items, nil, q)
}

// filter is Filter with optional pre-folded search fields, where folded[i]
// belongs to items[i].
func filter[T Item](items []T, folded [][]string, q Query) []T {
	f := newFolder()
	text := f.fold(strings.TrimSpace(q.Text))

	facets := make(map[string]string, len(q.Facets))
	for name, value := range q.Facets {
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, FacetAll) {
			continue
		}
		facets[name] = f.fold(value)
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		if !matchesFacets(f, item, facets) {
			continue
		}
		if text != "" {
			if folded != nil {
				if !containsAny(folded[i], text) {
					continue
				}
			} else if !matchesText(f, item.SearchFields(), text) {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func containsAny(fields []string, text string) bool {
	for _, field := range fields {
		if strings.Contains(field, text) {
			return true
		}
	}
	return false
}

func matchesText(f *folder, fields []string, text string) bool {
	for _, field := range fields {
		if strings.Contains(f.fold(field), text) {
			return true
		}
	}
	return false
}

func matchesFacets(f *folder, item Item, facets map[string]string) bool {
	for name, want := range facets {
		if f.fold(item.Facet(name)) != want {
			return false
		}
	}
	return true
}

// SortBy returns a copy of items stably sorted by a numeric key. Items without
// a value for key sort as 0. An empty key keeps the original order.
func SortBy[T any](items []T, key string, dir Direction) []T {
	out := slices.Clone(items)
	if key == "" {
		return out
	}

	value := func(item T) float64 {
		if s, ok := any(item).(Sortable); ok {
			if v, ok := s.SortValue(key); ok {
				return v
			}
		}
		return 0
	}

	slices.SortStableFunc(out, func(a, b T) int {
		if dir == Desc {
			return cmp.Compare(value(b), value(a))
		}
		return cmp.Compare(value(a), value(b))
	})
	return out
}
