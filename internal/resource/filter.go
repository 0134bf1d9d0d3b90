package resource

import "strings"

// Searchable is anything local search can match.
type Searchable interface {
	SearchText() string
}

// Filter returns the items whose search text contains query, ignoring case.
// It never touches the network; an empty query returns items unchanged.
func Filter[T Searchable](items []T, query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.SearchText()), q) {
			out = append(out, it)
		}
	}
	return out
}
