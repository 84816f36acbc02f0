package core

import (
	"cmp"
	"slices"
	"strings"
)

// SortDir is the direction of a sort.
type SortDir string

// Sort directions.
const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Sort field names understood by SortForest.
const (
	NodeSortName  = "name"
	NodeSortCount = "count"
)

const (
	// PerPageAll is the page size sentinel meaning "everything on one page".
	PerPageAll = 999999
	// DefaultPerPage is used when a view does not specify a page size.
	DefaultPerPage = 25
)

// compareText orders case-insensitively and breaks ties on the raw string so
// the order is total.
func compareText(a, b string) int {
	if c := cmp.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// Sort returns a stably sorted copy of records. Unknown fields fall back to
// the catalog's default sort; a catalog without one returns the input order.
// Equal keys keep their input order in both directions.
func Sort[T any](records []T, field string, dir SortDir, catalog Catalog[T]) []T {
	out := slices.Clone(records)
	key, ok := catalog.SortFields[field]
	if !ok {
		key, ok = catalog.SortFields[catalog.DefaultSort]
	}
	if !ok {
		return out
	}
	slices.SortStableFunc(out, func(a, b T) int {
		c := compareText(key(a), key(b))
		if dir == SortDesc {
			return -c
		}
		return c
	})
	return out
}

// SortForest returns copies of the nodes ordered by name or subtree record
// count, applied recursively to children. Records inside each node are
// sorted with the catalog's field when recordField is non-empty.
func SortForest[T any](nodes []*Node[T], field string, dir SortDir, catalog Catalog[T], recordField string) []*Node[T] {
	out := make([]*Node[T], 0, len(nodes))
	for _, n := range nodes {
		cp := *n
		cp.Children = SortForest(n.Children, field, dir, catalog, recordField)
		if recordField != "" {
			cp.Records = Sort(n.Records, recordField, dir, catalog)
		}
		out = append(out, &cp)
	}
	slices.SortStableFunc(out, func(a, b *Node[T]) int {
		var c int
		if field == NodeSortCount {
			c = cmp.Compare(a.Stats.RecordCount, b.Stats.RecordCount)
		} else {
			c = compareText(a.Name, b.Name)
		}
		if dir == SortDesc {
			return -c
		}
		return c
	})
	return out
}

// ToggleSortDir returns the direction after selecting field: the same field
// flips direction, a new field starts ascending.
func ToggleSortDir(currentField string, currentDir SortDir, field string) SortDir {
	if field == currentField && currentDir == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// Page is one slice of a paginated collection.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate slices items into 1-indexed pages. perPage of PerPageAll or more,
// or zero and below, returns everything on one page. page is clamped to
// [1, TotalPages]; an empty collection has one empty page.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	total := len(items)
	if perPage <= 0 || perPage >= PerPageAll {
		perPage = PerPageAll
	}
	totalPages := 1
	if perPage < PerPageAll && total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	page = min(max(page, 1), totalPages)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	return Page[T]{
		Items:      append(make([]T, 0, end-start), items[start:end]...),
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
