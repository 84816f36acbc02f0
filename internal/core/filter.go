package core

import "strings"

// Matches reports whether a record passes the text query and filter key. An
// empty query matches everything; otherwise the query must appear,
// case-insensitively, in at least one search field. Keys the catalog does
// not define behave like FilterAll.
func (c Catalog[T]) Matches(record T, query string, key FilterKey) bool {
	if key != FilterAll {
		if def, ok := c.Filter(key); ok && !def.Match(record) {
			return false
		}
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return true
	}
	for _, field := range c.SearchFields {
		if strings.Contains(strings.ToLower(field(record)), needle) {
			return true
		}
	}
	return false
}

// Filter returns the records that pass query and key, in input order.
func Filter[T any](records []T, query string, key FilterKey, catalog Catalog[T]) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		if catalog.Matches(record, query, key) {
			out = append(out, record)
		}
	}
	return out
}

// FilterTree returns a new node holding only the matching records and the
// surviving children, with freshly aggregated stats. It returns nil when
// neither any attached record nor any child survives. The input tree is not
// modified.
func FilterTree[T any](node *Node[T], query string, key FilterKey, catalog Catalog[T]) *Node[T] {
	if node == nil {
		return nil
	}
	out := node.shell()
	out.Records = Filter(node.Records, query, key, catalog)
	for _, child := range node.Children {
		if kept := FilterTree(child, query, key, catalog); kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	if len(out.Records) == 0 && len(out.Children) == 0 {
		return nil
	}
	out.Stats = aggregateNode(out, catalog.Capabilities)
	return out
}

// FilterForest applies FilterTree to every root and drops pruned roots.
func FilterForest[T any](roots []*Node[T], query string, key FilterKey, catalog Catalog[T]) []*Node[T] {
	out := make([]*Node[T], 0, len(roots))
	for _, root := range roots {
		if kept := FilterTree(root, query, key, catalog); kept != nil {
			out = append(out, kept)
		}
	}
	return out
}
