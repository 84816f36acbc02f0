package core

import (
	"strings"

	"fedaidash/pkg/domain"
)

// Node is one organization in a hierarchy together with the records attached
// directly to it. A parent exclusively owns its children.
type Node[T any] struct {
	Key          string          `json:"key"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Abbreviation string          `json:"abbreviation,omitempty"`
	Level        domain.OrgLevel `json:"level"`
	Children     []*Node[T]      `json:"children"`
	Records      []T             `json:"records"`
	Stats        AggregatedStats `json:"stats"`
}

// shell copies the identity fields of n without children, records or stats.
func (n *Node[T]) shell() *Node[T] {
	return &Node[T]{Key: n.Key, ID: n.ID, Name: n.Name, Abbreviation: n.Abbreviation, Level: n.Level}
}

// Walk visits n and its descendants depth-first, parents before children.
func (n *Node[T]) Walk(fn func(node *Node[T], depth int)) {
	n.walk(fn, 0)
}

func (n *Node[T]) walk(fn func(*Node[T], int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// Forest is the result of BuildForest: root organizations in input order and
// the records that matched no organization.
type Forest[T any] struct {
	Roots      []*Node[T]
	Unattached []T

	nodes  map[string]*Node[T]
	rootOf map[string]string
}

// RootOf returns the key of the root that contains the node with the given key.
func (f Forest[T]) RootOf(key string) (string, bool) {
	root, ok := f.rootOf[key]
	return root, ok
}

// Node looks up a node by key.
func (f Forest[T]) Node(key string) (*Node[T], bool) {
	n, ok := f.nodes[key]
	return n, ok
}

// Keys returns every node key, parents before children.
func (f Forest[T]) Keys() []string {
	var keys []string
	for _, root := range f.Roots {
		root.Walk(func(n *Node[T], _ int) { keys = append(keys, n.Key) })
	}
	return keys
}

// orgIndex resolves organization references by ID, name, short name,
// abbreviation or department-stripped name. The first organization to claim a
// normalized key keeps it.
type orgIndex struct {
	byID   map[string]string
	byName map[string]string
}

func newOrgIndex(orgs []domain.Organization) orgIndex {
	idx := orgIndex{byID: make(map[string]string, len(orgs)), byName: make(map[string]string, len(orgs)*3)}
	for _, org := range orgs {
		idx.byID[org.ID] = org.ID
	}
	for _, org := range orgs {
		for _, raw := range []string{org.Name, org.ShortName, org.Abbreviation} {
			key := domain.NormalizeName(raw)
			if key == "" {
				continue
			}
			idx.claim(key, org.ID)
			idx.claim(domain.StripDepartmentPrefix(key), org.ID)
		}
	}
	return idx
}

func (idx orgIndex) claim(key, id string) {
	if _, taken := idx.byName[key]; !taken {
		idx.byName[key] = id
	}
}

func (idx orgIndex) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if id, ok := idx.byID[ref]; ok {
		return id, true
	}
	key := domain.NormalizeName(ref)
	if id, ok := idx.byName[key]; ok {
		return id, true
	}
	id, ok := idx.byName[domain.StripDepartmentPrefix(key)]
	return id, ok
}

// OrgResolver matches free-text agency references against organizations
// the same way BuildForest attaches records.
type OrgResolver struct {
	idx orgIndex
}

// NewOrgResolver indexes orgs for Resolve.
func NewOrgResolver(orgs []domain.Organization) OrgResolver {
	return OrgResolver{idx: newOrgIndex(orgs)}
}

// Resolve returns the ID of the organization named by the first candidate
// that matches.
func (r OrgResolver) Resolve(candidates ...string) (string, bool) {
	for _, candidate := range candidates {
		if id, ok := r.idx.resolve(candidate); ok {
			return id, true
		}
	}
	return "", false
}

// NodeKey is the stable key of an organization node: its slug, or its ID
// when the slug is empty.
func NodeKey(org domain.Organization) string {
	if org.Slug != "" {
		return org.Slug
	}
	return org.ID
}

// BuildForest assembles the organization hierarchy and attaches each record
// to the first organization its candidate references resolve to. attach
// returns the ordered candidates for a record; a nil attach leaves every
// record unattached. Unresolvable parents make a node a root, and a parent
// link that would close a cycle is dropped so that node becomes a root.
func BuildForest[T any](orgs []domain.Organization, records []T, attach func(T) []string) Forest[T] {
	idx := newOrgIndex(orgs)
	byID := make(map[string]*Node[T], len(orgs))
	order := make([]string, 0, len(orgs))
	for _, org := range orgs {
		if _, dup := byID[org.ID]; dup {
			continue
		}
		byID[org.ID] = &Node[T]{
			Key:          NodeKey(org),
			ID:           org.ID,
			Name:         org.Name,
			Abbreviation: org.Abbreviation,
			Level:        org.Level,
		}
		order = append(order, org.ID)
	}

	parent := make(map[string]string, len(orgs))
	for _, org := range orgs {
		if _, seen := parent[org.ID]; seen {
			continue
		}
		pid, ok := idx.resolve(org.ParentRef)
		if !ok || pid == org.ID || closesCycle(parent, pid, org.ID) {
			continue
		}
		parent[org.ID] = pid
	}

	forest := Forest[T]{
		nodes:  make(map[string]*Node[T], len(byID)),
		rootOf: make(map[string]string, len(byID)),
	}
	for _, id := range order {
		node := byID[id]
		forest.nodes[node.Key] = node
		if pid, ok := parent[id]; ok {
			p := byID[pid]
			p.Children = append(p.Children, node)
			continue
		}
		forest.Roots = append(forest.Roots, node)
	}
	for _, root := range forest.Roots {
		root.Walk(func(n *Node[T], _ int) { forest.rootOf[n.Key] = root.Key })
	}

	for _, record := range records {
		var target *Node[T]
		if attach != nil {
			for _, candidate := range attach(record) {
				if id, ok := idx.resolve(candidate); ok {
					target = byID[id]
					break
				}
			}
		}
		if target == nil {
			forest.Unattached = append(forest.Unattached, record)
			continue
		}
		target.Records = append(target.Records, record)
	}
	return forest
}

// closesCycle reports whether linking child under candidate would create a
// cycle given the links established so far. The visited set bounds the walk
// even if the existing links were malformed.
func closesCycle(parent map[string]string, candidate, child string) bool {
	visited := map[string]struct{}{}
	for cur := candidate; cur != ""; cur = parent[cur] {
		if cur == child {
			return true
		}
		if _, seen := visited[cur]; seen {
			return true
		}
		visited[cur] = struct{}{}
	}
	return false
}
