package core

// AggregatedStats are the roll-up counters of a node's subtree.
type AggregatedStats struct {
	RecordCount  int            `json:"record_count"`
	Capabilities map[string]int `json:"capabilities"`
}

// Has reports whether any record in the subtree has the capability.
func (s AggregatedStats) Has(name string) bool {
	return s.Capabilities[name] > 0
}

// Aggregate recomputes stats for node and every descendant, children first,
// and returns the node's stats.
func Aggregate[T any](node *Node[T], capabilities []Capability[T]) AggregatedStats {
	if node == nil {
		return AggregatedStats{Capabilities: map[string]int{}}
	}
	for _, child := range node.Children {
		Aggregate(child, capabilities)
	}
	node.Stats = aggregateNode(node, capabilities)
	return node.Stats
}

// AggregateForest aggregates every root and returns the combined stats.
func AggregateForest[T any](roots []*Node[T], capabilities []Capability[T]) AggregatedStats {
	total := AggregatedStats{Capabilities: make(map[string]int, len(capabilities))}
	for _, capability := range capabilities {
		total.Capabilities[capability.Name] = 0
	}
	for _, root := range roots {
		stats := Aggregate(root, capabilities)
		total.RecordCount += stats.RecordCount
		for name, n := range stats.Capabilities {
			total.Capabilities[name] += n
		}
	}
	return total
}

// Summarize computes stats for a flat record list.
func Summarize[T any](records []T, capabilities []Capability[T]) AggregatedStats {
	return aggregateNode(&Node[T]{Records: records}, capabilities)
}

// aggregateNode combines the node's own records with children whose stats
// are already current.
func aggregateNode[T any](node *Node[T], capabilities []Capability[T]) AggregatedStats {
	stats := AggregatedStats{
		RecordCount:  len(node.Records),
		Capabilities: make(map[string]int, len(capabilities)),
	}
	for _, capability := range capabilities {
		count := 0
		for _, record := range node.Records {
			if capability.Has(record) {
				count++
			}
		}
		stats.Capabilities[capability.Name] = count
	}
	for _, child := range node.Children {
		stats.RecordCount += child.Stats.RecordCount
		for _, capability := range capabilities {
			stats.Capabilities[capability.Name] += child.Stats.Capabilities[capability.Name]
		}
	}
	return stats
}
