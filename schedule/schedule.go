// Package schedule produces the leveled topological order the
// propagator walks: level Lk holds the nodes whose indegree reaches zero
// once every node of levels L0..L(k-1) is removed, sorted ascending by
// node id within the level.
package schedule

import (
	"sort"

	"github.com/flowgraph/graphengine/graphmodel"
)

// Run computes the leveled topological order of g and assigns Level on
// every node as a side effect (roots at level 0). Callers must have
// already confirmed the graph is acyclic; Run does not itself detect
// cycles — a cycle simply leaves some nodes with no level assigned and
// absent from the returned levels.
func Run(g *graphmodel.Graph) [][]string {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}
	for _, e := range g.Edges {
		indegree[e.Dst]++
	}

	remaining := make(map[string]int, len(indegree))
	for id, d := range indegree {
		remaining[id] = d
	}

	var levels [][]string
	current := rootsOf(remaining)

	level := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		for _, id := range current {
			g.Nodes[id].Level = level
		}

		var next []string
		seen := map[string]bool{}
		for _, id := range current {
			for _, e := range g.OutEdges(id) {
				remaining[e.Dst]--
				if remaining[e.Dst] == 0 && !seen[e.Dst] {
					seen[e.Dst] = true
					next = append(next, e.Dst)
				}
			}
		}
		current = next
		level++
	}

	return levels
}

func rootsOf(remaining map[string]int) []string {
	var roots []string
	for id, d := range remaining {
		if d == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}
