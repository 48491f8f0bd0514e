// Package propagate walks a leveled schedule and carries data_in through
// to data_out, pushing values across edges to downstream nodes as each
// source finishes.
package propagate

import "github.com/flowgraph/graphengine/graphmodel"

// priority is the tie-break key for competing writers into the same
// destination input key: higher Level wins, then lexicographically
// smaller NodeID.
type priority struct {
	Level  int
	NodeID string
}

// higherThan reports whether p should win over other for the same
// destination key.
func (p priority) higherThan(other priority) bool {
	if p.Level != other.Level {
		return p.Level > other.Level
	}
	return p.NodeID < other.NodeID
}

// Run walks levels in ascending order, and within a level in the order
// given (callers pass schedule.Run's output, already sorted ascending by
// node id). For each node it mirrors data_in into data_out per the
// node's output schema, marks the node visited, then pushes data_out
// values across its outgoing edges into downstream data_in slots. When
// more than one edge targets the same destination key, only the push
// from the highest-priority source (greatest Level, tie-break smallest
// node id) is kept; a destination already visited is never written.
//
// pinned names (node id, input key) pairs that a caller forced via
// root_inputs or data_overwrites; those slots are left untouched by
// edge writes so a forced value cannot be clobbered by a predecessor
// that happens to also feed that key. Pass nil if nothing was forced.
//
// Run assumes levels come from an acyclic graph already scheduled by
// schedule.Run, so every edge's source level is strictly less than its
// destination's level and each node appears in exactly one level.
func Run(g *graphmodel.Graph, levels [][]string, pinned map[string]map[string]struct{}) {
	winners := map[string]map[string]priority{}

	for _, level := range levels {
		for _, id := range level {
			node, ok := g.Nodes[id]
			if !ok {
				continue
			}

			mirror(node)
			node.Visited = true

			for _, e := range g.OutEdges(id) {
				dst, ok := g.Nodes[e.Dst]
				if !ok || dst.Visited {
					continue
				}

				candidate := priority{Level: node.Level, NodeID: node.ID}
				for srcKey, dstKey := range e.KeyMap {
					if _, locked := pinned[e.Dst][dstKey]; locked {
						continue
					}

					srcVal, ok := node.DataOut[srcKey]
					if !ok {
						continue
					}

					destWinners, ok := winners[e.Dst]
					if !ok {
						destWinners = map[string]priority{}
						winners[e.Dst] = destWinners
					}

					if best, exists := destWinners[dstKey]; exists && !candidate.higherThan(best) {
						continue
					}
					destWinners[dstKey] = candidate
					dst.DataIn[dstKey] = srcVal.DeepCopy()
				}
			}
		}
	}
}

// mirror copies every key in the node's output schema from data_in to
// data_out, deep-copying compound values so downstream writers never
// alias this node's own state.
func mirror(n *graphmodel.Node) {
	for key := range n.DataOutSchema {
		val, ok := n.DataIn[key]
		if !ok {
			continue
		}
		n.DataOut[key] = val.DeepCopy()
	}
}
