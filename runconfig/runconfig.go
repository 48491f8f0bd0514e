// Package runconfig applies a caller-supplied RunConfig to a graph
// snapshot: pruning disabled nodes, substituting data_overwrites, and
// seeding root_inputs, ahead of the root-admissibility gate that decides
// whether the run may proceed to validation and scheduling.
package runconfig

import (
	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/typesys"
)

// Config is the ephemeral, per-request override set for one execution.
type Config struct {
	// RootInputs seeds data_in on designated root nodes: node id -> input
	// key -> value.
	RootInputs map[string]map[string]typesys.Value
	// DisableList names node ids to exclude from the run entirely.
	DisableList []string
	// DataOverwrites replaces a node's initial data_in, per key, before
	// propagation: node id -> input key -> value.
	DataOverwrites map[string]map[string]typesys.Value
}

// Apply prunes disabled nodes, applies data_overwrites, and seeds
// root_inputs, in that order, mutating g in place. Overwrites and seeds
// targeting a node that no longer exists (because it was disabled, or
// never existed) are silently ignored.
func Apply(g *graphmodel.Graph, cfg Config) {
	for _, id := range cfg.DisableList {
		g.RemoveNode(id)
	}

	for nodeID, overrides := range cfg.DataOverwrites {
		node, ok := g.Nodes[nodeID]
		if !ok {
			continue
		}
		for key, val := range overrides {
			node.DataIn[key] = val
		}
	}

	for nodeID, values := range cfg.RootInputs {
		node, ok := g.Nodes[nodeID]
		if !ok {
			continue
		}
		for key, val := range values {
			node.DataIn[key] = val
		}
	}
}

// PinnedInputs returns, for every (node id, input key) set explicitly by
// data_overwrites or root_inputs, the set of keys that must not be
// clobbered by an edge write during propagation. Without this, a node
// fed by an edge would have its forced value overwritten the moment its
// predecessor is visited, defeating the purpose of supplying it.
func PinnedInputs(cfg Config) map[string]map[string]struct{} {
	pinned := map[string]map[string]struct{}{}
	merge := func(src map[string]map[string]typesys.Value) {
		for nodeID, kv := range src {
			set, ok := pinned[nodeID]
			if !ok {
				set = map[string]struct{}{}
				pinned[nodeID] = set
			}
			for key := range kv {
				set[key] = struct{}{}
			}
		}
	}
	merge(cfg.DataOverwrites)
	merge(cfg.RootInputs)
	return pinned
}

// RootsAdmissible reports whether every node id named in root_inputs is a
// root of the post-pruning graph — it exists and has no incoming edge.
// This is the strict contract: a non-root or missing seed target fails
// the whole run, rather than being silently skipped like a stray key in
// the original source's single-key check.
func RootsAdmissible(g *graphmodel.Graph, rootInputs map[string]map[string]typesys.Value) bool {
	for nodeID := range rootInputs {
		if _, ok := g.Nodes[nodeID]; !ok {
			return false
		}
		if g.Indegree(nodeID) != 0 {
			return false
		}
	}
	return true
}
