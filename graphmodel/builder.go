package graphmodel

import (
	"fmt"

	"github.com/flowgraph/graphengine/typesys"
)

// NodeSpec is one adjacency-list entry: a node's declared schemas, mapping
// each key to an already-parsed type tag (callers parse serialized tag
// strings, e.g. with typesys.ParseTag, before building a NodeSpec).
type NodeSpec struct {
	DataIn  map[string]typesys.TypeTag
	DataOut map[string]typesys.TypeTag
}

// EdgeSpec is one edge-list entry.
type EdgeSpec struct {
	ID     string
	Src    string
	Dst    string
	KeyMap map[string]string
}

// BuildFromAdjacency constructs a Graph from an adjacency list (node id ->
// schemas) and an edge list, denormalizing each edge onto its source
// node's outgoing list and its destination's IncomingSources. It performs
// no cross-node validation beyond "do referenced nodes exist" — that is
// GraphValidator's job, run separately before scheduling.
func BuildFromAdjacency(graphID string, adjacency map[string]NodeSpec, edges []EdgeSpec) (*Graph, error) {
	g := NewGraph(graphID)

	for id, spec := range adjacency {
		n, err := NewNode(id, spec.DataIn, spec.DataOut)
		if err != nil {
			return nil, fmt.Errorf("building node %q: %w", id, err)
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, spec := range edges {
		e := &Edge{ID: spec.ID, Src: spec.Src, Dst: spec.Dst, KeyMap: cloneStringMap(spec.KeyMap)}
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("building edge %q: %w", spec.ID, err)
		}
	}

	return g, nil
}
