// Package graphmodel is the in-memory representation of typed directed
// graphs: nodes with typed input/output schemas, and edges that map
// specific output keys of a source node onto specific input keys of a
// destination node.
package graphmodel

import (
	"errors"
	"fmt"

	"github.com/flowgraph/graphengine/typesys"
)

// Sentinel errors, each distinguishable by errors.Is.
var (
	ErrEmptyID          = errors.New("id must not be empty")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrDuplicateEdge    = errors.New("duplicate edge id")
	ErrUnknownNode      = errors.New("node does not exist")
	ErrDuplicateSchema  = errors.New("duplicate key in schema")
	ErrKeyNotInSchema   = errors.New("key not declared in schema")
	ErrTypeMismatch     = errors.New("type tag mismatch")
)

// Node is a typed conduit in the graph. Nodes never compute: data_out
// mirrors the subset of data_in selected by DataOutSchema.
type Node struct {
	ID string

	DataInSchema  map[string]typesys.TypeTag
	DataOutSchema map[string]typesys.TypeTag

	DataIn  map[string]typesys.Value
	DataOut map[string]typesys.Value

	// Level is the node's position in the leveled topological order,
	// -1 until the scheduler assigns it.
	Level int
	// Visited is set once the propagator has processed this node.
	Visited bool
	// IncomingSources holds the ids of nodes with at least one edge into
	// this node, derived from the edge pool when the graph is built.
	IncomingSources map[string]struct{}

	// outEdges holds the edges whose source is this node, denormalized
	// from the edge pool for fast walking during scheduling/propagation.
	outEdges []*Edge
}

// NewNode constructs a Node with DataIn/DataOut initialized to Unset per
// declared key, and DataOutSchema corrected so that every key it lacks
// but DataInSchema has is added with DataInSchema's tag (output keys are
// always a typed subset of input keys).
func NewNode(id string, dataInSchema, dataOutSchema map[string]typesys.TypeTag) (*Node, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	inSchema := cloneTagMap(dataInSchema)
	outSchema := cloneTagMap(dataOutSchema)
	if outSchema == nil {
		outSchema = map[string]typesys.TypeTag{}
	}
	for key, tag := range inSchema {
		if _, ok := outSchema[key]; !ok {
			outSchema[key] = tag
		}
	}

	n := &Node{
		ID:              id,
		DataInSchema:    inSchema,
		DataOutSchema:   outSchema,
		DataIn:          map[string]typesys.Value{},
		DataOut:         map[string]typesys.Value{},
		Level:           -1,
		IncomingSources: map[string]struct{}{},
	}
	for key, tag := range inSchema {
		n.DataIn[key] = typesys.Unset(tag)
	}
	for key, tag := range outSchema {
		n.DataOut[key] = typesys.Unset(tag)
	}
	return n, nil
}

func cloneTagMap(in map[string]typesys.TypeTag) map[string]typesys.TypeTag {
	if in == nil {
		return nil
	}
	out := make(map[string]typesys.TypeTag, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Edge maps specific output keys of Src onto specific input keys of Dst.
type Edge struct {
	ID      string
	Src     string
	Dst     string
	KeyMap  map[string]string // source output key -> destination input key
}

// Graph is a node/edge snapshot ready for validation and execution. Edges
// are not embedded on Graph; they are filtered from a global pool to
// those whose endpoints are both in Nodes.
type Graph struct {
	ID    string
	Nodes map[string]*Node
	Edges []*Edge
}

// NewGraph creates an empty graph with the given id.
func NewGraph(id string) *Graph {
	return &Graph{
		ID:    id,
		Nodes: map[string]*Node{},
	}
}

// AddNode inserts a node, failing if the id is already present.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrEmptyID)
	}
	if _, exists := g.Nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.Nodes[n.ID] = n
	return nil
}

// AddEdge attaches e to its source node's outgoing list and records the
// source in the destination's IncomingSources. Both endpoints must
// already exist in the graph.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil || e.ID == "" {
		return ErrEmptyID
	}
	src, ok := g.Nodes[e.Src]
	if !ok {
		return fmt.Errorf("%w: src node %q", ErrUnknownNode, e.Src)
	}
	dst, ok := g.Nodes[e.Dst]
	if !ok {
		return fmt.Errorf("%w: dst node %q", ErrUnknownNode, e.Dst)
	}
	for _, existing := range g.Edges {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID)
		}
	}

	g.Edges = append(g.Edges, e)
	src.outEdges = append(src.outEdges, e)
	dst.IncomingSources[e.Src] = struct{}{}
	return nil
}

// OutEdges returns the edges whose source is nodeID, in the order they
// were added.
func (g *Graph) OutEdges(nodeID string) []*Edge {
	n, ok := g.Nodes[nodeID]
	if !ok {
		return nil
	}
	return n.outEdges
}

// Clone returns a deep copy of the graph: independent Node/Edge records
// and independent Value payloads, suitable as a per-request execution
// snapshot that is never written back to the persisted store.
func (g *Graph) Clone() *Graph {
	out := NewGraph(g.ID)
	nodeCopies := make(map[string]*Node, len(g.Nodes))
	for id, n := range g.Nodes {
		nc := &Node{
			ID:              n.ID,
			DataInSchema:    cloneTagMap(n.DataInSchema),
			DataOutSchema:   cloneTagMap(n.DataOutSchema),
			DataIn:          cloneValueMap(n.DataIn),
			DataOut:         cloneValueMap(n.DataOut),
			Level:           n.Level,
			Visited:         n.Visited,
			IncomingSources: cloneStringSet(n.IncomingSources),
		}
		nodeCopies[id] = nc
		out.Nodes[id] = nc
	}
	for _, e := range g.Edges {
		ec := &Edge{ID: e.ID, Src: e.Src, Dst: e.Dst, KeyMap: cloneStringMap(e.KeyMap)}
		out.Edges = append(out.Edges, ec)
		if src, ok := nodeCopies[e.Src]; ok {
			src.outEdges = append(src.outEdges, ec)
		}
	}
	return out
}

func cloneValueMap(in map[string]typesys.Value) map[string]typesys.Value {
	out := make(map[string]typesys.Value, len(in))
	for k, v := range in {
		out[k] = v.DeepCopy()
	}
	return out
}

func cloneStringSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RemoveNode deletes a node and every edge touching it, and scrubs
// references to it from other nodes' IncomingSources/outEdges. Used by
// runconfig when pruning disabled nodes.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.Nodes[id]; !ok {
		return
	}
	delete(g.Nodes, id)

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Src == id || e.Dst == id {
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept

	for _, n := range g.Nodes {
		delete(n.IncomingSources, id)
		filtered := n.outEdges[:0]
		for _, e := range n.outEdges {
			if e.Dst == id {
				continue
			}
			filtered = append(filtered, e)
		}
		n.outEdges = filtered
	}
}

// Indegree returns the number of distinct edges (not distinct sources)
// whose destination is nodeID, counting multiplicity so multi-edge pairs
// are reflected in scheduling.
func (g *Graph) Indegree(nodeID string) int {
	count := 0
	for _, e := range g.Edges {
		if e.Dst == nodeID {
			count++
		}
	}
	return count
}
