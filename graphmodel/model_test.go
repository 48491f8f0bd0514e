package graphmodel

import (
	"testing"

	"github.com/flowgraph/graphengine/typesys"
)

func TestNewNodeCorrectsOutputSchema(t *testing.T) {
	n, err := NewNode("n1", map[string]typesys.TypeTag{"a": typesys.Int, "b": typesys.Str}, map[string]typesys.TypeTag{"a": typesys.Int})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	if tag, ok := n.DataOutSchema["b"]; !ok || tag != typesys.Str {
		t.Errorf("DataOutSchema[b] = %v, %v, want Str, true", tag, ok)
	}
	if !n.DataIn["a"].IsUnset() {
		t.Error("DataIn[a] should be Unset before any write")
	}
	if !n.DataOut["b"].IsUnset() {
		t.Error("DataOut[b] should be Unset before any write")
	}
}

func TestNewNodeRejectsEmptyID(t *testing.T) {
	if _, err := NewNode("", nil, nil); err == nil {
		t.Error("NewNode(\"\", ...) should error")
	}
}

func TestGraphAddNodeDuplicate(t *testing.T) {
	g := NewGraph("g1")
	n, _ := NewNode("n1", nil, nil)
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := g.AddNode(n); err == nil {
		t.Error("AddNode() duplicate should error")
	}
}

func TestGraphAddEdgeTracksIncomingAndOut(t *testing.T) {
	g := NewGraph("g1")
	a, _ := NewNode("a", map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	b, _ := NewNode("b", map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	_ = g.AddNode(a)
	_ = g.AddNode(b)

	e := &Edge{ID: "e1", Src: "a", Dst: "b", KeyMap: map[string]string{"x": "x"}}
	if err := g.AddEdge(e); err != nil {
		t.Fatalf("AddEdge() error = %v", err)
	}

	if _, ok := b.IncomingSources["a"]; !ok {
		t.Error("b.IncomingSources should contain a")
	}
	if len(g.OutEdges("a")) != 1 {
		t.Errorf("len(OutEdges(a)) = %d, want 1", len(g.OutEdges("a")))
	}
}

func TestGraphAddEdgeUnknownNode(t *testing.T) {
	g := NewGraph("g1")
	a, _ := NewNode("a", nil, nil)
	_ = g.AddNode(a)

	err := g.AddEdge(&Edge{ID: "e1", Src: "a", Dst: "missing"})
	if err == nil {
		t.Error("AddEdge() with unknown dst should error")
	}
}

func TestGraphRemoveNodePrunesEdgesAndReferences(t *testing.T) {
	g := NewGraph("g1")
	a, _ := NewNode("a", map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	b, _ := NewNode("b", map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	c, _ := NewNode("c", map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	_ = g.AddNode(a)
	_ = g.AddNode(b)
	_ = g.AddNode(c)
	_ = g.AddEdge(&Edge{ID: "e1", Src: "a", Dst: "b", KeyMap: map[string]string{"x": "x"}})
	_ = g.AddEdge(&Edge{ID: "e2", Src: "b", Dst: "c", KeyMap: map[string]string{"x": "x"}})

	g.RemoveNode("b")

	if _, ok := g.Nodes["b"]; ok {
		t.Error("b should be removed")
	}
	if len(g.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(g.Edges))
	}
	if _, ok := c.IncomingSources["b"]; ok {
		t.Error("c.IncomingSources should no longer contain b")
	}
}

func TestGraphCloneIsIndependent(t *testing.T) {
	g := NewGraph("g1")
	a, _ := NewNode("a", map[string]typesys.TypeTag{"x": typesys.List}, nil)
	a.DataIn["x"] = typesys.NewList([]any{int64(1)})
	_ = g.AddNode(a)

	clone := g.Clone()
	clonedList := clone.Nodes["a"].DataIn["x"].Payload().([]any)
	clonedList[0] = int64(99)

	origList := a.DataIn["x"].Payload().([]any)
	if origList[0] != int64(1) {
		t.Errorf("mutating clone mutated original: got %v", origList[0])
	}
}

func TestBuildFromAdjacency(t *testing.T) {
	adjacency := map[string]NodeSpec{
		"a": {DataIn: map[string]typesys.TypeTag{"x": typesys.Int}},
		"b": {DataIn: map[string]typesys.TypeTag{"x": typesys.Int}},
	}
	edges := []EdgeSpec{
		{ID: "e1", Src: "a", Dst: "b", KeyMap: map[string]string{"x": "x"}},
	}

	g, err := BuildFromAdjacency("g1", adjacency, edges)
	if err != nil {
		t.Fatalf("BuildFromAdjacency() error = %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("len(Nodes) = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Errorf("len(Edges) = %d, want 1", len(g.Edges))
	}
}
