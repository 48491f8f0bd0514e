package schedule

import (
	"reflect"
	"testing"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/typesys"
)

func node(t *testing.T, g *graphmodel.Graph, id string) {
	t.Helper()
	n, err := graphmodel.NewNode(id, map[string]typesys.TypeTag{"x": typesys.Int}, nil)
	if err != nil {
		t.Fatalf("NewNode(%q) error = %v", id, err)
	}
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode(%q) error = %v", id, err)
	}
}

func edge(t *testing.T, g *graphmodel.Graph, id, src, dst string) {
	t.Helper()
	if err := g.AddEdge(&graphmodel.Edge{ID: id, Src: src, Dst: dst, KeyMap: map[string]string{"x": "x"}}); err != nil {
		t.Fatalf("AddEdge(%q) error = %v", id, err)
	}
}

func TestRunEmptyGraph(t *testing.T) {
	g := graphmodel.NewGraph("g")
	levels := Run(g)
	if len(levels) != 0 {
		t.Errorf("Run(empty) = %v, want no levels", levels)
	}
}

func TestRunSingleNode(t *testing.T) {
	g := graphmodel.NewGraph("g")
	node(t, g, "a")
	levels := Run(g)
	want := [][]string{{"a"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("Run() = %v, want %v", levels, want)
	}
	if g.Nodes["a"].Level != 0 {
		t.Errorf("a.Level = %d, want 0", g.Nodes["a"].Level)
	}
}

// Diamond: A -> B, A -> C, B -> D, C -> D. Levels: [A], [B,C], [D].
func TestRunDiamond(t *testing.T) {
	g := graphmodel.NewGraph("g")
	for _, id := range []string{"A", "B", "C", "D"} {
		node(t, g, id)
	}
	edge(t, g, "e1", "A", "B")
	edge(t, g, "e2", "A", "C")
	edge(t, g, "e3", "B", "D")
	edge(t, g, "e4", "C", "D")

	levels := Run(g)
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("Run() = %v, want %v", levels, want)
	}
	if g.Nodes["D"].Level != 2 {
		t.Errorf("D.Level = %d, want 2", g.Nodes["D"].Level)
	}
}

func TestRunLevelsSortedAscending(t *testing.T) {
	g := graphmodel.NewGraph("g")
	for _, id := range []string{"z", "y", "x"} {
		node(t, g, id)
	}
	levels := Run(g)
	if len(levels) != 1 {
		t.Fatalf("len(levels) = %d, want 1", len(levels))
	}
	want := []string{"x", "y", "z"}
	if !reflect.DeepEqual(levels[0], want) {
		t.Errorf("levels[0] = %v, want %v", levels[0], want)
	}
}

func TestRunDeterministic(t *testing.T) {
	build := func() *graphmodel.Graph {
		g := graphmodel.NewGraph("g")
		for _, id := range []string{"A", "B", "C", "D"} {
			node(t, g, id)
		}
		edge(t, g, "e1", "A", "B")
		edge(t, g, "e2", "A", "C")
		edge(t, g, "e3", "B", "D")
		edge(t, g, "e4", "C", "D")
		return g
	}

	first := Run(build())
	second := Run(build())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Run() not deterministic: %v vs %v", first, second)
	}
}
