package propagate

import (
	"testing"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/schedule"
	"github.com/flowgraph/graphengine/typesys"
)

func newNode(t *testing.T, g *graphmodel.Graph, id string, in, out map[string]typesys.TypeTag) *graphmodel.Node {
	t.Helper()
	n, err := graphmodel.NewNode(id, in, out)
	if err != nil {
		t.Fatalf("NewNode(%q) error = %v", id, err)
	}
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode(%q) error = %v", id, err)
	}
	return n
}

func newEdge(t *testing.T, g *graphmodel.Graph, id, src, dst string, keyMap map[string]string) {
	t.Helper()
	if err := g.AddEdge(&graphmodel.Edge{ID: id, Src: src, Dst: dst, KeyMap: keyMap}); err != nil {
		t.Fatalf("AddEdge(%q) error = %v", id, err)
	}
}

// A feeds B and C; B feeds D's "x" input key directly, C feeds it through
// an extra hop C2, so the two writers into D.x are B (level 1) and C2
// (level 2). C's input is pinned to 2 while B carries A's 1, so D must
// end up with 2: the higher-level writer wins. The same-level node-id
// tie-break is covered by TestRunSameLevelTieBreakByNodeID.
func TestRunHighestLevelWins(t *testing.T) {
	g := graphmodel.NewGraph("g")
	a := newNode(t, g, "A", nil, map[string]typesys.TypeTag{"v": typesys.Int})
	newNode(t, g, "B", map[string]typesys.TypeTag{"v": typesys.Int}, map[string]typesys.TypeTag{"v": typesys.Int})
	newNode(t, g, "C", map[string]typesys.TypeTag{"v": typesys.Int}, map[string]typesys.TypeTag{"v": typesys.Int})
	newNode(t, g, "D", map[string]typesys.TypeTag{"x": typesys.Int}, nil)

	a.DataIn = map[string]typesys.Value{}
	a.DataOut["v"] = typesys.NewInt(1)

	newEdge(t, g, "e1", "A", "B", map[string]string{"v": "v"})
	newEdge(t, g, "e2", "A", "C", map[string]string{"v": "v"})
	newEdge(t, g, "e3", "B", "D", map[string]string{"v": "x"})
	// C -> D via an intermediate hop so C lands at a strictly higher
	// level than B, making C the unambiguous highest-priority writer.
	newNode(t, g, "C2", map[string]typesys.TypeTag{"v": typesys.Int}, map[string]typesys.TypeTag{"v": typesys.Int})
	newEdge(t, g, "e4", "C", "C2", map[string]string{"v": "v"})
	newEdge(t, g, "e5", "C2", "D", map[string]string{"v": "x"})

	g.Nodes["C"].DataIn["v"] = typesys.NewInt(2)

	levels := schedule.Run(g)
	Run(g, levels, map[string]map[string]struct{}{"C": {"v": struct{}{}}})

	got := g.Nodes["D"].DataOut["x"]
	if got.IsUnset() || got.Payload().(int64) != 2 {
		t.Fatalf("D.DataOut[x] = %#v, want mirrored int 2 from C2 (higher level writer), not 1 from B", got)
	}
	if g.Nodes["D"].Level != 3 {
		t.Fatalf("D.Level = %d, want 3 (after B=1, C=1, C2=2)", g.Nodes["D"].Level)
	}
}

// Two same-level siblings race to write the same destination key; the
// lexicographically smaller node id must win regardless of processing
// order within the level.
func TestRunSameLevelTieBreakByNodeID(t *testing.T) {
	g := graphmodel.NewGraph("g")
	newNode(t, g, "root", nil, map[string]typesys.TypeTag{"v": typesys.Int})
	b := newNode(t, g, "B", map[string]typesys.TypeTag{"v": typesys.Int}, map[string]typesys.TypeTag{"v": typesys.Int})
	z := newNode(t, g, "Z", map[string]typesys.TypeTag{"v": typesys.Int}, map[string]typesys.TypeTag{"v": typesys.Int})
	newNode(t, g, "dst", map[string]typesys.TypeTag{"x": typesys.Int}, nil)

	newEdge(t, g, "e1", "root", "B", map[string]string{"v": "v"})
	newEdge(t, g, "e2", "root", "Z", map[string]string{"v": "v"})
	newEdge(t, g, "e3", "B", "dst", map[string]string{"v": "x"})
	newEdge(t, g, "e4", "Z", "dst", map[string]string{"v": "x"})

	g.Nodes["root"].DataOut["v"] = typesys.NewInt(7)
	_ = b
	// Z carries a distinct pinned value so the winner is observable:
	// B passes on root's 7, Z its own 9.
	z.DataIn["v"] = typesys.NewInt(9)

	levels := schedule.Run(g)
	Run(g, levels, map[string]map[string]struct{}{"Z": {"v": struct{}{}}})

	if g.Nodes["B"].Level != g.Nodes["Z"].Level {
		t.Fatalf("B.Level=%d Z.Level=%d, want equal (same level)", g.Nodes["B"].Level, g.Nodes["Z"].Level)
	}

	got := g.Nodes["dst"].DataOut["x"]
	if got.IsUnset() {
		t.Fatal("dst.DataOut[x] unset, want a value written")
	}
	if got.Payload().(int64) != 7 {
		t.Fatalf("dst.DataOut[x] = %#v, want 7 from B (smaller node id than Z)", got)
	}
}

func TestRunMirrorsDataInToDataOut(t *testing.T) {
	g := graphmodel.NewGraph("g")
	n := newNode(t, g, "solo", map[string]typesys.TypeTag{"a": typesys.Str}, map[string]typesys.TypeTag{"a": typesys.Str})
	n.DataIn["a"] = typesys.NewStr("hello")

	levels := schedule.Run(g)
	Run(g, levels, nil)

	got := g.Nodes["solo"].DataOut["a"]
	if got.IsUnset() || got.Payload().(string) != "hello" {
		t.Fatalf("solo.DataOut[a] = %#v, want \"hello\"", got)
	}
}

func TestRunMarksVisited(t *testing.T) {
	g := graphmodel.NewGraph("g")
	newNode(t, g, "solo", nil, nil)

	levels := schedule.Run(g)
	Run(g, levels, nil)

	if !g.Nodes["solo"].Visited {
		t.Error("solo.Visited = false, want true after Run")
	}
}

func TestRunDoesNotAliasCompoundValues(t *testing.T) {
	g := graphmodel.NewGraph("g")
	src := newNode(t, g, "src", nil, map[string]typesys.TypeTag{"items": typesys.List})
	dst := newNode(t, g, "dst", map[string]typesys.TypeTag{"items": typesys.List}, map[string]typesys.TypeTag{"items": typesys.List})
	newEdge(t, g, "e1", "src", "dst", map[string]string{"items": "items"})

	src.DataOut["items"] = typesys.NewList([]any{"a", "b"})

	levels := schedule.Run(g)
	Run(g, levels, nil)

	dstList := dst.DataIn["items"].Payload().([]any)
	dstList[0] = "mutated"

	srcList := src.DataOut["items"].Payload().([]any)
	if srcList[0] == "mutated" {
		t.Error("mutating dst.DataIn[items] affected src.DataOut[items]; want independent copies")
	}
}

// A pinned destination key must survive an incoming edge write — this is
// what lets a forced data_overwrite on a non-root node stick instead of
// being clobbered the moment its predecessor is visited.
func TestRunPinnedKeyResistsEdgeWrite(t *testing.T) {
	g := graphmodel.NewGraph("g")
	src := newNode(t, g, "src", nil, map[string]typesys.TypeTag{"x": typesys.Int})
	dst := newNode(t, g, "dst", map[string]typesys.TypeTag{"x": typesys.Int}, map[string]typesys.TypeTag{"x": typesys.Int})
	newEdge(t, g, "e1", "src", "dst", map[string]string{"x": "x"})

	src.DataOut["x"] = typesys.NewInt(1)
	dst.DataIn["x"] = typesys.NewInt(10)

	levels := schedule.Run(g)
	Run(g, levels, map[string]map[string]struct{}{"dst": {"x": struct{}{}}})

	got := g.Nodes["dst"].DataOut["x"]
	if got.IsUnset() || got.Payload().(int64) != 10 {
		t.Fatalf("dst.DataOut[x] = %#v, want 10 (pinned value must survive src's push of 1)", got)
	}
}
