package execsvc

import (
	"context"
	"testing"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/typesys"
)

// fakeRepo serves a fixed graph/edge set and is never written to by
// Execute; Save* calls are recorded only so tests can assert they never
// happen.
type fakeRepo struct {
	graph    *graphmodel.Graph
	edges    []*graphmodel.Edge
	saveHits int
}

func (f *fakeRepo) LoadGraph(ctx context.Context, graphID string) (*graphmodel.Graph, error) {
	if graphID != f.graph.ID {
		return nil, nil
	}
	g := graphmodel.NewGraph(f.graph.ID)
	for id, n := range f.graph.Nodes {
		nc, err := graphmodel.NewNode(id, n.DataInSchema, n.DataOutSchema)
		if err != nil {
			return nil, err
		}
		for k, v := range n.DataIn {
			nc.DataIn[k] = v
		}
		if err := g.AddNode(nc); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (f *fakeRepo) LoadEdges(ctx context.Context) ([]*graphmodel.Edge, error) {
	out := make([]*graphmodel.Edge, len(f.edges))
	for i, e := range f.edges {
		out[i] = &graphmodel.Edge{ID: e.ID, Src: e.Src, Dst: e.Dst, KeyMap: e.KeyMap}
	}
	return out, nil
}

func (f *fakeRepo) SaveNode(ctx context.Context, n *graphmodel.Node) error {
	f.saveHits++
	return nil
}

func (f *fakeRepo) SaveEdge(ctx context.Context, e *graphmodel.Edge) error {
	f.saveHits++
	return nil
}

func (f *fakeRepo) SaveGraph(ctx context.Context, g *graphmodel.Graph) error {
	f.saveHits++
	return nil
}

func diamondRepo(t *testing.T) *fakeRepo {
	t.Helper()
	g := graphmodel.NewGraph("diamond")
	for _, id := range []string{"A", "B", "C", "D"} {
		n, err := graphmodel.NewNode(id, map[string]typesys.TypeTag{"x": typesys.Int}, map[string]typesys.TypeTag{"x": typesys.Int})
		if err != nil {
			t.Fatalf("NewNode(%q) error = %v", id, err)
		}
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%q) error = %v", id, err)
		}
	}
	return &fakeRepo{
		graph: g,
		edges: []*graphmodel.Edge{
			{ID: "e1", Src: "A", Dst: "B", KeyMap: map[string]string{"x": "x"}},
			{ID: "e2", Src: "A", Dst: "C", KeyMap: map[string]string{"x": "x"}},
			{ID: "e3", Src: "B", Dst: "D", KeyMap: map[string]string{"x": "x"}},
			{ID: "e4", Src: "C", Dst: "D", KeyMap: map[string]string{"x": "x"}},
		},
	}
}

// root_inputs seeds A; B and C are overwritten to different values. B
// and C are equal-level siblings (both children of A), so the
// tie-break's smaller node id wins: D must end up with B's value.
func TestExecuteScenarioATieBreak(t *testing.T) {
	repo := diamondRepo(t)
	svc := New(repo)

	cfg := runconfig.Config{
		RootInputs: map[string]map[string]typesys.Value{"A": {"x": typesys.NewInt(1)}},
		DataOverwrites: map[string]map[string]typesys.Value{
			"B": {"x": typesys.NewInt(10)},
			"C": {"x": typesys.NewInt(20)},
		},
	}

	result, err := svc.Execute(context.Background(), "diamond", cfg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Sentinel != "" {
		t.Fatalf("Execute() sentinel = %q, want none", result.Sentinel)
	}

	d := result.States["D"]
	got := d.DataIn["x"]
	if got.IsUnset() || got.Payload().(int64) != 10 {
		t.Fatalf("D.DataIn[x] = %#v, want 10 (B wins the same-level tie-break over C)", got)
	}
	if repo.saveHits != 0 {
		t.Errorf("saveHits = %d, want 0 (Execute must never write back to the store)", repo.saveHits)
	}
}

func TestExecuteScenarioBDisable(t *testing.T) {
	repo := diamondRepo(t)
	svc := New(repo)

	cfg := runconfig.Config{
		RootInputs:  map[string]map[string]typesys.Value{"A": {"x": typesys.NewInt(1)}},
		DisableList: []string{"B"},
	}

	result, err := svc.Execute(context.Background(), "diamond", cfg)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	d := result.States["D"]
	got := d.DataIn["x"]
	if got.IsUnset() || got.Payload().(int64) != 1 {
		t.Fatalf("D.DataIn[x] = %#v, want 1 (propagated from A through C only)", got)
	}
	if _, ok := result.States["B"]; ok {
		t.Error("B present in states, want pruned by disable_list")
	}
}

func TestExecuteScenarioENonRootSeed(t *testing.T) {
	g := graphmodel.NewGraph("chain")
	for _, id := range []string{"A", "B", "C"} {
		n, _ := graphmodel.NewNode(id, map[string]typesys.TypeTag{"x": typesys.Int}, nil)
		_ = g.AddNode(n)
	}
	repo := &fakeRepo{
		graph: g,
		edges: []*graphmodel.Edge{
			{ID: "e1", Src: "A", Dst: "B", KeyMap: map[string]string{"x": "x"}},
			{ID: "e2", Src: "B", Dst: "C", KeyMap: map[string]string{"x": "x"}},
		},
	}
	svc := New(repo)

	result, err := svc.Execute(context.Background(), "chain", runconfig.Config{
		RootInputs: map[string]map[string]typesys.Value{"B": {"x": typesys.NewInt(7)}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Sentinel != NotARootNode {
		t.Errorf("Execute() sentinel = %q, want %q", result.Sentinel, NotARootNode)
	}
}

func TestExecuteCycleDetected(t *testing.T) {
	g := graphmodel.NewGraph("cyclic")
	for _, id := range []string{"A", "B"} {
		n, _ := graphmodel.NewNode(id, map[string]typesys.TypeTag{"x": typesys.Int}, map[string]typesys.TypeTag{"x": typesys.Int})
		_ = g.AddNode(n)
	}
	repo := &fakeRepo{
		graph: g,
		edges: []*graphmodel.Edge{
			{ID: "e1", Src: "A", Dst: "B", KeyMap: map[string]string{"x": "x"}},
			{ID: "e2", Src: "B", Dst: "A", KeyMap: map[string]string{"x": "x"}},
		},
	}
	svc := New(repo)

	result, err := svc.Execute(context.Background(), "cyclic", runconfig.Config{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Sentinel != CycleDetected {
		t.Errorf("Execute() sentinel = %q, want %q", result.Sentinel, CycleDetected)
	}
}

func TestExecuteIslandsDetected(t *testing.T) {
	g := graphmodel.NewGraph("islands")
	for _, id := range []string{"A", "B"} {
		n, _ := graphmodel.NewNode(id, nil, nil)
		_ = g.AddNode(n)
	}
	repo := &fakeRepo{graph: g}
	svc := New(repo)

	result, err := svc.Execute(context.Background(), "islands", runconfig.Config{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Sentinel != IslandsDetected {
		t.Errorf("Execute() sentinel = %q, want %q", result.Sentinel, IslandsDetected)
	}
}

func TestExecuteGraphNotFound(t *testing.T) {
	repo := &fakeRepo{graph: graphmodel.NewGraph("other")}
	svc := New(repo)
	_, err := svc.Execute(context.Background(), "missing", runconfig.Config{})
	if err == nil {
		t.Fatal("Execute() error = nil, want a load error")
	}
}
