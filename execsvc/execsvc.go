// Package execsvc orchestrates one graph execution end to end: load,
// snapshot, apply overrides, gate on root-admissibility and graph shape,
// schedule, propagate, and serialize final per-node state. Each gate
// short-circuits with a distinct typed error or sentinel result; no
// mutation of the persisted store occurs during execution.
package execsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/propagate"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/schedule"
	"github.com/flowgraph/graphengine/structure"
	"github.com/flowgraph/graphengine/typesys"
	"github.com/flowgraph/graphengine/validate"
)

// Sentinel result strings returned in the 200-OK response body for
// expected execution-gate failures, distinct from the errors returned
// for malformed requests or store failures.
const (
	CycleDetected   = "CYCLE DETECTED"
	IslandsDetected = "ISLANDS DETECTED"
	NotARootNode    = "IT IS NOT A ROOT NODE"
)

// ErrGraphNotFound is returned when the named graph id has no persisted
// record.
var ErrGraphNotFound = errors.New("graph not found")

// Repository is the persistence collaborator the service reaches
// through; it never sees the post-override snapshot, only the
// originally loaded graph. Nodes and edges are global collections —
// LoadEdges returns the full edge pool, not one scoped to a graph — so
// Execute filters it to the edges whose endpoints both belong to the
// loaded graph's node set, matching the "edges live in a global pool"
// data model.
type Repository interface {
	LoadGraph(ctx context.Context, graphID string) (*graphmodel.Graph, error)
	LoadEdges(ctx context.Context) ([]*graphmodel.Edge, error)
	SaveNode(ctx context.Context, n *graphmodel.Node) error
	SaveEdge(ctx context.Context, e *graphmodel.Edge) error
	SaveGraph(ctx context.Context, g *graphmodel.Graph) error
}

// NodeState is the serialized final state of one node.
type NodeState struct {
	Level   int                        `json:"level"`
	Visited bool                       `json:"visited"`
	DataIn  map[string]typesys.Value   `json:"data_in"`
	DataOut map[string]typesys.Value   `json:"data_out"`
}

// Result is the outcome of one Execute call. Sentinel is non-empty for
// the three expected gate failures; otherwise States carries the final
// per-node state, keyed by node id.
type Result struct {
	Sentinel string
	States   map[string]NodeState
}

// Hooks lets a caller observe the phase boundaries of Execute without the
// engine depending on any particular observability library: each non-nil
// field is called around its phase with a context it may annotate, and
// must return a matching end func invoked when that phase returns. A nil
// Hooks, or a nil field within one, means that phase runs uninstrumented.
type Hooks struct {
	OnValidate  func(ctx context.Context) (context.Context, func(err error))
	OnStructure func(ctx context.Context) (context.Context, func(err error))
	OnSchedule  func(ctx context.Context) (context.Context, func())
	OnPropagate func(ctx context.Context) (context.Context, func())
}

func (h *Hooks) validate(ctx context.Context) (context.Context, func(error)) {
	if h == nil || h.OnValidate == nil {
		return ctx, func(error) {}
	}
	return h.OnValidate(ctx)
}

func (h *Hooks) structure(ctx context.Context) (context.Context, func(error)) {
	if h == nil || h.OnStructure == nil {
		return ctx, func(error) {}
	}
	return h.OnStructure(ctx)
}

func (h *Hooks) schedule(ctx context.Context) (context.Context, func()) {
	if h == nil || h.OnSchedule == nil {
		return ctx, func() {}
	}
	return h.OnSchedule(ctx)
}

func (h *Hooks) propagate(ctx context.Context) (context.Context, func()) {
	if h == nil || h.OnPropagate == nil {
		return ctx, func() {}
	}
	return h.OnPropagate(ctx)
}

// Service executes graphs against a Repository. Hooks is optional;
// telemetry wiring (see the telemetry package) populates it to attach
// spans/metrics to each phase, but the zero Service runs uninstrumented.
type Service struct {
	Repo  Repository
	Hooks *Hooks
}

// New constructs a Service backed by repo.
func New(repo Repository) *Service {
	return &Service{Repo: repo}
}

// Execute runs one graph: load → deep-copy snapshot → apply cfg →
// root-admissibility gate → static validation → cycle gate →
// connectivity gate → schedule → propagate → serialize. It never writes
// back to the Repository.
func (s *Service) Execute(ctx context.Context, graphID string, cfg runconfig.Config) (Result, error) {
	g, err := s.Repo.LoadGraph(ctx, graphID)
	if err != nil {
		return Result{}, fmt.Errorf("loading graph %q: %w", graphID, err)
	}
	if g == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrGraphNotFound, graphID)
	}

	edges, err := s.Repo.LoadEdges(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("loading edges for graph %q: %w", graphID, err)
	}
	for _, e := range edges {
		_, srcOK := g.Nodes[e.Src]
		_, dstOK := g.Nodes[e.Dst]
		if !srcOK || !dstOK {
			continue
		}
		if err := g.AddEdge(e); err != nil {
			return Result{}, fmt.Errorf("attaching edge %q: %w", e.ID, err)
		}
	}

	snapshot := g.Clone()

	runconfig.Apply(snapshot, cfg)

	if !runconfig.RootsAdmissible(snapshot, cfg.RootInputs) {
		return Result{Sentinel: NotARootNode}, nil
	}

	vctx, endValidate := s.Hooks.validate(ctx)
	verr := validate.ValidateGraph(snapshot)
	endValidate(verr)
	if verr != nil {
		return Result{}, fmt.Errorf("validating graph %q: %w", graphID, verr)
	}
	ctx = vctx

	sctx, endStructure := s.Hooks.structure(ctx)
	hasCycle := structure.HasCycle(snapshot)
	if hasCycle {
		endStructure(nil)
		return Result{Sentinel: CycleDetected}, nil
	}
	connected := structure.IsConnected(snapshot)
	endStructure(nil)
	if !connected {
		return Result{Sentinel: IslandsDetected}, nil
	}
	ctx = sctx

	schctx, endSchedule := s.Hooks.schedule(ctx)
	levels := schedule.Run(snapshot)
	endSchedule()
	ctx = schctx

	pctx, endPropagate := s.Hooks.propagate(ctx)
	pinned := runconfig.PinnedInputs(cfg)
	propagate.Run(snapshot, levels, pinned)
	endPropagate()
	_ = pctx

	states := make(map[string]NodeState, len(snapshot.Nodes))
	for id, n := range snapshot.Nodes {
		states[id] = NodeState{
			Level:   n.Level,
			Visited: n.Visited,
			DataIn:  n.DataIn,
			DataOut: n.DataOut,
		}
	}

	return Result{States: states}, nil
}
