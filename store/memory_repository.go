package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowgraph/graphengine/graphmodel"
)

// MemoryRepository is a thread-safe in-memory Repository, grounded on
// the same mutex-guarded map plus insertion-order slice shape used
// throughout this codebase's in-memory stores.
type MemoryRepository struct {
	mu sync.RWMutex

	nodes map[string]*graphmodel.Node

	edges     map[string]*graphmodel.Edge
	edgeOrder []string

	graphNodes map[string]map[string]struct{}
	graphOrder []string

	runLog []RunLogEntry

	schedules     map[string]RunSchedule
	scheduleOrder []string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nodes:      map[string]*graphmodel.Node{},
		edges:      map[string]*graphmodel.Edge{},
		graphNodes: map[string]map[string]struct{}{},
		schedules:  map[string]RunSchedule{},
	}
}

func (r *MemoryRepository) CreateNode(_ context.Context, n *graphmodel.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.ID]; exists {
		return ErrNodeExists
	}
	r.nodes[n.ID] = n
	return nil
}

func (r *MemoryRepository) GetNode(_ context.Context, id string) (*graphmodel.Node, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	return n, ok, nil
}

// SaveNode creates or replaces a node record. execsvc never calls this —
// it completes the Repository interface; CreateNode writes the map
// directly and refuses an id that already exists.
func (r *MemoryRepository) SaveNode(_ context.Context, n *graphmodel.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[n.ID] = n
	return nil
}

func (r *MemoryRepository) CreateEdge(_ context.Context, e *graphmodel.Edge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.edges[e.ID]; exists {
		return ErrEdgeExists
	}
	r.edges[e.ID] = e
	r.edgeOrder = append(r.edgeOrder, e.ID)
	return nil
}

func (r *MemoryRepository) SaveEdge(_ context.Context, e *graphmodel.Edge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.edges[e.ID]; !exists {
		r.edgeOrder = append(r.edgeOrder, e.ID)
	}
	r.edges[e.ID] = e
	return nil
}

func (r *MemoryRepository) ListAllEdges(_ context.Context) ([]*graphmodel.Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*graphmodel.Edge, 0, len(r.edgeOrder))
	for _, id := range r.edgeOrder {
		out = append(out, r.edges[id])
	}
	return out, nil
}

// LoadEdges returns the full edge pool; callers filter it to the edges
// relevant to one graph's node set.
func (r *MemoryRepository) LoadEdges(ctx context.Context) ([]*graphmodel.Edge, error) {
	return r.ListAllEdges(ctx)
}

func (r *MemoryRepository) CreateGraph(_ context.Context, graphID string, nodeIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.graphNodes[graphID]; exists {
		return ErrGraphExists
	}
	for _, id := range nodeIDs {
		if _, ok := r.nodes[id]; !ok {
			return ErrNotFound
		}
	}

	set := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		set[id] = struct{}{}
	}
	r.graphNodes[graphID] = set
	r.graphOrder = append(r.graphOrder, graphID)
	return nil
}

// SaveGraph persists the node-id membership of g. Unlike CreateGraph it
// succeeds whether or not graphID already exists.
func (r *MemoryRepository) SaveGraph(_ context.Context, g *graphmodel.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{}, len(g.Nodes))
	for id := range g.Nodes {
		set[id] = struct{}{}
	}
	if _, exists := r.graphNodes[g.ID]; !exists {
		r.graphOrder = append(r.graphOrder, g.ID)
	}
	r.graphNodes[g.ID] = set
	return nil
}

// LoadGraph returns a fresh Graph populated with copies of the named
// graph's member nodes (no edges attached; the caller attaches the
// subset of LoadEdges relevant to this node set).
func (r *MemoryRepository) LoadGraph(_ context.Context, graphID string) (*graphmodel.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberIDs, ok := r.graphNodes[graphID]
	if !ok {
		return nil, nil
	}

	g := graphmodel.NewGraph(graphID)
	ids := make([]string, 0, len(memberIDs))
	for id := range memberIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		src, ok := r.nodes[id]
		if !ok {
			continue
		}
		n, err := graphmodel.NewNode(src.ID, src.DataInSchema, src.DataOutSchema)
		if err != nil {
			return nil, err
		}
		for k, v := range src.DataIn {
			n.DataIn[k] = v
		}
		for k, v := range src.DataOut {
			n.DataOut[k] = v
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (r *MemoryRepository) SaveRunLog(_ context.Context, entry RunLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.runLog = append(r.runLog, entry)
	return nil
}

func (r *MemoryRepository) ListSchedules(_ context.Context, graphID string) ([]RunSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RunSchedule
	for _, id := range r.scheduleOrder {
		s := r.schedules[id]
		if s.GraphID == graphID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetSchedule(_ context.Context, id string) (RunSchedule, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[id]
	return s, ok, nil
}

func (r *MemoryRepository) CreateSchedule(_ context.Context, s RunSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[s.ID]; exists {
		return ErrScheduleExists
	}
	r.schedules[s.ID] = s
	r.scheduleOrder = append(r.scheduleOrder, s.ID)
	return nil
}

func (r *MemoryRepository) UpdateSchedule(_ context.Context, s RunSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[s.ID]; !exists {
		return ErrScheduleNotFound
	}
	r.schedules[s.ID] = s
	return nil
}

func (r *MemoryRepository) DeleteSchedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[id]; !exists {
		return ErrScheduleNotFound
	}
	delete(r.schedules, id)
	for i, sid := range r.scheduleOrder {
		if sid == id {
			r.scheduleOrder = append(r.scheduleOrder[:i], r.scheduleOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListDueSchedules returns enabled schedules whose NextRunAt has passed,
// in schedule-id order, capped at limit.
func (r *MemoryRepository) ListDueSchedules(_ context.Context, now time.Time, limit int) ([]RunSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.scheduleOrder))
	copy(ids, r.scheduleOrder)
	sort.Strings(ids)

	var out []RunSchedule
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		s := r.schedules[id]
		if !s.Enabled {
			continue
		}
		if s.NextRunAt.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

var (
	_ Repository    = (*MemoryRepository)(nil)
	_ ScheduleStore = (*MemoryRepository)(nil)
)
