// Package store persists nodes, edges, and graphs, and implements the
// execsvc.Repository collaborator the execution engine reaches through.
// Nodes and edges are global collections; a graph is just a named set of
// node ids, matching the "edges live in a global pool" data model.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/runconfig"
)

// Sentinel errors, shared by both repository implementations.
var (
	ErrNodeExists  = errors.New("node already exists")
	ErrEdgeExists  = errors.New("edge already exists")
	ErrGraphExists = errors.New("graph already exists")
	ErrNotFound    = errors.New("not found")
)

// RunLogEntry records one /graph/process_graph invocation for audit,
// independent of (and never written during) the engine's own execution —
// the server writes it after Execute returns, not execsvc itself.
type RunLogEntry struct {
	GraphID   string
	Config    runconfig.Config
	Sentinel  string
	Error     string
	CreatedAt time.Time
}

// Repository is the full persistence surface the HTTP layer needs: the
// execsvc.Repository contract plus the CRUD operations backing
// /crud/create_nodes, /crud/create_edges, /crud/create_graph,
// /crud/get_graph, /crud/get_edges, and the run-config audit log.
type Repository interface {
	execsvc.Repository

	CreateNode(ctx context.Context, n *graphmodel.Node) error
	GetNode(ctx context.Context, id string) (*graphmodel.Node, bool, error)
	CreateEdge(ctx context.Context, e *graphmodel.Edge) error
	ListAllEdges(ctx context.Context) ([]*graphmodel.Edge, error)
	CreateGraph(ctx context.Context, graphID string, nodeIDs []string) error
	SaveRunLog(ctx context.Context, entry RunLogEntry) error
}

// Sentinel errors for the schedule surface.
var (
	ErrScheduleExists   = errors.New("run schedule already exists")
	ErrScheduleNotFound = errors.New("run schedule not found")
)

// RunSchedule is a persisted cron schedule that re-runs a graph with a
// fixed RunConfig. Only the pass/fail summary of each tick is kept in
// LastResult — never the per-node state produced by that run.
type RunSchedule struct {
	ID        string
	GraphID   string
	CronExpr  string
	RunConfig runconfig.Config
	Enabled   bool

	NextRunAt  time.Time
	LastRunAt  *time.Time
	LastResult string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleStore provides CRUD plus due-polling for RunSchedule records.
// Kept separate from Repository because not every deployment of the
// engine runs the scheduler daemon.
type ScheduleStore interface {
	ListSchedules(ctx context.Context, graphID string) ([]RunSchedule, error)
	GetSchedule(ctx context.Context, id string) (RunSchedule, bool, error)
	CreateSchedule(ctx context.Context, s RunSchedule) error
	UpdateSchedule(ctx context.Context, s RunSchedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]RunSchedule, error)
}
