package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/typesys"

	_ "modernc.org/sqlite"
)

const graphEngineSQLiteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	data_in_schema BLOB NOT NULL,
	data_out_schema BLOB NOT NULL,
	data_in BLOB NOT NULL,
	data_out BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	src_node TEXT NOT NULL,
	dst_node TEXT NOT NULL,
	key_map BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_node);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_node);

CREATE TABLE IF NOT EXISTS graphs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_nodes (
	graph_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	PRIMARY KEY (graph_id, node_id),
	FOREIGN KEY (graph_id) REFERENCES graphs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS graph_run_configs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	graph_id TEXT NOT NULL,
	root_inputs BLOB NOT NULL,
	disable_list BLOB NOT NULL,
	data_overwrites BLOB NOT NULL,
	result_sentinel TEXT,
	error_message TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_graph_run_configs_graph ON graph_run_configs(graph_id);

CREATE TABLE IF NOT EXISTS run_schedules (
	id TEXT PRIMARY KEY,
	graph_id TEXT NOT NULL,
	cron_expr TEXT NOT NULL,
	run_config BLOB NOT NULL,
	enabled INTEGER NOT NULL,
	next_run_at TEXT NOT NULL,
	last_run_at TEXT,
	last_result TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_schedules_graph ON run_schedules(graph_id);`

// SQLiteConfig configures the SQLite-backed Repository.
type SQLiteConfig struct {
	DSN string
}

// SQLiteRepository persists nodes, edges, graphs, and the run-config
// audit log in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) a SQLite-backed repository.
func NewSQLiteRepository(cfg SQLiteConfig) (*SQLiteRepository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("graph engine sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graph engine sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graph engine sqlite store enable foreign keys: %w", err)
	}
	if _, err := db.Exec(graphEngineSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graph engine sqlite store create schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func (s *SQLiteRepository) CreateNode(ctx context.Context, n *graphmodel.Node) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	inSchema, err := marshalTagMap(n.DataInSchema)
	if err != nil {
		return err
	}
	outSchema, err := marshalTagMap(n.DataOutSchema)
	if err != nil {
		return err
	}
	dataIn, err := marshalValueMap(n.DataIn)
	if err != nil {
		return err
	}
	dataOut, err := marshalValueMap(n.DataOut)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO nodes (id, data_in_schema, data_out_schema, data_in, data_out, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, inSchema, outSchema, dataIn, dataOut, now, now)
	if err != nil {
		if isUniqueViolation(err, "nodes.id") {
			return ErrNodeExists
		}
		return fmt.Errorf("graph engine sqlite store create node: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) SaveNode(ctx context.Context, n *graphmodel.Node) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	inSchema, err := marshalTagMap(n.DataInSchema)
	if err != nil {
		return err
	}
	outSchema, err := marshalTagMap(n.DataOutSchema)
	if err != nil {
		return err
	}
	dataIn, err := marshalValueMap(n.DataIn)
	if err != nil {
		return err
	}
	dataOut, err := marshalValueMap(n.DataOut)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO nodes (id, data_in_schema, data_out_schema, data_in, data_out, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	data_in_schema = excluded.data_in_schema,
	data_out_schema = excluded.data_out_schema,
	data_in = excluded.data_in,
	data_out = excluded.data_out,
	updated_at = excluded.updated_at`,
		n.ID, inSchema, outSchema, dataIn, dataOut, now, now)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store save node: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) GetNode(ctx context.Context, id string) (*graphmodel.Node, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, data_in_schema, data_out_schema, data_in, data_out
FROM nodes WHERE id = ?`, id)

	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return n, true, nil
}

func (s *SQLiteRepository) CreateEdge(ctx context.Context, e *graphmodel.Edge) error {
	keyMap, err := json.Marshal(e.KeyMap)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store marshal key map: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO edges (id, src_node, dst_node, key_map, created_at)
VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Src, e.Dst, keyMap, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err, "edges.id") {
			return ErrEdgeExists
		}
		return fmt.Errorf("graph engine sqlite store create edge: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) SaveEdge(ctx context.Context, e *graphmodel.Edge) error {
	keyMap, err := json.Marshal(e.KeyMap)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store marshal key map: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO edges (id, src_node, dst_node, key_map, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	src_node = excluded.src_node,
	dst_node = excluded.dst_node,
	key_map = excluded.key_map`,
		e.ID, e.Src, e.Dst, keyMap, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("graph engine sqlite store save edge: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) ListAllEdges(ctx context.Context) ([]*graphmodel.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, src_node, dst_node, key_map FROM edges ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list edges: %w", err)
	}
	defer rows.Close()

	var edges []*graphmodel.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list edges rows: %w", err)
	}
	return edges, nil
}

func (s *SQLiteRepository) LoadEdges(ctx context.Context) ([]*graphmodel.Edge, error) {
	return s.ListAllEdges(ctx)
}

func (s *SQLiteRepository) CreateGraph(ctx context.Context, graphID string, nodeIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO graphs (id, created_at, updated_at) VALUES (?, ?, ?)`, graphID, now, now); err != nil {
		if isUniqueViolation(err, "graphs.id") {
			return ErrGraphExists
		}
		return fmt.Errorf("graph engine sqlite store create graph: %w", err)
	}

	for _, id := range nodeIDs {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("graph engine sqlite store check node %q: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO graph_nodes (graph_id, node_id) VALUES (?, ?)`, graphID, id); err != nil {
			return fmt.Errorf("graph engine sqlite store link node %q: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteRepository) SaveGraph(ctx context.Context, g *graphmodel.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO graphs (id, created_at, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`, g.ID, now, now); err != nil {
		return fmt.Errorf("graph engine sqlite store save graph: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE graph_id = ?`, g.ID); err != nil {
		return fmt.Errorf("graph engine sqlite store clear graph nodes: %w", err)
	}
	for id := range g.Nodes {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO graph_nodes (graph_id, node_id) VALUES (?, ?)`, g.ID, id); err != nil {
			return fmt.Errorf("graph engine sqlite store link node %q: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteRepository) LoadGraph(ctx context.Context, graphID string) (*graphmodel.Graph, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM graphs WHERE id = ?`, graphID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("graph engine sqlite store check graph %q: %w", graphID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT n.id, n.data_in_schema, n.data_out_schema, n.data_in, n.data_out
FROM graph_nodes gn
JOIN nodes n ON n.id = gn.node_id
WHERE gn.graph_id = ?
ORDER BY n.id ASC`, graphID)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store load graph nodes: %w", err)
	}
	defer rows.Close()

	g := graphmodel.NewGraph(graphID)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store load graph nodes rows: %w", err)
	}
	return g, nil
}

func (s *SQLiteRepository) SaveRunLog(ctx context.Context, entry RunLogEntry) error {
	rootInputs, err := marshalValueMapMap(entry.Config.RootInputs)
	if err != nil {
		return err
	}
	overwrites, err := marshalValueMapMap(entry.Config.DataOverwrites)
	if err != nil {
		return err
	}
	disableList, err := json.Marshal(entry.Config.DisableList)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store marshal disable_list: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO graph_run_configs
	(graph_id, root_inputs, disable_list, data_overwrites, result_sentinel, error_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.GraphID, rootInputs, disableList, overwrites,
		nullIfEmpty(entry.Sentinel), nullIfEmpty(entry.Error),
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("graph engine sqlite store save run log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(scanner rowScanner) (*graphmodel.Node, error) {
	var id string
	var inSchemaRaw, outSchemaRaw, dataInRaw, dataOutRaw []byte
	if err := scanner.Scan(&id, &inSchemaRaw, &outSchemaRaw, &dataInRaw, &dataOutRaw); err != nil {
		return nil, err
	}

	inSchema, err := unmarshalTagMap(inSchemaRaw)
	if err != nil {
		return nil, err
	}
	outSchema, err := unmarshalTagMap(outSchemaRaw)
	if err != nil {
		return nil, err
	}

	n, err := graphmodel.NewNode(id, inSchema, outSchema)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store reconstruct node %q: %w", id, err)
	}

	dataIn, err := unmarshalValueMap(dataInRaw, n.DataInSchema)
	if err != nil {
		return nil, err
	}
	dataOut, err := unmarshalValueMap(dataOutRaw, n.DataOutSchema)
	if err != nil {
		return nil, err
	}
	n.DataIn = dataIn
	n.DataOut = dataOut
	return n, nil
}

func scanEdge(scanner rowScanner) (*graphmodel.Edge, error) {
	var id, src, dst string
	var keyMapRaw []byte
	if err := scanner.Scan(&id, &src, &dst, &keyMapRaw); err != nil {
		return nil, err
	}
	var keyMap map[string]string
	if err := json.Unmarshal(keyMapRaw, &keyMap); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store unmarshal key map for edge %q: %w", id, err)
	}
	return &graphmodel.Edge{ID: id, Src: src, Dst: dst, KeyMap: keyMap}, nil
}

func marshalTagMap(m map[string]typesys.TypeTag) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store marshal schema: %w", err)
	}
	return data, nil
}

func unmarshalTagMap(raw []byte) (map[string]typesys.TypeTag, error) {
	var m map[string]typesys.TypeTag
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store unmarshal schema: %w", err)
	}
	return m, nil
}

// valuePayload is the on-disk shape of a typesys.Value: JSON cannot carry
// a tagged union natively, so only set/payload are stored and the value
// is reconstructed against the node's own declared schema tag on read.
type valuePayload struct {
	Set     bool `json:"set"`
	Payload any  `json:"payload,omitempty"`
}

func marshalValueMap(m map[string]typesys.Value) ([]byte, error) {
	out := make(map[string]valuePayload, len(m))
	for k, v := range m {
		out[k] = valuePayload{Set: !v.IsUnset(), Payload: v.Payload()}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store marshal values: %w", err)
	}
	return data, nil
}

func unmarshalValueMap(raw []byte, schema map[string]typesys.TypeTag) (map[string]typesys.Value, error) {
	var in map[string]valuePayload
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store unmarshal values: %w", err)
	}

	out := make(map[string]typesys.Value, len(schema))
	for key, tag := range schema {
		vp, ok := in[key]
		if !ok || !vp.Set {
			out[key] = typesys.Unset(tag)
			continue
		}
		out[key] = valueFromPayload(tag, vp.Payload)
	}
	return out, nil
}

func valueFromPayload(tag typesys.TypeTag, payload any) typesys.Value {
	switch tag {
	case typesys.Int:
		if f, ok := payload.(float64); ok {
			return typesys.NewInt(int64(f))
		}
	case typesys.Float:
		if f, ok := payload.(float64); ok {
			return typesys.NewFloat(f)
		}
	case typesys.Str:
		if s, ok := payload.(string); ok {
			return typesys.NewStr(s)
		}
	case typesys.Bool:
		if b, ok := payload.(bool); ok {
			return typesys.NewBool(b)
		}
	case typesys.List:
		if items, ok := payload.([]any); ok {
			return typesys.NewList(items)
		}
	case typesys.Dict:
		if fields, ok := payload.(map[string]any); ok {
			return typesys.NewDict(fields)
		}
	}
	return typesys.Unset(tag)
}

func marshalValueMapMap(m map[string]map[string]typesys.Value) ([]byte, error) {
	out := make(map[string]map[string]valuePayload, len(m))
	for nodeID, kv := range m {
		row := make(map[string]valuePayload, len(kv))
		for k, v := range kv {
			row[k] = valuePayload{Set: !v.IsUnset(), Payload: v.Payload()}
		}
		out[nodeID] = row
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store marshal run config values: %w", err)
	}
	return data, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+constraint)
}

func (s *SQLiteRepository) ListSchedules(ctx context.Context, graphID string) ([]RunSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, graph_id, cron_expr, run_config, enabled, next_run_at, last_run_at, last_result, created_at, updated_at
FROM run_schedules WHERE graph_id = ? ORDER BY id ASC`, graphID)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list schedules: %w", err)
	}
	defer rows.Close()

	var out []RunSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list schedules rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteRepository) GetSchedule(ctx context.Context, id string) (RunSchedule, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, graph_id, cron_expr, run_config, enabled, next_run_at, last_run_at, last_result, created_at, updated_at
FROM run_schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSchedule{}, false, nil
		}
		return RunSchedule{}, false, err
	}
	return sched, true, nil
}

func (s *SQLiteRepository) CreateSchedule(ctx context.Context, sched RunSchedule) error {
	runConfig, err := marshalScheduleRunConfig(sched.RunConfig)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_schedules
	(id, graph_id, cron_expr, run_config, enabled, next_run_at, last_run_at, last_result, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.GraphID, sched.CronExpr, runConfig, sched.Enabled,
		sched.NextRunAt.UTC().Format(time.RFC3339Nano), formatOptionalTime(sched.LastRunAt),
		nullIfEmpty(sched.LastResult), now, now)
	if err != nil {
		if isUniqueViolation(err, "run_schedules.id") {
			return ErrScheduleExists
		}
		return fmt.Errorf("graph engine sqlite store create schedule: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) UpdateSchedule(ctx context.Context, sched RunSchedule) error {
	runConfig, err := marshalScheduleRunConfig(sched.RunConfig)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE run_schedules SET
	graph_id = ?, cron_expr = ?, run_config = ?, enabled = ?,
	next_run_at = ?, last_run_at = ?, last_result = ?, updated_at = ?
WHERE id = ?`,
		sched.GraphID, sched.CronExpr, runConfig, sched.Enabled,
		sched.NextRunAt.UTC().Format(time.RFC3339Nano), formatOptionalTime(sched.LastRunAt),
		nullIfEmpty(sched.LastResult), time.Now().UTC().Format(time.RFC3339Nano), sched.ID)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("graph engine sqlite store update schedule rows affected: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *SQLiteRepository) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("graph engine sqlite store delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("graph engine sqlite store delete schedule rows affected: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *SQLiteRepository) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]RunSchedule, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, graph_id, cron_expr, run_config, enabled, next_run_at, last_run_at, last_result, created_at, updated_at
FROM run_schedules
WHERE enabled = 1 AND next_run_at <= ?
ORDER BY id ASC
LIMIT ?`, now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list due schedules: %w", err)
	}
	defer rows.Close()

	var out []RunSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph engine sqlite store list due schedules rows: %w", err)
	}
	return out, nil
}

func scanSchedule(scanner rowScanner) (RunSchedule, error) {
	var (
		id, graphID, cronExpr string
		runConfigRaw          []byte
		enabled               bool
		nextRunAtRaw          string
		lastRunAtRaw          sql.NullString
		lastResult            sql.NullString
		createdAtRaw          string
		updatedAtRaw          string
	)
	if err := scanner.Scan(&id, &graphID, &cronExpr, &runConfigRaw, &enabled,
		&nextRunAtRaw, &lastRunAtRaw, &lastResult, &createdAtRaw, &updatedAtRaw); err != nil {
		return RunSchedule{}, err
	}

	cfg, err := unmarshalScheduleRunConfig(runConfigRaw)
	if err != nil {
		return RunSchedule{}, err
	}
	nextRunAt, err := time.Parse(time.RFC3339Nano, nextRunAtRaw)
	if err != nil {
		return RunSchedule{}, fmt.Errorf("graph engine sqlite store parse next_run_at for schedule %q: %w", id, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return RunSchedule{}, fmt.Errorf("graph engine sqlite store parse created_at for schedule %q: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtRaw)
	if err != nil {
		return RunSchedule{}, fmt.Errorf("graph engine sqlite store parse updated_at for schedule %q: %w", id, err)
	}

	var lastRunAt *time.Time
	if lastRunAtRaw.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRunAtRaw.String)
		if err != nil {
			return RunSchedule{}, fmt.Errorf("graph engine sqlite store parse last_run_at for schedule %q: %w", id, err)
		}
		lastRunAt = &t
	}

	return RunSchedule{
		ID:         id,
		GraphID:    graphID,
		CronExpr:   cronExpr,
		RunConfig:  cfg,
		Enabled:    enabled,
		NextRunAt:  nextRunAt,
		LastRunAt:  lastRunAt,
		LastResult: lastResult.String,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// scheduleRunConfigPayload is the on-disk shape of a runconfig.Config:
// flattened the same way valuePayload flattens a single Value.
type scheduleRunConfigPayload struct {
	RootInputs     map[string]map[string]valuePayload `json:"root_inputs,omitempty"`
	DisableList    []string                            `json:"disable_list,omitempty"`
	DataOverwrites map[string]map[string]valuePayload `json:"data_overwrites,omitempty"`
	Schema         map[string]map[string]typesys.TypeTag `json:"schema"`
}

func marshalScheduleRunConfig(cfg runconfig.Config) ([]byte, error) {
	payload := scheduleRunConfigPayload{
		DisableList: cfg.DisableList,
		Schema:      map[string]map[string]typesys.TypeTag{},
	}
	flatten := func(src map[string]map[string]typesys.Value) map[string]map[string]valuePayload {
		if src == nil {
			return nil
		}
		out := make(map[string]map[string]valuePayload, len(src))
		for nodeID, kv := range src {
			row := make(map[string]valuePayload, len(kv))
			for k, v := range kv {
				row[k] = valuePayload{Set: !v.IsUnset(), Payload: v.Payload()}
			}
			out[nodeID] = row
		}
		return out
	}
	payload.RootInputs = flatten(cfg.RootInputs)
	payload.DataOverwrites = flatten(cfg.DataOverwrites)
	for nodeID, kv := range cfg.RootInputs {
		tags := make(map[string]typesys.TypeTag, len(kv))
		for k, v := range kv {
			tags[k] = v.Tag()
		}
		payload.Schema[nodeID] = tags
	}
	for nodeID, kv := range cfg.DataOverwrites {
		tags := payload.Schema[nodeID]
		if tags == nil {
			tags = map[string]typesys.TypeTag{}
		}
		for k, v := range kv {
			tags[k] = v.Tag()
		}
		payload.Schema[nodeID] = tags
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("graph engine sqlite store marshal schedule run config: %w", err)
	}
	return data, nil
}

func unmarshalScheduleRunConfig(raw []byte) (runconfig.Config, error) {
	var payload scheduleRunConfigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return runconfig.Config{}, fmt.Errorf("graph engine sqlite store unmarshal schedule run config: %w", err)
	}

	hydrate := func(src map[string]map[string]valuePayload) map[string]map[string]typesys.Value {
		if src == nil {
			return nil
		}
		out := make(map[string]map[string]typesys.Value, len(src))
		for nodeID, row := range src {
			kv := make(map[string]typesys.Value, len(row))
			for k, vp := range row {
				tag := payload.Schema[nodeID][k]
				if !vp.Set {
					kv[k] = typesys.Unset(tag)
					continue
				}
				kv[k] = valueFromPayload(tag, vp.Payload)
			}
			out[nodeID] = kv
		}
		return out
	}

	return runconfig.Config{
		RootInputs:     hydrate(payload.RootInputs),
		DisableList:    payload.DisableList,
		DataOverwrites: hydrate(payload.DataOverwrites),
	}, nil
}

var _ Repository = (*SQLiteRepository)(nil)
var _ ScheduleStore = (*SQLiteRepository)(nil)
