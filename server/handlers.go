package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/store"
	"github.com/flowgraph/graphengine/typesys"
	"github.com/flowgraph/graphengine/validate"
)

// --- /crud/create_nodes ---

type createNodeRequest struct {
	NodeID  string            `json:"node_id"`
	DataIn  map[string]string `json:"data_in"`
	DataOut map[string]string `json:"data_out"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	parsed, err := validate.ValidateNodeCreate(validate.NodeCreateRequest{
		NodeID:  req.NodeID,
		DataIn:  req.DataIn,
		DataOut: req.DataOut,
	})
	if err != nil {
		writeValidationError(w, err)
		return
	}

	n, err := graphmodel.NewNode(req.NodeID, parsed.DataIn, parsed.DataOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_NODE", err.Error())
		return
	}

	if err := s.store.CreateNode(r.Context(), n); err != nil {
		if errors.Is(err, store.ErrNodeExists) {
			writeError(w, http.StatusBadRequest, "NODE_EXISTS", fmt.Sprintf("node %q already exists", req.NodeID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "node created",
		"node_id": req.NodeID,
	})
}

// --- /crud/create_edges ---

type createEdgeRequest struct {
	EdgeID           string            `json:"edge_id"`
	SrcNode          string            `json:"src_node"`
	DstNode          string            `json:"dst_node"`
	SrcToDstDataKeys map[string]string `json:"src_to_dst_data_keys"`
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var req createEdgeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	src, found, err := s.store.GetNode(r.Context(), req.SrcNode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "UNKNOWN_NODE", fmt.Sprintf("src_node %q not found", req.SrcNode))
		return
	}
	dst, found, err := s.store.GetNode(r.Context(), req.DstNode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "UNKNOWN_NODE", fmt.Sprintf("dst_node %q not found", req.DstNode))
		return
	}

	if err := validate.ValidateEdgeCreate(validate.EdgeCreateRequest{
		EdgeID:  req.EdgeID,
		SrcNode: req.SrcNode,
		DstNode: req.DstNode,
		KeyMap:  req.SrcToDstDataKeys,
	}, src.DataOutSchema, dst.DataInSchema); err != nil {
		writeValidationError(w, err)
		return
	}

	e := &graphmodel.Edge{
		ID:     req.EdgeID,
		Src:    req.SrcNode,
		Dst:    req.DstNode,
		KeyMap: req.SrcToDstDataKeys,
	}
	if err := s.store.CreateEdge(r.Context(), e); err != nil {
		if errors.Is(err, store.ErrEdgeExists) {
			writeError(w, http.StatusBadRequest, "EDGE_EXISTS", fmt.Sprintf("edge %q already exists", req.EdgeID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "edge created",
		"edge_id": req.EdgeID,
	})
}

// --- /crud/create_graph ---

type createGraphRequest struct {
	GraphID string   `json:"graph_id"`
	Nodes   []string `json:"nodes"`
}

func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req createGraphRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	if err := s.store.CreateGraph(r.Context(), req.GraphID, req.Nodes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "UNKNOWN_NODE", "one or more nodes do not exist")
			return
		}
		if errors.Is(err, store.ErrGraphExists) {
			writeError(w, http.StatusBadRequest, "GRAPH_EXISTS", fmt.Sprintf("graph %q already exists", req.GraphID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "graph created",
		"graph_id": req.GraphID,
	})
}

// --- /crud/get_graph ---

type getGraphRequest struct {
	GraphID string `json:"graph_id"`
}

type graphNodeView struct {
	DataIn  map[string]string `json:"data_in"`
	DataOut map[string]string `json:"data_out"`
	Edges   []graphEdgeView   `json:"edges"`
}

type graphEdgeView struct {
	DstNode string            `json:"dst_node"`
	DataIn  map[string]string `json:"data_in"`
	DataOut map[string]string `json:"data_out"`
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	var req getGraphRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	g, err := s.store.LoadGraph(r.Context(), req.GraphID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_GRAPH", fmt.Sprintf("graph %q not found", req.GraphID))
		return
	}

	edges, err := s.store.LoadEdges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	for _, e := range edges {
		if _, ok := g.Nodes[e.Src]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.Dst]; !ok {
			continue
		}
		_ = g.AddEdge(e)
	}

	out := make(map[string]graphNodeView, len(g.Nodes))
	for id, n := range g.Nodes {
		view := graphNodeView{
			DataIn:  tagMapToStrings(n.DataInSchema),
			DataOut: tagMapToStrings(n.DataOutSchema),
		}
		for _, e := range g.OutEdges(id) {
			view.Edges = append(view.Edges, graphEdgeView{
				DstNode: e.Dst,
				DataIn:  keySubsetTags(n.DataOutSchema, e.KeyMap, true),
				DataOut: keySubsetTags(n.DataOutSchema, e.KeyMap, false),
			})
		}
		out[id] = view
	}

	writeJSON(w, http.StatusOK, out)
}

func tagMapToStrings(schema map[string]typesys.TypeTag) map[string]string {
	out := make(map[string]string, len(schema))
	for k, tag := range schema {
		out[k] = string(tag)
	}
	return out
}

// keySubsetTags restricts srcOutSchema to the keys named in keyMap,
// reporting either the mapped destination-input key (dstSide=true) or
// the source-output key (dstSide=false), both against the same tag.
func keySubsetTags(srcOutSchema map[string]typesys.TypeTag, keyMap map[string]string, dstSide bool) map[string]string {
	out := make(map[string]string, len(keyMap))
	for srcKey, dstKey := range keyMap {
		tag, ok := srcOutSchema[srcKey]
		if !ok {
			continue
		}
		if dstSide {
			out[dstKey] = string(tag)
		} else {
			out[srcKey] = string(tag)
		}
	}
	return out
}

// --- GET /crud/get_edges ---

type edgeView struct {
	EdgeID  string            `json:"edge_id"`
	SrcNode string            `json:"src_node"`
	DstNode string            `json:"dst_node"`
	KeyMap  map[string]string `json:"src_to_dst_data_keys"`
}

func (s *Server) handleGetEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := s.store.ListAllEdges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	out := make([]edgeView, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeView{EdgeID: e.ID, SrcNode: e.Src, DstNode: e.Dst, KeyMap: e.KeyMap})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- /graph/process_graph (+ alias /graph/graph_run_config) ---

type processGraphRequest struct {
	GraphID        string                    `json:"graph_id"`
	RootInputs     map[string]map[string]any `json:"root_inputs"`
	DisableList    []string                  `json:"disable_list"`
	DataOverwrites map[string]map[string]any `json:"data_overwrites"`
}

type resultResponse struct {
	Result string `json:"Result"`
}

type nodeStateResponse struct {
	Level   int            `json:"level"`
	Visited bool           `json:"visited"`
	DataIn  map[string]any `json:"data_in"`
	DataOut map[string]any `json:"data_out"`
}

func (s *Server) handleProcessGraph(w http.ResponseWriter, r *http.Request) {
	var req processGraphRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	g, err := s.store.LoadGraph(r.Context(), req.GraphID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_GRAPH", fmt.Sprintf("graph %q not found", req.GraphID))
		return
	}

	cfg, err := buildRunConfig(g, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_RUN_CONFIG", err.Error())
		return
	}

	result, err := s.service.Execute(r.Context(), req.GraphID, cfg)
	logErr := ""
	if err != nil {
		logErr = err.Error()
	}
	_ = s.store.SaveRunLog(r.Context(), store.RunLogEntry{
		GraphID:  req.GraphID,
		Config:   cfg,
		Sentinel: result.Sentinel,
		Error:    logErr,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	if result.Sentinel != "" {
		writeJSON(w, http.StatusOK, resultResponse{Result: result.Sentinel})
		return
	}

	out := make(map[string]nodeStateResponse, len(result.States))
	for id, st := range result.States {
		out[id] = nodeStateResponse{
			Level:   st.Level,
			Visited: st.Visited,
			DataIn:  valueMapToJSON(st.DataIn),
			DataOut: valueMapToJSON(st.DataOut),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// buildRunConfig converts the wire request into runconfig.Config, typing
// each raw JSON value against the target node's declared input schema —
// process_graph never carries type tags on the wire, only the graph's
// own persisted schemas say what a given key holds.
func buildRunConfig(g *graphmodel.Graph, req processGraphRequest) (runconfig.Config, error) {
	rootInputs, err := typeRawValueMap(g, req.RootInputs)
	if err != nil {
		return runconfig.Config{}, fmt.Errorf("root_inputs: %w", err)
	}
	overwrites, err := typeRawValueMap(g, req.DataOverwrites)
	if err != nil {
		return runconfig.Config{}, fmt.Errorf("data_overwrites: %w", err)
	}
	return runconfig.Config{
		RootInputs:     rootInputs,
		DisableList:    req.DisableList,
		DataOverwrites: overwrites,
	}, nil
}

func typeRawValueMap(g *graphmodel.Graph, raw map[string]map[string]any) (map[string]map[string]typesys.Value, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]map[string]typesys.Value, len(raw))
	for nodeID, kv := range raw {
		n, ok := g.Nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", validate.ErrUnknownNode, nodeID)
		}
		row := make(map[string]typesys.Value, len(kv))
		for key, rawVal := range kv {
			tag, ok := n.DataInSchema[key]
			if !ok {
				return nil, fmt.Errorf("%w: node %q key %q", validate.ErrUnknownNode, nodeID, key)
			}
			v, err := valueFromJSON(tag, rawVal)
			if err != nil {
				return nil, fmt.Errorf("node %q key %q: %w", nodeID, key, err)
			}
			row[key] = v
		}
		out[nodeID] = row
	}
	return out, nil
}

// valueFromJSON types a decoded JSON value against tag. JSON numbers
// always decode to float64; Int additionally requires an integral value.
func valueFromJSON(tag typesys.TypeTag, raw any) (typesys.Value, error) {
	switch tag {
	case typesys.Int:
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) {
			return typesys.Value{}, fmt.Errorf("%w: expected int", validate.ErrTypeMismatch)
		}
		return typesys.NewInt(int64(f)), nil
	case typesys.Float:
		f, ok := raw.(float64)
		if !ok {
			return typesys.Value{}, fmt.Errorf("%w: expected float", validate.ErrTypeMismatch)
		}
		return typesys.NewFloat(f), nil
	case typesys.Str:
		v, ok := raw.(string)
		if !ok {
			return typesys.Value{}, fmt.Errorf("%w: expected str", validate.ErrTypeMismatch)
		}
		return typesys.NewStr(v), nil
	case typesys.Bool:
		v, ok := raw.(bool)
		if !ok {
			return typesys.Value{}, fmt.Errorf("%w: expected bool", validate.ErrTypeMismatch)
		}
		return typesys.NewBool(v), nil
	case typesys.List:
		v, ok := raw.([]any)
		if !ok {
			return typesys.Value{}, fmt.Errorf("%w: expected list", validate.ErrTypeMismatch)
		}
		return typesys.NewList(v), nil
	case typesys.Dict:
		v, ok := raw.(map[string]any)
		if !ok {
			return typesys.Value{}, fmt.Errorf("%w: expected dict", validate.ErrTypeMismatch)
		}
		return typesys.NewDict(v), nil
	default:
		return typesys.Value{}, fmt.Errorf("%w: %q", typesys.ErrUnknownType, tag)
	}
}

func valueMapToJSON(m map[string]typesys.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v.IsUnset() {
			out[k] = nil
			continue
		}
		out[k] = v.Payload()
	}
	return out
}

// writeValidationError maps the sentinel errors validate returns onto
// their spec'd status codes.
func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validate.ErrMissingField):
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", err.Error())
	case errors.Is(err, validate.ErrUnknownType):
		writeError(w, http.StatusBadRequest, "UNKNOWN_TYPE", err.Error())
	case errors.Is(err, validate.ErrTypeMismatch):
		writeError(w, http.StatusBadRequest, "TYPE_MISMATCH", err.Error())
	case errors.Is(err, validate.ErrUnknownNode):
		writeError(w, http.StatusNotFound, "UNKNOWN_NODE", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}
}
