package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/typesys"
)

// graphFile is the on-disk shape accepted by "validate" and "run": the
// same node/edge/graph fields the HTTP create_nodes/create_edges/
// create_graph endpoints accept, bundled into one document so a graph can
// be described and checked offline without a running server.
type graphFile struct {
	Nodes []struct {
		NodeID  string            `json:"node_id"`
		DataIn  map[string]string `json:"data_in"`
		DataOut map[string]string `json:"data_out"`
	} `json:"nodes"`
	Edges []struct {
		EdgeID           string            `json:"edge_id"`
		SrcNode          string            `json:"src_node"`
		DstNode          string            `json:"dst_node"`
		SrcToDstDataKeys map[string]string `json:"src_to_dst_data_keys"`
	} `json:"edges"`
	GraphID string `json:"graph_id"`
}

func loadGraphFile(path string) (*graphmodel.Graph, error) {
	// #nosec G304 -- path is a command-line argument the operator supplied.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}

	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parsing graph file: %w", err)
	}

	adjacency := make(map[string]graphmodel.NodeSpec, len(gf.Nodes))
	for _, nf := range gf.Nodes {
		inSchema, err := parseTagMap(nf.DataIn)
		if err != nil {
			return nil, fmt.Errorf("node %q data_in: %w", nf.NodeID, err)
		}
		outSchema, err := parseTagMap(nf.DataOut)
		if err != nil {
			return nil, fmt.Errorf("node %q data_out: %w", nf.NodeID, err)
		}
		adjacency[nf.NodeID] = graphmodel.NodeSpec{DataIn: inSchema, DataOut: outSchema}
	}

	edges := make([]graphmodel.EdgeSpec, 0, len(gf.Edges))
	for _, ef := range gf.Edges {
		edges = append(edges, graphmodel.EdgeSpec{
			ID:     ef.EdgeID,
			Src:    ef.SrcNode,
			Dst:    ef.DstNode,
			KeyMap: ef.SrcToDstDataKeys,
		})
	}

	g, err := graphmodel.BuildFromAdjacency(gf.GraphID, adjacency, edges)
	if err != nil {
		return nil, fmt.Errorf("building graph %q: %w", gf.GraphID, err)
	}
	return g, nil
}

func parseTagMap(raw map[string]string) (map[string]typesys.TypeTag, error) {
	out := make(map[string]typesys.TypeTag, len(raw))
	for key, tagStr := range raw {
		tag, err := typesys.ParseTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = tag
	}
	return out, nil
}

// typeRawValueMap resolves raw JSON values (root_inputs/data_overwrites
// style maps, node id -> key -> JSON value) against the DataInSchema of the
// matching node in g, since these maps carry no type tags of their own.
func typeRawValueMap(g *graphmodel.Graph, raw map[string]map[string]any) (map[string]map[string]typesys.Value, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]map[string]typesys.Value, len(raw))
	for nodeID, fields := range raw {
		n, ok := g.Nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("unknown node %q", nodeID)
		}
		typed := make(map[string]typesys.Value, len(fields))
		for key, rawVal := range fields {
			tag, ok := n.DataInSchema[key]
			if !ok {
				return nil, fmt.Errorf("node %q: key %q not in data_in schema", nodeID, key)
			}
			v, err := valueFromJSON(tag, rawVal)
			if err != nil {
				return nil, fmt.Errorf("node %q key %q: %w", nodeID, key, err)
			}
			typed[key] = v
		}
		out[nodeID] = typed
	}
	return out, nil
}

func valueMapToJSON(m map[string]typesys.Value) map[string]any {
	out := make(map[string]any, len(m))
	for key, v := range m {
		if v.IsUnset() {
			out[key] = nil
			continue
		}
		out[key] = v.Payload()
	}
	return out
}

func valueFromJSON(tag typesys.TypeTag, raw any) (typesys.Value, error) {
	switch tag {
	case typesys.Int:
		f, ok := raw.(float64)
		if !ok || math.Trunc(f) != f {
			return typesys.Value{}, fmt.Errorf("expected int, got %T", raw)
		}
		return typesys.NewInt(int64(f)), nil
	case typesys.Float:
		f, ok := raw.(float64)
		if !ok {
			return typesys.Value{}, fmt.Errorf("expected float, got %T", raw)
		}
		return typesys.NewFloat(f), nil
	case typesys.Str:
		s, ok := raw.(string)
		if !ok {
			return typesys.Value{}, fmt.Errorf("expected str, got %T", raw)
		}
		return typesys.NewStr(s), nil
	case typesys.Bool:
		b, ok := raw.(bool)
		if !ok {
			return typesys.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return typesys.NewBool(b), nil
	case typesys.List:
		l, ok := raw.([]any)
		if !ok {
			return typesys.Value{}, fmt.Errorf("expected list, got %T", raw)
		}
		return typesys.NewList(l), nil
	case typesys.Dict:
		d, ok := raw.(map[string]any)
		if !ok {
			return typesys.Value{}, fmt.Errorf("expected dict, got %T", raw)
		}
		return typesys.NewDict(d), nil
	default:
		return typesys.Value{}, fmt.Errorf("%w: %q", typesys.ErrUnknownType, tag)
	}
}
