package validate

import (
	"fmt"

	"github.com/flowgraph/graphengine/typesys"
)

// NodeCreateRequest is the shape the CRUD create_nodes handler receives
// before it is turned into a graphmodel.Node.
type NodeCreateRequest struct {
	NodeID  string
	DataIn  map[string]string
	DataOut map[string]string
}

// ParsedSchema is a node-creation request's schemas after tag parsing.
type ParsedSchema struct {
	DataIn  map[string]typesys.TypeTag
	DataOut map[string]typesys.TypeTag
}

// ValidateNodeCreate enforces spec.md §6's create_nodes rules: required
// fields present, every data_out key present in data_in, tags matching
// for shared keys, and tags drawn from the closed set. It returns the
// parsed schemas so the caller does not re-parse tag strings.
func ValidateNodeCreate(req NodeCreateRequest) (ParsedSchema, error) {
	if req.NodeID == "" {
		return ParsedSchema{}, fmt.Errorf("%w: node_id", ErrMissingField)
	}
	if req.DataIn == nil {
		return ParsedSchema{}, fmt.Errorf("%w: data_in", ErrMissingField)
	}
	if req.DataOut == nil {
		return ParsedSchema{}, fmt.Errorf("%w: data_out", ErrMissingField)
	}

	dataIn := make(map[string]typesys.TypeTag, len(req.DataIn))
	for key, raw := range req.DataIn {
		tag, err := typesys.ParseTag(raw)
		if err != nil {
			return ParsedSchema{}, fmt.Errorf("data_in[%q]: %w", key, err)
		}
		dataIn[key] = tag
	}

	dataOut := make(map[string]typesys.TypeTag, len(req.DataOut))
	for key, raw := range req.DataOut {
		inRaw, ok := req.DataIn[key]
		if !ok {
			return ParsedSchema{}, fmt.Errorf("%w: key %q in data_out is not present in data_in", ErrTypeMismatch, key)
		}
		tag, err := typesys.ParseTag(raw)
		if err != nil {
			return ParsedSchema{}, fmt.Errorf("data_out[%q]: %w", key, err)
		}
		if raw != inRaw {
			return ParsedSchema{}, fmt.Errorf("%w: key %q: %s in data_in vs %s in data_out", ErrTypeMismatch, key, inRaw, raw)
		}
		dataOut[key] = tag
	}

	return ParsedSchema{DataIn: dataIn, DataOut: dataOut}, nil
}

// EdgeCreateRequest is the shape the CRUD create_edges handler receives.
type EdgeCreateRequest struct {
	EdgeID  string
	SrcNode string
	DstNode string
	KeyMap  map[string]string // source output key -> destination input key
}

// ValidateEdgeCreate enforces spec.md §6's create_edges rules given the
// already-persisted source and destination schemas: every mapped key
// pair must exist on its side with matching type tags.
func ValidateEdgeCreate(req EdgeCreateRequest, srcDataOut, dstDataIn map[string]typesys.TypeTag) error {
	if req.EdgeID == "" {
		return fmt.Errorf("%w: edge_id", ErrMissingField)
	}
	if req.SrcNode == "" {
		return fmt.Errorf("%w: src_node", ErrMissingField)
	}
	if req.DstNode == "" {
		return fmt.Errorf("%w: dst_node", ErrMissingField)
	}

	for srcKey, dstKey := range req.KeyMap {
		srcTag, ok := srcDataOut[srcKey]
		if !ok {
			return fmt.Errorf("%w: key %q not found in src_node data_out", ErrTypeMismatch, srcKey)
		}
		dstTag, ok := dstDataIn[dstKey]
		if !ok {
			return fmt.Errorf("%w: key %q not found in dst_node data_in", ErrTypeMismatch, dstKey)
		}
		if srcTag != dstTag {
			return fmt.Errorf("%w: key %q: %s vs %s", ErrTypeMismatch, srcKey, srcTag, dstTag)
		}
	}
	return nil
}
