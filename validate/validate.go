// Package validate holds the static, pre-execution checks that must pass
// before a graph snapshot is scheduled and propagated, plus the
// creation-time checks the server layer runs when nodes/edges/graphs are
// first persisted.
package validate

import (
	"errors"
	"fmt"

	"github.com/flowgraph/graphengine/graphmodel"
	"github.com/flowgraph/graphengine/typesys"
)

// Sentinel error kinds, each distinguishable by errors.Is so callers
// (notably the HTTP layer) can map them onto distinct status codes.
var (
	ErrMissingField = errors.New("missing required field")
	ErrUnknownType  = typesys.ErrUnknownType
	ErrTypeMismatch = errors.New("type mismatch")
	ErrUnknownNode  = errors.New("unknown node")
)

// ValidateGraph runs the three static well-formedness checks of a loaded
// snapshot, failing fast with the first violation found:
//  1. every edge endpoint resolves to a node in the snapshot,
//  2. every edge key mapping's source/destination keys exist in their
//     schemas with matching type tags,
//  3. every node's DataOutSchema is a tag-preserving subset of DataInSchema.
func ValidateGraph(g *graphmodel.Graph) error {
	for _, n := range g.Nodes {
		if err := validateSchemaSubset(n); err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if err := validateEdge(g, e); err != nil {
			return err
		}
	}
	return nil
}

func validateSchemaSubset(n *graphmodel.Node) error {
	for key, outTag := range n.DataOutSchema {
		inTag, ok := n.DataInSchema[key]
		if !ok {
			return fmt.Errorf("%w: node %q output key %q not present in input schema", ErrTypeMismatch, n.ID, key)
		}
		if inTag != outTag {
			return fmt.Errorf("%w: node %q key %q: data_in tag %q vs data_out tag %q", ErrTypeMismatch, n.ID, key, inTag, outTag)
		}
	}
	return nil
}

func validateEdge(g *graphmodel.Graph, e *graphmodel.Edge) error {
	src, ok := g.Nodes[e.Src]
	if !ok {
		return fmt.Errorf("%w: edge %q source %q", ErrUnknownNode, e.ID, e.Src)
	}
	dst, ok := g.Nodes[e.Dst]
	if !ok {
		return fmt.Errorf("%w: edge %q destination %q", ErrUnknownNode, e.ID, e.Dst)
	}

	for srcKey, dstKey := range e.KeyMap {
		srcTag, ok := src.DataOutSchema[srcKey]
		if !ok {
			return fmt.Errorf("%w: edge %q: key %q not in source %q data_out_schema", ErrTypeMismatch, e.ID, srcKey, e.Src)
		}
		dstTag, ok := dst.DataInSchema[dstKey]
		if !ok {
			return fmt.Errorf("%w: edge %q: key %q not in destination %q data_in_schema", ErrTypeMismatch, e.ID, dstKey, e.Dst)
		}
		if srcTag != dstTag {
			return fmt.Errorf("%w: edge %q: %q (%s) vs %q (%s)", ErrTypeMismatch, e.ID, srcKey, srcTag, dstKey, dstTag)
		}
	}
	return nil
}
