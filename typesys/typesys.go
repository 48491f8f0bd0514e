// Package typesys defines the closed set of value types the graph engine
// moves between nodes, and the Value variant that carries them.
package typesys

import "fmt"

// TypeTag identifies the shape of a Value. Two tags are compatible only if
// equal: there is no subtyping and no numeric widening.
type TypeTag string

const (
	Int   TypeTag = "int"
	Float TypeTag = "float"
	Str   TypeTag = "str"
	Bool  TypeTag = "bool"
	List  TypeTag = "list"
	Dict  TypeTag = "dict"
)

// validTags is the closed set accepted anywhere a type tag is declared.
var validTags = map[TypeTag]bool{
	Int:   true,
	Float: true,
	Str:   true,
	Bool:  true,
	List:  true,
	Dict:  true,
}

// Valid reports whether tag is one of the closed set of recognized tags.
func Valid(tag TypeTag) bool {
	return validTags[tag]
}

// ParseTag validates a raw string as a TypeTag, returning ErrUnknownType
// if it is outside the closed set.
func ParseTag(raw string) (TypeTag, error) {
	tag := TypeTag(raw)
	if !Valid(tag) {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	return tag, nil
}

// Value is a tagged variant. The zero Value is Unset.
type Value struct {
	tag     TypeTag
	set     bool
	payload any
}

// Unset returns the distinguished initial value for a declared key of the
// given tag. It is preserved in output until a writer overwrites it.
func Unset(tag TypeTag) Value {
	return Value{tag: tag}
}

// IsUnset reports whether v has never been written.
func (v Value) IsUnset() bool {
	return !v.set
}

// Tag returns the type tag this value was declared with.
func (v Value) Tag() TypeTag {
	return v.tag
}

// Payload returns the underlying value, or nil if unset.
func (v Value) Payload() any {
	return v.payload
}

// NewInt constructs a set int Value.
func NewInt(n int64) Value { return Value{tag: Int, set: true, payload: n} }

// NewFloat constructs a set float Value.
func NewFloat(f float64) Value { return Value{tag: Float, set: true, payload: f} }

// NewStr constructs a set str Value.
func NewStr(s string) Value { return Value{tag: Str, set: true, payload: s} }

// NewBool constructs a set bool Value.
func NewBool(b bool) Value { return Value{tag: Bool, set: true, payload: b} }

// NewList constructs a set list Value. The slice is copied.
func NewList(items []any) Value {
	return Value{tag: List, set: true, payload: cloneSlice(items)}
}

// NewDict constructs a set dict Value. The map is copied.
func NewDict(fields map[string]any) Value {
	return Value{tag: Dict, set: true, payload: cloneMap(fields)}
}

// DeepCopy returns a Value holding an independent copy of any compound
// (list/dict) payload, so downstream mutation cannot alias an earlier
// stage. Scalars are copied by value already.
func (v Value) DeepCopy() Value {
	if !v.set {
		return v
	}
	switch v.tag {
	case List:
		if items, ok := v.payload.([]any); ok {
			return Value{tag: List, set: true, payload: cloneSlice(items)}
		}
	case Dict:
		if fields, ok := v.payload.(map[string]any); ok {
			return Value{tag: Dict, set: true, payload: cloneMap(fields)}
		}
	}
	return v
}

func cloneSlice(items []any) []any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = deepCopyAny(item)
	}
	return out
}

func cloneMap(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, val := range fields {
		out[k] = deepCopyAny(val)
	}
	return out
}

func deepCopyAny(v any) any {
	switch val := v.(type) {
	case []any:
		return cloneSlice(val)
	case map[string]any:
		return cloneMap(val)
	default:
		return val
	}
}
