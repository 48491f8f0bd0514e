package typesys

import "errors"

// ErrUnknownType is returned when a type tag falls outside the closed set
// {int, float, str, bool, list, dict}.
var ErrUnknownType = errors.New("unknown type tag")
