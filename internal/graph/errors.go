package graph

import (
	"errors"
	"fmt"
)

// ErrLocked is returned by every mutating operation while a run holds the
// graph. Edits are rejected, not queued; retry after the run reaches a
// terminal status.
var ErrLocked = errors.New("graph is locked by an active run")

// ValidationKind classifies a rejected mutation.
type ValidationKind int

const (
	// KindCycle: the edge would close a cycle.
	KindCycle ValidationKind = iota
	// KindTypeMismatch: the two ports declare different payload types.
	KindTypeMismatch
	// KindUnknownPort: a named port does not exist on the node's type.
	KindUnknownPort
	// KindPortOccupied: the input port already has an incoming edge.
	KindPortOccupied
	// KindUnknownNode: the node identifier is not in the graph.
	KindUnknownNode
	// KindBadParameter: the value does not satisfy the parameter schema.
	KindBadParameter
)

func (k ValidationKind) String() string {
	switch k {
	case KindCycle:
		return "cycle"
	case KindTypeMismatch:
		return "type mismatch"
	case KindUnknownPort:
		return "unknown port"
	case KindPortOccupied:
		return "port occupied"
	case KindUnknownNode:
		return "unknown node"
	case KindBadParameter:
		return "bad parameter"
	}
	return "invalid"
}

// ValidationError reports a rejected mutation. The graph is always left
// unchanged when one is returned.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError of the given kind.
func IsValidation(err error, kind ValidationKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}
