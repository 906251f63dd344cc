package graph

import (
	"errors"
	"fmt"
)

// ErrMisconfigured is the root of every graph construction and evaluation
// error. A tile whose graph fails with it is abandoned; other tiles continue.
var ErrMisconfigured = errors.New("graph misconfigured")

var (
	// ErrSlotOutOfRange is returned when an input slot index or name exceeds
	// the arity of the node's kind.
	ErrSlotOutOfRange = fmt.Errorf("%w: input slot out of range", ErrMisconfigured)

	// ErrUnknownNode is returned when a handle does not name a node in the
	// prototype.
	ErrUnknownNode = fmt.Errorf("%w: unknown node", ErrMisconfigured)

	ErrUnknownKind = fmt.Errorf("%w: unknown node kind", ErrMisconfigured)

	// ErrTypeMismatch is returned when a producer's output type cannot feed
	// the target slot.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrMisconfigured)

	ErrSelfLink = fmt.Errorf("%w: node linked to itself", ErrMisconfigured)

	// ErrCycle is returned by Compile when the links form a cycle.
	ErrCycle = fmt.Errorf("%w: cycle detected", ErrMisconfigured)

	ErrNoOutput        = fmt.Errorf("%w: no output node", ErrMisconfigured)
	ErrDuplicateOutput = fmt.Errorf("%w: output node already registered", ErrMisconfigured)

	// ErrDivideByZero is returned during evaluation when a divisor is
	// within 1e-12 of zero.
	ErrDivideByZero = fmt.Errorf("%w: divide by zero", ErrMisconfigured)

	// ErrNonFinite is returned during evaluation when a node produces NaN
	// or an infinity.
	ErrNonFinite = fmt.Errorf("%w: non-finite value", ErrMisconfigured)

	ErrNotNoise = fmt.Errorf("%w: node has no noise settings", ErrMisconfigured)
)

// NodeError attaches the offending node to a graph error.
type NodeError struct {
	Node NodeID
	Kind Kind
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.Node, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func nodeErr(id NodeID, kind Kind, err error) error {
	return &NodeError{Node: id, Kind: kind, Err: err}
}
