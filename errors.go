// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors describing contract violations. These are programmer
// errors in either the host's Trace/Finalize callbacks or in this package
// itself; per the design, the collector is infallible in the ordinary sense
// and these are only ever surfaced by panicking, wrapped in a
// *ContractViolation, never returned from an exported function.
var (
	// errDoubleRelease is raised when release is called on a node whose
	// strong count is not zero, i.e. a bookkeeping invariant was already
	// broken elsewhere.
	errDoubleRelease = errors.New("rcgc: release called with strong > 0")
	// errUseAfterFree is raised when a handle operation touches a node whose
	// value has already been cleaned up.
	errUseAfterFree = errors.New("rcgc: use of handle after node was freed")
	// errTraceMutation is raised, in debug mode, when a Trace callback is
	// observed mutating reference counts or colour instead of only
	// enumerating children.
	errTraceMutation = errors.New("rcgc: trace callback mutated collector state")
)

// ContractViolation is the error type carried by every panic this package
// raises. It wraps one of the sentinel errors above with the node identity
// and collector phase active when the violation was detected.
type ContractViolation struct {
	Op   string // operation in progress, e.g. "release", "mark_gray"
	Node uintptr
	err  error
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("rcgc: contract violation during %s on node %#x: %v", e.Op, e.Node, e.err)
}

// Unwrap allows errors.Is/errors.As to reach the wrapped sentinel.
func (e *ContractViolation) Unwrap() error {
	return e.err
}

func violation(op string, n *node, base error) *ContractViolation {
	return &ContractViolation{Op: op, Node: nodeAddr(n), err: errors.WithStack(base)}
}
