// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "unsafe"

// Visit is the callback a Trace function must invoke, exactly once, for
// every node directly reachable through a strong edge from the traced
// value.
type Visit func(*node)

// Trace enumerates a value's outgoing strong edges to the visitor. It must
// be purely structural: no reference-count or colour mutation is permitted,
// and weak edges must never be visited.
type Trace func(Visit)

// Finalize runs application-level teardown before a value is destroyed. It
// may observe peer nodes that are dying in the same batch (their finalizers
// have not necessarily run yet, but their values are still intact) but must
// not resurrect a dying node into the live graph.
type Finalize func()

// Cleanup destroys the user value itself. It runs once per node, after every
// Finalize in the same deferred-free batch has run.
type Cleanup func()

// node is the per-object bookkeeping record: one per managed value, holding
// the strong and weak counts, the mark/scan/collect colour, the
// suspected-roots membership bit, and the three user-supplied callbacks. It
// never stores the user value directly — that lives in the Strong[T]/
// Weak[T] handle, keeping node itself free of type parameters so a single
// Collector can host nodes for any number of distinct value types.
type node struct {
	strong   uint32
	weak     uint32
	colour   colour
	buffered bool

	trace    Trace
	finalize Finalize
	cleanup  Cleanup
}

// newNode allocates a node with strong = 1, weak = 1, Black, matching the
// lifecycle described for a freshly-constructed handle.
func newNode(trace Trace, finalize Finalize, cleanup Cleanup) *node {
	if finalize == nil {
		finalize = func() {}
	}
	return &node{
		strong:   1,
		weak:     1,
		colour:   black,
		trace:    trace,
		finalize: finalize,
		cleanup:  cleanup,
	}
}

func nodeAddr(n *node) uintptr {
	return uintptr(unsafe.Pointer(n))
}

// increment records a new strong reference to n. Colour resets to Black
// unconditionally: a fresh external reference is proof the node is not
// garbage, whatever a previous collection pass believed.
func (n *node) increment() {
	n.strong++
	n.colour = black
}

// incrementWeak records a new weak reference to n.
func (n *node) incrementWeak() {
	n.weak++
}
