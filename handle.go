// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "runtime"

// guard is a one-shot finalizer token. Every independent strong (or weak,
// see weak.go) reference a host obtains — from NewStrong, Clone, Assign, or
// Downgrade/Upgrade — gets its own guard, never a shared one. When that
// specific reference is never explicitly closed and becomes unreachable,
// the guard's finalizer fires exactly once and performs the decrement the
// missing Close would have. A plain Go struct copy of a Strong[T] (as
// opposed to Clone) shares its guard with the original, which is correct:
// no increment happened, so the two copies are aliases of one logical
// reference and must not each trigger their own decrement.
//
// runtime.SetFinalizer attaches to this fresh, dedicated token rather than
// to the shared node record, so each returned reference is independently
// collectible by the Go runtime.
type guard struct{ _ byte }

func attachStrongGuard(c *Collector, n *node) *guard {
	g := new(guard)
	runtime.SetFinalizer(g, func(*guard) {
		c.decrement(n)
	})
	return g
}

func detachGuard(g *guard) {
	if g != nil {
		runtime.SetFinalizer(g, nil)
	}
}

// Strong is an owning, reference-counted handle to a value of type T. It
// contributes to its node's strong count for as long as it is alive, and
// participates in cycle collection: when dropped, it may, depending on the
// owning Collector's threshold, trigger a collection pass that reclaims
// cyclic garbage reachable only through handles like this one.
//
// The zero Strong[T] is empty (it wraps no node) and every method is a safe
// no-op on it.
type Strong[T any] struct {
	c     *Collector
	n     *node
	value *T
	g     *guard
}

// NewStrong allocates a value of type T, wraps it in a fresh node with
// strong = 1, weak = 1, coloured Black, and returns a Strong handle owning
// it. trace must enumerate every outgoing strong edge from value (see
// TraceSlice, TraceMap, TraceHandle for common shapes); it may be nil for a
// leaf value with no outgoing handles. finalize may be nil.
func NewStrong[T any](c *Collector, value T, trace Trace, finalize Finalize) Strong[T] {
	if c == nil {
		c = Default()
	}
	v := new(T)
	*v = value
	n := newNode(trace, finalize, func() {
		var zero T
		*v = zero
	})
	c.metrics.live.Add(1)
	return Strong[T]{c: c, n: n, value: v, g: attachStrongGuard(c, n)}
}

// IsEmpty reports whether h wraps no node, either because it is the zero
// value or because it has already been closed.
func (h Strong[T]) IsEmpty() bool {
	return h.n == nil
}

// Get returns a pointer to the underlying value. It is valid only as long as
// the handle (or a clone, or the subgraph it is part of) remains alive. Get
// on an empty handle returns nil.
func (h Strong[T]) Get() *T {
	return h.value
}

// Clone increments the node's strong count and returns a new, independent,
// top-level handle to it, carrying its own runtime finalizer — a copy
// constructor for Strong handles. Colour resets to Black: a fresh reference
// is proof of
// liveness. Unlike a plain Go struct copy (`h2 := h1`), which aliases h1
// without incrementing anything, Clone must be used whenever two owners need
// to Close independently. To store a handle inside a traced value's own
// fields, use Ref instead: it skips the finalizer, since that edge's
// lifetime is owned by its container, not by whichever goroutine happens to
// hold this particular Go value.
func (h Strong[T]) Clone() Strong[T] {
	if h.n == nil {
		return Strong[T]{}
	}
	h.c.mu.Lock()
	h.n.increment()
	h.c.mu.Unlock()
	return Strong[T]{c: h.c, n: h.n, value: h.value, g: attachStrongGuard(h.c, h.n)}
}

// Ref increments the node's strong count and returns a new handle to it that
// carries no runtime finalizer of its own. Use Ref when a value needs an
// additional internal reference to a node that some other, independently
// owned top-level handle also points at — for example, wiring a cycle where
// every node also has an external owner that will Close it directly. A
// handle returned by Ref should never have Close called on it by application
// code; its decrement is performed synchronously by the owning node's own
// release, so it must not also carry a finalizer that would decrement it a
// second time whenever Go's garbage collector happens to notice it was
// dropped.
func (h Strong[T]) Ref() Strong[T] {
	if h.n == nil {
		return Strong[T]{}
	}
	h.c.mu.Lock()
	h.n.increment()
	h.c.mu.Unlock()
	return Strong[T]{c: h.c, n: h.n, value: h.value}
}

// IntoRef consumes a top-level handle and returns the same reference in
// guard-less form, suitable for storing inside a value's own fields, without
// touching the strong count: h already represents the one unit of ownership
// being moved into the new owner, so no increment (and no transient
// possible_root marking of a decrement that would otherwise leave the count
// positive) is needed. h must not be used again after the call.
func (h Strong[T]) IntoRef() Strong[T] {
	if h.n == nil {
		return Strong[T]{}
	}
	detachGuard(h.g)
	return Strong[T]{c: h.c, n: h.n, value: h.value}
}

// Close decrements the node's strong count and, depending on collector
// configuration, asks the owning Collector to run a cycle-collection pass.
// There is no destructor in Go, so the host must call Close explicitly (or
// rely on the finalizer safety net attached by NewStrong/Clone/Assign, which
// is not guaranteed to run promptly). Close on an already-empty handle is a
// safe no-op.
func (h *Strong[T]) Close() {
	if h.n == nil {
		return
	}
	n, c, g := h.n, h.c, h.g
	h.n, h.c, h.value, h.g = nil, nil, nil, nil
	detachGuard(g)
	c.decrement(n)
}

// Assign replaces h's contents with other's, incrementing other's strong
// count (obtaining an independent reference of its own, with its own guard)
// before decrementing h's old one — so self-assignment, or an assignment
// that would otherwise transiently drop the last reference to a shared
// node, is always safe.
func (h *Strong[T]) Assign(other Strong[T]) {
	var newGuard *guard
	if other.n != nil {
		other.c.mu.Lock()
		other.n.increment()
		other.c.mu.Unlock()
		newGuard = attachStrongGuard(other.c, other.n)
	}
	oldN, oldC, oldG := h.n, h.c, h.g
	h.n, h.c, h.value, h.g = other.n, other.c, other.value, newGuard
	if oldN != nil {
		detachGuard(oldG)
		oldC.decrement(oldN)
	}
}

// StrongCount returns the current strong count of h's node.
func (h Strong[T]) StrongCount() int {
	if h.n == nil {
		return 0
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return int(h.n.strong)
}

// WeakCount returns the current weak count of h's node.
func (h Strong[T]) WeakCount() int {
	if h.n == nil {
		return 0
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return int(h.n.weak)
}

// Downgrade returns a Weak handle to the same node without affecting the
// strong count.
func (h Strong[T]) Downgrade() Weak[T] {
	if h.n == nil {
		return Weak[T]{}
	}
	h.c.mu.Lock()
	h.n.incrementWeak()
	h.c.mu.Unlock()
	return Weak[T]{c: h.c, n: h.n, value: h.value, g: attachWeakGuard(h.c, h.n)}
}

// node exposes the underlying node to Trace implementations such as
// TraceHandle and TraceSlice/TraceMap; it is unexported because only this
// package's Trace helpers and tests need it.
func (h Strong[T]) node() *node {
	return h.n
}
