// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "runtime"

func attachWeakGuard(c *Collector, n *node) *guard {
	g := new(guard)
	runtime.SetFinalizer(g, func(*guard) {
		c.decrementWeak(n)
	})
	return g
}

// Weak is a non-owning handle to a value of type T. It contributes to its
// node's weak count but not its strong count, so it does not by itself keep
// the value alive; it can be upgraded back to a Strong handle as long as
// the node's strong count is still positive at the time of the call.
//
// The zero Weak[T] is empty and every method is a safe no-op on it.
type Weak[T any] struct {
	c     *Collector
	n     *node
	value *T
	g     *guard
}

// IsEmpty reports whether h wraps no node.
func (h Weak[T]) IsEmpty() bool {
	return h.n == nil
}

// Clone increments the node's weak count and returns a new, independent
// weak handle.
func (h Weak[T]) Clone() Weak[T] {
	if h.n == nil {
		return Weak[T]{}
	}
	h.c.mu.Lock()
	h.n.incrementWeak()
	h.c.mu.Unlock()
	return Weak[T]{c: h.c, n: h.n, value: h.value, g: attachWeakGuard(h.c, h.n)}
}

// Close decrements the node's weak count. When the weak count reaches zero
// the node record itself is freed, unconditionally and immediately (see
// decrementWeak), unlike the strong-count path, which defers to the
// collector.
func (h *Weak[T]) Close() {
	if h.n == nil {
		return
	}
	n, c, g := h.n, h.c, h.g
	h.n, h.c, h.value, h.g = nil, nil, nil, nil
	detachGuard(g)
	c.decrementWeak(n)
}

// Upgrade returns a new Strong handle to the same node if its strong count
// is still positive, and false otherwise. No explicit colour
// change is needed on a successful upgrade: a positive strong count already
// implies the value is live, and the freshly minted Strong handle behaves
// like any other reference for future possible_root detection on its own
// subsequent decrement.
func (h Weak[T]) Upgrade() (Strong[T], bool) {
	if h.n == nil {
		return Strong[T]{}, false
	}
	h.c.mu.Lock()
	if h.n.strong == 0 {
		h.c.mu.Unlock()
		return Strong[T]{}, false
	}
	h.n.increment()
	h.c.mu.Unlock()
	return Strong[T]{c: h.c, n: h.n, value: h.value, g: attachStrongGuard(h.c, h.n)}, true
}
