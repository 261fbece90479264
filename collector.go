// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Collector is the process-wide (or, for a host using one Collector per
// goroutine, thread-local) state backing a graph of handles: the
// suspected-roots buffer, the reentrancy guard, and the deferred-free list.
// All handle
// operations that touch shared structures — increment/decrement,
// possible_root, release, and the three collection passes — run with
// mu held. The trace callback is invoked with mu held, during release and the
// collection passes, so it must not call back into a handle operation; the
// finalize and cleanup callbacks are invoked only after mu is released,
// during the deferred-free drain, so one that drops a handle of its own
// never needs to (and must not) reacquire mu reentrantly.
type Collector struct {
	mu sync.Mutex

	roots      []*node
	collecting bool
	toBeFreed  []*node

	cfg     config
	metrics *collectorMetrics
}

var (
	defaultOnce sync.Once
	defaultColl *Collector
)

// Default returns the package-level Collector, constructed lazily on first
// use with no options. Most programs need exactly one Collector and can use
// this instead of calling New.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultColl = New()
	})
	return defaultColl
}

// New constructs a Collector. A host that wants isolation between
// independent object graphs, or that confines each Collector to a single
// goroutine, constructs one Collector per isolation domain; handles created
// against one Collector must not be dropped against another.
func New(opts ...Option) *Collector {
	cfg := makeconfig()
	for _, opt := range opts {
		opt(cfg)
	}
	c := &Collector{cfg: *cfg}
	c.metrics = newCollectorMetrics(c, cfg.metricsNamespace)
	return c
}

// Logger returns the zap.Logger this Collector reports the start and end of
// each collection pass to. Contract violations are not logged; they panic.
func (c *Collector) Logger() *zap.Logger {
	return c.cfg.logger
}

// liveNodes and suspectedRoots back the CollectorStats snapshot (see
// metrics.go); both require mu to read consistently.
func (c *Collector) liveNodes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.metrics.live.Load())
}

func (c *Collector) suspectedRoots() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.roots)
}

// *************************************************************************
// Node primitives. These run under mu: they touch the
// suspected-roots buffer and, on the release/free path, the deferred-free
// list.

// decrement removes one strong reference from n. If the count reaches zero,
// the node is released; otherwise it becomes a suspected cycle root.
func (c *Collector) decrement(n *node) {
	c.mu.Lock()
	c.decrementLocked(n)
	// drain any pending frees from a non-buffered release even below
	// threshold, so plain (acyclic) refcounting reclaims immediately instead
	// of waiting on the roots buffer, which a purely acyclic drop never
	// populates.
	hasWork := len(c.toBeFreed) > 0
	shouldCollect := hasWork || len(c.roots) >= c.cfg.collectThreshold
	c.mu.Unlock()
	if shouldCollect {
		c.Collect(context.Background())
	}
}

// decrementLocked is decrement without the lock/trigger wrapper, so that
// releaseLocked can recurse into a released node's children without
// re-entering c.mu (sync.Mutex is not reentrant). A node whose strong count
// is already zero is a no-op: a node can be reached more than once while a
// cycle is being swept (once through the node that originally held it, once
// more through a second surviving path), and the second decrement must not
// treat that as a use-after-free.
func (c *Collector) decrementLocked(n *node) {
	if n.strong == 0 {
		return
	}
	n.strong--
	if n.strong == 0 {
		c.releaseLocked(n)
	} else {
		c.possibleRootLocked(n)
	}
}

// releaseLocked implements release: precondition strong == 0.
// Following the reference algorithm, release decrements every child reached
// through trace before considering n itself for the deferred-free list —
// this is what lets a purely acyclic graph unwind synchronously through
// plain refcounting the moment its last external handle closes, with no
// cycle-collection pass ever required.
func (c *Collector) releaseLocked(n *node) {
	if n.strong != 0 {
		panic(violation("release", n, errDoubleRelease))
	}
	c.traceChildrenLocked("release", n, func(t *node) {
		c.decrementLocked(t)
	})
	n.colour = black
	if !n.buffered {
		c.enqueueFreeLocked(n)
	}
}

// traceChildrenLocked invokes n's Trace callback unconditionally, unlike
// traceNode (used only by scan_black), which skips a node whose own strong
// count is already zero. release, mark_gray, the White branch of scan, and
// collect_white all call this: each can legitimately be reached while
// n.strong is already (or provisionally) zero, so the strong-gated helper
// would suppress the call and strand the rest of the subgraph. op names the
// caller for the debug-mode trace-mutation panic.
func (c *Collector) traceChildrenLocked(op string, n *node, visit Visit) {
	if n.trace == nil {
		return
	}
	if !c.cfg.debug {
		n.trace(visit)
		return
	}
	colourBefore := n.colour
	n.trace(visit)
	if n.colour != colourBefore {
		panic(violation(op, n, errTraceMutation))
	}
}

// possibleRootLocked implements possible_root: precondition
// strong > 0. Returns true if n was newly buffered. decrementLocked ignores
// the result: whether a decrement triggers a collection pass is decided in
// decrement from the length of the roots buffer.
func (c *Collector) possibleRootLocked(n *node) bool {
	if n.strong == 0 {
		panic(violation("possible_root", n, errDoubleRelease))
	}
	if n.colour == purple {
		return false
	}
	n.colour = purple
	if !n.buffered {
		n.buffered = true
		c.roots = append(c.roots, n)
		c.metrics.rootsBuffered.Add(1)
		return true
	}
	return false
}

// decrementWeak removes one weak reference from n. The node record is freed
// the moment weak reaches zero, even on a path reachable from a concurrent
// upgrade attempt. See TestUpgradeRaceFreesNode for the regression test.
func (c *Collector) decrementWeak(n *node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.weak == 0 {
		panic(violation("decrement_weak", n, errUseAfterFree))
	}
	n.weak--
	if n.weak == 0 {
		c.metrics.live.Add(-1)
	}
}

// enqueueFreeLocked defers release of the node's value: finalize and cleanup
// must not run while mu is held, since they are arbitrary user code that may
// itself drop handles.
func (c *Collector) enqueueFreeLocked(n *node) {
	c.toBeFreed = append(c.toBeFreed, n)
}

// drainLocked runs every queued finalizer, then every queued cleanup, for
// one batch, then clears it; order matters within a batch, since a finalizer
// may legally read a peer's still-intact value but only if no cleanup has
// run yet. It loops: a cleanup or finalizer is arbitrary user code that may
// itself drop handles, and since the reentrancy guard is still set at that
// point, those drops cannot trigger a nested Collect — they only append to
// toBeFreed/roots. This loop picks up the new toBeFreed entries on its next
// iteration; new roots stay buffered until the next Collect, explicit or
// triggered by a later handle drop, runs mark/scan/collect over them. Must
// be called with mu held; it releases mu for the duration of each batch's
// user callbacks and reacquires it before returning.
func (c *Collector) drainLocked() {
	for len(c.toBeFreed) > 0 {
		batch := c.toBeFreed
		c.toBeFreed = nil
		c.mu.Unlock()
		for _, n := range batch {
			n.finalize()
			c.metrics.finalized.Add(1)
		}
		for _, n := range batch {
			n.cleanup()
			c.decrementWeak(n)
		}
		c.mu.Lock()
		c.metrics.collections.Add(1)
		c.metrics.freed.Add(uint64(len(batch)))
	}
}

// *************************************************************************
// Cycle collection algorithm.

// Collect runs one cycle-collection pass immediately, draining the
// suspected-roots buffer through mark_roots, scan_roots and collect_roots.
// It is a no-op if a pass is already running (the reentrancy guard): a
// finalizer that drops a handle belonging to an unrelated purple cycle must
// not recurse into a nested pass, it enqueues new suspected roots that a
// later, top-level call to Collect (or the next handle drop that crosses the
// threshold) will process. ctx is accepted so callers can thread
// cancellation/tracing through it, but the pass itself is synchronous and
// runs to completion once started.
func (c *Collector) Collect(ctx context.Context) {
	c.mu.Lock()
	if c.collecting {
		c.mu.Unlock()
		return
	}
	c.collecting = true
	c.cfg.logger.Debug("cycle collection starting", zap.Int("roots", len(c.roots)))

	c.markRootsLocked()
	c.scanRootsLocked()
	c.collectRootsLocked()

	c.drainLocked()
	c.collecting = false
	c.cfg.logger.Debug("cycle collection finished")
	c.mu.Unlock()
}

// markRootsLocked is Phase 1: walk a snapshot of roots, promoting surviving
// purple nodes to Gray (and subtracting their internal edges), and evicting
// the rest.
func (c *Collector) markRootsLocked() {
	snapshot := c.roots
	newRoots := snapshot[:0:0]
	for _, n := range snapshot {
		if n.colour == purple && n.strong > 0 {
			c.markGray(n)
			newRoots = append(newRoots, n)
		} else {
			n.buffered = false
			if n.colour == black && n.strong == 0 {
				c.enqueueFreeLocked(n)
			}
		}
	}
	c.roots = newRoots
}

// markGray implements mark_gray: colours n Gray and, for every child reached
// through trace, subtracts one from the child's strong count (the internal
// edge contributed by n) before recursing. After this pass, a surviving
// node's strong count reflects external references only. n's own strong
// count reaching zero partway through a traversal (a node with no remaining
// external references, still mid-cycle) must not stop the recursion into
// n's children, so this uses traceChildrenLocked rather than the
// strong-gated traceNode.
func (c *Collector) markGray(n *node) {
	if n.colour == gray {
		return
	}
	n.colour = gray
	c.traceChildrenLocked("mark_gray", n, func(t *node) {
		if c.cfg.debug && t.strong == 0 {
			panic(violation("mark_gray", t, errUseAfterFree))
		}
		t.strong--
		c.markGray(t)
	})
}

// scanRootsLocked is Phase 2: scan every surviving root.
func (c *Collector) scanRootsLocked() {
	for _, n := range c.roots {
		c.scan(n)
	}
}

// scan implements scan: a Gray node with strong > 0 has external references
// and is restored to Black (and its subtracted edges are restored) by
// scan_black; a Gray node with strong == 0 is provisionally White and its
// children are scanned too. The White branch always runs on a node whose
// own strong count is zero, so it must recurse through traceChildrenLocked,
// not the strong-gated traceNode, or a multi-node cycle beyond the
// originally-buffered root would never be reached.
func (c *Collector) scan(n *node) {
	if n.colour != gray {
		return
	}
	if n.strong > 0 {
		c.scanBlack(n)
		return
	}
	n.colour = white
	c.traceChildrenLocked("scan", n, c.scan)
}

// scanBlack implements scan_black: restores n and its reachable subgraph to
// Black, re-adding the strong count mark_gray subtracted.
func (c *Collector) scanBlack(n *node) {
	n.colour = black
	c.traceNode(n, func(t *node) {
		t.strong++
		if t.colour != black {
			c.scanBlack(t)
		}
	})
}

// collectRootsLocked is Phase 3: clear buffered on every root and sweep
// White subgraphs.
func (c *Collector) collectRootsLocked() {
	for _, n := range c.roots {
		n.buffered = false
		c.collectWhite(n)
	}
	c.roots = nil
}

// collectWhite implements collect_white: a White, unbuffered node is
// provisionally-dead garbage; it is promoted to Black (so a second visit
// through another path in the same pass is a no-op), its children are swept
// first, then it is queued for deferred free. Every node reaching this
// function has strong == 0 by construction, so sweeping its children must
// go through traceChildrenLocked rather than the strong-gated traceNode,
// which would otherwise make the recursion permanently dead code.
func (c *Collector) collectWhite(n *node) {
	if n.colour != white || n.buffered {
		return
	}
	n.colour = black
	c.traceChildrenLocked("collect_white", n, c.collectWhite)
	c.enqueueFreeLocked(n)
}

// traceNode invokes the node's Trace callback, skipping nodes whose strong
// count is already zero (they contribute no live edges and may already be
// queued for free) and guarding, in debug mode, against a Trace
// implementation that mutates collector state instead of only enumerating
// children. Used only by scan_black, which by construction only ever
// reaches a node with strong > 0; mark_gray, the White branch of scan, and
// collect_white can legitimately reach a node with strong == 0 mid-pass and
// use traceChildrenLocked instead, which carries no such gate.
func (c *Collector) traceNode(n *node, visit Visit) {
	if n.strong == 0 || n.trace == nil {
		return
	}
	if !c.cfg.debug {
		n.trace(visit)
		return
	}
	strongBefore, colourBefore := n.strong, n.colour
	n.trace(visit)
	if n.strong != strongBefore || n.colour != colourBefore {
		panic(violation("trace", n, errTraceMutation))
	}
}
