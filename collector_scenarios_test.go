// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ringEntity is a self-referential value used to build the ring scenarios:
// next is wired up after construction, exactly like cmd/rcgcdemo's ringNode.
type ringEntity struct {
	id   int
	next Strong[ringEntity]
	live *int
}

func newRingTracer(values []*ringEntity, idx int) Trace {
	return func(visit Visit) {
		TraceHandle(values[idx].next)(visit)
	}
}

// buildRing allocates size nodes wired into a cycle, incrementing *live once
// per node and giving node idx the finalizer returned by finalizeOf (none if
// finalizeOf is nil), and returns the external handles.
func buildRing(t *testing.T, c *Collector, size int, live *int, finalizeOf func(idx int, values []*ringEntity) Finalize) []Strong[ringEntity] {
	t.Helper()
	values := make([]*ringEntity, size)
	nodes := make([]Strong[ringEntity], size)
	for i := 0; i < size; i++ {
		idx := i
		var finalize Finalize
		if finalizeOf != nil {
			finalize = finalizeOf(idx, values)
		}
		nodes[i] = NewStrong(c, ringEntity{id: idx, live: live}, newRingTracer(values, idx), finalize)
		values[i] = nodes[i].Get()
		*live++
	}
	for i := 0; i < size; i++ {
		values[i].next = nodes[(i+1)%size].Ref()
	}
	return nodes
}

// TestThreeNodeRing is scenario 1 of spec.md §8: a three-node ring collected
// entirely by a single cycle-collection pass once every external handle is
// dropped.
func TestThreeNodeRing(t *testing.T) {
	c := New()
	live := 0
	nodes := buildRing(t, c, 3, &live, func(idx int, values []*ringEntity) Finalize {
		return func() { live-- }
	})
	for i := range nodes {
		nodes[i].Close()
	}
	c.Collect(context.Background())
	assert.Equal(t, 0, live, "expected every ring value to be destroyed")
	assert.Equal(t, 0, c.suspectedRoots())
}

// TestRingFinalizersTouchPeers is scenario 2 of spec.md §8: a finalizer that
// reads its successor's still-intact value during the finalize-all phase.
func TestRingFinalizersTouchPeers(t *testing.T) {
	c := New()
	live := 0
	finalizeCount := 0
	touched := make([]int, 3)
	nodes := buildRing(t, c, 3, &live, func(idx int, values []*ringEntity) Finalize {
		return func() {
			live--
			finalizeCount++
			// finalize-all-then-cleanup-all guarantees the successor's
			// value is still constructed at this point.
			touched[values[idx].next.Get().id]++
		}
	})
	for i := range nodes {
		nodes[i].Close()
	}
	c.Collect(context.Background())
	require.Equal(t, 0, live)
	require.Equal(t, 3, finalizeCount)
	for i, n := range touched {
		assert.Equalf(t, 1, n, "node %d should have been touched by exactly one peer finalizer", i)
	}
}

// chainEntity is an acyclic linked-list value used for the 1000-node chain
// scenario.
type chainEntity struct {
	depth int
	next  Strong[chainEntity]
}

// TestLongAcyclicChainNeverBuffersRoots is scenario 3 of spec.md §8: dropping
// the head of a long acyclic chain destroys every node through plain
// refcounting, and the suspected-roots buffer never receives an entry.
func TestLongAcyclicChainNeverBuffersRoots(t *testing.T) {
	const length = 1000
	c := New()
	destroyed := 0
	maxRootsSeen := 0

	var head Strong[chainEntity]
	for i := 0; i < length; i++ {
		ref := head.IntoRef()
		link := NewStrong(c, chainEntity{depth: i, next: ref}, TraceHandle(ref), func() { destroyed++ })
		head = link
		if r := c.suspectedRoots(); r > maxRootsSeen {
			maxRootsSeen = r
		}
	}
	head.Close()
	if r := c.suspectedRoots(); r > maxRootsSeen {
		maxRootsSeen = r
	}

	assert.Equal(t, length, destroyed)
	assert.Equal(t, 0, maxRootsSeen, "an acyclic chain must never populate the suspected-roots buffer")
}

// TestUpgradeRaceFreesNode is scenario 4 of spec.md §8, and the regression
// test for the FIXME design notes call out: the node record itself must be
// freed on the terminal weak-decrement, even though the value was already
// destroyed earlier by the last strong-handle drop.
func TestUpgradeRaceFreesNode(t *testing.T) {
	c := New()
	destroyed := false
	strong := NewStrong(c, 42, nil, func() { destroyed = true })
	weak := strong.Downgrade()

	strong.Close()
	assert.True(t, destroyed, "value must be destroyed once the last strong handle drops")

	_, ok := weak.Upgrade()
	assert.False(t, ok, "upgrade must fail once strong count has reached zero")

	require.Equal(t, uint32(1), weak.n.weak, "the node record is kept alive by the last weak handle")
	weak.Close()
	// decrementWeak has now run with weak reaching zero; there is no longer
	// a *node for any handle to reach, which is the behaviour the original
	// FIXME variant skipped.
	assert.Equal(t, 0, c.Stats().LiveNodes, "the node record must be freed on the terminal weak decrement")
}

// TestReentrantDropCollectsBothCycles is scenario 5 of spec.md §8: a
// finalizer that drops a handle into an unrelated purple cycle must not
// recurse into a nested collection pass, and both cycles must be fully
// reclaimed by the time the outer Close returns (draining newly queued
// frees) or after the handle operation that follows it notices the
// newly-buffered root.
func TestReentrantDropCollectsBothCycles(t *testing.T) {
	c := New()
	liveA, liveB := 0, 0

	// Cycle B is built first so its external handles exist when cycle A's
	// finalizer fires.
	bNodes := buildRing(t, c, 2, &liveB, func(idx int, values []*ringEntity) Finalize {
		return func() { liveB-- }
	})

	var bHandles [2]Strong[ringEntity]
	copy(bHandles[:], bNodes)

	aNodes := buildRing(t, c, 2, &liveA, func(idx int, values []*ringEntity) Finalize {
		return func() {
			liveA--
			if idx == 0 {
				// dropping B's external handles from inside A's finalizer:
				// the reentrancy guard must defer B's collection rather
				// than recursing.
				for i := range bHandles {
					bHandles[i].Close()
				}
			}
		}
	})

	for i := range aNodes {
		aNodes[i].Close()
	}
	c.Collect(context.Background())
	assert.Equal(t, 0, liveA, "cycle A must be fully reclaimed by the outer collection pass")

	// Cycle B's collection may have been deferred to a subsequent pass; a
	// second explicit Collect (the "next quiescent handle operation") must
	// finish the job.
	c.Collect(context.Background())
	assert.Equal(t, 0, liveB, "cycle B must be reclaimed by the time collection quiesces")
}

// TestPurpleWithoutCycle is scenario 6 of spec.md §8: a -> b with no cycle.
// a has no other referrer, so dropping its external handle destroys it
// immediately through plain refcounting (release walks a's one child,
// decrementing b). b, still externally held, only becomes a suspected root;
// dropping its own external handle afterward destroys it too, and the one
// collection pass triggered along the way finds nothing actually cyclic.
func TestPurpleWithoutCycle(t *testing.T) {
	c := New()
	destroyedA, destroyedB := false, false

	b := NewStrong(c, 0, nil, func() { destroyedB = true })
	type holder struct {
		next Strong[int]
	}
	var av *holder
	a := NewStrong(c, holder{}, func(visit Visit) {
		TraceHandle(av.next)(visit)
	}, func() { destroyedA = true })
	av = a.Get()
	av.next = b.Ref()

	a.Close()
	assert.True(t, destroyedA, "a has no other referrer, so its release is immediate plain refcounting")
	assert.False(t, destroyedB, "b is still externally held")

	b.Close()
	c.Collect(context.Background())
	assert.True(t, destroyedA)
	assert.True(t, destroyedB)
}
