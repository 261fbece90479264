// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "testing"

// TestStrongCountRoundTrip checks the round-trip invariant of spec.md §8:
// strong_count after balanced increment/decrement pairs is unchanged.
func TestStrongCountRoundTrip(t *testing.T) {
	c := New()
	h := NewStrong(c, 7, nil, nil)
	defer h.Close()

	before := h.StrongCount()
	clones := make([]Strong[int], 5)
	for i := range clones {
		clones[i] = h.Clone()
	}
	for i := range clones {
		clones[i].Close()
	}
	if after := h.StrongCount(); after != before {
		t.Errorf("strong count after balanced clone/close pairs: expected %d, actual %d", before, after)
	}
}

// TestDowngradeUpgradeLiveNode checks the first half of the downgrade/
// upgrade invariant: on a live node, upgrade returns a strong handle to the
// same node.
func TestDowngradeUpgradeLiveNode(t *testing.T) {
	c := New()
	h := NewStrong(c, "alive", nil, nil)
	defer h.Close()

	w := h.Downgrade()
	defer w.Close()

	up, ok := w.Upgrade()
	if !ok {
		t.Fatal("upgrade on a live node must succeed")
	}
	defer up.Close()
	if up.n != h.n {
		t.Errorf("upgrade returned a handle to a different node")
	}
	if *up.Get() != "alive" {
		t.Errorf("upgrade returned a handle to the wrong value: %q", *up.Get())
	}
}

// TestDowngradeUpgradeAfterDestruction checks the other half: once every
// strong handle is gone, upgrade on the surviving weak handle returns empty.
func TestDowngradeUpgradeAfterDestruction(t *testing.T) {
	c := New()
	h := NewStrong(c, 0, nil, nil)
	w := h.Downgrade()
	defer w.Close()

	h.Close()
	if _, ok := w.Upgrade(); ok {
		t.Error("upgrade after the last strong handle closed must return empty")
	}
}

// TestQuiescentColourInvariant checks the first quantified invariant of
// spec.md §8 for a node at collector quiescence: colour is Black or Purple,
// and buffered holds iff the node is in the roots slice.
func TestQuiescentColourInvariant(t *testing.T) {
	c := New(WithCollectThreshold(1000)) // suppress the auto-collect this test wants to observe manually
	a := NewStrong(c, 0, nil, nil)
	b := a.Clone()
	b.Close() // leaves a.n purple and buffered, below the raised threshold

	n := a.n
	if n.colour != black && n.colour != purple {
		t.Errorf("quiescent node colour must be Black or Purple, got %s", n.colour)
	}
	inRoots := false
	for _, r := range c.roots {
		if r == n {
			inRoots = true
		}
	}
	if n.buffered != inRoots {
		t.Errorf("buffered(%v) does not match membership in roots(%v)", n.buffered, inRoots)
	}
	a.Close()
}
