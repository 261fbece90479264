// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

// colour is the protocol used by the mark/scan/collect passes of the cycle
// collector. Outside of a collection pass, a node is always Black or Purple;
// Gray and White only appear transiently while a pass is running and no code
// outside collector.go should inspect them.
type colour uint8

const (
	// black is the colour of a live node, or a node whose status has not yet
	// been decided. It is also the colour every node is given on increment.
	black colour = iota
	// purple marks a node as a suspected cycle root: a decrement left its
	// strong count positive, so it can no longer be shown alive by plain
	// refcounting alone.
	purple
	// gray marks a node currently being traced by mark_roots, with its
	// strong count temporarily reduced by its internal incoming edges.
	gray
	// white marks a node provisionally dead: traced with strong count zero.
	// A node leaves white only by being promoted back to black, either by
	// scan_black (it turned out to be live) or collect_white (it is freed).
	white
)

func (c colour) String() string {
	switch c {
	case black:
		return "black"
	case purple:
		return "purple"
	case gray:
		return "gray"
	case white:
		return "white"
	default:
		return "unknown"
	}
}
