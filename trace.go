// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

// TraceHandle returns a Trace that visits exactly the node owned by h — the
// identity case for a struct field that is itself a single Strong[T].
func TraceHandle[T any](h Strong[T]) Trace {
	return func(visit Visit) {
		if n := h.node(); n != nil {
			visit(n)
		}
	}
}

// TraceSlice returns a Trace that visits every handle in an ordered sequence
// of Strong[T], in order. Use it for a struct field of type []Strong[T].
func TraceSlice[T any](hs []Strong[T]) Trace {
	return func(visit Visit) {
		for _, h := range hs {
			if n := h.node(); n != nil {
				visit(n)
			}
		}
	}
}

// TraceMap returns a Trace that visits every handle value in a mapping,
// ignoring keys (which never themselves own a strong edge). Use it for a
// struct field of type map[K]Strong[T].
func TraceMap[K comparable, T any](m map[K]Strong[T]) Trace {
	return func(visit Visit) {
		for _, h := range m {
			if n := h.node(); n != nil {
				visit(n)
			}
		}
	}
}

// ComposeTrace returns a Trace that runs each of traces in sequence against
// the same visitor, for a value whose outgoing edges are spread across
// several fields (for example a struct with both a single Strong[T] "next"
// field and a []Strong[T] "children" field).
func ComposeTrace(traces ...Trace) Trace {
	return func(visit Visit) {
		for _, t := range traces {
			if t != nil {
				t(visit)
			}
		}
	}
}
