// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

/*
Package rcgc implements a synchronous, cycle-collecting, reference-counted
memory manager following the algorithm of Bacon, Attanasio, Rajan and Smith,
"A Pure Reference Counting Garbage Collector" (2001). It gives Go programs a
managed pointer, called a handle, that behaves like a reference-counted smart
pointer but additionally reclaims reference cycles, without a tracing
collector or a background goroutine.

Basics

A value is wrapped in a handle with NewStrong, which allocates a node: the
bookkeeping record that tracks how many strong and weak handles point at the
value, and a colour used only during cycle collection. Cloning a handle
increments the node's strong count; closing one decrements it. A decrement
that reaches zero frees the value immediately, exactly like plain reference
counting. A decrement that leaves the count positive marks the node purple, a
suspected cycle root, and files it on the Collector's roots buffer.

Cyclic garbage, a ring of objects with no external references, never reaches a
strong count of zero on its own: every node in the ring is still pointed to by
another node in the ring. The Collector periodically walks the suspected
roots, subtracts internal (intra-cycle) references from each node's count
using the caller-supplied Trace function, and any node whose count is then
zero is unreachable from outside the cycle and is freed.

Supplying a Trace function

Trace is the one piece of information the Collector cannot infer on its own:
given a value, it must invoke a visitor function once for every Strong handle
the value holds. Built-in Trace implementations are provided for slices and
maps of handles (TraceSlice, TraceMap) and for a single handle field
(TraceHandle); composite types typically build their Trace by calling these
in sequence.

Concurrency model

A Collector guards its suspected-roots buffer, reentrancy flag, and
deferred-free list with a single mutex; handle operations from goroutines
that share one Collector are safe, but a Strong or Weak handle created
against one Collector must not be dropped against another one (handles are
scoped to the Collector that created them, not migrated across instances). A
package-level default Collector, returned by Default, is sufficient for most
programs; construct additional ones with New when isolation (for example one
Collector per worker goroutine) is desired.

Automatic memory management

Cycle collection is folded into ordinary handle destruction: a call to
(*Strong[T]).Close normally triggers a collection pass on the owning
Collector. Handles additionally carry a runtime finalizer as a safety net so
that a leaked handle, one whose Close is never called, is not lost forever;
relying on that path for timely reclamation is discouraged since the Go
runtime schedules finalizers on its own tracing collector's cadence, not
this package's.
*/
package rcgc
