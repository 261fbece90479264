// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

// Command rcgcdemo builds a handful of the scenarios from the rcgc test
// suite as a small, runnable demonstration: a reference cycle that only a
// collection pass can reclaim, a long acyclic chain that plain refcounting
// reclaims on its own, and a stats dump showing the collector's bookkeeping
// after each run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dalzilio/rcgc"
)

var (
	debug bool
	col   *rcgc.Collector
	log   *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rcgcdemo",
		Short: "Exercise the rcgc cycle-collecting handle library",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if debug {
				log, err = zap.NewDevelopment()
			} else {
				log, err = zap.NewProduction()
			}
			if err != nil {
				return err
			}
			col = rcgc.New(rcgc.WithDebug(debug), rcgc.WithLogger(log))
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable collector contract assertions and verbose logging")
	root.AddCommand(ringCmd(), chainCmd(), statsCmd())
	return root
}

// ringNode is a minimal cyclic structure: each node holds a Strong handle to
// the next one, and the last closes the ring back to the first.
type ringNode struct {
	name string
	next rcgc.Strong[ringNode]
}

func ringCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "Build a reference cycle and collect it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 2 {
				return fmt.Errorf("ring size must be at least 2")
			}
			// values[i] backs node i's trace closure: the closure is fixed at
			// construction time, before next is wired up, so it reads the
			// live field through this pointer rather than a captured copy.
			values := make([]*ringNode, size)
			nodes := make([]rcgc.Strong[ringNode], size)
			for i := range nodes {
				idx := i
				trace := func(visit rcgc.Visit) {
					rcgc.TraceHandle(values[idx].next)(visit)
				}
				nodes[i] = rcgc.NewStrong(col, ringNode{name: fmt.Sprintf("ring-%d", i)}, trace, nil)
				values[i] = nodes[i].Get()
			}
			for i := range nodes {
				values[i].next = nodes[(i+1)%size].Ref()
			}
			for i := range nodes {
				nodes[i].Close()
			}
			printStats(cmd, "after closing all external references to the ring")
			col.Collect(cmd.Context())
			printStats(cmd, "after an explicit collection pass")
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 3, "number of nodes in the ring")
	return cmd
}

// chainLink is an acyclic structure: a linked list, reclaimed entirely by
// plain refcounting as soon as the head is closed.
type chainLink struct {
	depth int
	next  rcgc.Strong[chainLink]
}

func chainCmd() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Build a long acyclic chain and drop the head",
		RunE: func(cmd *cobra.Command, args []string) error {
			var head rcgc.Strong[chainLink]
			for i := 0; i < length; i++ {
				// IntoRef moves head's single reference into the new link's
				// field instead of adding a second one, so no node in the
				// chain ever has more than one owner and the suspected-roots
				// buffer is never touched while it is built.
				ref := head.IntoRef()
				link := rcgc.NewStrong(col, chainLink{depth: i, next: ref}, rcgc.TraceHandle(ref), nil)
				head = link
			}
			printStats(cmd, "before closing the head of the chain")
			head.Close()
			printStats(cmd, "after closing the head (no cycle collection pass needed)")
			return nil
		},
	}
	cmd.Flags().IntVar(&length, "length", 1000, "number of links in the chain")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current collector stats snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStats(cmd, "current")
			return nil
		},
	}
}

func printStats(cmd *cobra.Command, label string) {
	s := col.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: live=%d suspected_roots=%d collections=%d freed=%d finalized=%d\n",
		label, s.LiveNodes, s.SuspectedRoots, s.Collections, s.NodesFreed, s.Finalized)
}
