// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// collectorMetrics holds the live counters a Collector updates as it runs;
// it backs both the synchronous CollectorStats snapshot and the
// prometheus.Collector export below. Counters use atomics rather than the
// Collector's own mutex, so updating them takes no lock; reading a Stats
// snapshot (and so a Prometheus scrape) still takes the mutex briefly to read
// the live count and the roots buffer length.
type collectorMetrics struct {
	live          atomic.Int64  // node records currently allocated (weak > 0)
	rootsBuffered atomic.Uint64 // cumulative count of nodes ever buffered as suspected roots
	collections   atomic.Uint64 // cumulative count of collection passes run
	freed         atomic.Uint64 // cumulative count of nodes freed (refcount or cycle)
	finalized     atomic.Uint64 // cumulative count of finalizers invoked
}

func newCollectorMetrics(c *Collector, namespace string) *collectorMetrics {
	return &collectorMetrics{}
}

// CollectorStats is a point-in-time snapshot of a Collector's bookkeeping.
type CollectorStats struct {
	LiveNodes      int
	SuspectedRoots int
	Collections    uint64
	NodesFreed     uint64
	Finalized      uint64
}

// Stats returns a snapshot of c's current bookkeeping.
func (c *Collector) Stats() CollectorStats {
	return CollectorStats{
		LiveNodes:      c.liveNodes(),
		SuspectedRoots: c.suspectedRoots(),
		Collections:    c.metrics.collections.Load(),
		NodesFreed:     c.metrics.freed.Load(),
		Finalized:      c.metrics.finalized.Load(),
	}
}

// PrometheusExporter adapts a Collector's Stats snapshot to the
// prometheus.Collector interface. It is a separate type, not a method set on
// Collector itself, because Collector already exports a method named Collect
// with an incompatible signature (the cycle-collection trigger, Collect(ctx
// context.Context)); Prometheus's own Collect(chan<- prometheus.Metric)
// cannot coexist with it on one type.
type PrometheusExporter struct {
	c *Collector

	descLiveNodes      *prometheus.Desc
	descSuspectedRoots *prometheus.Desc
	descCollections    *prometheus.Desc
	descNodesFreed     *prometheus.Desc
}

// NewPrometheusExporter wraps c for registration with a prometheus.Registerer,
// e.g. prometheus.MustRegister(rcgc.NewPrometheusExporter(c)). Metric names
// are prefixed with c's configured metrics namespace (WithMetricsNamespace),
// "rcgc" by default.
func NewPrometheusExporter(c *Collector) *PrometheusExporter {
	ns := c.cfg.metricsNamespace
	fqName := func(name string) string {
		return prometheus.BuildFQName(ns, "", name)
	}
	return &PrometheusExporter{
		c: c,
		descLiveNodes: prometheus.NewDesc(
			fqName("live_nodes"), "Number of node records currently allocated.", nil, nil),
		descSuspectedRoots: prometheus.NewDesc(
			fqName("suspected_roots"), "Number of nodes currently buffered as suspected cycle roots.", nil, nil),
		descCollections: prometheus.NewDesc(
			fqName("collections_total"), "Total number of cycle collection passes run.", nil, nil),
		descNodesFreed: prometheus.NewDesc(
			fqName("nodes_freed_total"), "Total number of nodes freed, by plain refcounting or cycle collection.", nil, nil),
	}
}

var _ prometheus.Collector = (*PrometheusExporter)(nil)

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.descLiveNodes
	ch <- e.descSuspectedRoots
	ch <- e.descCollections
	ch <- e.descNodesFreed
}

// Collect implements prometheus.Collector.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	stats := e.c.Stats()
	ch <- prometheus.MustNewConstMetric(e.descLiveNodes, prometheus.GaugeValue, float64(stats.LiveNodes))
	ch <- prometheus.MustNewConstMetric(e.descSuspectedRoots, prometheus.GaugeValue, float64(stats.SuspectedRoots))
	ch <- prometheus.MustNewConstMetric(e.descCollections, prometheus.CounterValue, float64(stats.Collections))
	ch <- prometheus.MustNewConstMetric(e.descNodesFreed, prometheus.CounterValue, float64(stats.NodesFreed))
}
