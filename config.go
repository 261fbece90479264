// Copyright (c) 2021 Silvano DAL ZILIO
//
// MIT License

package rcgc

import "go.uber.org/zap"

// _DEFAULTCOLLECTTHRESHOLD is the default number of buffered suspected roots
// that triggers an automatic collection pass: one, so a decrement that
// produces a purple root always triggers immediately. Hosts that want to
// batch more work per pass can raise this with WithCollectThreshold.
const _DEFAULTCOLLECTTHRESHOLD int = 1

// config stores the values of the different parameters of a Collector,
// populated through functional options passed to New.
type config struct {
	collectThreshold int
	debug            bool
	logger           *zap.Logger
	metricsNamespace string
}

func makeconfig() *config {
	return &config{
		collectThreshold: _DEFAULTCOLLECTTHRESHOLD,
		logger:           zap.NewNop(),
		metricsNamespace: "rcgc",
	}
}

// Option configures a Collector constructed with New.
type Option func(*config)

// WithCollectThreshold is a configuration option. Used as a parameter in New,
// it sets the number of buffered suspected roots that must accumulate before
// a strong-handle drop triggers an automatic collection pass. The default
// value, one, collects on every destruction that produces a suspected root;
// raising it trades prompt reclamation of cycles for fewer, larger collection
// passes. A value less than one is treated as one.
func WithCollectThreshold(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.collectThreshold = n
	}
}

// WithDebug is a configuration option. Used as a parameter in New, it turns
// on the collector's extra runtime assertions (use-after-free detection in
// mark_gray, trace-mutation detection) at the cost of additional checks
// around every trace callback the collector invokes.
func WithDebug(on bool) Option {
	return func(c *config) {
		c.debug = on
	}
}

// WithLogger is a configuration option. Used as a parameter in New, it
// attaches a *zap.Logger that the Collector uses to report the start and end
// of each collection pass (at Debug level). Contract violations are not
// logged; they panic. The default is a no-op logger, so the dependency costs
// nothing until a host opts in.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsNamespace is a configuration option. Used as a parameter in New,
// it sets the Prometheus metric namespace that NewPrometheusExporter uses
// for the Collector's metric names. The default is "rcgc".
func WithMetricsNamespace(ns string) Option {
	return func(c *config) {
		if ns != "" {
			c.metricsNamespace = ns
		}
	}
}
