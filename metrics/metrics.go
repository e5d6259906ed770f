// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics instruments a valuecache.Cache with Prometheus
// histograms and counters, grounded on
// github.com/ava-labs/avalanchego/cache/metercacher's metrics.go (the
// direct ancestor of this module's teacher's now-placeholder metercacher
// package) and utils/metric/buckets.go's latency buckets.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// nanosecondsBuckets mirrors utils/metric.NanosecondsBuckets.
var nanosecondsBuckets = []float64{
	float64(100 * time.Nanosecond),
	float64(time.Microsecond),
	float64(10 * time.Microsecond),
	float64(100 * time.Microsecond),
	float64(time.Millisecond),
	float64(10 * time.Millisecond),
	float64(100 * time.Millisecond),
	float64(time.Second),
}

func newLatencyMetric(namespace, name string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      fmt.Sprintf("time (in ns) spent in %s", name),
		Buckets:   nanosecondsBuckets,
	})
}

func newCounterMetric(namespace, name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      fmt.Sprintf("# of times a %s occurred", name),
	})
}

// Cache holds the per-cache instrumentation for one value-type's Cache.
type Cache struct {
	Get, Set, Evict, Clear prometheus.Histogram
	Hit, Miss              prometheus.Counter
	Size, PortionFilled    prometheus.Gauge
}

// New creates and registers the metrics for one value-type under
// "valuecache_<valueType>". registerer must not be nil: New registers every
// collector with it. A cache created without a registerer never calls New
// and carries no instrumentation.
func New(valueType string, registerer prometheus.Registerer) (*Cache, error) {
	namespace := "valuecache_" + sanitize(valueType)

	c := &Cache{
		Get:   newLatencyMetric(namespace, "get"),
		Set:   newLatencyMetric(namespace, "set"),
		Evict: newLatencyMetric(namespace, "evict"),
		Clear: newLatencyMetric(namespace, "clear"),
		Hit:   newCounterMetric(namespace, "hit"),
		Miss:  newCounterMetric(namespace, "miss"),
		Size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "size",
			Help:      "number of entries currently cached",
		}),
		PortionFilled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portion_filled",
			Help:      "fraction of max size currently occupied",
		}),
	}

	collectors := []prometheus.Collector{c.Get, c.Set, c.Evict, c.Clear, c.Hit, c.Miss, c.Size, c.PortionFilled}
	for _, col := range collectors {
		if err := registerer.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveLatency records a duration against h in nanoseconds, matching the
// unit newLatencyMetric's buckets and help text assume.
func ObserveLatency(h prometheus.Histogram, d time.Duration) {
	h.Observe(float64(d))
}

func sanitize(valueType string) string {
	out := make([]rune, 0, len(valueType))
	for _, r := range valueType {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
