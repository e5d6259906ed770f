// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package valuecache

import "github.com/prometheus/client_golang/prometheus"

// defaultMaxSize is the default cap applied when GetCache creates a cache
// without WithMaxSize.
const defaultMaxSize = 500

type cacheConfig struct {
	maxSize              int
	dispatchLRURemoves   bool
	dispatchClearRemoves bool
	registerer           prometheus.Registerer
}

func newCacheConfig() *cacheConfig {
	return &cacheConfig{maxSize: defaultMaxSize}
}

// Option configures a Cache at the time it is first created by GetCache.
// Options passed to later GetCache calls for an already-created value-type
// are ignored, matching the per-value-type singleton lifecycle in
// spec.md §3.
type Option func(*cacheConfig)

// WithMaxSize sets the cache's entry cap. n <= 0 means unbounded.
func WithMaxSize(n int) Option {
	return func(c *cacheConfig) { c.maxSize = n }
}

// WithDispatchLRURemoves enables recording an lruRemove change event for
// every entry evicted by capacity pressure.
func WithDispatchLRURemoves(enabled bool) Option {
	return func(c *cacheConfig) { c.dispatchLRURemoves = enabled }
}

// WithDispatchClearRemoves enables recording a clearRemove change event for
// every entry dropped by Clear.
func WithDispatchClearRemoves(enabled bool) Option {
	return func(c *cacheConfig) { c.dispatchClearRemoves = enabled }
}

// WithMetrics registers Prometheus instrumentation for the cache under
// registerer. Omitted by default: instrumentation has a real (if small)
// per-operation cost and spec.md's Cache has no metrics field.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(c *cacheConfig) { c.registerer = registerer }
}
