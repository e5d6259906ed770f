// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package valuecache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luxfi/valuecache/changeevent"
	"github.com/luxfi/valuecache/listener"
)

// cacheHandle lets the package-level registry operate on every live
// *Cache[V] without knowing each one's V, for ClearAllCaches.
type cacheHandle interface {
	clearAllLocked(ctx context.Context) error
	GetValueType() string
}

var global = struct {
	mu     sync.Mutex
	caches map[string]cacheHandle
	agg    *changeevent.Aggregator
	reg    *listener.Registry
	logger *zap.Logger
}{
	caches: make(map[string]cacheHandle),
	logger: zap.NewNop(),
}

func init() {
	global.reg = listener.New()
	global.agg = changeevent.New(global.reg.Dispatch)
}

// SetLogger installs the *zap.Logger used for the package's internal
// diagnostics (alternate-key conflicts, dropped change-handler errors). A
// nil logger installs a no-op logger. Caches created and handlers registered
// before the call keep the logger that was installed when they were created.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	global.mu.Lock()
	defer global.mu.Unlock()
	global.logger = logger
}

// GetCache returns the process-wide singleton Cache for valueType, creating
// it with opts on first use. A value-type is bound to exactly one V for the
// lifetime of the process: requesting it again with a different V panics,
// since Go generics cannot recover a *Cache[V] for the wrong V from
// type-erased storage.
func GetCache[V any](valueType string, opts ...Option) *Cache[V] {
	global.mu.Lock()
	defer global.mu.Unlock()

	if existing, ok := global.caches[valueType]; ok {
		c, ok := existing.(*Cache[V])
		if !ok {
			panic(fmt.Sprintf("valuecache: value-type %q already registered with a different value type", valueType))
		}
		return c
	}

	cfg := newCacheConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c, err := newCache[V](valueType, global.agg, global.logger, cfg)
	if err != nil {
		panic(fmt.Sprintf("valuecache: creating cache for value-type %q: %v", valueType, err))
	}
	global.caches[valueType] = c
	return c
}

// ClearAllCaches clears every registered cache's entries inside one
// transaction, so listeners that care about multiple value-types see a
// single Record describing the whole sweep.
func ClearAllCaches(ctx context.Context) error {
	global.mu.Lock()
	handles := make([]cacheHandle, 0, len(global.caches))
	for _, h := range global.caches {
		handles = append(handles, h)
	}
	agg := global.agg
	global.mu.Unlock()

	return agg.Transaction(ctx, func(ctx context.Context) error {
		for _, h := range handles {
			if err := h.clearAllLocked(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Transaction batches every change recorded by work, across however many
// value-types it touches, into one Record dispatched when the outermost
// Transaction call returns.
func Transaction(ctx context.Context, work func(context.Context) error) error {
	global.mu.Lock()
	agg := global.agg
	global.mu.Unlock()
	return agg.Transaction(ctx, work)
}

// RegisterChangeHandler subscribes handler to change records. An omitted
// valueTypes matches every value-type; an explicit empty valueTypes matches
// none (see SPEC_FULL.md §9).
func RegisterChangeHandler(handler changeevent.Handler, valueTypes ...string) *listener.Handle {
	global.mu.Lock()
	reg := global.reg
	logger := global.logger
	global.mu.Unlock()

	wrapped := func(rec changeevent.Record) error {
		err := handler(rec)
		if err != nil {
			logger.Warn("change handler returned an error", zap.Error(err))
		}
		return err
	}

	return reg.Register(wrapped, valueTypes)
}
