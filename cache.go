// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package valuecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/valuecache/changeevent"
	"github.com/luxfi/valuecache/internal/altkey"
	"github.com/luxfi/valuecache/internal/orderedmap"
	"github.com/luxfi/valuecache/metrics"
)

// Cache is the per-value-type facade binding an OrderedMap, an AltKeyIndex,
// and the process-wide ChangeAggregator.
type Cache[V any] struct {
	valueType string
	agg       *changeevent.Aggregator
	logger    *zap.Logger

	mu            sync.Mutex
	om            *orderedmap.Map[V]
	alt           *altkey.Index
	keyAltKeys    map[string]map[string]struct{}
	pending       map[string]chan AsyncEntryResult[V]
	dispatchLRU   bool
	dispatchClear bool
	getter        EntryGetter[V]
	asyncGetter   AsyncEntryGetter[V]
	metrics       *metrics.Cache

	// evictBuf accumulates handleEvictLocked's notifications for the
	// orderedmap call currently in flight. Callers reset it to length 0
	// immediately before the call and read it back immediately after,
	// still under c.mu.
	evictBuf []evictedRecord[V]
}

// evictedRecord is one entry's state as handleEvictLocked last saw it,
// captured before its alternate-key bindings are torn down.
type evictedRecord[V any] struct {
	key   string
	value V
	alt   map[string]struct{}
}

func newCache[V any](valueType string, agg *changeevent.Aggregator, logger *zap.Logger, cfg *cacheConfig) (*Cache[V], error) {
	c := &Cache[V]{
		valueType:     valueType,
		agg:           agg,
		logger:        logger,
		alt:           altkey.New(valueType),
		keyAltKeys:    make(map[string]map[string]struct{}),
		pending:       make(map[string]chan AsyncEntryResult[V]),
		dispatchLRU:   cfg.dispatchLRURemoves,
		dispatchClear: cfg.dispatchClearRemoves,
	}
	c.om = orderedmap.NewWithOnEvict[V](cfg.maxSize, c.handleEvictLocked)
	if cfg.registerer != nil {
		m, err := metrics.New(valueType, cfg.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}
	return c, nil
}

// handleEvictLocked is orderedmap's onEvict callback. It runs synchronously,
// under c.mu, from inside whichever Map method (Set, Delete, SetMaxSize,
// Clear) is currently dropping ev. It retires the entry's alternate-key
// bindings and any in-flight async getter for it, then buffers the entry so
// the caller can turn it into a change event once it knows which kind
// applies.
func (c *Cache[V]) handleEvictLocked(ev orderedmap.Evicted[V]) {
	alt := c.keyAltKeys[ev.Key]
	delete(c.keyAltKeys, ev.Key)
	c.alt.UnbindAll(alt)
	delete(c.pending, ev.Key)
	c.evictBuf = append(c.evictBuf, evictedRecord[V]{key: ev.Key, value: ev.Value, alt: cloneSet(alt)})
}

// checkCollisionsLocked reports the first alternate-key conflict that
// binding e would introduce, in either direction: a new alternate key
// already resolving to a different primary, a new alternate key equal to
// another entry's existing primary key, or e's own primary key already
// bound as another entry's alternate key. Callers hold c.mu.
func (c *Cache[V]) checkCollisionsLocked(e Entry[V]) *AlternateKeyConflictError {
	for altKey := range e.AlternateKeys {
		if primary, ok := c.alt.Resolve(altKey); ok && primary != e.Key {
			return &AlternateKeyConflictError{
				ValueType:       c.valueType,
				AlternateKey:    altKey,
				OfferingPrimary: e.Key,
				ExistingPrimary: primary,
			}
		}
		if altKey != e.Key && c.om.Has(altKey) {
			return &AlternateKeyConflictError{
				ValueType:       c.valueType,
				AlternateKey:    altKey,
				OfferingPrimary: e.Key,
				ExistingPrimary: altKey,
			}
		}
	}
	if primary, ok := c.alt.Resolve(e.Key); ok && primary != e.Key {
		return &AlternateKeyConflictError{
			ValueType:       c.valueType,
			AlternateKey:    e.Key,
			OfferingPrimary: e.Key,
			ExistingPrimary: primary,
		}
	}
	return nil
}

// GetValueType returns the cache's immutable value-type identifier.
func (c *Cache[V]) GetValueType() string {
	return c.valueType
}

// Set is equivalent to SetAll(ctx, []Entry[V]{entry}).
func (c *Cache[V]) Set(ctx context.Context, entry Entry[V]) error {
	return c.SetAll(ctx, []Entry[V]{entry})
}

// SetAll upserts every entry, wrapped in one transaction. entries must be
// non-nil; a nil slice returns a *ShapeError.
func (c *Cache[V]) SetAll(ctx context.Context, entries []Entry[V]) error {
	if entries == nil {
		return &ShapeError{Operation: "SetAll"}
	}
	start := time.Now()
	err := c.agg.Transaction(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			if err := c.setOne(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if c.metrics != nil {
		metrics.ObserveLatency(c.metrics.Set, time.Since(start))
	}
	return err
}

// SetAsync defers Set's body to a goroutine and returns a channel that
// receives the resulting error once the body has run. This is cooperative
// suspension (spec.md §5), not parallel mutation: callers that need the
// mutation visible before continuing should read from the channel before
// issuing another mutation against the same cache.
func (c *Cache[V]) SetAsync(ctx context.Context, entry Entry[V]) <-chan error {
	return c.SetAllAsync(ctx, []Entry[V]{entry})
}

// SetAllAsync is SetAll's asynchronous counterpart; see SetAsync.
func (c *Cache[V]) SetAllAsync(ctx context.Context, entries []Entry[V]) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- c.SetAll(ctx, entries)
		close(out)
	}()
	return out
}

func (c *Cache[V]) setOne(ctx context.Context, e Entry[V]) error {
	type pendingEvent struct {
		kind   changeevent.Kind
		change changeevent.EntryChange
	}

	c.mu.Lock()
	if conflict := c.checkCollisionsLocked(e); conflict != nil {
		c.mu.Unlock()
		c.logger.Debug("alternate key conflict",
			zap.String("value_type", c.valueType),
			zap.String("alternate_key", conflict.AlternateKey),
			zap.String("offering_primary", conflict.OfferingPrimary),
			zap.String("existing_primary", conflict.ExistingPrimary),
		)
		return conflict
	}

	c.evictBuf = c.evictBuf[:0]
	c.om.Set(e.Key, e.Value)
	evicted := append([]evictedRecord[V](nil), c.evictBuf...)

	merged := c.keyAltKeys[e.Key]
	if merged == nil {
		merged = make(map[string]struct{}, len(e.AlternateKeys))
	}
	for ak := range e.AlternateKeys {
		merged[ak] = struct{}{}
	}
	c.keyAltKeys[e.Key] = merged
	_ = c.alt.BindAll(e.AlternateKeys, e.Key) // conflicts already rejected above

	delete(c.pending, e.Key)

	events := []pendingEvent{{
		kind:   changeevent.KindInsert,
		change: changeevent.EntryChange{Key: e.Key, Value: e.Value, AlternateKeys: cloneSet(merged)},
	}}

	if c.dispatchLRU {
		for _, rec := range evicted {
			events = append(events, pendingEvent{
				kind:   changeevent.KindLRURemove,
				change: changeevent.EntryChange{Key: rec.key, Value: rec.value, AlternateKeys: rec.alt},
			})
		}
	}
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.om.Len()))
		c.metrics.PortionFilled.Set(c.om.PortionFilled())
	}
	c.mu.Unlock()

	for _, ev := range events {
		if err := c.agg.RecordChange(ctx, c.valueType, ev.kind, ev.change); err != nil {
			return err
		}
	}
	return nil
}

// Get resolves keyOrAlt through the alternate-key index, touches the
// resolved entry to newest on a hit, and returns its value. On a miss it
// consults the cache's configured EntryGetter and, if the getter produces
// an entry, inserts it and returns its value.
func (c *Cache[V]) Get(ctx context.Context, keyOrAlt string) (V, bool, error) {
	return c.get(ctx, keyOrAlt, false, nil)
}

// GetOrFetch is Get with an explicit per-call getter that takes precedence
// over the cache's configured EntryGetter.
func (c *Cache[V]) GetOrFetch(ctx context.Context, keyOrAlt string, customGetter EntryGetter[V]) (V, bool, error) {
	return c.get(ctx, keyOrAlt, false, customGetter)
}

// GetRequired skips the cached value and always calls the getter
// (customGetter if non-nil, else the configured EntryGetter), inserting the
// entry it produces; it fails with *NoEntryGetterError when neither getter
// is set, matching notFromCache=true in spec.md §4.5.
func (c *Cache[V]) GetRequired(ctx context.Context, keyOrAlt string, customGetter EntryGetter[V]) (V, bool, error) {
	return c.get(ctx, keyOrAlt, true, customGetter)
}

func (c *Cache[V]) get(ctx context.Context, keyOrAlt string, notFromCache bool, customGetter EntryGetter[V]) (V, bool, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			metrics.ObserveLatency(c.metrics.Get, time.Since(start))
		}
	}()

	c.mu.Lock()
	primary := c.resolvePrimaryLocked(keyOrAlt)
	if !notFromCache {
		if val, ok := c.om.Get(primary); ok {
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.Hit.Inc()
			}
			return val, true, nil
		}
	}
	getter := customGetter
	if getter == nil {
		getter = c.getter
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Miss.Inc()
	}

	if getter == nil {
		var zero V
		if notFromCache {
			return zero, false, &NoEntryGetterError{ValueType: c.valueType}
		}
		return zero, false, nil
	}

	entry, found, err := getter(ctx, primary)
	if err != nil {
		var zero V
		return zero, false, err
	}
	if !found {
		var zero V
		return zero, false, nil
	}
	if err := c.SetAll(ctx, []Entry[V]{entry}); err != nil {
		var zero V
		return zero, false, err
	}
	return entry.Value, true, nil
}

// GetAsync is Get's asynchronous counterpart, used when the cache's getter
// is an AsyncEntryGetter. Concurrent GetAsync calls for the same missing
// key share the getter's single in-flight invocation. If the cache's state
// for the requested key changes before the getter resolves (a later Set,
// Delete, or Clear), the resolution is discarded: nothing is inserted, but
// the channel still receives the getter's result (see SPEC_FULL.md §9).
func (c *Cache[V]) GetAsync(ctx context.Context, keyOrAlt string) <-chan AsyncEntryResult[V] {
	// relay gives each caller its own channel. The shared channel holds the
	// getter's single result; each relay takes it, puts it back for the
	// next caller, and forwards it.
	relay := func(shared chan AsyncEntryResult[V]) <-chan AsyncEntryResult[V] {
		mine := make(chan AsyncEntryResult[V], 1)
		go func() {
			res := <-shared
			shared <- res
			mine <- res
			close(mine)
		}()
		return mine
	}

	c.mu.Lock()
	primary := c.resolvePrimaryLocked(keyOrAlt)

	if val, ok := c.om.Get(primary); ok {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.Hit.Inc()
		}
		ch := make(chan AsyncEntryResult[V], 1)
		ch <- AsyncEntryResult[V]{Entry: Entry[V]{Key: primary, Value: val}, Found: true}
		close(ch)
		return ch
	}

	if existing, ok := c.pending[primary]; ok {
		c.mu.Unlock()
		return relay(existing)
	}

	if c.metrics != nil {
		c.metrics.Miss.Inc()
	}

	getter := c.asyncGetter
	if getter == nil {
		c.mu.Unlock()
		ch := make(chan AsyncEntryResult[V], 1)
		ch <- AsyncEntryResult[V]{}
		close(ch)
		return ch
	}

	out := make(chan AsyncEntryResult[V], 1)
	c.pending[primary] = out
	c.mu.Unlock()

	go func() {
		res := <-getter(ctx, primary)

		c.mu.Lock()
		stillPending := c.pending[primary] == out
		delete(c.pending, primary)
		c.mu.Unlock()

		if res.Err != nil || !res.Found {
			out <- res
			return
		}
		if stillPending {
			if err := c.SetAll(ctx, []Entry[V]{res.Entry}); err != nil {
				out <- AsyncEntryResult[V]{Err: err}
				return
			}
		}
		out <- res
	}()
	return relay(out)
}

// GetWithoutLRUChange resolves and returns a value without touching
// recency order or consulting any getter.
func (c *Cache[V]) GetWithoutLRUChange(keyOrAlt string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	primary := c.resolvePrimaryLocked(keyOrAlt)
	return c.om.GetWithoutTouch(primary)
}

// Has reports presence without consulting a getter or touching recency.
func (c *Cache[V]) Has(keyOrAlt string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	primary := c.resolvePrimaryLocked(keyOrAlt)
	return c.om.Has(primary)
}

// Delete accepts either a primary or an alternate key (the Open Question
// in spec.md §9, resolved per SPEC_FULL.md §9), removes the resolved
// entry, and unbinds all of its alternate keys. It reports whether a key
// was present.
func (c *Cache[V]) Delete(ctx context.Context, keyOrAlt string) (bool, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			metrics.ObserveLatency(c.metrics.Evict, time.Since(start))
		}
	}()

	c.mu.Lock()
	primary := c.resolvePrimaryLocked(keyOrAlt)
	if !c.om.Has(primary) {
		c.mu.Unlock()
		return false, nil
	}
	c.evictBuf = c.evictBuf[:0]
	c.om.Delete(primary)
	rec := c.evictBuf[0]
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.om.Len()))
		c.metrics.PortionFilled.Set(c.om.PortionFilled())
	}
	c.mu.Unlock()

	err := c.agg.RecordChange(ctx, c.valueType, changeevent.KindDeleteRemove, changeevent.EntryChange{
		Key: rec.key, Value: rec.value, AlternateKeys: rec.alt,
	})
	return true, err
}

// Clear drops every entry, recording a clearRemove for each (in iteration
// order, inside one transaction) if DispatchClearRemoves is enabled, and
// resets the alternate-key index.
func (c *Cache[V]) Clear(ctx context.Context) error {
	start := time.Now()
	err := c.agg.Transaction(ctx, c.clearAllLocked)
	if c.metrics != nil {
		metrics.ObserveLatency(c.metrics.Clear, time.Since(start))
	}
	return err
}

// clearAllLocked implements the cacheHandle hook used by ClearAllCaches so
// every cache's Clear joins the same outer transaction.
func (c *Cache[V]) clearAllLocked(ctx context.Context) error {
	c.mu.Lock()
	c.evictBuf = c.evictBuf[:0]
	c.om.Clear()
	evicted := append([]evictedRecord[V](nil), c.evictBuf...)
	// handleEvictLocked already retired every evicted entry's alt-key
	// bindings and keyAltKeys slot. Pending async getters for keys not
	// currently in om (in-flight misses for keys that don't exist yet)
	// are untouched by that path, so they're invalidated here: Clear
	// must discard every in-flight get, not just ones tied to evicted
	// keys.
	c.pending = make(map[string]chan AsyncEntryResult[V])
	dispatch := c.dispatchClear
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.om.Len()))
		c.metrics.PortionFilled.Set(c.om.PortionFilled())
	}
	c.mu.Unlock()

	if !dispatch {
		return nil
	}
	for _, rec := range evicted {
		change := changeevent.EntryChange{Key: rec.key, Value: rec.value, AlternateKeys: rec.alt}
		if err := c.agg.RecordChange(ctx, c.valueType, changeevent.KindClearRemove, change); err != nil {
			return err
		}
	}
	return nil
}

// SetMaxSize updates the cache's entry cap. n <= 0 means unbounded. If
// shrinking evicts entries and DispatchLRURemoves is enabled, each eviction
// is recorded inside one transaction.
func (c *Cache[V]) SetMaxSize(ctx context.Context, n int) error {
	return c.agg.Transaction(ctx, func(ctx context.Context) error {
		c.mu.Lock()
		c.evictBuf = c.evictBuf[:0]
		c.om.SetMaxSize(n)
		evicted := append([]evictedRecord[V](nil), c.evictBuf...)
		dispatch := c.dispatchLRU
		if c.metrics != nil {
			c.metrics.Size.Set(float64(c.om.Len()))
			c.metrics.PortionFilled.Set(c.om.PortionFilled())
		}
		c.mu.Unlock()

		if !dispatch {
			return nil
		}
		for _, rec := range evicted {
			change := changeevent.EntryChange{Key: rec.key, Value: rec.value, AlternateKeys: rec.alt}
			if err := c.agg.RecordChange(ctx, c.valueType, changeevent.KindLRURemove, change); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSize returns the number of entries currently cached.
func (c *Cache[V]) GetSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.om.Len()
}

// GetMaxSize returns the configured cap, or 0 for unbounded.
func (c *Cache[V]) GetMaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.om.MaxSize()
}

// PortionFilled returns the fraction of MaxSize currently occupied, or 0 if
// unbounded.
func (c *Cache[V]) PortionFilled() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.om.PortionFilled()
}

// GetEntries returns a snapshot of every entry, oldest->newest.
func (c *Cache[V]) GetEntries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry[V], 0, c.om.Len())
	for it := c.om.NewIterator(); it.Next(); {
		out = append(out, Entry[V]{Key: it.Key(), Value: it.Value(), AlternateKeys: cloneSet(c.keyAltKeys[it.Key()])})
	}
	return out
}

// ForEach calls cb for every entry, oldest->newest, without allocating an
// intermediate slice.
func (c *Cache[V]) ForEach(cb func(Entry[V])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for it := c.om.NewIterator(); it.Next(); {
		cb(Entry[V]{Key: it.Key(), Value: it.Value(), AlternateKeys: cloneSet(c.keyAltKeys[it.Key()])})
	}
}

// DispatchLRURemoves toggles whether capacity-driven evictions are
// recorded as lruRemove change events.
func (c *Cache[V]) DispatchLRURemoves(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLRU = enabled
}

// DispatchClearRemoves toggles whether Clear records a clearRemove change
// event per dropped entry.
func (c *Cache[V]) DispatchClearRemoves(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchClear = enabled
}

// SetEntryGetter installs (or, given nil, removes) the cache's synchronous
// miss-population getter.
func (c *Cache[V]) SetEntryGetter(getter EntryGetter[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getter = getter
}

// SetAsyncEntryGetter installs (or, given nil, removes) the cache's
// asynchronous miss-population getter, used by GetAsync.
func (c *Cache[V]) SetAsyncEntryGetter(getter AsyncEntryGetter[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asyncGetter = getter
}

// resolvePrimaryLocked resolves keyOrAlt to a primary key. Callers hold
// c.mu. Primary keys resolve to themselves without consulting the
// alternate-key index, per spec.md §4.2.
func (c *Cache[V]) resolvePrimaryLocked(keyOrAlt string) string {
	if c.om.Has(keyOrAlt) {
		return keyOrAlt
	}
	if primary, ok := c.alt.Resolve(keyOrAlt); ok {
		return primary
	}
	return keyOrAlt
}
