// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package listener provides subscription management for change-record
// dispatch: a Registry of active Handles, each with a per-value-type filter
// and an activation toggle.
package listener

import (
	"sync"

	"github.com/luxfi/valuecache/changeevent"
)

// Handle represents one registered change handler.
type Handle struct {
	registry   *Registry
	id         uint64
	handler    changeevent.Handler
	valueTypes map[string]struct{} // nil means "all"; non-nil (possibly empty) means exactly these
	mu         sync.Mutex
	active     bool
	registered bool
}

// Unregister removes the handler from the registry. Unregistering an
// already-unregistered handle is a no-op.
func (h *Handle) Unregister() {
	h.registry.unregister(h)
}

// Activate re-enables a deactivated handler.
func (h *Handle) Activate() {
	h.registry.setActive(h, true)
}

// Deactivate disables a handler without unregistering it.
func (h *Handle) Deactivate() {
	h.registry.setActive(h, false)
}

// IsRegistered reports whether Unregister has not yet been called on h.
func (h *Handle) IsRegistered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

func (h *Handle) isActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered && h.active
}

// Registry tracks active handles and resolves, per value-type, which ones
// are interested in a dispatch.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	order    []uint64
	byID     map[uint64]*Handle
	allTypes map[uint64]struct{}
	byType   map[string]map[uint64]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:     make(map[uint64]*Handle),
		allTypes: make(map[uint64]struct{}),
		byType:   make(map[string]map[uint64]struct{}),
	}
}

// Register adds handler to the registry. valueTypes == nil (the variadic
// parameter omitted entirely) means "all value-types"; a non-nil (including
// empty) slice restricts the handler to exactly those value-types — an
// explicit empty slice therefore matches nothing.
func (r *Registry) Register(handler changeevent.Handler, valueTypes []string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	var filter map[string]struct{}
	if valueTypes != nil {
		filter = make(map[string]struct{}, len(valueTypes))
		for _, vt := range valueTypes {
			filter[vt] = struct{}{}
		}
	}

	h := &Handle{
		registry:   r,
		id:         id,
		handler:    handler,
		valueTypes: filter,
		active:     true,
		registered: true,
	}

	r.byID[id] = h
	r.order = append(r.order, id)
	r.addToIndicesLocked(h)
	return h
}

func (r *Registry) addToIndicesLocked(h *Handle) {
	if h.valueTypes == nil {
		r.allTypes[h.id] = struct{}{}
		return
	}
	for vt := range h.valueTypes {
		if r.byType[vt] == nil {
			r.byType[vt] = make(map[uint64]struct{})
		}
		r.byType[vt][h.id] = struct{}{}
	}
}

func (r *Registry) removeFromIndicesLocked(h *Handle) {
	delete(r.allTypes, h.id)
	for vt := range h.valueTypes {
		if ids, ok := r.byType[vt]; ok {
			delete(ids, h.id)
		}
	}
}

func (r *Registry) setActive(h *Handle, active bool) {
	h.mu.Lock()
	wasRegistered := h.registered
	h.active = active
	h.mu.Unlock()
	if !wasRegistered {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if active {
		r.addToIndicesLocked(h)
	} else {
		r.removeFromIndicesLocked(h)
	}
}

func (r *Registry) unregister(h *Handle) {
	h.mu.Lock()
	if !h.registered {
		h.mu.Unlock()
		return
	}
	h.registered = false
	h.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromIndicesLocked(h)
	delete(r.byID, h.id)
	for i, id := range r.order {
		if id == h.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// ActiveHandlersFor returns, in registration order, every active handle
// whose filter intersects valueTypes (a nil filter always matches).
func (r *Registry) ActiveHandlersFor(valueTypes map[string]struct{}) []*Handle {
	r.mu.Lock()
	seen := make(map[uint64]struct{})
	var ids []uint64
	for id := range r.allTypes {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for vt := range valueTypes {
		for id := range r.byType[vt] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	idSet := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	out := make([]*Handle, 0, len(ids))
	for _, id := range r.order {
		if _, ok := idSet[id]; ok {
			out = append(out, r.byID[id])
		}
	}
	r.mu.Unlock()
	return out
}

// Dispatch invokes every active handle interested in rec, in registration
// order, collecting whatever errors they return.
func (r *Registry) Dispatch(rec changeevent.Record) (invoked int, errs []error) {
	for _, h := range r.ActiveHandlersFor(rec.ValueTypes) {
		if !h.isActive() {
			continue
		}
		invoked++
		if err := h.handler(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return invoked, errs
}
