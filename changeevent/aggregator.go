// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package changeevent

import (
	"context"
	"sync"
)

// Dispatcher invokes every listener interested in rec and returns how many
// handlers were invoked and the errors any of them returned, in invocation
// order.
type Dispatcher func(rec Record) (invoked int, errs []error)

// Aggregator accumulates changes recorded during an open transaction and
// dispatches exactly one Record when the last nested transaction closes.
// Safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	acc        *Record
	order      int
	running    int
	dispatcher Dispatcher
}

// New creates an Aggregator that hands closed-transaction records to
// dispatch.
func New(dispatch Dispatcher) *Aggregator {
	return &Aggregator{dispatcher: dispatch}
}

// Transaction opens a transaction (or joins the currently open one),
// invokes work, and — if this call is the outermost transaction — dispatches
// the accumulated record once work returns and the nesting count reaches
// zero. The accumulator and order counter are always released, even if work
// or a handler returns an error.
func (a *Aggregator) Transaction(ctx context.Context, work func(context.Context) error) error {
	a.mu.Lock()
	if a.acc == nil {
		a.acc = newRecord()
		a.order = 0
	}
	a.running++
	a.mu.Unlock()

	workErr := work(ctx)

	a.mu.Lock()
	a.running--
	var rec *Record
	if a.running == 0 {
		rec = a.acc
		a.acc = nil
		a.order = 0
	}
	a.mu.Unlock()

	var dispatchErr error
	if rec != nil && len(rec.ValueTypes) > 0 {
		if invoked, errs := a.dispatcher(*rec); len(errs) > 0 {
			dispatchErr = &AggregateHandlerError{
				Errs:    errs,
				Invoked: invoked,
				Failed:  len(errs),
			}
		}
	}

	if workErr != nil {
		return workErr
	}
	return dispatchErr
}

// RecordChange appends one EntryChange to the current transaction's
// accumulator under valueType/kind, assigning it the next order value. If no
// transaction is open, a transient one is opened and immediately closed
// (dispatching synchronously before RecordChange returns) — the
// non-batched single-mutation path from spec.md §4.3.
//
// change.AlternateKeys must already be a copy the caller does not mutate
// afterward; RecordChange does not clone it.
func (a *Aggregator) RecordChange(ctx context.Context, valueType string, kind Kind, change EntryChange) error {
	return a.Transaction(ctx, func(context.Context) error {
		a.mu.Lock()
		change.Order = a.order
		a.order++

		tc := a.acc.ByType[valueType]
		switch kind {
		case KindInsert:
			tc.Inserts = append(tc.Inserts, change)
		case KindClearRemove:
			tc.ClearRemoves = append(tc.ClearRemoves, change)
		case KindLRURemove:
			tc.LRURemoves = append(tc.LRURemoves, change)
		case KindDeleteRemove:
			tc.DeleteRemoves = append(tc.DeleteRemoves, change)
		}
		a.acc.ByType[valueType] = tc
		a.acc.ValueTypes[valueType] = struct{}{}
		a.mu.Unlock()
		return nil
	})
}
