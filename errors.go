// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package valuecache

import (
	"fmt"

	"github.com/luxfi/valuecache/changeevent"
	"github.com/luxfi/valuecache/internal/altkey"
)

// ChangeRecord is the batch of changes dispatched to handlers once per
// closed transaction.
type ChangeRecord = changeevent.Record

// AlternateKeyConflictError is returned when an alternate key is already
// bound to a different primary key in the same cache.
type AlternateKeyConflictError = altkey.ConflictError

// AggregateHandlerError carries every error returned by change-listener
// handlers invoked during one dispatch.
type AggregateHandlerError = changeevent.AggregateHandlerError

// ShapeError is returned when SetAll/SetAllAsync is called with a nil slice
// where an array of entries was required.
type ShapeError struct {
	Operation string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("valuecache: %s requires a non-nil slice of entries", e.Operation)
}

// NoEntryGetterError is returned when notFromCache is requested (through
// GetRequired) but no entry getter is configured for the cache.
type NoEntryGetterError struct {
	ValueType string
}

func (e *NoEntryGetterError) Error() string {
	return fmt.Sprintf("valuecache: no entry getter configured for value-type %q", e.ValueType)
}
