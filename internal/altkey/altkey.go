// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package altkey provides a secondary, alternate-key-to-primary-key index
// with uniqueness enforcement.
//
// It is adapted from this module's teacher's dualmap_cache.go (a two-map
// placeholder); the second map of the original becomes the
// alternate->primary binding this package actually enforces.
package altkey

import "fmt"

// ConflictError reports that an alternate key is already bound to a
// different primary key.
type ConflictError struct {
	ValueType       string
	AlternateKey    string
	OfferingPrimary string
	ExistingPrimary string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"valuecache: alternate key %q of value-type %q already bound to primary key %q, cannot bind to %q",
		e.AlternateKey, e.ValueType, e.ExistingPrimary, e.OfferingPrimary,
	)
}

// Index maps alternate keys to primary keys for one cache. Not safe for
// concurrent use; callers serialize access with their own lock.
type Index struct {
	valueType string
	altToKey  map[string]string
}

// New creates an empty Index for the named value-type (used only to produce
// readable ConflictErrors).
func New(valueType string) *Index {
	return &Index{
		valueType: valueType,
		altToKey:  make(map[string]string),
	}
}

// Bind associates altKey with primaryKey. It is idempotent if altKey is
// already bound to primaryKey, and returns a *ConflictError if altKey is
// already bound to a different primary key.
func (idx *Index) Bind(altKey, primaryKey string) error {
	if existing, ok := idx.altToKey[altKey]; ok {
		if existing == primaryKey {
			return nil
		}
		return &ConflictError{
			ValueType:       idx.valueType,
			AlternateKey:    altKey,
			OfferingPrimary: primaryKey,
			ExistingPrimary: existing,
		}
	}
	idx.altToKey[altKey] = primaryKey
	return nil
}

// BindAll binds every key in altKeys to primaryKey, stopping at the first
// conflict. Keys already bound in a prior call of this invocation are left
// bound (callers that need all-or-nothing semantics should pre-check with
// Resolve).
func (idx *Index) BindAll(altKeys map[string]struct{}, primaryKey string) error {
	for altKey := range altKeys {
		if err := idx.Bind(altKey, primaryKey); err != nil {
			return err
		}
	}
	return nil
}

// Unbind removes a single alternate-key binding.
func (idx *Index) Unbind(altKey string) {
	delete(idx.altToKey, altKey)
}

// UnbindAll removes every binding named in altKeys.
func (idx *Index) UnbindAll(altKeys map[string]struct{}) {
	for altKey := range altKeys {
		delete(idx.altToKey, altKey)
	}
}

// Resolve returns the primary key bound to altKey, if any. Resolving a
// cache's own primary keys is the caller's responsibility (per spec.md
// §4.2, a primary key resolves to itself without consulting this index);
// this index only knows about alternate keys.
func (idx *Index) Resolve(altKey string) (string, bool) {
	primaryKey, ok := idx.altToKey[altKey]
	return primaryKey, ok
}

// Clear removes every binding.
func (idx *Index) Clear() {
	idx.altToKey = make(map[string]string)
}

// Len returns the number of bound alternate keys.
func (idx *Index) Len() int {
	return len(idx.altToKey)
}
