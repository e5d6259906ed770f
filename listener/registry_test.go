// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package listener

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/valuecache/changeevent"
)

func noopHandler(changeevent.Record) error { return nil }

func TestRegisterNilFilterMatchesAllValueTypes(t *testing.T) {
	require := require.New(t)

	r := New()
	r.Register(noopHandler, nil)

	handles := r.ActiveHandlersFor(map[string]struct{}{"widget": {}})
	require.Len(handles, 1)

	handles = r.ActiveHandlersFor(map[string]struct{}{"gadget": {}})
	require.Len(handles, 1)
}

func TestRegisterEmptySliceMatchesNothing(t *testing.T) {
	require := require.New(t)

	r := New()
	r.Register(noopHandler, []string{})

	handles := r.ActiveHandlersFor(map[string]struct{}{"widget": {}})
	require.Empty(handles)
}

func TestRegisterSpecificTypesMatchesOnlyThose(t *testing.T) {
	require := require.New(t)

	r := New()
	r.Register(noopHandler, []string{"widget"})

	require.Len(r.ActiveHandlersFor(map[string]struct{}{"widget": {}}), 1)
	require.Empty(r.ActiveHandlersFor(map[string]struct{}{"gadget": {}}))
}

func TestUnregisterRemovesFromDispatch(t *testing.T) {
	require := require.New(t)

	r := New()
	h := r.Register(noopHandler, nil)
	require.True(h.IsRegistered())

	h.Unregister()
	require.False(h.IsRegistered())
	require.Empty(r.ActiveHandlersFor(map[string]struct{}{"widget": {}}))

	// Idempotent.
	h.Unregister()
}

func TestDeactivateActivate(t *testing.T) {
	require := require.New(t)

	r := New()
	h := r.Register(noopHandler, nil)

	h.Deactivate()
	require.Empty(r.ActiveHandlersFor(map[string]struct{}{"widget": {}}))

	h.Activate()
	require.Len(r.ActiveHandlersFor(map[string]struct{}{"widget": {}}), 1)
}

func TestDispatchOrderMatchesRegistrationOrder(t *testing.T) {
	require := require.New(t)

	r := New()
	var order []int
	r.Register(func(changeevent.Record) error { order = append(order, 1); return nil }, nil)
	r.Register(func(changeevent.Record) error { order = append(order, 2); return nil }, nil)
	r.Register(func(changeevent.Record) error { order = append(order, 3); return nil }, nil)

	invoked, errs := r.Dispatch(changeevent.Record{ValueTypes: map[string]struct{}{"widget": {}}})
	require.Equal(3, invoked)
	require.Empty(errs)
	require.Equal([]int{1, 2, 3}, order)
}

func TestDispatchHandlerIsolation(t *testing.T) {
	require := require.New(t)

	r := New()
	called := []int{}
	r.Register(func(changeevent.Record) error { called = append(called, 1); return errors.New("boom") }, nil)
	r.Register(func(changeevent.Record) error { called = append(called, 2); return nil }, nil)

	invoked, errs := r.Dispatch(changeevent.Record{ValueTypes: map[string]struct{}{"widget": {}}})
	require.Equal(2, invoked)
	require.Len(errs, 1)
	require.Equal([]int{1, 2}, called, "a throwing handler must not prevent others from firing")
}

func TestDispatchCardinalityOnePerMatchingListener(t *testing.T) {
	require := require.New(t)

	r := New()
	count := 0
	r.Register(func(changeevent.Record) error { count++; return nil }, []string{"widget"})
	r.Register(func(changeevent.Record) error { count++; return nil }, nil)
	r.Register(func(changeevent.Record) error { count++; return nil }, []string{"gadget"})

	invoked, _ := r.Dispatch(changeevent.Record{ValueTypes: map[string]struct{}{"widget": {}}})
	require.Equal(2, invoked)
	require.Equal(2, count)
}
