// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package valuecache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCacheReturnsSameSingletonForValueType(t *testing.T) {
	require := require.New(t)
	valueType := fmt.Sprintf("singleton-%s", t.Name())

	a := GetCache[int](valueType)
	b := GetCache[int](valueType)
	require.Same(a, b)
}

func TestGetCacheWrongValueTypePanics(t *testing.T) {
	require := require.New(t)
	valueType := fmt.Sprintf("wrongtype-%s", t.Name())

	GetCache[int](valueType)
	require.Panics(func() {
		GetCache[string](valueType)
	})
}

func TestRegisterWithEmptyValueTypesMatchesNothing(t *testing.T) {
	require := require.New(t)
	valueType := fmt.Sprintf("nohandler-%s", t.Name())
	c := GetCache[int](valueType)

	var invoked bool
	handle := RegisterChangeHandler(func(ChangeRecord) error {
		invoked = true
		return nil
	}, []string{}...)
	defer handle.Unregister()

	require.NoError(c.Set(context.Background(), Entry[int]{Key: "a", Value: 1}))
	require.False(invoked)
}

func TestRegisterWithNoValueTypesMatchesAll(t *testing.T) {
	require := require.New(t)
	valueType := fmt.Sprintf("allhandler-%s", t.Name())
	c := GetCache[int](valueType)

	var seen string
	handle := RegisterChangeHandler(func(rec ChangeRecord) error {
		for vt := range rec.ValueTypes {
			seen = vt
		}
		return nil
	})
	defer handle.Unregister()

	require.NoError(c.Set(context.Background(), Entry[int]{Key: "a", Value: 1}))
	require.Equal(valueType, seen)
}

func TestClearAllCachesClearsEveryRegisteredCache(t *testing.T) {
	require := require.New(t)
	typeA := fmt.Sprintf("cleara-%s", t.Name())
	typeB := fmt.Sprintf("clearb-%s", t.Name())
	a := GetCache[int](typeA)
	b := GetCache[string](typeB)

	require.NoError(a.Set(context.Background(), Entry[int]{Key: "x", Value: 1}))
	require.NoError(b.Set(context.Background(), Entry[string]{Key: "y", Value: "z"}))

	require.NoError(ClearAllCaches(context.Background()))
	require.Equal(0, a.GetSize())
	require.Equal(0, b.GetSize())
}

func TestPackageTransactionBatchesMutationsAcrossCaches(t *testing.T) {
	require := require.New(t)
	typeA := fmt.Sprintf("txna-%s", t.Name())
	typeB := fmt.Sprintf("txnb-%s", t.Name())
	a := GetCache[int](typeA)
	b := GetCache[int](typeB)

	var dispatches int
	handle := RegisterChangeHandler(func(ChangeRecord) error {
		dispatches++
		return nil
	})
	defer handle.Unregister()

	err := Transaction(context.Background(), func(ctx context.Context) error {
		if err := a.Set(ctx, Entry[int]{Key: "1", Value: 1}); err != nil {
			return err
		}
		return b.Set(ctx, Entry[int]{Key: "2", Value: 2})
	})
	require.NoError(err)
	require.Equal(1, dispatches)
}
