// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package altkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindResolveUnbind(t *testing.T) {
	require := require.New(t)

	idx := New("widget")
	require.NoError(idx.Bind("a1", "k1"))
	require.NoError(idx.Bind("a2", "k1"))

	primary, ok := idx.Resolve("a1")
	require.True(ok)
	require.Equal("k1", primary)

	_, ok = idx.Resolve("a3")
	require.False(ok)

	idx.Unbind("a1")
	_, ok = idx.Resolve("a1")
	require.False(ok)

	primary, ok = idx.Resolve("a2")
	require.True(ok)
	require.Equal("k1", primary)
}

func TestBindIdempotentForSamePrimary(t *testing.T) {
	require := require.New(t)

	idx := New("widget")
	require.NoError(idx.Bind("a1", "k1"))
	require.NoError(idx.Bind("a1", "k1"))
	require.Equal(1, idx.Len())
}

func TestBindConflictNamesOffenderAndExisting(t *testing.T) {
	require := require.New(t)

	idx := New("widget")
	require.NoError(idx.Bind("a1", "k1"))

	err := idx.Bind("a1", "k2")
	require.Error(err)

	var conflict *ConflictError
	require.ErrorAs(err, &conflict)
	require.Equal("a1", conflict.AlternateKey)
	require.Equal("k1", conflict.ExistingPrimary)
	require.Equal("k2", conflict.OfferingPrimary)
	require.Equal("widget", conflict.ValueType)
}

func TestUnbindAllAndClear(t *testing.T) {
	require := require.New(t)

	idx := New("widget")
	require.NoError(idx.Bind("a1", "k1"))
	require.NoError(idx.Bind("a2", "k1"))
	require.NoError(idx.Bind("a3", "k2"))

	idx.UnbindAll(map[string]struct{}{"a1": {}, "a2": {}})
	require.Equal(1, idx.Len())

	idx.Clear()
	require.Equal(0, idx.Len())
}
