// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package changeevent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordChangeDispatchesImmediatelyWhenNoTransactionOpen(t *testing.T) {
	require := require.New(t)

	var dispatched []Record
	agg := New(func(rec Record) (int, []error) {
		dispatched = append(dispatched, rec)
		return 1, nil
	})

	err := agg.RecordChange(context.Background(), "widget", KindInsert, EntryChange{Key: "k1", Value: "v1"})
	require.NoError(err)
	require.Len(dispatched, 1)
	require.Contains(dispatched[0].ValueTypes, "widget")
	require.Equal(0, dispatched[0].ByType["widget"].Inserts[0].Order)
}

func TestTransactionBatchesMultipleRecordChangesIntoOneDispatch(t *testing.T) {
	require := require.New(t)

	var dispatched []Record
	agg := New(func(rec Record) (int, []error) {
		dispatched = append(dispatched, rec)
		return 1, nil
	})

	err := agg.Transaction(context.Background(), func(ctx context.Context) error {
		_ = agg.RecordChange(ctx, "widget", KindInsert, EntryChange{Key: "k1"})
		_ = agg.RecordChange(ctx, "widget", KindInsert, EntryChange{Key: "k2"})
		_ = agg.RecordChange(ctx, "widget", KindLRURemove, EntryChange{Key: "k0"})
		return nil
	})
	require.NoError(err)
	require.Len(dispatched, 1, "nested RecordChange calls must join the outer transaction")

	tc := dispatched[0].ByType["widget"]
	require.Len(tc.Inserts, 2)
	require.Len(tc.LRURemoves, 1)
	require.Equal(0, tc.Inserts[0].Order)
	require.Equal(1, tc.Inserts[1].Order)
	require.Equal(2, tc.LRURemoves[0].Order)
}

func TestNestedTransactionsDispatchOnceWhenOutermostCloses(t *testing.T) {
	require := require.New(t)

	dispatchCount := 0
	agg := New(func(rec Record) (int, []error) {
		dispatchCount++
		return 1, nil
	})

	err := agg.Transaction(context.Background(), func(ctx context.Context) error {
		return agg.Transaction(ctx, func(ctx context.Context) error {
			return agg.RecordChange(ctx, "widget", KindInsert, EntryChange{Key: "k1"})
		})
	})
	require.NoError(err)
	require.Equal(1, dispatchCount)
}

func TestNoDispatchWhenTransactionRecordsNothing(t *testing.T) {
	require := require.New(t)

	dispatchCount := 0
	agg := New(func(rec Record) (int, []error) {
		dispatchCount++
		return 0, nil
	})

	err := agg.Transaction(context.Background(), func(context.Context) error { return nil })
	require.NoError(err)
	require.Equal(0, dispatchCount)
}

func TestHandlerErrorsAggregateAndAccumulatorStillClears(t *testing.T) {
	require := require.New(t)

	var lastInserts []EntryChange
	agg := New(func(rec Record) (int, []error) {
		lastInserts = rec.ByType["widget"].Inserts
		return 2, []error{errors.New("boom1"), errors.New("boom2")}
	})

	err := agg.RecordChange(context.Background(), "widget", KindInsert, EntryChange{Key: "k1"})
	require.Error(err)

	var aggErr *AggregateHandlerError
	require.ErrorAs(err, &aggErr)
	require.Equal(2, aggErr.Invoked)
	require.Equal(2, aggErr.Failed)

	// Accumulator must have been cleared despite the handler errors: a
	// fresh RecordChange on the same aggregator starts order back at 0.
	_ = agg.RecordChange(context.Background(), "widget", KindInsert, EntryChange{Key: "k2"})
	require.Len(lastInserts, 1)
	require.Equal("k2", lastInserts[0].Key)
	require.Equal(0, lastInserts[0].Order)
}

func TestWorkErrorAbortsWithoutSuppressingDispatch(t *testing.T) {
	require := require.New(t)

	dispatched := false
	agg := New(func(rec Record) (int, []error) {
		dispatched = true
		return 1, nil
	})

	wantErr := errors.New("boom")
	err := agg.Transaction(context.Background(), func(ctx context.Context) error {
		_ = agg.RecordChange(ctx, "widget", KindInsert, EntryChange{Key: "k1"})
		return wantErr
	})
	require.ErrorIs(err, wantErr)
	require.True(dispatched, "changes already recorded before the error must still dispatch")
}
