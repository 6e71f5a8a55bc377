// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package summarystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplake/triplake/internal/trips"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_BatchPutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{
		{TripID: "t-1", DeviceID: "d-1", EventCount: 5},
		{TripID: "t-2", DeviceID: "d-2", EventCount: 3},
	}))
	assert.Equal(t, 2, store.Len())

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.EventCount)
	assert.False(t, got.AggregationExecuted)
}

func TestMemoryStore_RePutIsIdempotentMerge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	row := trips.TripSummary{TripID: "t-1", DeviceID: "d-1", EventCount: 5}
	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{row}))
	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{row}))

	assert.Equal(t, 1, store.Len(), "duplicate rows collapse to one logical summary")
}

func TestMemoryStore_BatchPutNeverRevertsFlag(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{{TripID: "t-1", EventCount: 5}}))
	require.NoError(t, store.MarkAggregated(ctx, "t-1"))

	// a stale cycle re-deriving the same row, even with the flag forced off
	stale := trips.TripSummary{TripID: "t-1", EventCount: 5, AggregationExecuted: false}
	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{stale}))

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, got.AggregationExecuted, "derived-field writes must not revert the flag")
}

func TestMemoryStore_MarkAggregated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.MarkAggregated(ctx, "absent"), ErrNotFound)

	require.NoError(t, store.BatchPut(ctx, []trips.TripSummary{{TripID: "t-1"}}))
	require.NoError(t, store.MarkAggregated(ctx, "t-1"))

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, got.AggregationExecuted)
}

func TestMemoryStore_BatchSizeLimit(t *testing.T) {
	store := NewMemoryStore()

	batch := make([]trips.TripSummary, MaxBatchSize+1)
	for i := range batch {
		batch[i].TripID = "t"
	}
	assert.Error(t, store.BatchPut(context.Background(), batch))
}
