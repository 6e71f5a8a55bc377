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

// Package summarystore persists one TripSummary row per finished trip.
//
// The store exposes two disjoint write capabilities: BatchPut refreshes the
// derived fields and can never touch the aggregation flag, MarkAggregated
// flips only the flag. A stale reduction cycle re-running after the cache
// has filled therefore cannot revert AggregationExecuted.
package summarystore

import (
	"context"
	"errors"

	"github.com/triplake/triplake/internal/trips"
)

// ErrNotFound is returned when no summary exists for the trip.
var ErrNotFound = errors.New("trip summary not found")

// MaxBatchSize is the bulk-write chunk size of the backing store.
const MaxBatchSize = 25

// Store is the summary store contract.
type Store interface {
	// Get returns the summary for a trip, or ErrNotFound.
	Get(ctx context.Context, tripID string) (trips.TripSummary, error)

	// BatchPut upserts the derived fields of up to MaxBatchSize summaries.
	// Re-putting an existing trip overwrites its derived fields only; the
	// AggregationExecuted flag is initialized false on first write and is
	// never modified afterwards by this path.
	BatchPut(ctx context.Context, summaries []trips.TripSummary) error

	// MarkAggregated flips AggregationExecuted to true for an existing
	// summary. Marking an absent trip returns ErrNotFound.
	MarkAggregated(ctx context.Context, tripID string) error
}
