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
	"fmt"
	"sync"

	"github.com/triplake/triplake/internal/trips"
)

// MemoryStore is a mutex-guarded in-process Store with the same merge
// semantics as the DynamoDB implementation. Used by tests and standalone
// mode.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]trips.TripSummary
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]trips.TripSummary)}
}

func (s *MemoryStore) Get(ctx context.Context, tripID string) (trips.TripSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[tripID]
	if !ok {
		return trips.TripSummary{}, ErrNotFound
	}
	return row, nil
}

func (s *MemoryStore) BatchPut(ctx context.Context, summaries []trips.TripSummary) error {
	if len(summaries) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds the store limit of %d", len(summaries), MaxBatchSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, next := range summaries {
		if next.TripID == "" {
			return fmt.Errorf("summary without tripid")
		}
		// derived fields are last-write-wins; the flag survives re-puts
		if prev, ok := s.rows[next.TripID]; ok {
			next.AggregationExecuted = prev.AggregationExecuted
		} else {
			next.AggregationExecuted = false
		}
		s.rows[next.TripID] = next
	}
	return nil
}

func (s *MemoryStore) MarkAggregated(ctx context.Context, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[tripID]
	if !ok {
		return ErrNotFound
	}
	row.AggregationExecuted = true
	s.rows[tripID] = row
	return nil
}

// Len reports how many summaries the store holds.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
