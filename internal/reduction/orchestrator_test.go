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

package reduction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplake/triplake/internal/engine"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/summarystore"
)

// fakeEngine records calls and serves canned result locations. The records
// query is recognized by its ORDER BY tail.
type fakeEngine struct {
	mu           sync.Mutex
	refreshErr   error
	summaryErr   error
	recordsErr   error
	summaryLoc   string
	recordsLoc   string
	refreshCalls int
	executed     []string
}

func (f *fakeEngine) RefreshPartitions(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshErr
}

func (f *fakeEngine) ExecuteToLocation(ctx context.Context, sql string) (engine.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshCalls == 0 {
		return engine.QueryResult{}, errors.New("query before partition refresh")
	}
	f.executed = append(f.executed, sql)
	if strings.Contains(sql, "ORDER BY") {
		if f.recordsErr != nil {
			return engine.QueryResult{}, f.recordsErr
		}
		return engine.QueryResult{ExecutionID: "records", OutputLocation: f.recordsLoc}, nil
	}
	if f.summaryErr != nil {
		return engine.QueryResult{}, f.summaryErr
	}
	return engine.QueryResult{ExecutionID: "summary", OutputLocation: f.summaryLoc}, nil
}

const notificationKey = "telemetry/year=2023/month=01/day=02/hour=03/minute=04/part-0001"

func newTestOrchestrator(t *testing.T, fe *fakeEngine) (*Orchestrator, *summarystore.MemoryStore, objstore.Store) {
	t.Helper()
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)
	return NewOrchestrator(fe, NewQueryTemplates("events"), writer), store, objects
}

func TestRunCycle_Done(t *testing.T) {
	fe := &fakeEngine{
		summaryLoc: "s3://results/summary.csv",
		recordsLoc: "s3://results/records.csv",
	}
	o, store, objects := newTestOrchestrator(t, fe)
	ctx := context.Background()

	body := summaryHeader + "t-1,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n"
	require.NoError(t, objects.Put(ctx, "results", "summary.csv", []byte(body), "text/csv"))

	require.NoError(t, o.RunCycle(ctx, "batches", notificationKey))

	assert.Equal(t, 1, fe.refreshCalls)
	require.Len(t, fe.executed, 2)
	for _, sql := range fe.executed {
		assert.Contains(t, sql, "a.year = '2023' and a.month = '01' and a.day = '02' and a.hour = '03' and a.minute = '04'")
	}

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://results/records.csv", got.RecordsLocation)
}

func TestRunCycle_RefreshFailureIsFatal(t *testing.T) {
	fe := &fakeEngine{refreshErr: errors.New("catalog unavailable")}
	o, store, _ := newTestOrchestrator(t, fe)

	err := o.RunCycle(context.Background(), "batches", notificationKey)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageRefreshPartitions, stageErr.Stage)
	assert.Empty(t, fe.executed, "queries must not run after a failed refresh")
	assert.Zero(t, store.Len())
}

func TestRunCycle_QueryFailureSkipsWrite(t *testing.T) {
	fe := &fakeEngine{
		summaryLoc: "s3://results/summary.csv",
		recordsErr: errors.New("records query exploded"),
	}
	o, store, objects := newTestOrchestrator(t, fe)
	ctx := context.Background()

	body := summaryHeader + "t-1,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n"
	require.NoError(t, objects.Put(ctx, "results", "summary.csv", []byte(body), "text/csv"))

	err := o.RunCycle(ctx, "batches", notificationKey)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageRunQueries, stageErr.Stage)
	assert.Zero(t, store.Len(), "no summaries without records, ever")
}

func TestRunCycle_UnpartitionedKey(t *testing.T) {
	fe := &fakeEngine{}
	o, _, _ := newTestOrchestrator(t, fe)

	err := o.RunCycle(context.Background(), "batches", "some/random/object")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePrepareInput, stageErr.Stage)
	assert.Zero(t, fe.refreshCalls)
}
