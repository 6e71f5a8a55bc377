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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/summarystore"
)

const summaryHeader = "tripid,deviceid,startdate,enddate,durationseconds,eventcount\n"

func writeSummaryFile(t *testing.T, store objstore.Store, body string) string {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), "results", "summary.csv", []byte(body), "text/csv"))
	return "s3://results/summary.csv"
}

func TestSummaryWriter_WritesRows(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)
	ctx := context.Background()

	body := summaryHeader +
		"t-1,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n" +
		"t-2,d-2,,2023-01-02T03:04:09Z,,1\n"
	loc := writeSummaryFile(t, objects, body)

	written, err := writer.WriteSummaries(ctx, loc, "s3://results/records.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	s1, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://results/records.csv", s1.RecordsLocation)
	assert.Equal(t, int64(240), s1.DurationSeconds)
	// 6 events over 240s at one report per minute: expected 240/60+2 = 6
	assert.InDelta(t, 1.0, s1.DataIntegrityRate, 0.001)

	s2, err := store.Get(ctx, "t-2")
	require.NoError(t, err)
	assert.Empty(t, s2.StartDate)
	assert.Zero(t, s2.DataIntegrityRate, "unknown start means no integrity estimate")
}

func TestSummaryWriter_SkipsUnparseableRows(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)

	body := summaryHeader +
		"t-1,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n" +
		",d-9,,,,\n" + // no tripid
		"t-3,d-3,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,not-a-number,6\n" +
		"t-2,d-2,2023-01-02T03:00:09Z,2023-01-02T03:04:09Z,240,5\n"
	loc := writeSummaryFile(t, objects, body)

	written, err := writer.WriteSummaries(context.Background(), loc, "s3://results/records.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 2, store.Len())
}

func TestSummaryWriter_EmptyResult(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)

	loc := writeSummaryFile(t, objects, "")
	written, err := writer.WriteSummaries(context.Background(), loc, "s3://results/records.csv")
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, store.Len())
}

func TestSummaryWriter_DuplicateRowAcrossCycles(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)
	ctx := context.Background()

	body := summaryHeader + "t-1,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n"
	loc := writeSummaryFile(t, objects, body)

	first, err := writer.WriteSummaries(ctx, loc, "s3://results/records.csv")
	require.NoError(t, err)
	second, err := writer.WriteSummaries(ctx, loc, "s3://results/records.csv")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.Len(), "reprocessing yields exactly one logical summary")
}

func TestSummaryWriter_ChunksAtStoreLimit(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	store := summarystore.NewMemoryStore()
	writer := NewSummaryWriter(store, objects, time.Minute)

	body := summaryHeader
	for i := 0; i < summarystore.MaxBatchSize*2+3; i++ {
		body += fmt.Sprintf("t-%d,d-1,2023-01-02T03:00:05Z,2023-01-02T03:04:05Z,240,6\n", i)
	}
	loc := writeSummaryFile(t, objects, body)

	written, err := writer.WriteSummaries(context.Background(), loc, "s3://results/records.csv")
	require.NoError(t, err)
	assert.Equal(t, summarystore.MaxBatchSize*2+3, written)
	assert.Equal(t, summarystore.MaxBatchSize*2+3, store.Len())
}

func TestSummaryWriter_MissingResultFile(t *testing.T) {
	objects := objstore.NewFSStore(t.TempDir())
	writer := NewSummaryWriter(summarystore.NewMemoryStore(), objects, time.Minute)

	_, err := writer.WriteSummaries(context.Background(), "s3://results/absent.csv", "s3://results/records.csv")
	assert.Error(t, err)
}
