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

package objstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, it RowIterator) []Row {
	t.Helper()
	defer func() { require.NoError(t, it.Close()) }()

	var rows []Row
	for {
		batch, err := it.Next(context.Background())
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, batch...)
	}
}

func TestFSStore_GetPut(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Get(ctx, "bucket", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "bucket", "dir/obj.json", []byte(`{"a":1}`), "application/json"))

	rc, err := store.Get(ctx, "bucket", "dir/obj.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestFSStore_SelectCSV(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	csvBody := "tripid,eventid,eventtype\n" +
		"t-1,e-1,ENGINE_START\n" +
		"t-2,e-2,ENGINE_START\n" +
		"t-1,e-3,TRIP_FINISHED\n"
	require.NoError(t, store.Put(ctx, "b", "records.csv", []byte(csvBody), "text/csv"))

	it, err := store.Select(ctx, "b", "records.csv", ScanQuery{
		Format: FormatCSV,
		Column: "tripid",
		Equals: "t-1",
	})
	require.NoError(t, err)

	rows := collectRows(t, it)
	require.Len(t, rows, 2)
	assert.Equal(t, "e-1", rows[0]["eventid"])
	assert.Equal(t, "e-3", rows[1]["eventid"])
}

func TestFSStore_SelectCSV_MalformedRowSkipped(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	csvBody := "tripid,eventid\n" +
		"t-1,e-1\n" +
		"\"unterminated,oops\n" +
		"t-1,e-2\n"
	require.NoError(t, store.Put(ctx, "b", "records.csv", []byte(csvBody), "text/csv"))

	it, err := store.Select(ctx, "b", "records.csv", ScanQuery{Column: "tripid", Equals: "t-1"})
	require.NoError(t, err)

	rows := collectRows(t, it)
	assert.Len(t, rows, 1, "rows after the malformed quote are unrecoverable, the good row before it survives")
	assert.Equal(t, "e-1", rows[0]["eventid"])
}

func TestFSStore_SelectNDJSON(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	body := `{"tripid":"t-1","eventid":"e-1","eventtime":1672628645000}` + "\n" +
		`not json at all` + "\n" +
		`{"tripid":"t-2","eventid":"e-2","eventtime":1672628646000}` + "\n" +
		`{"tripid":"t-1","eventid":"e-3","eventtime":1672628647000}` + "\n"
	require.NoError(t, store.Put(ctx, "b", "batch.json", []byte(body), "application/json"))

	it, err := store.Select(ctx, "b", "batch.json", ScanQuery{
		Format: FormatNDJSON,
		Column: "tripid",
		Equals: "t-1",
	})
	require.NoError(t, err)

	rows := collectRows(t, it)
	require.Len(t, rows, 2)
	assert.Equal(t, "1672628645000", rows[0]["eventtime"], "numbers keep their literal form")
	assert.Equal(t, "e-3", rows[1]["eventid"])
}

func TestFSStore_SelectMissingObject(t *testing.T) {
	store := NewFSStore(t.TempDir())
	_, err := store.Select(context.Background(), "b", "nope.csv", ScanQuery{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    Location
		wantErr bool
	}{
		{in: "s3://bucket/path/to/obj.csv", want: Location{Bucket: "bucket", Key: "path/to/obj.csv"}},
		{in: "file:///tmp/results/x.csv", want: Location{Key: "/tmp/results/x.csv"}},
		{in: "relative/path.csv", want: Location{Key: "relative/path.csv"}},
		{in: "s3://bucketonly", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		loc, err := ParseLocation(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, loc)
	}
}

func TestScanQueryExpression(t *testing.T) {
	q := ScanQuery{Column: "tripid", Equals: "t-1"}
	assert.Equal(t, `SELECT * FROM S3Object s WHERE s."tripid" = 't-1'`, q.expression())

	quoted := ScanQuery{Column: "tripid", Equals: "o'brien"}
	assert.Equal(t, `SELECT * FROM S3Object s WHERE s."tripid" = 'o''brien'`, quoted.expression())
}
