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

package tripapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplake/triplake/internal/tripagg"
	"github.com/triplake/triplake/internal/trips"
)

type fakeFetcher struct {
	calls int
	trips map[string]trips.AggregatedTrip
	err   error
}

func (f *fakeFetcher) GetAggregatedTrip(_ context.Context, tripID string) (trips.AggregatedTrip, error) {
	f.calls++
	if f.err != nil {
		return trips.AggregatedTrip{}, f.err
	}
	agg, ok := f.trips[tripID]
	if !ok {
		return trips.AggregatedTrip{}, tripagg.ErrTripNotFound
	}
	return agg, nil
}

func testTrip(id string) trips.AggregatedTrip {
	return trips.AggregatedTrip{
		TripSummary: trips.TripSummary{
			TripID:              id,
			DeviceID:            "device-1",
			StartDate:           "2023-01-02T03:04:00Z",
			EndDate:             "2023-01-02T03:24:00Z",
			DurationSeconds:     1200,
			EventCount:          21,
			AggregationExecuted: true,
		},
		Records: []trips.EventRecord{
			{EventID: "e-1", TripID: id, DeviceID: "device-1", EventType: trips.EventTypeEngineStart},
			{EventID: "e-2", TripID: id, DeviceID: "device-1", EventType: trips.EventTypeTripFinished},
		},
	}
}

func newTestServer(fetcher TripFetcher) *Server {
	return NewServer(Config{Addr: ":0", CacheTTL: time.Minute}, fetcher)
}

func TestGetTrip(t *testing.T) {
	fetcher := &fakeFetcher{trips: map[string]trips.AggregatedTrip{"t-1": testTrip("t-1")}}
	srv := newTestServer(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/t-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	var agg trips.AggregatedTrip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "t-1", agg.TripID)
	assert.Len(t, agg.Records, 2)
	assert.True(t, agg.AggregationExecuted)
}

func TestGetTripNotFound(t *testing.T) {
	fetcher := &fakeFetcher{trips: map[string]trips.AggregatedTrip{}}
	srv := newTestServer(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "missing")
}

func TestGetTripUpstreamError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("scan failed")}
	srv := newTestServer(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/t-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestCacheShortCircuitsFetcher(t *testing.T) {
	fetcher := &fakeFetcher{trips: map[string]trips.AggregatedTrip{"t-1": testTrip("t-1")}}
	srv := newTestServer(fetcher)

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/t-1", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, fetcher.calls, "repeated reads within the TTL should be served from cache")
}

func TestEtagRevalidation(t *testing.T) {
	fetcher := &fakeFetcher{trips: map[string]trips.AggregatedTrip{"t-1": testTrip("t-1")}}
	srv := newTestServer(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/t-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/trips/t-1", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, etag, rec.Header().Get("ETag"))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
