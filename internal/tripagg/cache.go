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

// Package tripagg is the read path: lazily materialized, memoized per-trip
// aggregated views over the reduced-records files.
package tripagg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/summarystore"
	"github.com/triplake/triplake/internal/trips"
)

// ErrTripNotFound is returned when the summary store knows nothing about
// the trip. A client error, not retried.
var ErrTripNotFound = errors.New("trip not found")

var (
	meter = otel.Meter("github.com/triplake/triplake/internal/tripagg")

	readCounter  metric.Int64Counter
	scanDuration metric.Float64Histogram
)

func init() {
	var err error
	readCounter, err = meter.Int64Counter(
		"triplake.tripagg.reads",
		metric.WithDescription("Aggregated trip reads by path"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reads counter: %w", err))
	}

	scanDuration, err = meter.Float64Histogram(
		"triplake.tripagg.scan.duration",
		metric.WithUnit("s"),
		metric.WithDescription("The duration in seconds of a cold-path records scan"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create scan.duration histogram: %w", err))
	}
}

// Config holds the canonical location of materialized trip objects.
type Config struct {
	Bucket     string          `mapstructure:"bucket"`
	ScanFormat objstore.Format `mapstructure:"scan_format"`
}

// Aggregator materializes AggregatedTrips lazily and memoizes them in the
// object store. Concurrent cold-path requests for the same trip duplicate
// the scan but produce equivalent objects; all writes are idempotent.
type Aggregator struct {
	summaries summarystore.Store
	objects   objstore.Store
	cfg       Config
}

func NewAggregator(summaries summarystore.Store, objects objstore.Store, cfg Config) *Aggregator {
	if cfg.ScanFormat == "" {
		cfg.ScanFormat = objstore.FormatCSV
	}
	return &Aggregator{summaries: summaries, objects: objects, cfg: cfg}
}

func objectKey(tripID string) string {
	return "trips/" + tripID
}

// GetAggregatedTrip returns the trip's full materialized record set,
// computing and persisting it on first request.
func (a *Aggregator) GetAggregatedTrip(ctx context.Context, tripID string) (trips.AggregatedTrip, error) {
	ll := logctx.FromContext(ctx).With("tripID", tripID)

	summary, err := a.summaries.Get(ctx, tripID)
	if err != nil {
		if errors.Is(err, summarystore.ErrNotFound) {
			return trips.AggregatedTrip{}, fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
		}
		return trips.AggregatedTrip{}, fmt.Errorf("fetch summary: %w", err)
	}

	if summary.AggregationExecuted {
		agg, err := a.fetchMaterialized(ctx, tripID)
		if err == nil {
			readCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("path", "warm")))
			return agg, nil
		}
		if !errors.Is(err, objstore.ErrNotFound) {
			return trips.AggregatedTrip{}, err
		}
		// flag says the blob exists; recompute rather than fail the read
		ll.Warn("Aggregated trip object missing despite flag, recomputing")
	}

	agg, err := a.materialize(ctx, summary)
	if err != nil {
		return trips.AggregatedTrip{}, err
	}
	readCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("path", "cold")))
	return agg, nil
}

func (a *Aggregator) fetchMaterialized(ctx context.Context, tripID string) (trips.AggregatedTrip, error) {
	rc, err := a.objects.Get(ctx, a.cfg.Bucket, objectKey(tripID))
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return trips.AggregatedTrip{}, err
		}
		return trips.AggregatedTrip{}, fmt.Errorf("fetch aggregated trip %s: %w", tripID, err)
	}
	defer func() { _ = rc.Close() }()

	var agg trips.AggregatedTrip
	if err := json.NewDecoder(rc).Decode(&agg); err != nil {
		return trips.AggregatedTrip{}, fmt.Errorf("decode aggregated trip %s: %w", tripID, err)
	}
	return agg, nil
}

func (a *Aggregator) materialize(ctx context.Context, summary trips.TripSummary) (trips.AggregatedTrip, error) {
	ll := logctx.FromContext(ctx)

	records, err := a.scanRecords(ctx, summary)
	if err != nil {
		return trips.AggregatedTrip{}, err
	}

	// scan delivery order is an engine detail; enforce chronological order
	sort.Slice(records, func(i, j int) bool {
		if records[i].EventTime != records[j].EventTime {
			return records[i].EventTime < records[j].EventTime
		}
		return records[i].EventID < records[j].EventID
	})

	// the persisted object always carries the flag set: by the time any
	// reader can fetch it, the blob it describes exists
	summary.AggregationExecuted = true
	agg := trips.AggregatedTrip{TripSummary: summary, Records: records}
	body, err := json.Marshal(agg)
	if err != nil {
		return trips.AggregatedTrip{}, fmt.Errorf("marshal aggregated trip %s: %w", summary.TripID, err)
	}
	if err := a.objects.Put(ctx, a.cfg.Bucket, objectKey(summary.TripID), body, "application/json"); err != nil {
		return trips.AggregatedTrip{}, fmt.Errorf("persist aggregated trip %s: %w", summary.TripID, err)
	}

	// flipped only after the blob exists; the durable cache-fill invariant
	// is never rolled back
	if err := a.summaries.MarkAggregated(ctx, summary.TripID); err != nil {
		return trips.AggregatedTrip{}, fmt.Errorf("mark aggregated %s: %w", summary.TripID, err)
	}

	ll.Info("Materialized aggregated trip",
		"tripID", summary.TripID,
		"records", len(records))
	return agg, nil
}

func (a *Aggregator) scanRecords(ctx context.Context, summary trips.TripSummary) ([]trips.EventRecord, error) {
	ll := logctx.FromContext(ctx)

	loc, err := objstore.ParseLocation(summary.RecordsLocation)
	if err != nil {
		return nil, fmt.Errorf("parse records location %q: %w", summary.RecordsLocation, err)
	}

	start := time.Now()
	it, err := a.objects.Select(ctx, loc.Bucket, loc.Key, objstore.ScanQuery{
		Format: a.cfg.ScanFormat,
		Column: "tripid",
		Equals: summary.TripID,
	})
	if err != nil {
		return nil, fmt.Errorf("scan records %s: %w", loc, err)
	}
	defer func() { _ = it.Close() }()

	var records []trips.EventRecord
	for {
		batch, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan records %s: %w", loc, err)
		}
		for _, row := range batch {
			rec, err := trips.RecordFromRow(row)
			if err != nil {
				ll.Warn("Skipping unparseable record row", "error", err)
				continue
			}
			records = append(records, rec)
		}
	}

	scanDuration.Record(ctx, time.Since(start).Seconds())
	return records, nil
}
