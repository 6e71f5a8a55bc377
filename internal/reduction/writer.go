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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/summarystore"
	"github.com/triplake/triplake/internal/trips"
)

// DefaultReportInterval is how often a healthy device emits KEEP_ALIVE
// rows; the data integrity rate is computed against it.
const DefaultReportInterval = time.Minute

// SummaryWriter parses the trip summary result file and upserts one
// summary row per finished trip, in store-sized chunks. Unparseable rows
// are skipped with a warning, never fatal to the batch. Partial chunk
// failures are reported joined and not rolled back; the next successful
// cycle re-derives the same rows.
type SummaryWriter struct {
	store          summarystore.Store
	objects        objstore.Store
	reportInterval time.Duration
}

func NewSummaryWriter(store summarystore.Store, objects objstore.Store, reportInterval time.Duration) *SummaryWriter {
	if reportInterval <= 0 {
		reportInterval = DefaultReportInterval
	}
	return &SummaryWriter{
		store:          store,
		objects:        objects,
		reportInterval: reportInterval,
	}
}

// WriteSummaries streams the summary result file at summaryLocation and
// writes its rows to the summary store, attaching recordsLocation to every
// row. Returns how many rows were written.
func (w *SummaryWriter) WriteSummaries(ctx context.Context, summaryLocation, recordsLocation string) (int, error) {
	ll := logctx.FromContext(ctx)

	loc, err := objstore.ParseLocation(summaryLocation)
	if err != nil {
		return 0, fmt.Errorf("parse summary location: %w", err)
	}
	rc, err := w.objects.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return 0, fmt.Errorf("fetch summary result %s: %w", summaryLocation, err)
	}
	defer func() { _ = rc.Close() }()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			ll.Info("Summary result file is empty, no finished trips in this window")
			return 0, nil
		}
		return 0, fmt.Errorf("read summary header: %w", err)
	}

	var summaries []trips.TripSummary
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				ll.Warn("Skipping malformed summary row", "error", err)
				continue
			}
			return 0, fmt.Errorf("read summary row: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = record[i]
			}
		}
		summary, err := trips.SummaryFromRow(row)
		if err != nil {
			ll.Warn("Skipping unparseable summary row", "error", err)
			continue
		}
		summary.RecordsLocation = recordsLocation
		summary.DataIntegrityRate = w.integrityRate(summary)
		summaries = append(summaries, summary)
	}

	written := 0
	var errs *multierror.Error
	for start := 0; start < len(summaries); start += summarystore.MaxBatchSize {
		end := min(start+summarystore.MaxBatchSize, len(summaries))
		if err := w.store.BatchPut(ctx, summaries[start:end]); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("batch [%d:%d]: %w", start, end, err))
			continue
		}
		written += end - start
	}

	ll.Info("Wrote trip summaries",
		"rows", len(summaries),
		"written", written)
	return written, errs.ErrorOrNil()
}

// integrityRate relates the observed event count to the count a healthy
// device would have produced over the trip duration: one row per report
// interval plus the ENGINE_START and TRIP_FINISHED rows. Zero when the
// trip's start is unknown.
func (w *SummaryWriter) integrityRate(s trips.TripSummary) float64 {
	if s.StartDate == "" || s.DurationSeconds < 0 {
		return 0
	}
	expected := float64(s.DurationSeconds)/w.reportInterval.Seconds() + 2
	return float64(s.EventCount) / expected
}
