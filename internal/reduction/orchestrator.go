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

// Package reduction implements the batch reduction pipeline: query
// rendering, the per-notification reduction cycle, and the summary writer.
package reduction

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/triplake/triplake/internal/engine"
	"github.com/triplake/triplake/internal/idgen"
	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/partitions"
)

// Stage names the phases of one reduction cycle.
type Stage string

const (
	StagePrepareInput      Stage = "prepare_input"
	StageRefreshPartitions Stage = "refresh_partitions"
	StageRunQueries        Stage = "run_queries"
	StageWriteSummaries    Stage = "write_summaries"
)

// StageError is the terminal failure of a cycle, carrying the stage that
// failed. Cycles have no in-core retry; the notification source's
// redelivery policy owns that.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("reduction cycle failed in %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

var (
	meter = otel.Meter("github.com/triplake/triplake/internal/reduction")

	cycleDuration metric.Float64Histogram
	cycleCounter  metric.Int64Counter
)

func init() {
	var err error
	cycleDuration, err = meter.Float64Histogram(
		"triplake.reduction.cycle.duration",
		metric.WithUnit("s"),
		metric.WithDescription("The duration in seconds of one reduction cycle"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cycle.duration histogram: %w", err))
	}

	cycleCounter, err = meter.Int64Counter(
		"triplake.reduction.cycles",
		metric.WithDescription("Reduction cycles by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cycles counter: %w", err))
	}
}

// Orchestrator runs one reduction cycle per batch-file notification.
// Cycles are independent and may run concurrently; overlapping windows are
// tolerated because summary writes are idempotent merges.
type Orchestrator struct {
	engine    engine.QueryEngine
	templates QueryTemplates
	writer    *SummaryWriter
	cycleIDs  *idgen.ULIDGenerator
}

func NewOrchestrator(qe engine.QueryEngine, templates QueryTemplates, writer *SummaryWriter) *Orchestrator {
	return &Orchestrator{
		engine:    qe,
		templates: templates,
		writer:    writer,
		cycleIDs:  idgen.NewULIDGenerator(),
	}
}

// RunCycle drives one notification through
// PREPARE_INPUT -> REFRESH_PARTITIONS -> RUN_QUERIES -> WRITE_SUMMARIES.
// The two queries fan out concurrently and join fail-fast; WRITE_SUMMARIES
// never runs unless both succeeded, so a summaries-without-records state is
// never observable.
func (o *Orchestrator) RunCycle(ctx context.Context, bucket, key string) error {
	start := time.Now()
	cycleID := o.cycleIDs.Make(start)

	ll := logctx.FromContext(ctx).With(
		"cycleID", cycleID,
		"bucket", bucket,
		"key", key,
	)
	ctx = logctx.WithLogger(ctx, ll)

	err := o.runStages(ctx, key)

	elapsed := time.Since(start).Seconds()
	outcome := "done"
	if err != nil {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	cycleDuration.Record(ctx, elapsed, attrs)
	cycleCounter.Add(ctx, 1, attrs)

	if err != nil {
		ll.Error("Reduction cycle failed", "error", err, "elapsed", elapsed)
		return err
	}
	ll.Info("Reduction cycle done", "elapsed", elapsed)
	return nil
}

func (o *Orchestrator) runStages(ctx context.Context, key string) error {
	ll := logctx.FromContext(ctx)

	// PREPARE_INPUT
	pk := partitions.FromObjectKey(key)
	if pk.IsZero() {
		// every notification triggers a cycle, but an unpartitioned key
		// would reduce the whole table
		return &StageError{Stage: StagePrepareInput, Err: fmt.Errorf("no partition segments in key %q", key)}
	}
	filter := pk.FilterExpression("a")
	summarySQL := o.templates.TripSummaryQuery(filter)
	recordsSQL := o.templates.TripRecordsQuery(filter)
	ll = ll.With("window", pk.DateTag())
	ctx = logctx.WithLogger(ctx, ll)

	// REFRESH_PARTITIONS: strictly before RUN_QUERIES so the queries see
	// the partition that triggered this cycle
	if err := o.engine.RefreshPartitions(ctx); err != nil {
		return &StageError{Stage: StageRefreshPartitions, Err: err}
	}

	// RUN_QUERIES
	var summaryRes, recordsRes engine.QueryResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaryRes, err = o.engine.ExecuteToLocation(gctx, summarySQL)
		if err != nil {
			return fmt.Errorf("trip summary query: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		recordsRes, err = o.engine.ExecuteToLocation(gctx, recordsSQL)
		if err != nil {
			return fmt.Errorf("trip records query: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return &StageError{Stage: StageRunQueries, Err: err}
	}

	ll.Debug("Queries finished",
		"summaryLocation", summaryRes.OutputLocation,
		"recordsLocation", recordsRes.OutputLocation)

	// WRITE_SUMMARIES
	if _, err := o.writer.WriteSummaries(ctx, summaryRes.OutputLocation, recordsRes.OutputLocation); err != nil {
		return &StageError{Stage: StageWriteSummaries, Err: err}
	}
	return nil
}
