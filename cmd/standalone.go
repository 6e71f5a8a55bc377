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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/triplake/triplake/internal/engine"
	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/notify"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/reduction"
	"github.com/triplake/triplake/internal/summarystore"
	"github.com/triplake/triplake/internal/tripagg"
	"github.com/triplake/triplake/internal/tripapi"
)

func init() {
	var (
		dataRoot   string
		bucket     string
		prefix     string
		dataFormat string
		notifyAddr string
		apiAddr    string
	)

	cmd := &cobra.Command{
		Use:   "standalone",
		Short: "Run reducer and trip API in one process against local storage",
		Long:  `Run the reducer (with an HTTP notification endpoint), the trip read API, an embedded DuckDB engine, and an in-memory summary store in a single process. For demos and local development only: summaries do not survive a restart.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "standalone"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runStandalone(doneCtx, dataRoot, bucket, prefix, dataFormat, notifyAddr, apiAddr)
		},
	}

	cmd.Flags().StringVar(&dataRoot, "data-root", "", "directory holding the local object store")
	cmd.Flags().StringVar(&bucket, "bucket", "telemetry-dev", "bucket name under the data root")
	cmd.Flags().StringVar(&prefix, "prefix", "telemetry", "key prefix of the partitioned telemetry tree")
	cmd.Flags().StringVar(&dataFormat, "format", "ndjson", "batch file format (ndjson or csv)")
	cmd.Flags().StringVar(&notifyAddr, "notify-addr", ":8080", "listen address for batch notifications")
	cmd.Flags().StringVar(&apiAddr, "api-addr", ":8081", "listen address for the trip API")
	_ = cmd.MarkFlagRequired("data-root")

	rootCmd.AddCommand(cmd)
}

func runStandalone(doneCtx context.Context, dataRoot, bucket, prefix, dataFormat, notifyAddr, apiAddr string) error {
	ctx := logctx.WithLogger(doneCtx, slog.Default())
	ll := logctx.FromContext(ctx)

	absRoot, err := filepath.Abs(dataRoot)
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}

	store := objstore.NewFSStore(absRoot)
	summaries := summarystore.NewMemoryStore()

	eng, err := engine.NewDuckDBEngine(ctx, engine.DuckDBConfig{
		DataRoot:   filepath.Join(absRoot, bucket, prefix),
		DataFormat: dataFormat,
		ResultsDir: filepath.Join(absRoot, bucket, "results"),
		Table:      "events",
	})
	if err != nil {
		return fmt.Errorf("failed to open DuckDB engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			ll.Error("Failed to close DuckDB engine", "error", err)
		}
	}()

	writer := reduction.NewSummaryWriter(summaries, store, reduction.DefaultReportInterval)
	orch := reduction.NewOrchestrator(eng, reduction.NewQueryTemplates("events"), writer)
	handler := func(ctx context.Context, notice notify.BatchNotice) error {
		return orch.RunCycle(ctx, notice.Bucket, notice.Key)
	}
	notifyService := notify.NewHTTPService(notify.HTTPConfig{Addr: notifyAddr}, handler)

	aggregator := tripagg.NewAggregator(summaries, store, tripagg.Config{
		Bucket:     bucket,
		ScanFormat: objstore.FormatCSV,
	})
	apiServer := tripapi.NewServer(tripapi.Config{Addr: apiAddr}, aggregator)

	ll.Info("Standalone mode started",
		"dataRoot", absRoot,
		"bucket", bucket,
		"notifyAddr", notifyAddr,
		"apiAddr", apiAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return notifyService.Run(gctx) })
	g.Go(func() error { return apiServer.Run(gctx) })
	return g.Wait()
}
