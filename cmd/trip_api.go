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

	"github.com/spf13/cobra"

	"github.com/triplake/triplake/config"
	"github.com/triplake/triplake/internal/healthcheck"
	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/tripagg"
	"github.com/triplake/triplake/internal/tripapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "trip-api",
		Short: "Run the aggregated trip read API",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "trip-api"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runTripAPI(doneCtx)
		},
	}
	rootCmd.AddCommand(cmd)
}

func runTripAPI(doneCtx context.Context) error {
	ctx := logctx.WithLogger(doneCtx, slog.Default())
	ll := logctx.FromContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			ll.Error("Health check server stopped", "error", err)
		}
	}()
	healthServer.SetStatus(healthcheck.StatusHealthy)

	awsMgr, err := newAWSManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create AWS client manager: %w", err)
	}

	store, err := newObjectStore(ctx, cfg, awsMgr)
	if err != nil {
		return err
	}
	summaries, err := newSummaryStore(ctx, cfg, awsMgr)
	if err != nil {
		return err
	}

	aggregator := tripagg.NewAggregator(summaries, store, cfg.Trips)
	server := tripapi.NewServer(cfg.TripAPI, aggregator)

	healthServer.SetReady(true)
	defer healthServer.SetReady(false)

	return server.Run(ctx)
}
