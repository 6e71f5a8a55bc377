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
	"github.com/triplake/triplake/internal/notify"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reducer",
		Short: "Run the notification-driven trip reduction service",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "reducer"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runReducer(doneCtx)
		},
	}
	rootCmd.AddCommand(cmd)
}

func runReducer(doneCtx context.Context) error {
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

	orch, closeEngine, err := newOrchestrator(ctx, cfg, awsMgr)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			ll.Error("Failed to close query engine", "error", err)
		}
	}()

	handler := func(ctx context.Context, notice notify.BatchNotice) error {
		return orch.RunCycle(ctx, notice.Bucket, notice.Key)
	}
	backend, err := notify.NewBackend(ctx, cfg.Notify, awsMgr, handler)
	if err != nil {
		return fmt.Errorf("failed to create notification backend: %w", err)
	}

	ll.Info("Reducer started", "backend", backend.GetName())
	healthServer.SetReady(true)
	defer healthServer.SetReady(false)

	return backend.Run(ctx)
}
