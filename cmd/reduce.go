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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/triplake/triplake/config"
	"github.com/triplake/triplake/internal/logctx"
)

func init() {
	var bucket, key string

	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Run exactly one reduction cycle for a batch object",
		Long:  `Run a single reduction cycle against the given batch object key, for backfill and debugging. The key must carry the full year/month/day/hour/minute partition path.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "reduce"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			ctx := logctx.WithLogger(doneCtx, slog.Default())
			ll := logctx.FromContext(ctx)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

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

			return orch.RunCycle(ctx, bucket, key)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket holding the batch object")
	cmd.Flags().StringVar(&key, "key", "", "partitioned key of the batch object")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")

	rootCmd.AddCommand(cmd)
}
