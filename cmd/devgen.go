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
	"github.com/triplake/triplake/internal/devgen"
	"github.com/triplake/triplake/internal/logctx"
)

func init() {
	var fleetPath string

	cmd := &cobra.Command{
		Use:   "devgen",
		Short: "Generate synthetic fleet telemetry batches",
		Long:  `Generate batch telemetry objects for a YAML-defined device fleet, and optionally notify a running reducer of each object.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "devgen"
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
			fleet, err := devgen.LoadFleet(fleetPath)
			if err != nil {
				return err
			}

			awsMgr, err := newAWSManager(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create AWS client manager: %w", err)
			}
			store, err := newObjectStore(ctx, cfg, awsMgr)
			if err != nil {
				return err
			}

			written, err := devgen.NewGenerator(store, fleet).Run(ctx)
			if err != nil {
				return err
			}
			ll.Info("Fleet generation complete", "batches", written)
			return nil
		},
	}

	cmd.Flags().StringVar(&fleetPath, "fleet", "fleet.yaml", "path to the fleet definition file")

	rootCmd.AddCommand(cmd)
}
