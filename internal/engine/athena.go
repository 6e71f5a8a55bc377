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

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/triplake/triplake/internal/awsclient"
	"github.com/triplake/triplake/internal/logctx"
)

// AthenaConfig configures the Athena-backed query engine.
type AthenaConfig struct {
	Workgroup      string        `mapstructure:"workgroup"`
	Database       string        `mapstructure:"database"`
	OutputLocation string        `mapstructure:"output_location"` // s3://bucket/prefix
	Table          string        `mapstructure:"table"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

func DefaultAthenaConfig() AthenaConfig {
	return AthenaConfig{
		Workgroup:    "primary",
		Database:     "telemetry",
		Table:        "events",
		PollInterval: 500 * time.Millisecond,
	}
}

// AthenaEngine submits queries to Athena and polls each execution to a
// terminal state.
type AthenaEngine struct {
	client *awsclient.AthenaClient
	cfg    AthenaConfig
}

var _ QueryEngine = (*AthenaEngine)(nil)

func NewAthenaEngine(client *awsclient.AthenaClient, cfg AthenaConfig) *AthenaEngine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &AthenaEngine{client: client, cfg: cfg}
}

func (e *AthenaEngine) ExecuteToLocation(ctx context.Context, sql string) (QueryResult, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(e.cfg.Database),
		},
	}
	if e.cfg.Workgroup != "" {
		input.WorkGroup = aws.String(e.cfg.Workgroup)
	}
	if e.cfg.OutputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{
			OutputLocation: aws.String(e.cfg.OutputLocation),
		}
	}

	started, err := e.client.Client.StartQueryExecution(ctx, input)
	if err != nil {
		return QueryResult{}, fmt.Errorf("start query execution: %w", err)
	}
	executionID := aws.ToString(started.QueryExecutionId)

	return e.await(ctx, executionID)
}

func (e *AthenaEngine) await(ctx context.Context, executionID string) (QueryResult, error) {
	ll := logctx.FromContext(ctx)

	for {
		out, err := e.client.Client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return QueryResult{}, fmt.Errorf("get query execution %s: %w", executionID, err)
		}

		status := out.QueryExecution.Status
		switch status.State {
		case types.QueryExecutionStateSucceeded:
			return QueryResult{
				ExecutionID:    executionID,
				OutputLocation: aws.ToString(out.QueryExecution.ResultConfiguration.OutputLocation),
			}, nil
		case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
			return QueryResult{}, fmt.Errorf("query execution %s %s: %s",
				executionID, status.State, aws.ToString(status.StateChangeReason))
		default:
			ll.Debug("Waiting for query execution",
				"executionID", executionID,
				"state", string(status.State))
		}

		select {
		case <-ctx.Done():
			return QueryResult{}, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

func (e *AthenaEngine) RefreshPartitions(ctx context.Context) error {
	if _, err := e.ExecuteToLocation(ctx, "MSCK REPAIR TABLE "+e.cfg.Table); err != nil {
		return fmt.Errorf("repair table %s: %w", e.cfg.Table, err)
	}
	return nil
}
