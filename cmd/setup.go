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

	"github.com/triplake/triplake/config"
	"github.com/triplake/triplake/internal/awsclient"
	"github.com/triplake/triplake/internal/engine"
	"github.com/triplake/triplake/internal/notify"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/reduction"
	"github.com/triplake/triplake/internal/summarystore"
)

// needsAWS reports whether any configured backend talks to an AWS API.
func needsAWS(cfg *config.Config) bool {
	return cfg.Storage.Provider == "s3" ||
		cfg.Engine.Provider == "athena" ||
		cfg.Summaries.Provider == "dynamo" ||
		cfg.Notify.Backend == notify.BackendTypeSQS
}

func newAWSManager(ctx context.Context, cfg *config.Config) (*awsclient.Manager, error) {
	if !needsAWS(cfg) {
		return nil, nil
	}
	return awsclient.NewManager(ctx)
}

func newObjectStore(ctx context.Context, cfg *config.Config, awsMgr *awsclient.Manager) (objstore.Store, error) {
	switch cfg.Storage.Provider {
	case "fs":
		if cfg.Storage.FS.Root == "" {
			return nil, fmt.Errorf("fs storage requires a root directory")
		}
		return objstore.NewFSStore(cfg.Storage.FS.Root), nil
	case "s3":
		var opts []awsclient.S3Option
		if cfg.Storage.S3.RoleARN != "" {
			opts = append(opts, awsclient.WithRole(cfg.Storage.S3.RoleARN))
		}
		if cfg.Storage.S3.Region != "" {
			opts = append(opts, awsclient.WithRegion(cfg.Storage.S3.Region))
		}
		if cfg.Storage.S3.Endpoint != "" {
			opts = append(opts, awsclient.WithEndpoint(cfg.Storage.S3.Endpoint))
		}
		if cfg.Storage.S3.PathStyle {
			opts = append(opts, awsclient.WithPathStyle())
		}
		if cfg.Storage.S3.InsecureTLS {
			opts = append(opts, awsclient.WithInsecureTLS())
		}
		client, err := awsMgr.GetS3(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return objstore.NewS3Store(client), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// newQueryEngine returns the engine and a close function, which is a no-op
// for engines without local state.
func newQueryEngine(ctx context.Context, cfg *config.Config, awsMgr *awsclient.Manager) (engine.QueryEngine, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Engine.Provider {
	case "athena":
		client, err := awsMgr.GetAthena(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Athena client: %w", err)
		}
		return engine.NewAthenaEngine(client, cfg.Engine.Athena), noop, nil
	case "duckdb":
		eng, err := engine.NewDuckDBEngine(ctx, cfg.Engine.DuckDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open DuckDB engine: %w", err)
		}
		return eng, eng.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

func newSummaryStore(ctx context.Context, cfg *config.Config, awsMgr *awsclient.Manager) (summarystore.Store, error) {
	switch cfg.Summaries.Provider {
	case "memory":
		return summarystore.NewMemoryStore(), nil
	case "dynamo":
		var opts []awsclient.DynamoDBOption
		if cfg.Summaries.Dynamo.Region != "" {
			opts = append(opts, awsclient.WithDynamoDBRegion(cfg.Summaries.Dynamo.Region))
		}
		if cfg.Summaries.Dynamo.Endpoint != "" {
			opts = append(opts, awsclient.WithDynamoDBEndpoint(cfg.Summaries.Dynamo.Endpoint))
		}
		client, err := awsMgr.GetDynamoDB(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
		}
		return summarystore.NewDynamoStore(client, cfg.Summaries.Dynamo.Table), nil
	default:
		return nil, fmt.Errorf("unknown summaries provider %q", cfg.Summaries.Provider)
	}
}

// newOrchestrator builds the full reduction pipeline from config.
func newOrchestrator(ctx context.Context, cfg *config.Config, awsMgr *awsclient.Manager) (*reduction.Orchestrator, func() error, error) {
	store, err := newObjectStore(ctx, cfg, awsMgr)
	if err != nil {
		return nil, nil, err
	}
	eng, closeEngine, err := newQueryEngine(ctx, cfg, awsMgr)
	if err != nil {
		return nil, nil, err
	}
	summaries, err := newSummaryStore(ctx, cfg, awsMgr)
	if err != nil {
		_ = closeEngine()
		return nil, nil, err
	}

	writer := reduction.NewSummaryWriter(summaries, store, cfg.Reducer.ReportInterval)
	templates := reduction.NewQueryTemplates(cfg.Engine.Table())
	return reduction.NewOrchestrator(eng, templates, writer), closeEngine, nil
}
