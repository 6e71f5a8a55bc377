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

// Package engine adapts batch query engines behind a submit-and-await
// contract. The reduction pipeline renders SQL and hands it here; the
// adapter owns submission, polling, and the result location.
package engine

import (
	"context"
)

// QueryResult is the terminal outcome of a successful query execution.
type QueryResult struct {
	ExecutionID    string
	OutputLocation string
}

// QueryEngine executes rendered queries against the partitioned event log.
type QueryEngine interface {
	// ExecuteToLocation runs one query to completion and returns where the
	// engine wrote the tabular result.
	ExecuteToLocation(ctx context.Context, sql string) (QueryResult, error)

	// RefreshPartitions reconciles the engine's partition catalog with the
	// storage layout. Must complete before querying newly arrived
	// partitions, they are invisible otherwise.
	RefreshPartitions(ctx context.Context) error
}
