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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/triplake/triplake/internal/idgen"
)

// DuckDBConfig configures the embedded engine. DataRoot is the base of the
// hive-partitioned batch-file tree (year=Y/month=M/.../file).
type DuckDBConfig struct {
	Path          string `mapstructure:"path"` // database file, empty = in-memory
	DataRoot      string `mapstructure:"data_root"`
	DataFormat    string `mapstructure:"data_format"` // csv or ndjson
	ResultsDir    string `mapstructure:"results_dir"`
	Table         string `mapstructure:"table"`
	MemoryLimitMB int64  `mapstructure:"memory_limit_mb"`
}

func DefaultDuckDBConfig() DuckDBConfig {
	return DuckDBConfig{
		DataFormat: "ndjson",
		Table:      "events",
	}
}

// DuckDBEngine runs the rendered queries against an embedded DuckDB over
// the local batch-file tree. It bridges the one Athena-dialect function the
// templates use with a SQL macro, so the same query text runs on both
// engines.
type DuckDBEngine struct {
	db  *sql.DB
	cfg DuckDBConfig
	ids *idgen.ULIDGenerator
}

var _ QueryEngine = (*DuckDBEngine)(nil)

func NewDuckDBEngine(ctx context.Context, cfg DuckDBConfig) (*DuckDBEngine, error) {
	if cfg.Table == "" {
		cfg.Table = "events"
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = filepath.Join(os.TempDir(), "triplake-results")
	}
	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	e := &DuckDBEngine{db: db, cfg: cfg, ids: idgen.NewULIDGenerator()}
	if err := e.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *DuckDBEngine) bootstrap(ctx context.Context) error {
	if e.cfg.MemoryLimitMB > 0 {
		limit := fmt.Sprintf("SET memory_limit = '%dMB'", e.cfg.MemoryLimitMB)
		if _, err := e.db.ExecContext(ctx, limit); err != nil {
			return fmt.Errorf("set memory limit: %w", err)
		}
	}

	// the templates target the Athena dialect; DuckDB casts ISO-8601
	// strings to timestamps directly
	macro := "CREATE OR REPLACE MACRO from_iso8601_timestamp(s) AS CAST(s AS TIMESTAMP)"
	if _, err := e.db.ExecContext(ctx, macro); err != nil {
		return fmt.Errorf("create timestamp macro: %w", err)
	}

	return e.RefreshPartitions(ctx)
}

// RefreshPartitions recreates the events view over the partitioned tree,
// picking up partitions written since the last refresh.
func (e *DuckDBEngine) RefreshPartitions(ctx context.Context) error {
	var source string
	glob := e.globPattern()
	switch e.cfg.DataFormat {
	case "csv":
		source = fmt.Sprintf(
			"read_csv_auto('%s', header=true, hive_partitioning=true, hive_types_autocast=false, union_by_name=true)",
			glob)
	case "ndjson", "":
		source = fmt.Sprintf(
			"read_json_auto('%s', format='newline_delimited', hive_partitioning=true, hive_types_autocast=false, union_by_name=true)",
			glob)
	default:
		return fmt.Errorf("unsupported data format %q", e.cfg.DataFormat)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", e.cfg.Table, source)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("refresh %s view: %w", e.cfg.Table, err)
	}
	return nil
}

func (e *DuckDBEngine) globPattern() string {
	ext := "*.ndjson"
	if e.cfg.DataFormat == "csv" {
		ext = "*.csv"
	}
	return filepath.Join(e.cfg.DataRoot,
		"year=*", "month=*", "day=*", "hour=*", "minute=*", ext)
}

func (e *DuckDBEngine) ExecuteToLocation(ctx context.Context, query string) (QueryResult, error) {
	id := strings.ToLower(e.ids.Make(time.Now()))
	outPath := filepath.Join(e.cfg.ResultsDir, id+".csv")

	copyStmt := fmt.Sprintf("COPY (%s) TO '%s' (HEADER, DELIMITER ',')", query, outPath)
	if _, err := e.db.ExecContext(ctx, copyStmt); err != nil {
		return QueryResult{}, fmt.Errorf("execute query %s: %w", id, err)
	}

	return QueryResult{
		ExecutionID:    id,
		OutputLocation: "file://" + outPath,
	}, nil
}

func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}
