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

// Package objstore provides a unified interface for object storage with
// server-side selective scans, backed by S3 or the local filesystem.
package objstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Format identifies the row encoding of a scanned object.
type Format string

const (
	FormatCSV    Format = "csv"    // delimited, first line is the header
	FormatNDJSON Format = "ndjson" // one JSON object per line
)

// Row is one scanned record keyed by column header.
type Row = map[string]string

// ScanQuery is an equality predicate pushed down into a selective scan.
// Only rows whose Column equals Equals are transferred. Column matching is
// case-insensitive against the object's header.
type ScanQuery struct {
	Format Format
	Column string
	Equals string
}

// RowIterator streams the result pages of a selective scan. Next returns
// io.EOF once the scan is exhausted. Callers own Close.
type RowIterator interface {
	Next(ctx context.Context) ([]Row, error)
	Close() error
}

// Store is the object store contract used by the pipeline: whole-object
// get/put plus a predicate-filtered selective scan.
type Store interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Select(ctx context.Context, bucket, key string, q ScanQuery) (RowIterator, error)
}
