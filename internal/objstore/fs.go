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

package objstore

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore is a filesystem-backed Store rooted at a base directory. Buckets
// map to subdirectories; an empty bucket with an absolute key resolves the
// path directly. Select honors the same pushdown contract as S3: only
// matching rows come back.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) resolve(bucket, key string) string {
	if bucket == "" {
		if filepath.IsAbs(key) {
			return key
		}
		return filepath.Join(s.root, key)
	}
	return filepath.Join(s.root, bucket, key)
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(bucket, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}
	return f, nil
}

func (s *FSStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	path := s.resolve(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir for %s/%s: %w", bucket, key, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("write %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *FSStore) Select(ctx context.Context, bucket, key string, q ScanQuery) (RowIterator, error) {
	f, err := os.Open(s.resolve(bucket, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}

	switch q.Format {
	case FormatCSV, "":
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		header, err := r.Read()
		if err != nil {
			_ = f.Close()
			if err == io.EOF {
				return &emptyIterator{}, nil
			}
			return nil, fmt.Errorf("read header of %s/%s: %w", bucket, key, err)
		}
		return &fsCSVIterator{f: f, r: r, header: header, q: q}, nil
	case FormatNDJSON:
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		return &fsNDJSONIterator{f: f, sc: sc, q: q}, nil
	default:
		_ = f.Close()
		return nil, fmt.Errorf("unsupported scan format %q", q.Format)
	}
}

type emptyIterator struct{}

func (it *emptyIterator) Next(context.Context) ([]Row, error) { return nil, io.EOF }
func (it *emptyIterator) Close() error                        { return nil }

type fsCSVIterator struct {
	f      *os.File
	r      *csv.Reader
	header []string
	q      ScanQuery
	done   bool
}

func (it *fsCSVIterator) Next(ctx context.Context) ([]Row, error) {
	if it.done {
		return nil, io.EOF
	}
	var batch []Row
	for len(batch) < scanBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := it.r.Read()
		if err == io.EOF {
			it.done = true
			break
		}
		if err != nil {
			// malformed rows are skipped, never fatal to the scan
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, err
		}
		row := rowFromCSVRecord(it.header, record)
		if it.q.matches(row) {
			batch = append(batch, row)
		}
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (it *fsCSVIterator) Close() error {
	return it.f.Close()
}

type fsNDJSONIterator struct {
	f    *os.File
	sc   *bufio.Scanner
	q    ScanQuery
	done bool
}

func (it *fsNDJSONIterator) Next(ctx context.Context) ([]Row, error) {
	if it.done {
		return nil, io.EOF
	}
	var batch []Row
	for len(batch) < scanBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !it.sc.Scan() {
			it.done = true
			if err := it.sc.Err(); err != nil {
				return nil, err
			}
			break
		}
		line := it.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		row, err := rowFromJSONLine(line)
		if err != nil {
			continue
		}
		if it.q.matches(row) {
			batch = append(batch, row)
		}
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (it *fsNDJSONIterator) Close() error {
	return it.f.Close()
}
