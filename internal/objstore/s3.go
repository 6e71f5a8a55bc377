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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/triplake/triplake/internal/awsclient"
)

var (
	selectRowsScanned metric.Int64Counter
	putCount          metric.Int64Counter
	putBytes          metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/triplake/triplake/internal/objstore")

	var err error
	selectRowsScanned, err = meter.Int64Counter(
		"triplake.objstore.select.rows",
		metric.WithDescription("Number of rows returned by selective scans"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create select.rows counter: %w", err))
	}

	putCount, err = meter.Int64Counter(
		"triplake.objstore.put.count",
		metric.WithDescription("Number of object puts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create put.count counter: %w", err))
	}

	putBytes, err = meter.Int64Counter(
		"triplake.objstore.put.bytes",
		metric.WithDescription("Bytes written to the object store"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create put.bytes counter: %w", err))
	}
}

// S3Store is an S3-backed Store. Selective scans use S3 Select so only
// matching rows cross the wire; works against MinIO with endpoint and
// path-style options on the underlying client.
type S3Store struct {
	client   *awsclient.S3Client
	uploader *manager.Uploader
}

var _ Store = (*S3Store)(nil)

func NewS3Store(client *awsclient.S3Client) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client.Client),
	}
}

func s3ErrorIs404(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	// MinIO and some S3-compatible stores answer Select on a missing key
	// with a bare error code instead of the modeled type.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	ctx, span := s.client.Tracer.Start(ctx, "objstore.Put")
	defer span.End()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}

	putCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	putBytes.Add(ctx, int64(len(body)), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (s *S3Store) Select(ctx context.Context, bucket, key string, q ScanQuery) (RowIterator, error) {
	input := &s3.SelectObjectContentInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Expression:     aws.String(q.expression()),
		ExpressionType: types.ExpressionTypeSql,
		// JSON output keys every record by column header regardless of the
		// input encoding, so downstream row mapping is uniform.
		OutputSerialization: &types.OutputSerialization{
			JSON: &types.JSONOutput{},
		},
	}
	switch q.Format {
	case FormatCSV, "":
		input.InputSerialization = &types.InputSerialization{
			CSV: &types.CSVInput{FileHeaderInfo: types.FileHeaderInfoUse},
		}
	case FormatNDJSON:
		input.InputSerialization = &types.InputSerialization{
			JSON: &types.JSONInput{Type: types.JSONTypeLines},
		}
	default:
		return nil, fmt.Errorf("unsupported scan format %q", q.Format)
	}

	out, err := s.client.Client.SelectObjectContent(ctx, input)
	if err != nil {
		if s3ErrorIs404(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select s3://%s/%s: %w", bucket, key, err)
	}

	return &s3SelectIterator{
		bucket: bucket,
		stream: out.GetStream(),
	}, nil
}

// expression renders the pushdown predicate as an S3 Select SQL expression.
func (q ScanQuery) expression() string {
	if q.Column == "" {
		return "SELECT * FROM S3Object s"
	}
	value := strings.ReplaceAll(q.Equals, "'", "''")
	return fmt.Sprintf("SELECT * FROM S3Object s WHERE s.%q = '%s'", q.Column, value)
}

type s3SelectIterator struct {
	bucket  string
	stream  *s3.SelectObjectContentEventStream
	partial []byte
	done    bool
}

func (it *s3SelectIterator) Next(ctx context.Context) ([]Row, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.done {
			return nil, io.EOF
		}

		event, ok := <-it.stream.Events()
		if !ok {
			it.done = true
			if err := it.stream.Err(); err != nil {
				return nil, fmt.Errorf("select stream: %w", err)
			}
			if batch := it.drain(nil, true); len(batch) > 0 {
				return batch, nil
			}
			return nil, io.EOF
		}

		switch v := event.(type) {
		case *types.SelectObjectContentEventStreamMemberRecords:
			if batch := it.drain(v.Value.Payload, false); len(batch) > 0 {
				selectRowsScanned.Add(ctx, int64(len(batch)),
					metric.WithAttributes(attribute.String("bucket", it.bucket)))
				return batch, nil
			}
		case *types.SelectObjectContentEventStreamMemberEnd:
			it.done = true
			if batch := it.drain(nil, true); len(batch) > 0 {
				return batch, nil
			}
			return nil, io.EOF
		default:
			// progress/stats events carry no rows
		}
	}
}

// drain appends a payload to the carry-over buffer and parses every
// complete NDJSON line out of it. Records can split across stream events.
func (it *s3SelectIterator) drain(payload []byte, flush bool) []Row {
	it.partial = append(it.partial, payload...)

	var batch []Row
	for {
		idx := bytes.IndexByte(it.partial, '\n')
		if idx < 0 {
			break
		}
		line := it.partial[:idx]
		it.partial = it.partial[idx+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if row, err := rowFromJSONLine(line); err == nil {
			batch = append(batch, row)
		}
	}
	if flush && len(bytes.TrimSpace(it.partial)) > 0 {
		if row, err := rowFromJSONLine(it.partial); err == nil {
			batch = append(batch, row)
		}
		it.partial = nil
	}
	return batch
}

func (it *s3SelectIterator) Close() error {
	return it.stream.Close()
}
