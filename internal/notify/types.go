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

// Package notify routes batch-file-arrival notifications into reduction
// cycles. Every notice triggers exactly one cycle: no filtering, no
// deduplication. A failed handler leaves the message for redelivery, which
// is the only retry mechanism in the system.
package notify

import (
	"context"
)

// BatchNotice is one batch-file write completion.
type BatchNotice struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Handler processes one notice. Returning an error keeps the message on
// its source for redelivery.
type Handler func(ctx context.Context, notice BatchNotice) error

// Backend is a long-running notification source.
type Backend interface {
	Run(ctx context.Context) error
	GetName() string
}

// BackendType represents supported notification backend types.
type BackendType string

const (
	BackendTypeSQS   BackendType = "sqs"
	BackendTypeKafka BackendType = "kafka"
	BackendTypeHTTP  BackendType = "http"
)
