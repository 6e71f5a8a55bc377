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

package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/triplake/triplake/internal/logctx"
)

// KafkaConfig configures the Kafka notification backend.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "triplake.batch-notices",
		GroupID: "triplake-reducer",
	}
}

// KafkaService consumes batch-file notices from a Kafka topic with a
// consumer group. Offsets commit only after the handler succeeds, so an
// uncommitted message redelivers after a rebalance or restart.
type KafkaService struct {
	cfg     KafkaConfig
	handler Handler
	reader  *kafka.Reader
}

var _ Backend = (*KafkaService)(nil)

func NewKafkaService(cfg KafkaConfig, handler Handler) (*KafkaService, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka backend requires brokers, topic and group id")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0, // synchronous commits only
	})

	return &KafkaService{cfg: cfg, handler: handler, reader: reader}, nil
}

func (ks *KafkaService) GetName() string {
	return "kafka"
}

func (ks *KafkaService) Run(doneCtx context.Context) error {
	ll := logctx.FromContext(doneCtx)
	ll.Info("Starting Kafka notification service",
		"topic", ks.cfg.Topic,
		"groupID", ks.cfg.GroupID)

	defer func() {
		if err := ks.reader.Close(); err != nil {
			ll.Error("Failed to close Kafka reader", "error", err)
		}
	}()

	for {
		msg, err := ks.reader.FetchMessage(doneCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || doneCtx.Err() != nil {
				ll.Info("Kafka notification service stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := ks.dispatch(doneCtx, msg.Value); err != nil {
			// no commit: the message redelivers
			ll.Error("Failed to handle batch notification, not committing offset",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset)
			continue
		}

		if err := ks.reader.CommitMessages(doneCtx, msg); err != nil {
			if doneCtx.Err() != nil {
				return nil
			}
			ll.Error("Failed to commit offset", "error", err)
		}
	}
}

func (ks *KafkaService) dispatch(ctx context.Context, body []byte) error {
	notices, err := ParseNotices(body)
	if err != nil {
		return err
	}
	for _, notice := range notices {
		if err := ks.handler(ctx, notice); err != nil {
			return err
		}
	}
	return nil
}
