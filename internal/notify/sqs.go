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
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/triplake/triplake/internal/awsclient"
	"github.com/triplake/triplake/internal/logctx"
)

// SQSConfig configures the SQS notification backend.
type SQSConfig struct {
	QueueURL      string `mapstructure:"queue_url"`
	Region        string `mapstructure:"region"`
	RoleARN       string `mapstructure:"role_arn"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// SQSService long-polls an SQS queue for batch-file events. Messages are
// deleted only after the handler succeeds; failures leave them on the
// queue so the visibility timeout drives redelivery.
type SQSService struct {
	tracer  trace.Tracer
	awsMgr  *awsclient.Manager
	cfg     SQSConfig
	handler Handler
}

var _ Backend = (*SQSService)(nil)

func NewSQSService(awsMgr *awsclient.Manager, cfg SQSConfig, handler Handler) (*SQSService, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs backend requires a queue URL")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &SQSService{
		tracer:  otel.Tracer("github.com/triplake/triplake/internal/notify"),
		awsMgr:  awsMgr,
		cfg:     cfg,
		handler: handler,
	}, nil
}

func (ps *SQSService) GetName() string {
	return "sqs"
}

func (ps *SQSService) Run(doneCtx context.Context) error {
	ll := logctx.FromContext(doneCtx)
	ll.Info("Starting SQS notification service", "queueURL", ps.cfg.QueueURL)

	var opts []awsclient.SQSOption
	if ps.cfg.RoleARN != "" {
		opts = append(opts, awsclient.WithSQSRole(ps.cfg.RoleARN))
	}
	if ps.cfg.Region != "" {
		opts = append(opts, awsclient.WithSQSRegion(ps.cfg.Region))
	}
	sqsClient, err := ps.awsMgr.GetSQS(doneCtx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SQS client: %w", err)
	}

	for {
		select {
		case <-doneCtx.Done():
			ll.Info("SQS notification service stopped")
			return nil
		default:
		}

		result, err := sqsClient.Client.ReceiveMessage(doneCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(ps.cfg.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if doneCtx.Err() != nil {
				return nil
			}
			ll.Error("Failed to receive messages from SQS", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if len(result.Messages) == 0 {
			continue
		}

		ps.processMessages(doneCtx, sqsClient, result.Messages)
	}
}

func (ps *SQSService) processMessages(doneCtx context.Context, sqsClient *awsclient.SQSClient, messages []types.Message) {
	ll := logctx.FromContext(doneCtx)

	sem := make(chan struct{}, ps.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, message := range messages {
		select {
		case <-doneCtx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(msg types.Message) {
			defer wg.Done()
			defer func() { <-sem }()

			if msg.Body == nil {
				ll.Warn("Received SQS message with nil body")
				return
			}

			msgCtx, cancel := context.WithTimeout(doneCtx, 15*time.Minute)
			defer cancel()
			msgCtx, span := ps.tracer.Start(msgCtx, "notify.sqs.handleMessage")
			defer span.End()

			if err := ps.dispatch(msgCtx, []byte(*msg.Body)); err != nil {
				ll.Error("Failed to handle batch notification, leaving message for redelivery",
					"error", err,
					"messageId", aws.ToString(msg.MessageId))
				return
			}

			// delete on its own context so shutdown cannot orphan a
			// successfully handled message
			deleteCtx, deleteCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer deleteCancel()
			_, err := sqsClient.Client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(ps.cfg.QueueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				ll.Error("Failed to delete SQS message after successful handling",
					"error", err,
					"messageId", aws.ToString(msg.MessageId))
			}
		}(message)
	}

	wg.Wait()
}

func (ps *SQSService) dispatch(ctx context.Context, body []byte) error {
	notices, err := ParseNotices(body)
	if err != nil {
		return err
	}
	for _, notice := range notices {
		if err := ps.handler(ctx, notice); err != nil {
			return err
		}
	}
	return nil
}
