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

package summarystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/triplake/triplake/internal/awsclient"
	"github.com/triplake/triplake/internal/trips"
)

// DynamoStore is a DynamoDB-backed Store, one item per trip keyed by
// tripid. Writes are field-scoped UpdateItem expressions rather than
// whole-item puts so the two write capabilities stay disjoint.
type DynamoStore struct {
	client *awsclient.DynamoDBClient
	table  string
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client *awsclient.DynamoDBClient, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

type dynamoSummary struct {
	TripID              string  `dynamodbav:"tripid"`
	DeviceID            string  `dynamodbav:"deviceid"`
	StartDate           string  `dynamodbav:"startdate"`
	EndDate             string  `dynamodbav:"enddate"`
	DurationSeconds     int64   `dynamodbav:"durationseconds"`
	EventCount          int64   `dynamodbav:"eventcount"`
	RecordsLocation     string  `dynamodbav:"recordslocation"`
	AggregationExecuted bool    `dynamodbav:"aggregationexecuted"`
	DataIntegrityRate   float64 `dynamodbav:"dataintegrityrate"`
}

func (s *DynamoStore) Get(ctx context.Context, tripID string) (trips.TripSummary, error) {
	out, err := s.client.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"tripid": &types.AttributeValueMemberS{Value: tripID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return trips.TripSummary{}, fmt.Errorf("get summary %s: %w", tripID, err)
	}
	if len(out.Item) == 0 {
		return trips.TripSummary{}, ErrNotFound
	}

	var item dynamoSummary
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return trips.TripSummary{}, fmt.Errorf("unmarshal summary %s: %w", tripID, err)
	}
	return trips.TripSummary{
		TripID:              item.TripID,
		DeviceID:            item.DeviceID,
		StartDate:           item.StartDate,
		EndDate:             item.EndDate,
		DurationSeconds:     item.DurationSeconds,
		EventCount:          item.EventCount,
		RecordsLocation:     item.RecordsLocation,
		AggregationExecuted: item.AggregationExecuted,
		DataIntegrityRate:   item.DataIntegrityRate,
	}, nil
}

func (s *DynamoStore) BatchPut(ctx context.Context, summaries []trips.TripSummary) error {
	if len(summaries) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds the store limit of %d", len(summaries), MaxBatchSize)
	}

	for _, summary := range summaries {
		if summary.TripID == "" {
			return fmt.Errorf("summary without tripid")
		}
		values, err := attributevalue.MarshalMap(map[string]any{
			":deviceid":        summary.DeviceID,
			":startdate":       summary.StartDate,
			":enddate":         summary.EndDate,
			":durationseconds": summary.DurationSeconds,
			":eventcount":      summary.EventCount,
			":recordslocation": summary.RecordsLocation,
			":integrityrate":   summary.DataIntegrityRate,
			":off":             false,
		})
		if err != nil {
			return fmt.Errorf("marshal summary %s: %w", summary.TripID, err)
		}

		// if_not_exists keeps this path from ever reverting the flag once
		// the aggregation cache has flipped it.
		_, err = s.client.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key:       map[string]types.AttributeValue{"tripid": &types.AttributeValueMemberS{Value: summary.TripID}},
			UpdateExpression: aws.String("SET deviceid = :deviceid, startdate = :startdate, " +
				"enddate = :enddate, durationseconds = :durationseconds, eventcount = :eventcount, " +
				"recordslocation = :recordslocation, dataintegrityrate = :integrityrate, " +
				"aggregationexecuted = if_not_exists(aggregationexecuted, :off)"),
			ExpressionAttributeValues: values,
		})
		if err != nil {
			return fmt.Errorf("put summary %s: %w", summary.TripID, err)
		}
	}
	return nil
}

func (s *DynamoStore) MarkAggregated(ctx context.Context, tripID string) error {
	_, err := s.client.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 map[string]types.AttributeValue{"tripid": &types.AttributeValueMemberS{Value: tripID}},
		UpdateExpression:    aws.String("SET aggregationexecuted = :on"),
		ConditionExpression: aws.String("attribute_exists(tripid)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":on": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrNotFound
		}
		return fmt.Errorf("mark aggregated %s: %w", tripID, err)
	}
	return nil
}
