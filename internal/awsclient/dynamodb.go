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

package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/otel/trace"
)

type DynamoDBClient struct {
	Client *dynamodb.Client
	Tracer trace.Tracer
}

type dynamoConfig struct {
	RoleARN      string
	Region       string
	applyConfigs []func(*aws.Config)
	applyDDBs    []func(*dynamodb.Options)
}

// DynamoDBOption is a functional option for GetDynamoDB.
type DynamoDBOption func(*dynamoConfig)

// WithDynamoDBRole sets the IAM Role ARN to assume (empty = no assume).
func WithDynamoDBRole(roleARN string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.RoleARN = roleARN
	}
}

// WithDynamoDBRegion overrides the AWS region for this call.
func WithDynamoDBRegion(region string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.Region = region
	}
}

// WithDynamoDBEndpoint forces a custom endpoint (eg DynamoDB Local).
func WithDynamoDBEndpoint(url string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.applyDDBs = append(c.applyDDBs, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(url)
		})
	}
}

func (m *Manager) GetDynamoDB(ctx context.Context, opts ...DynamoDBOption) (*DynamoDBClient, error) {
	dc := dynamoConfig{
		Region: m.baseCfg.Region,
	}
	for _, o := range opts {
		o(&dc)
	}

	key := roleKey{Region: dc.Region, RoleARN: dc.RoleARN}
	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if !ok {
		m.Lock()
		if provider, ok = m.providers[key]; !ok {
			if dc.RoleARN == "" {
				provider = m.baseCfg.Credentials
			} else {
				p := stscreds.NewAssumeRoleProvider(m.stsClient, dc.RoleARN, func(o *stscreds.AssumeRoleOptions) {
					o.RoleSessionName = m.sessionName
				})
				provider = aws.NewCredentialsCache(p)
			}
			m.providers[key] = provider
		}
		m.Unlock()
	}

	cfg := m.baseCfg.Copy()
	cfg.Region = dc.Region
	cfg.Credentials = provider
	for _, fn := range dc.applyConfigs {
		fn(&cfg)
	}

	return &DynamoDBClient{Client: dynamodb.NewFromConfig(cfg, dc.applyDDBs...), Tracer: m.tracer}, nil
}
