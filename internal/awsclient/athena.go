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
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"go.opentelemetry.io/otel/trace"
)

type AthenaClient struct {
	Client *athena.Client
	Tracer trace.Tracer
}

type athenaConfig struct {
	RoleARN      string
	Region       string
	applyConfigs []func(*aws.Config)
}

// AthenaOption is a functional option for GetAthena.
type AthenaOption func(*athenaConfig)

// WithAthenaRole sets the IAM Role ARN to assume (empty = no assume).
func WithAthenaRole(roleARN string) AthenaOption {
	return func(c *athenaConfig) {
		c.RoleARN = roleARN
	}
}

// WithAthenaRegion overrides the AWS region for this call.
func WithAthenaRegion(region string) AthenaOption {
	return func(c *athenaConfig) {
		c.Region = region
	}
}

func (m *Manager) GetAthena(ctx context.Context, opts ...AthenaOption) (*AthenaClient, error) {
	ac := athenaConfig{
		Region: m.baseCfg.Region,
	}
	for _, o := range opts {
		o(&ac)
	}

	key := roleKey{Region: ac.Region, RoleARN: ac.RoleARN}
	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if !ok {
		m.Lock()
		if provider, ok = m.providers[key]; !ok {
			if ac.RoleARN == "" {
				provider = m.baseCfg.Credentials
			} else {
				p := stscreds.NewAssumeRoleProvider(m.stsClient, ac.RoleARN, func(o *stscreds.AssumeRoleOptions) {
					o.RoleSessionName = m.sessionName
				})
				provider = aws.NewCredentialsCache(p)
			}
			m.providers[key] = provider
		}
		m.Unlock()
	}

	cfg := m.baseCfg.Copy()
	cfg.Region = ac.Region
	cfg.Credentials = provider
	for _, fn := range ac.applyConfigs {
		fn(&cfg)
	}

	return &AthenaClient{Client: athena.NewFromConfig(cfg), Tracer: m.tracer}, nil
}
