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

	"github.com/triplake/triplake/internal/awsclient"
)

// Config selects and configures one notification backend.
type Config struct {
	Backend BackendType `mapstructure:"backend"`
	SQS     SQSConfig   `mapstructure:"sqs"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
	HTTP    HTTPConfig  `mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendTypeSQS,
		Kafka:   DefaultKafkaConfig(),
		HTTP:    HTTPConfig{Addr: ":8080"},
	}
}

// NewBackend creates a Backend for the configured type. The AWS manager
// may be nil for backends that do not need it.
func NewBackend(ctx context.Context, cfg Config, awsMgr *awsclient.Manager, handler Handler) (Backend, error) {
	switch cfg.Backend {
	case BackendTypeSQS:
		if awsMgr == nil {
			return nil, fmt.Errorf("sqs backend requires an AWS client manager")
		}
		return NewSQSService(awsMgr, cfg.SQS, handler)
	case BackendTypeKafka:
		return NewKafkaService(cfg.Kafka, handler)
	case BackendTypeHTTP:
		return NewHTTPService(cfg.HTTP, handler), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend)
	}
}
