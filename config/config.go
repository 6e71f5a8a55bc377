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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/triplake/triplake/internal/engine"
	"github.com/triplake/triplake/internal/notify"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/tripagg"
	"github.com/triplake/triplake/internal/tripapi"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Summaries SummariesConfig `mapstructure:"summaries"`
	Notify    notify.Config   `mapstructure:"notify"`
	Reducer   ReducerConfig   `mapstructure:"reducer"`
	TripAPI   tripapi.Config  `mapstructure:"trip_api"`
	Trips     tripagg.Config  `mapstructure:"trips"`
}

// StorageConfig selects the object store backing both the lake reads and
// the aggregated-trip blobs.
type StorageConfig struct {
	Provider string          `mapstructure:"provider"` // "s3" or "fs"
	S3       S3StorageConfig `mapstructure:"s3"`
	FS       FSStorageConfig `mapstructure:"fs"`
}

type S3StorageConfig struct {
	Region      string `mapstructure:"region"`
	RoleARN     string `mapstructure:"role_arn"`
	Endpoint    string `mapstructure:"endpoint"`
	PathStyle   bool   `mapstructure:"path_style"`
	InsecureTLS bool   `mapstructure:"insecure_tls"`
}

type FSStorageConfig struct {
	Root string `mapstructure:"root"`
}

// EngineConfig selects the query engine used for reduction cycles.
type EngineConfig struct {
	Provider string              `mapstructure:"provider"` // "athena" or "duckdb"
	Athena   engine.AthenaConfig `mapstructure:"athena"`
	DuckDB   engine.DuckDBConfig `mapstructure:"duckdb"`
}

// Table returns the events table name of the selected engine.
func (c EngineConfig) Table() string {
	if c.Provider == "duckdb" {
		return c.DuckDB.Table
	}
	return c.Athena.Table
}

// SummariesConfig selects the trip summary store.
type SummariesConfig struct {
	Provider string            `mapstructure:"provider"` // "dynamo" or "memory"
	Dynamo   DynamoStoreConfig `mapstructure:"dynamo"`
}

type DynamoStoreConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type ReducerConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "TRIPLAKE" and the dot character
// in keys is replaced by an underscore. For example, "notify.backend"
// becomes "TRIPLAKE_NOTIFY_BACKEND".
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{Provider: "s3"},
		Engine: EngineConfig{
			Provider: "athena",
			Athena:   engine.DefaultAthenaConfig(),
			DuckDB:   engine.DefaultDuckDBConfig(),
		},
		Summaries: SummariesConfig{
			Provider: "dynamo",
			Dynamo:   DynamoStoreConfig{Table: "trip-summaries"},
		},
		Notify:  notify.DefaultConfig(),
		Reducer: ReducerConfig{ReportInterval: time.Minute},
		TripAPI: tripapi.DefaultConfig(),
		Trips: tripagg.Config{
			Bucket:     "triplake-trips",
			ScanFormat: objstore.FormatCSV,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TRIPLAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("notify.kafka.brokers"); b != "" {
		cfg.Notify.Kafka.Brokers = strings.Split(b, ",")
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Storage.Provider {
	case "s3", "fs":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.Engine.Provider {
	case "athena", "duckdb":
	default:
		return fmt.Errorf("unknown engine provider %q", c.Engine.Provider)
	}
	switch c.Summaries.Provider {
	case "dynamo", "memory":
	default:
		return fmt.Errorf("unknown summaries provider %q", c.Summaries.Provider)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
