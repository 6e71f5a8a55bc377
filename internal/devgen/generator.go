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

// Package devgen generates synthetic device-fleet telemetry for local
// development: batch files laid out exactly as production collectors write
// them, plus optional batch notifications to a running reducer.
package devgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/objstore"
	"github.com/triplake/triplake/internal/trips"
)

// DeviceSpec describes one simulated device.
type DeviceSpec struct {
	DeviceID    string  `yaml:"device_id"`
	Trips       int     `yaml:"trips"`
	TripMinutes int     `yaml:"trip_minutes"`
	GapMinutes  int     `yaml:"gap_minutes"`
	DropRate    float64 `yaml:"drop_rate"` // fraction of keep-alives lost in transit
}

// Fleet is the YAML fleet definition.
type Fleet struct {
	Bucket    string       `yaml:"bucket"`
	Prefix    string       `yaml:"prefix"`
	Start     string       `yaml:"start"` // RFC3339
	NotifyURL string       `yaml:"notify_url"`
	Seed      int64        `yaml:"seed"`
	Devices   []DeviceSpec `yaml:"devices"`
}

// LoadFleet reads and validates a fleet definition file.
func LoadFleet(path string) (Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("read fleet file: %w", err)
	}
	var fleet Fleet
	if err := yaml.Unmarshal(raw, &fleet); err != nil {
		return Fleet{}, fmt.Errorf("parse fleet file: %w", err)
	}
	if fleet.Bucket == "" {
		return Fleet{}, fmt.Errorf("fleet definition requires a bucket")
	}
	if len(fleet.Devices) == 0 {
		return Fleet{}, fmt.Errorf("fleet definition requires at least one device")
	}
	if fleet.Prefix == "" {
		fleet.Prefix = "telemetry"
	}
	if fleet.Start == "" {
		fleet.Start = "2023-01-02T03:04:00Z"
	}
	return fleet, nil
}

// lakeRow is the wire shape of a raw telemetry row: lake column names,
// which differ from the aggregated-trip API shape.
type lakeRow struct {
	EventID   string `json:"eventid"`
	TripID    string `json:"tripid"`
	DeviceID  string `json:"deviceid"`
	EventTime int64  `json:"eventtime"`
	EventDate string `json:"eventdate"`
	EventType string `json:"eventtype"`
}

// Generator writes batch telemetry objects for a simulated fleet.
type Generator struct {
	store      objstore.Store
	fleet      Fleet
	httpClient *http.Client
}

func NewGenerator(store objstore.Store, fleet Fleet) *Generator {
	return &Generator{
		store:      store,
		fleet:      fleet,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run generates all configured trips, writes one NDJSON batch object per
// partition minute, and notifies the reducer of every object written.
// Returns the number of batch objects written.
func (g *Generator) Run(ctx context.Context) (int, error) {
	ll := logctx.FromContext(ctx)

	start, err := time.Parse(time.RFC3339, g.fleet.Start)
	if err != nil {
		return 0, fmt.Errorf("parse fleet start time: %w", err)
	}
	rng := rand.New(rand.NewSource(g.fleet.Seed))

	byMinute := map[time.Time][]lakeRow{}
	for _, dev := range g.fleet.Devices {
		g.simulateDevice(dev, start, rng, byMinute)
	}

	minutes := make([]time.Time, 0, len(byMinute))
	for m := range byMinute {
		minutes = append(minutes, m)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].Before(minutes[j]) })

	written := 0
	for _, minute := range minutes {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		key, err := g.writeBatch(ctx, minute, byMinute[minute])
		if err != nil {
			return written, err
		}
		written++
		ll.Info("Wrote batch object", "bucket", g.fleet.Bucket, "key", key, "rows", len(byMinute[minute]))

		if g.fleet.NotifyURL != "" {
			if err := g.notify(ctx, key); err != nil {
				return written, fmt.Errorf("notify reducer of %s: %w", key, err)
			}
		}
	}
	return written, nil
}

func (g *Generator) simulateDevice(dev DeviceSpec, start time.Time, rng *rand.Rand, byMinute map[time.Time][]lakeRow) {
	if dev.Trips <= 0 {
		dev.Trips = 1
	}
	if dev.TripMinutes <= 0 {
		dev.TripMinutes = 5
	}
	if dev.GapMinutes <= 0 {
		dev.GapMinutes = 30
	}

	tripStart := start
	for range dev.Trips {
		tripID := uuid.NewString()
		for minute := 0; minute <= dev.TripMinutes; minute++ {
			eventTime := tripStart.Add(time.Duration(minute) * time.Minute)

			var eventType trips.EventType
			switch minute {
			case 0:
				eventType = trips.EventTypeEngineStart
			case dev.TripMinutes:
				eventType = trips.EventTypeTripFinished
			default:
				eventType = trips.EventTypeKeepAlive
				if rng.Float64() < dev.DropRate {
					continue
				}
			}

			partition := eventTime.UTC().Truncate(time.Minute)
			byMinute[partition] = append(byMinute[partition], lakeRow{
				EventID:   uuid.NewString(),
				TripID:    tripID,
				DeviceID:  dev.DeviceID,
				EventTime: eventTime.UnixMilli(),
				EventDate: eventTime.UTC().Format("2006-01-02T15:04:05Z"),
				EventType: string(eventType),
			})
		}
		tripStart = tripStart.Add(time.Duration(dev.TripMinutes+dev.GapMinutes) * time.Minute)
	}
}

func (g *Generator) writeBatch(ctx context.Context, minute time.Time, rows []lakeRow) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return "", fmt.Errorf("encode telemetry row: %w", err)
		}
	}

	key := fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/hour=%02d/minute=%02d/%s.ndjson",
		g.fleet.Prefix,
		minute.Year(), int(minute.Month()), minute.Day(),
		minute.Hour(), minute.Minute(),
		uuid.NewString())

	if err := g.store.Put(ctx, g.fleet.Bucket, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("write batch object: %w", err)
	}
	return key, nil
}

func (g *Generator) notify(ctx context.Context, key string) error {
	body, err := json.Marshal(map[string]string{
		"bucket": g.fleet.Bucket,
		"key":    key,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.fleet.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reducer returned status %d", resp.StatusCode)
	}
	return nil
}
