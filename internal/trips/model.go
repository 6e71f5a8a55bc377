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

// Package trips holds the domain model shared by the reduction pipeline
// and the aggregation read path.
package trips

// EventType classifies a single telemetry event within a trip.
type EventType string

const (
	EventTypeEngineStart  EventType = "ENGINE_START"
	EventTypeKeepAlive    EventType = "KEEP_ALIVE"
	EventTypeTripFinished EventType = "TRIP_FINISHED"
)

// EventRecord is one telemetry datum as emitted by a device. Records are
// immutable once written to a batch file.
type EventRecord struct {
	EventID   string            `json:"event_id"`
	TripID    string            `json:"trip_id"`
	DeviceID  string            `json:"device_id"`
	EventTime int64             `json:"event_time"` // epoch millis
	EventDate string            `json:"event_date"` // ISO-8601
	EventType EventType         `json:"event_type"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// TripSummary is one row per finished trip, derived by a reduction cycle.
// Derived fields are written by the summary writer; AggregationExecuted is
// owned exclusively by the aggregation cache and flips false->true once.
type TripSummary struct {
	TripID              string  `json:"trip_id"`
	DeviceID            string  `json:"device_id"`
	StartDate           string  `json:"start_date,omitempty"`
	EndDate             string  `json:"end_date"`
	DurationSeconds     int64   `json:"duration_seconds"`
	EventCount          int64   `json:"event_count"`
	RecordsLocation     string  `json:"records_location"`
	AggregationExecuted bool    `json:"aggregation_executed"`
	DataIntegrityRate   float64 `json:"data_integrity_rate"`
}

// AggregatedTrip is a TripSummary plus the trip's full ordered record list.
// It doubles as the read API response body and the cached object layout.
type AggregatedTrip struct {
	TripSummary
	Records []EventRecord `json:"records"`
}
