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

package trips

import (
	"fmt"
	"strconv"
	"strings"
)

// partition columns ride along in hive-partitioned scans and are not part
// of the record payload.
var partitionColumns = map[string]struct{}{
	"year":   {},
	"month":  {},
	"day":    {},
	"hour":   {},
	"minute": {},
}

func normalizeRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// RecordFromRow maps a header-keyed row onto an EventRecord. Header matching
// is case-insensitive; unrecognized columns land in Payload, partition
// columns are dropped.
func RecordFromRow(row map[string]string) (EventRecord, error) {
	r := normalizeRow(row)

	rec := EventRecord{
		EventID:   r["eventid"],
		TripID:    r["tripid"],
		DeviceID:  r["deviceid"],
		EventDate: r["eventdate"],
		EventType: EventType(r["eventtype"]),
	}
	if rec.TripID == "" {
		return EventRecord{}, fmt.Errorf("row has no tripid")
	}
	if ts := r["eventtime"]; ts != "" {
		v, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return EventRecord{}, fmt.Errorf("bad eventtime %q: %w", ts, err)
		}
		rec.EventTime = v
	}

	for k, v := range r {
		switch k {
		case "eventid", "tripid", "deviceid", "eventtime", "eventdate", "eventtype":
			continue
		}
		if _, ok := partitionColumns[k]; ok {
			continue
		}
		if v == "" {
			continue
		}
		if rec.Payload == nil {
			rec.Payload = make(map[string]string)
		}
		rec.Payload[k] = v
	}
	return rec, nil
}

// SummaryFromRow maps one row of the trip summary result file onto a
// TripSummary. A trip whose ENGINE_START never matched carries empty
// startdate and duration columns; those map to the zero values.
func SummaryFromRow(row map[string]string) (TripSummary, error) {
	r := normalizeRow(row)

	s := TripSummary{
		TripID:    r["tripid"],
		DeviceID:  r["deviceid"],
		StartDate: r["startdate"],
		EndDate:   r["enddate"],
	}
	if s.TripID == "" {
		return TripSummary{}, fmt.Errorf("row has no tripid")
	}
	if d := r["durationseconds"]; d != "" {
		v, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return TripSummary{}, fmt.Errorf("bad durationseconds %q: %w", d, err)
		}
		s.DurationSeconds = v
	}
	if c := r["eventcount"]; c != "" {
		v, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return TripSummary{}, fmt.Errorf("bad eventcount %q: %w", c, err)
		}
		s.EventCount = v
	}
	return s, nil
}
