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

package reduction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triplake/triplake/internal/partitions"
)

func TestQueryTemplates_Deterministic(t *testing.T) {
	templates := NewQueryTemplates("events")
	filter := "a.year = '2023' and a.month = '01'"

	assert.Equal(t, templates.TripSummaryQuery(filter), templates.TripSummaryQuery(filter))
	assert.Equal(t, templates.TripRecordsQuery(filter), templates.TripRecordsQuery(filter))
}

func TestQueryTemplates_BothEmbedIdenticalFilter(t *testing.T) {
	templates := NewQueryTemplates("events")
	pk := partitions.FromObjectKey("telemetry/year=2023/month=01/day=02/hour=03/minute=04/part-0001")
	filter := pk.FilterExpression("a")

	want := "a.year = '2023' and a.month = '01' and a.day = '02' and a.hour = '03' and a.minute = '04'"
	require.Equal(t, want, filter)

	summary := templates.TripSummaryQuery(filter)
	records := templates.TripRecordsQuery(filter)
	assert.Contains(t, summary, want)
	assert.Contains(t, records, want)
}

func TestTripSummaryQuery_Shape(t *testing.T) {
	q := NewQueryTemplates("events").TripSummaryQuery("a.year = '2023'")

	assert.Contains(t, q, "WHERE a.eventtype = 'TRIP_FINISHED'")
	assert.Contains(t, q, "ON s.tripid = a.tripid AND s.eventtype = 'ENGINE_START'")
	assert.Contains(t, q, "date_diff('second', from_iso8601_timestamp(s.eventdate), from_iso8601_timestamp(a.eventdate))")
	// the event count is deliberately unbounded by the partition filter
	assert.Contains(t, q, "(SELECT count(*) FROM events c WHERE c.tripid = a.tripid)")
	assert.Equal(t, 1, strings.Count(q, "a.year = '2023'"))
}

func TestTripRecordsQuery_Shape(t *testing.T) {
	q := NewQueryTemplates("events").TripRecordsQuery("a.year = '2023'")

	assert.Contains(t, q, "SELECT r.*")
	assert.Contains(t, q, "WHERE a.eventtype = 'TRIP_FINISHED'")
	assert.Contains(t, q, "ORDER BY r.tripid, r.eventdate")
}

func TestQueryTemplates_EmptyFilter(t *testing.T) {
	templates := NewQueryTemplates("")
	assert.Equal(t, "events", templates.Table)
	assert.Contains(t, templates.TripSummaryQuery(""), "AND 1 = 1")
}
