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
	"fmt"
	"strings"
)

// QueryTemplates renders the two queries of one reduction cycle against a
// configured events table. It renders only; execution belongs to the query
// engine. Both queries embed the identical filter expression so their
// results stay consistent within a cycle.
type QueryTemplates struct {
	Table string
}

func NewQueryTemplates(table string) QueryTemplates {
	if table == "" {
		table = "events"
	}
	return QueryTemplates{Table: table}
}

// TripSummaryQuery selects one row per trip finished inside the filtered
// partitions, joined against the trip's ENGINE_START. The event count is a
// correlated count over the whole table on purpose: a trip's rows are not
// bounded by the partitions its TRIP_FINISHED landed in. A trip without a
// matching ENGINE_START yields null startdate and durationseconds.
func (t QueryTemplates) TripSummaryQuery(filter string) string {
	const tpl = `SELECT a.tripid,
    a.deviceid,
    s.eventdate AS startdate,
    a.eventdate AS enddate,
    date_diff('second', from_iso8601_timestamp(s.eventdate), from_iso8601_timestamp(a.eventdate)) AS durationseconds,
    (SELECT count(*) FROM %[1]s c WHERE c.tripid = a.tripid) AS eventcount
FROM %[1]s a
LEFT JOIN %[1]s s
    ON s.tripid = a.tripid AND s.eventtype = 'ENGINE_START'
WHERE a.eventtype = 'TRIP_FINISHED'
    AND %[2]s`
	return fmt.Sprintf(tpl, t.Table, normalizeFilter(filter))
}

// TripRecordsQuery selects every raw row belonging to a trip finished
// inside the filtered partitions, unified into one result ordered by
// (tripid, eventdate).
func (t QueryTemplates) TripRecordsQuery(filter string) string {
	const tpl = `SELECT r.*
FROM %[1]s r
WHERE r.tripid IN (
    SELECT a.tripid
    FROM %[1]s a
    WHERE a.eventtype = 'TRIP_FINISHED'
        AND %[2]s
)
ORDER BY r.tripid, r.eventdate`
	return fmt.Sprintf(tpl, t.Table, normalizeFilter(filter))
}

func normalizeFilter(filter string) string {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return "1 = 1"
	}
	return filter
}
