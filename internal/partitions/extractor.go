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

// Package partitions derives time-partition keys from the name=value path
// segments of batch-file object keys.
package partitions

import (
	"strings"
)

// Key is the time-partition coordinate of one batch file. Fields are the
// fixed-width string values as they appear in the object key; a field the
// key did not carry is the empty string.
type Key struct {
	Year   string
	Month  string
	Day    string
	Hour   string
	Minute string
}

// ExtractSegments splits an object key into its name=value path segments.
// Segments without an "=" are skipped, they never fail the extraction.
func ExtractSegments(objectKey string) map[string]string {
	out := map[string]string{}
	for _, seg := range strings.Split(objectKey, "/") {
		name, value, ok := strings.Cut(seg, "=")
		if !ok || name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// FromObjectKey extracts the partition key encoded in an object key of the
// form .../year=Y/month=M/day=D/hour=H/minute=Min/filename.
func FromObjectKey(objectKey string) Key {
	segs := ExtractSegments(objectKey)
	return Key{
		Year:   segs["year"],
		Month:  segs["month"],
		Day:    segs["day"],
		Hour:   segs["hour"],
		Minute: segs["minute"],
	}
}

func (k Key) columns() []struct{ name, value string } {
	return []struct{ name, value string }{
		{"year", k.Year},
		{"month", k.Month},
		{"day", k.Day},
		{"hour", k.Hour},
		{"minute", k.Minute},
	}
}

// FilterExpression renders the key as a SQL predicate over the partition
// columns of the aliased events table, e.g.
// "a.year = '2023' and a.month = '01'". Empty fields are left out; a fully
// empty key renders a match-all predicate so callers never build invalid SQL.
func (k Key) FilterExpression(alias string) string {
	var terms []string
	for _, c := range k.columns() {
		if c.value == "" {
			continue
		}
		terms = append(terms, alias+"."+c.name+" = '"+c.value+"'")
	}
	if len(terms) == 0 {
		return "1 = 1"
	}
	return strings.Join(terms, " and ")
}

// DateTag renders the key as a human-readable window tag for logs,
// e.g. "2023-01-02 03:04".
func (k Key) DateTag() string {
	date := make([]string, 0, 3)
	for _, v := range []string{k.Year, k.Month, k.Day} {
		if v == "" {
			break
		}
		date = append(date, v)
	}
	tag := strings.Join(date, "-")
	if k.Hour != "" {
		tag += " " + k.Hour
		if k.Minute != "" {
			tag += ":" + k.Minute
		}
	}
	return strings.TrimSpace(tag)
}

// IsZero reports whether no partition field was present in the key.
func (k Key) IsZero() bool {
	return k == Key{}
}
