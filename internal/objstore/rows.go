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

package objstore

import (
	"bytes"
	"encoding/json"
	"strings"
)

// scanBatchSize caps how many rows one RowIterator.Next call returns.
const scanBatchSize = 256

func (q ScanQuery) matches(row Row) bool {
	if q.Column == "" {
		return true
	}
	want := strings.ToLower(q.Column)
	for k, v := range row {
		if strings.ToLower(k) == want {
			return v == q.Equals
		}
	}
	return false
}

// rowFromJSONLine decodes one NDJSON line into a Row, flattening scalar
// values to strings. Numbers keep their literal form via json.Number so
// integer columns do not round-trip through float64.
func rowFromJSONLine(line []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	row := make(Row, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
			row[k] = ""
		case string:
			row[k] = t
		case json.Number:
			row[k] = t.String()
		case bool:
			if t {
				row[k] = "true"
			} else {
				row[k] = "false"
			}
		default:
			// nested values are not part of the row contract; keep the JSON
			// text so nothing is silently lost.
			b, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			row[k] = string(b)
		}
	}
	return row, nil
}

func rowFromCSVRecord(header, record []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	return row
}
