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

package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSegments(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want map[string]string
	}{
		{
			name: "all segments",
			key:  "a=1/b=2/c=3",
			want: map[string]string{"a": "1", "b": "2", "c": "3"},
		},
		{
			name: "malformed segment skipped without affecting others",
			key:  "a=1/nope/b=2",
			want: map[string]string{"a": "1", "b": "2"},
		},
		{
			name: "empty value kept",
			key:  "a=/b=2",
			want: map[string]string{"a": "", "b": "2"},
		},
		{
			name: "no segments",
			key:  "just/a/plain/path",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSegments(tt.key))
		})
	}
}

func TestFromObjectKey(t *testing.T) {
	k := FromObjectKey("telemetry/year=2023/month=01/day=02/hour=03/minute=04/part-0001")
	assert.Equal(t, Key{Year: "2023", Month: "01", Day: "02", Hour: "03", Minute: "04"}, k)
	assert.False(t, k.IsZero())
}

func TestFilterExpression(t *testing.T) {
	k := Key{Year: "2023", Month: "01", Day: "02", Hour: "03", Minute: "04"}
	assert.Equal(t,
		"a.year = '2023' and a.month = '01' and a.day = '02' and a.hour = '03' and a.minute = '04'",
		k.FilterExpression("a"))

	partial := Key{Year: "2023", Month: "01"}
	assert.Equal(t, "a.year = '2023' and a.month = '01'", partial.FilterExpression("a"))

	assert.Equal(t, "1 = 1", Key{}.FilterExpression("a"))
	assert.True(t, Key{}.IsZero())
}

func TestDateTag(t *testing.T) {
	k := Key{Year: "2023", Month: "01", Day: "02", Hour: "03", Minute: "04"}
	assert.Equal(t, "2023-01-02 03:04", k.DateTag())
	assert.Equal(t, "2023-01", Key{Year: "2023", Month: "01"}.DateTag())
	assert.Equal(t, "", Key{}.DateTag())
}
