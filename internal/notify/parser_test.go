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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotices_S3Event(t *testing.T) {
	raw := []byte(`{
		"Records": [
			{"s3": {"bucket": {"name": "batches"},
				"object": {"key": "telemetry/year%3D2023/month%3D01/day%3D02/hour%3D03/minute%3D04/part-0001"}}},
			{"s3": {"bucket": {"name": "batches"},
				"object": {"key": "telemetry/year=2023/month=01/"}}}
		]
	}`)

	notices, err := ParseNotices(raw)
	require.NoError(t, err)
	require.Len(t, notices, 1, "directory keys are dropped")
	assert.Equal(t, BatchNotice{
		Bucket: "batches",
		Key:    "telemetry/year=2023/month=01/day=02/hour=03/minute=04/part-0001",
	}, notices[0])
}

func TestParseNotices_Plain(t *testing.T) {
	notices, err := ParseNotices([]byte(`{"bucket":"batches","key":"telemetry/year=2023/month=01/day=02/hour=03/minute=04/part-0001"}`))
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "batches", notices[0].Bucket)
}

func TestParseNotices_Unknown(t *testing.T) {
	_, err := ParseNotices([]byte(`{"something":"else"}`))
	assert.Error(t, err)

	_, err = ParseNotices([]byte(`not json`))
	assert.Error(t, err)
}
