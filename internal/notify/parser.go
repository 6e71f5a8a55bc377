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
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ParseNotices maps a raw notification body to batch notices. Two shapes
// are understood: S3-style event JSON ({"Records":[{"s3":...}]}) as storage
// buckets emit it, and the plain {"bucket","key"} JSON the HTTP backend and
// the device generator post. Directory keys are dropped.
func ParseNotices(raw []byte) ([]BatchNotice, error) {
	var s3evt struct {
		Records []struct {
			S3 struct {
				Bucket struct {
					Name string `json:"name"`
				} `json:"bucket"`
				Object struct {
					Key string `json:"key"`
				} `json:"object"`
			} `json:"s3"`
		} `json:"Records"`
	}
	if err := json.Unmarshal(raw, &s3evt); err == nil && len(s3evt.Records) > 0 {
		out := make([]BatchNotice, 0, len(s3evt.Records))
		for _, rec := range s3evt.Records {
			// S3 event keys arrive URL-encoded
			key, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("unescape key %q: %w", rec.S3.Object.Key, err)
			}
			if strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, BatchNotice{
				Bucket: rec.S3.Bucket.Name,
				Key:    key,
			})
		}
		return out, nil
	}

	var plain BatchNotice
	if err := json.Unmarshal(raw, &plain); err == nil && plain.Bucket != "" && plain.Key != "" {
		if strings.HasSuffix(plain.Key, "/") {
			return nil, nil
		}
		return []BatchNotice{plain}, nil
	}

	return nil, fmt.Errorf("unable to determine notification shape from content")
}
