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
	"fmt"
	"strings"
)

// Location addresses one object. An empty bucket means a bare path, which
// the filesystem store resolves directly.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Bucket == "" {
		return l.Key
	}
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses "s3://bucket/key", "file:///path", or a plain path
// into a Location. Query engines hand back all three shapes.
func ParseLocation(s string) (Location, error) {
	switch {
	case strings.HasPrefix(s, "s3://"):
		rest := strings.TrimPrefix(s, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("malformed s3 location %q", s)
		}
		return Location{Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(s, "file://"):
		path := strings.TrimPrefix(s, "file://")
		if path == "" {
			return Location{}, fmt.Errorf("malformed file location %q", s)
		}
		return Location{Key: path}, nil
	case s == "":
		return Location{}, fmt.Errorf("empty location")
	default:
		return Location{Key: s}, nil
	}
}
