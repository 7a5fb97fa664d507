package traj

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order for calendar timestamps. Layouts without a
// zone are taken as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseTimestamp converts one textual timestamp to seconds since the Unix
// epoch. Bare integers are taken as epoch seconds already.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sec, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseNumeric coerces one textual attribute value to float32. Thousands
// separators and surrounding space are stripped. Empty strings, failed
// parses and non-finite results report ok=false so callers can apply the
// missing-value policy.
func ParseNumeric(s string) (v float32, ok bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return float32(f), true
}

// Normalize turns one raw track into a (Len, Features) float32 artifact
// under the given schema. Feature order is [timestamp, numeric fields in
// schema order]. Numeric values that are absent or fail coercion become 0;
// a timestamp that cannot be parsed fails the whole track with a
// MalformedTrackError. Normalize is pure and never touches the cache.
func Normalize(raw *RawTrack, schema Schema) (*Artifact, error) {
	if raw == nil {
		return nil, &MalformedTrackError{Field: schema.TimeField, Reason: "no track data"}
	}
	cols := make(map[string]int, len(raw.Fields))
	for i, f := range raw.Fields {
		cols[f] = i
	}
	timeIdx, ok := cols[schema.TimeField]
	if !ok {
		return nil, &MalformedTrackError{Field: schema.TimeField, Reason: "field not present"}
	}
	numIdx := make([]int, len(schema.NumericFields))
	for i, name := range schema.NumericFields {
		idx, ok := cols[name]
		if !ok {
			return nil, &MalformedTrackError{Field: name, Reason: "field not present"}
		}
		numIdx[i] = idx
	}

	features := schema.Features()
	data := make([]float32, 0, len(raw.Rows)*features)
	for r, row := range raw.Rows {
		if timeIdx >= len(row) {
			return nil, &MalformedTrackError{
				Field:  schema.TimeField,
				Reason: fmt.Sprintf("row %d: only %d columns", r, len(row)),
			}
		}
		sec, err := ParseTimestamp(row[timeIdx])
		if err != nil {
			return nil, &MalformedTrackError{
				Field:  schema.TimeField,
				Reason: fmt.Sprintf("row %d: %v", r, err),
			}
		}
		data = append(data, float32(sec))
		for _, idx := range numIdx {
			var v float32
			if idx < len(row) {
				v, _ = ParseNumeric(row[idx]) // missing values become 0
			}
			data = append(data, v)
		}
	}
	return &Artifact{Data: data, Len: len(raw.Rows), Features: features}, nil
}
