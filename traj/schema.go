package traj

import "strings"

// Schema names the fields a source must supply per row: one calendar
// timestamp field plus the numeric attribute fields in output order. The
// normalized feature order is [timestamp, NumericFields...]. By convention
// the first two numeric fields are the coordinates; the region filter and
// the collection survey rely on that.
type Schema struct {
	TimeField     string
	NumericFields []string
}

// DefaultSchema matches the common AIS export layout: a "date" timestamp
// plus latitude, longitude, speed over ground and course over ground.
func DefaultSchema() Schema {
	return Schema{
		TimeField:     "date",
		NumericFields: []string{"lat", "lon", "sog", "cog"},
	}
}

// Features is the per-row feature count produced under this schema. It is
// constant across all artifacts of a run.
func (s Schema) Features() int { return 1 + len(s.NumericFields) }

// Validate rejects empty or duplicated field names.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.TimeField) == "" {
		return &ConfigError{Field: "time_field", Reason: "must not be empty"}
	}
	if len(s.NumericFields) == 0 {
		return &ConfigError{Field: "fields", Reason: "need at least one numeric field"}
	}
	seen := map[string]bool{s.TimeField: true}
	for _, f := range s.NumericFields {
		if strings.TrimSpace(f) == "" {
			return &ConfigError{Field: "fields", Reason: "empty field name"}
		}
		if seen[f] {
			return &ConfigError{Field: f, Reason: "duplicate field name"}
		}
		seen[f] = true
	}
	return nil
}
