package traj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidegrid/trajbatch/internal/diag"
)

// Region is a latitude/longitude bounding box in degrees.
type Region struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// ParseRegion reads the flag form "minLat,maxLat,minLon,maxLon".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want minLat,maxLat,minLon,maxLon", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		vals[i] = v
	}
	r := Region{MinLat: vals[0], MaxLat: vals[1], MinLon: vals[2], MaxLon: vals[3]}
	if err := r.validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

func (r Region) validate() error {
	if r.MinLat > r.MaxLat {
		return &ConfigError{Field: "region", Reason: "min latitude above max"}
	}
	if r.MinLon > r.MaxLon {
		return &ConfigError{Field: "region", Reason: "min longitude above max"}
	}
	return nil
}

// Contains reports whether the point falls inside the box, bounds included.
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// RegionSource narrows a source to the tracks that touch a bounding box. The
// wrapped source is scanned once at construction; a track is kept when any
// of its rows parses to a coordinate inside the region. Tracks that cannot
// be opened are logged and left out.
type RegionSource struct {
	src Source
	ids []ID
}

// NewRegionSource filters src against region, reading coordinates from the
// schema's first two numeric fields.
func NewRegionSource(src Source, region Region, schema Schema) (*RegionSource, error) {
	if err := region.validate(); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(schema.NumericFields) < 2 {
		return nil, &ConfigError{Field: "fields", Reason: "region filter needs two coordinate fields"}
	}
	latField, lonField := schema.NumericFields[0], schema.NumericFields[1]

	rs := &RegionSource{src: src}
	all := src.Tracks()
	for _, id := range all {
		raw, err := src.Open(id)
		if err != nil {
			diag.Logf("[region] skip %s: %v", id, err)
			continue
		}
		if trackTouches(raw, region, latField, lonField) {
			rs.ids = append(rs.ids, id)
		}
	}
	diag.Logf("[region] %d/%d tracks intersect lat [%.4f, %.4f] lon [%.4f, %.4f]",
		len(rs.ids), len(all), region.MinLat, region.MaxLat, region.MinLon, region.MaxLon)
	return rs, nil
}

func trackTouches(raw *RawTrack, region Region, latField, lonField string) bool {
	latIdx, lonIdx := -1, -1
	for i, f := range raw.Fields {
		switch f {
		case latField:
			latIdx = i
		case lonField:
			lonIdx = i
		}
	}
	if latIdx < 0 || lonIdx < 0 {
		return false
	}
	for _, row := range raw.Rows {
		if latIdx >= len(row) || lonIdx >= len(row) {
			continue
		}
		lat, okLat := ParseNumeric(row[latIdx])
		lon, okLon := ParseNumeric(row[lonIdx])
		if okLat && okLon && region.Contains(float64(lat), float64(lon)) {
			return true
		}
	}
	return false
}

// Tracks returns the filtered catalog fixed at construction.
func (s *RegionSource) Tracks() []ID {
	out := make([]ID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Open delegates to the wrapped source.
func (s *RegionSource) Open(id ID) (*RawTrack, error) { return s.src.Open(id) }
