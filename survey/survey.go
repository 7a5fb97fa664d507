// Package survey reports what a track collection looks like before
// conversion: counts, per-track sizes, coordinate extents and the covered
// time range.
package survey

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tidegrid/trajbatch/internal/diag"
	"github.com/tidegrid/trajbatch/traj"
)

// Report aggregates one scan of a source.
type Report struct {
	Tracks   int // catalog size
	Readable int // tracks opened and counted
	Failed   int // tracks that could not be opened

	Points       int
	MinPoints    int
	MaxPoints    int
	MeanPoints   float64
	MedianPoints float64

	MinLat, MaxLat float64
	MinLon, MaxLon float64
	HasExtent      bool

	From, To time.Time
	HasTime  bool
}

// Scan opens every track in the source once and aggregates the report.
// Unreadable tracks are logged and counted, never fatal. Coordinates come
// from the schema's first two numeric fields; rows whose coordinates or
// timestamps do not parse are skipped for the extent and time range.
func Scan(src traj.Source, schema traj.Schema) (*Report, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(schema.NumericFields) < 2 {
		return nil, &traj.ConfigError{Field: "fields", Reason: "survey needs two coordinate fields"}
	}
	latField, lonField := schema.NumericFields[0], schema.NumericFields[1]

	r := &Report{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
	}
	var counts []float64
	for _, id := range src.Tracks() {
		r.Tracks++
		raw, err := src.Open(id)
		if err != nil {
			r.Failed++
			diag.Logf("[survey] skip %s: %v", id, err)
			continue
		}
		r.Readable++
		r.Points += len(raw.Rows)
		counts = append(counts, float64(len(raw.Rows)))
		r.observe(raw, schema.TimeField, latField, lonField)
	}

	if len(counts) > 0 {
		sort.Float64s(counts)
		r.MinPoints = int(counts[0])
		r.MaxPoints = int(counts[len(counts)-1])
		r.MeanPoints = stat.Mean(counts, nil)
		r.MedianPoints = stat.Quantile(0.5, stat.Empirical, counts, nil)
	}
	if !r.HasExtent {
		r.MinLat, r.MaxLat, r.MinLon, r.MaxLon = 0, 0, 0, 0
	}
	return r, nil
}

func (r *Report) observe(raw *traj.RawTrack, timeField, latField, lonField string) {
	timeIdx, latIdx, lonIdx := -1, -1, -1
	for i, f := range raw.Fields {
		switch f {
		case timeField:
			timeIdx = i
		case latField:
			latIdx = i
		case lonField:
			lonIdx = i
		}
	}
	for _, row := range raw.Rows {
		if latIdx >= 0 && lonIdx >= 0 && latIdx < len(row) && lonIdx < len(row) {
			lat, okLat := traj.ParseNumeric(row[latIdx])
			lon, okLon := traj.ParseNumeric(row[lonIdx])
			if okLat && okLon {
				r.MinLat = math.Min(r.MinLat, float64(lat))
				r.MaxLat = math.Max(r.MaxLat, float64(lat))
				r.MinLon = math.Min(r.MinLon, float64(lon))
				r.MaxLon = math.Max(r.MaxLon, float64(lon))
				r.HasExtent = true
			}
		}
		if timeIdx >= 0 && timeIdx < len(row) {
			if sec, err := traj.ParseTimestamp(row[timeIdx]); err == nil {
				ts := time.Unix(sec, 0).UTC()
				if !r.HasTime || ts.Before(r.From) {
					r.From = ts
				}
				if !r.HasTime || ts.After(r.To) {
					r.To = ts
				}
				r.HasTime = true
			}
		}
	}
}

// String renders the block the CLI prints under -survey.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tracks: %d (%d readable, %d failed)\n", r.Tracks, r.Readable, r.Failed)
	fmt.Fprintf(&b, "points: %d (min %d, max %d, mean %.1f, median %.1f)\n",
		r.Points, r.MinPoints, r.MaxPoints, r.MeanPoints, r.MedianPoints)
	if r.HasExtent {
		fmt.Fprintf(&b, "lat: [%.4f, %.4f]  lon: [%.4f, %.4f]\n",
			r.MinLat, r.MaxLat, r.MinLon, r.MaxLon)
	}
	if r.HasTime {
		fmt.Fprintf(&b, "time: %s .. %s\n",
			r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	return b.String()
}
