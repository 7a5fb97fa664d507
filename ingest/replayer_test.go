package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidegrid/trajbatch/traj"
)

// TestTrackPositions_MapsRows checks the CSV-to-feed mapping: the vessel key
// drops the file extension, columns are found by name, and optional
// sog/cog default to zero.
func TestTrackPositions_MapsRows(t *testing.T) {
	t.Parallel()
	raw := &traj.RawTrack{
		Fields: []string{"lat", "date", "lon", "sog", "cog"},
		Rows: [][]string{
			{"29.9", "2019-07-01 00:00:00", "-90.1", "5.5", "180"},
			{"29.95", " 2019-07-01 00:01:00 ", "-90.2", "bad", ""},
		},
	}

	positions, err := trackPositions("368084090.csv", raw, traj.DefaultSchema())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, Position{
		MMSI: "368084090", Timestamp: "2019-07-01 00:00:00",
		Lat: 29.9, Lon: -90.1, Sog: 5.5, Cog: 180,
	}, positions[0])

	// Unparseable sog/cog fall back to zero; the timestamp is trimmed.
	assert.Equal(t, Position{
		MMSI: "368084090", Timestamp: "2019-07-01 00:01:00",
		Lat: 29.95, Lon: -90.2,
	}, positions[1])
}

// TestTrackPositions_DropsRowsWithoutCoordinates: rows missing a usable
// lat/lon are skipped, not fatal, and rows shorter than the timestamp column
// are skipped too.
func TestTrackPositions_DropsRowsWithoutCoordinates(t *testing.T) {
	t.Parallel()
	raw := &traj.RawTrack{
		Fields: []string{"date", "lat", "lon", "sog", "cog"},
		Rows: [][]string{
			{"100", "29.9", "-90.1", "5", "180"},
			{"200", "", "-90.2", "5", "180"},  // no latitude
			{"300", "29.9", "n/a", "5", "180"}, // unparseable longitude
			{},                                 // no timestamp at all
			{"400", "29.8", "-90.3", "5", "180"},
		},
	}

	positions, err := trackPositions("vessel-1", raw, traj.DefaultSchema())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "100", positions[0].Timestamp)
	assert.Equal(t, "400", positions[1].Timestamp)
	assert.Equal(t, "vessel-1", positions[0].MMSI, "identity without extension stays as-is")
}

// TestTrackPositions_TwoFieldSchema replays coordinate-only recordings:
// sog/cog simply stay zero.
func TestTrackPositions_TwoFieldSchema(t *testing.T) {
	t.Parallel()
	schema := traj.Schema{TimeField: "ts", NumericFields: []string{"y", "x"}}
	raw := &traj.RawTrack{
		Fields: []string{"ts", "y", "x"},
		Rows:   [][]string{{"100", "29.9", "-90.1"}},
	}

	positions, err := trackPositions("vessel-1", raw, schema)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 29.9, positions[0].Lat)
	assert.Equal(t, -90.1, positions[0].Lon)
	assert.Zero(t, positions[0].Sog)
	assert.Zero(t, positions[0].Cog)
}

func TestTrackPositions_MissingFields(t *testing.T) {
	t.Parallel()
	schema := traj.DefaultSchema()

	t.Run("no time column", func(t *testing.T) {
		raw := &traj.RawTrack{Fields: []string{"lat", "lon", "sog", "cog"}}
		_, err := trackPositions("vessel-1", raw, schema)
		var merr *traj.MalformedTrackError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "date", merr.Field)
	})

	t.Run("no coordinate column", func(t *testing.T) {
		raw := &traj.RawTrack{Fields: []string{"date", "lat", "sog", "cog"}}
		_, err := trackPositions("vessel-1", raw, schema)
		var merr *traj.MalformedTrackError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "lon", merr.Field)
	})
}
