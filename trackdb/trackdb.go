// Package trackdb keeps raw vessel tracks in a single SQLite file: one row
// per track plus its ordered samples. It backs the feed ingester and serves
// the pipeline as a track source. Only raw samples live here; normalized
// artifacts stay in the conversion cache.
package trackdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tidegrid/trajbatch/traj"
)

//go:embed schema.sql
var schemaSQL string

// sampleFields is the header served to the pipeline. It matches
// traj.DefaultSchema.
var sampleFields = []string{"date", "lat", "lon", "sog", "cog"}

// Sample is one position report in store order.
type Sample struct {
	TS  string
	Lat float64
	Lon float64
	Sog float64
	Cog float64
}

// DB is an open store handle, safe for concurrent use.
type DB struct {
	db *sql.DB
}

// Open creates or opens the store at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open track store %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply track store schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// EnsureTrack inserts the track row when absent.
func (d *DB) EnsureTrack(id traj.ID, source string) error {
	_, err := d.db.Exec(
		`INSERT INTO tracks (id, source, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		string(id), source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ensure track %s: %w", id, err)
	}
	return nil
}

// TrackCount reports how many tracks the store holds.
func (d *DB) TrackCount() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}

// AppendSamples adds samples after the track's current highest sequence
// number, all in one transaction. The track row must already exist.
func (d *DB) AppendSamples(id traj.ID, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("append samples %s: %w", id, err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq)+1, 0) FROM samples WHERE track_id = ?`,
		string(id)).Scan(&next); err != nil {
		return fmt.Errorf("append samples %s: %w", id, err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO samples (track_id, seq, ts, lat, lon, sog, cog)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("append samples %s: %w", id, err)
	}
	defer stmt.Close()
	for i, s := range samples {
		if _, err := stmt.Exec(string(id), next+i, s.TS, s.Lat, s.Lon, s.Sog, s.Cog); err != nil {
			return fmt.Errorf("append samples %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append samples %s: %w", id, err)
	}
	return nil
}

// ImportTrack replaces the track's rows with the raw track's contents,
// mapping columns through the schema. The schema's numeric fields fill the
// lat, lon, sog, cog columns in that order; fields past the fourth are
// dropped and missing ones stay zero. Unparseable numeric cells import as
// zero, the same way normalization treats them.
func (d *DB) ImportTrack(id traj.ID, raw *traj.RawTrack, schema traj.Schema, source string) error {
	if raw == nil {
		return fmt.Errorf("import track %s: no track data", id)
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	cols := make(map[string]int, len(raw.Fields))
	for i, f := range raw.Fields {
		cols[f] = i
	}
	timeIdx, ok := cols[schema.TimeField]
	if !ok {
		return fmt.Errorf("import track %s: %w", id,
			&traj.MalformedTrackError{Field: schema.TimeField, Reason: "field not present"})
	}
	numIdx := make([]int, 0, 4)
	for i, name := range schema.NumericFields {
		if i == 4 {
			break
		}
		idx, ok := cols[name]
		if !ok {
			return fmt.Errorf("import track %s: %w", id,
				&traj.MalformedTrackError{Field: name, Reason: "field not present"})
		}
		numIdx = append(numIdx, idx)
	}

	samples := make([]Sample, 0, len(raw.Rows))
	for r, row := range raw.Rows {
		if timeIdx >= len(row) {
			return fmt.Errorf("import track %s: row %d: only %d columns", id, r, len(row))
		}
		var vals [4]float64
		for i, idx := range numIdx {
			if idx < len(row) {
				if v, ok := traj.ParseNumeric(row[idx]); ok {
					vals[i] = float64(v)
				}
			}
		}
		samples = append(samples, Sample{
			TS:  row[timeIdx],
			Lat: vals[0],
			Lon: vals[1],
			Sog: vals[2],
			Cog: vals[3],
		})
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("import track %s: %w", id, err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(
		`INSERT INTO tracks (id, source, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET source = excluded.source`,
		string(id), source, time.Now().Unix()); err != nil {
		return fmt.Errorf("import track %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM samples WHERE track_id = ?`, string(id)); err != nil {
		return fmt.Errorf("import track %s: %w", id, err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO samples (track_id, seq, ts, lat, lon, sog, cog)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("import track %s: %w", id, err)
	}
	defer stmt.Close()
	for i, s := range samples {
		if _, err := stmt.Exec(string(id), i, s.TS, s.Lat, s.Lon, s.Sog, s.Cog); err != nil {
			return fmt.Errorf("import track %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import track %s: %w", id, err)
	}
	return nil
}

// Source snapshots the catalog: the sorted vessel keys at call time. The
// returned source serves rows under the canonical header
// [date lat lon sog cog].
func (d *DB) Source() (traj.Source, error) {
	rows, err := d.db.Query(`SELECT id FROM tracks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var ids []traj.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list tracks: %w", err)
		}
		ids = append(ids, traj.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return &dbSource{db: d, ids: ids}, nil
}

type dbSource struct {
	db  *DB
	ids []traj.ID
}

// Tracks returns the catalog snapshotted when the source was built.
func (s *dbSource) Tracks() []traj.ID {
	out := make([]traj.ID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Open reads the track's samples back as a raw track.
func (s *dbSource) Open(id traj.ID) (*traj.RawTrack, error) {
	rows, err := s.db.db.Query(
		`SELECT ts, lat, lon, sog, cog FROM samples WHERE track_id = ? ORDER BY seq`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", id, err)
	}
	defer rows.Close()

	raw := &traj.RawTrack{Fields: append([]string(nil), sampleFields...)}
	for rows.Next() {
		var ts string
		var lat, lon, sog, cog float64
		if err := rows.Scan(&ts, &lat, &lon, &sog, &cog); err != nil {
			return nil, fmt.Errorf("read track %s: %w", id, err)
		}
		raw.Rows = append(raw.Rows, []string{
			ts,
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
			strconv.FormatFloat(sog, 'f', -1, 64),
			strconv.FormatFloat(cog, 'f', -1, 64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read track %s: %w", id, err)
	}
	if len(raw.Rows) == 0 {
		var n int
		if err := s.db.db.QueryRow(
			`SELECT COUNT(*) FROM tracks WHERE id = ?`, string(id)).Scan(&n); err != nil {
			return nil, fmt.Errorf("read track %s: %w", id, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("unknown track %s", id)
		}
	}
	return raw, nil
}
