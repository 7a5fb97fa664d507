package traj

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source enumerates a track collection and supplies raw tracks. Tracks
// returns the catalog: a sorted identity list fixed when the source was
// constructed. Re-enumeration means constructing a new source.
type Source interface {
	Tracks() []ID
	Open(id ID) (*RawTrack, error)
}

// DirSource reads one CSV file per track from a directory. The identity is
// the file base name; the header row names the fields.
type DirSource struct {
	paths map[ID]string
	ids   []ID
}

// NewDirSource globs dir/pattern once and fixes the catalog. An empty
// pattern defaults to "*.csv". An empty match set is fine as long as the
// directory exists.
func NewDirSource(dir, pattern string) (*DirSource, error) {
	if pattern == "" {
		pattern = "*.csv"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(matches) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, statErr)
		}
	}
	s := &DirSource{paths: make(map[ID]string, len(matches))}
	for _, m := range matches {
		id := ID(filepath.Base(m))
		s.paths[id] = m
		s.ids = append(s.ids, id)
	}
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] })
	return s, nil
}

// Tracks returns the catalog fixed at construction.
func (s *DirSource) Tracks() []ID {
	out := make([]ID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Open reads and parses one track's CSV file. Rows may have ragged widths;
// the normalizer decides what to do with short rows.
func (s *DirSource) Open(id ID) (*RawTrack, error) {
	path, ok := s.paths[id]
	if !ok {
		return nil, fmt.Errorf("unknown track %s", id)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track %s: %w", id, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("track %s: missing header row", id)
	}
	fields := records[0]
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return &RawTrack{Fields: fields, Rows: records[1:]}, nil
}
