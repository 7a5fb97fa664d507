// Package traj holds the data model for ship-trajectory batching: track
// identities, raw tabular tracks, the fixed-width float32 artifacts built
// from them, the persistent artifact cache and the track sources the
// pipeline draws from.
//
// Artifacts follow the repo-wide tensor convention: one contiguous float32
// buffer plus shape metadata. That keeps conversion into gomlx tensors (or
// any other tensor type) a small, well-defined step downstream.
package traj

// ID is the stable key addressing one track and its cached artifact.
// Directory sources use the file base name, the consolidated store uses the
// vessel key. The same ID with the same raw data always normalizes to the
// same artifact.
type ID string

// RawTrack is one track's rows as delivered by a source: a header naming the
// fields plus the rows in original order. Rows are assumed chronological;
// nothing in this package re-sorts them.
type RawTrack struct {
	Fields []string
	Rows   [][]string
}

// Artifact is a normalized track: a row-major (Len, Features) float32 matrix
// in one contiguous buffer. Data[t*Features+f] holds feature f of row t.
type Artifact struct {
	Data     []float32
	Len      int
	Features int
}

// Row returns row t as a view into the artifact buffer.
func (a *Artifact) Row(t int) []float32 {
	return a.Data[t*a.Features : (t+1)*a.Features]
}

// Truncated clamps the artifact to its first max rows. The result shares the
// backing buffer; the receiver is not modified. Artifacts at or under the
// cap are returned as-is.
func (a *Artifact) Truncated(max int) *Artifact {
	if a.Len <= max {
		return a
	}
	return &Artifact{Data: a.Data[:max*a.Features], Len: max, Features: a.Features}
}

// Valid reports whether the artifact is a consistent (matrix, length) pair
// with at least one row.
func (a *Artifact) Valid() bool {
	return a != nil && a.Len > 0 && a.Features > 0 && len(a.Data) == a.Len*a.Features
}
