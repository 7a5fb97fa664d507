package batch

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Report summarizes padding efficiency over one emitted batch set.
type Report struct {
	Batches   int
	Items     int
	Cells     int     // Size*MaxLen summed over all batches
	PadCells  int     // cells carrying padding instead of data
	PadRatio  float64 // PadCells / Cells
	MeanLen   float64 // mean original artifact length
	MedianLen float64
	MaxLen    int // largest batch time dimension
}

// Stats computes the padding report for a batch set.
func Stats(batches []*Batch) Report {
	var r Report
	var lengths []float64
	for _, b := range batches {
		r.Batches++
		r.Items += b.Size
		r.Cells += b.Size * b.MaxLen
		for _, l := range b.Lengths {
			r.PadCells += b.MaxLen - l
			lengths = append(lengths, float64(l))
		}
		if b.MaxLen > r.MaxLen {
			r.MaxLen = b.MaxLen
		}
	}
	if r.Cells > 0 {
		r.PadRatio = float64(r.PadCells) / float64(r.Cells)
	}
	if len(lengths) > 0 {
		sort.Float64s(lengths)
		r.MeanLen = stat.Mean(lengths, nil)
		r.MedianLen = stat.Quantile(0.5, stat.Empirical, lengths, nil)
	}
	return r
}

// String renders the one-line report the CLI prints after a run.
func (r Report) String() string {
	return fmt.Sprintf("batches=%d items=%d pad=%.1f%% mean_len=%.1f median_len=%.1f max_len=%d",
		r.Batches, r.Items, 100*r.PadRatio, r.MeanLen, r.MedianLen, r.MaxLen)
}
