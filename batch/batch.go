// Package batch assembles normalized track artifacts into padded,
// length-bucketed mini-batches with validity masks.
//
// Bucketing by coarse length keeps each batch's sequences close in length so
// padding waste stays low, while the randomized emission order still gives
// the training loop a shuffled epoch. Batch contents are deterministic for a
// given input set; only the inter-batch order depends on the rng.
package batch

import (
	"math/rand"
	"sort"
	"time"

	"github.com/tidegrid/trajbatch/traj"
)

// Config carries the batching knobs. All three must be positive.
type Config struct {
	MaxBatchSize int // upper bound on items per batch
	MaxSeqLen    int // truncation cap on the time dimension
	BinSize      int // bucket granularity: bucket key = length / BinSize
}

// Validate rejects non-positive parameters. The pipeline calls this at
// construction so batching itself never sees a bad config.
func (c Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return &traj.ConfigError{Field: "max_batch_size", Reason: "must be positive"}
	}
	if c.MaxSeqLen <= 0 {
		return &traj.ConfigError{Field: "max_seq_len", Reason: "must be positive"}
	}
	if c.BinSize <= 0 {
		return &traj.ConfigError{Field: "bin_size", Reason: "must be positive"}
	}
	return nil
}

// Batch is one padded mini-batch. Data is a row-major (Size, MaxLen,
// Features) tensor, Mask a (Size, MaxLen) 0/1 tensor with Mask[i,t] = 1
// exactly when t < Lengths[i]. Padding cells are zero.
type Batch struct {
	Data     []float32
	Mask     []float32
	Lengths  []int
	Size     int
	MaxLen   int
	Features int
}

// At returns Data[i, t, f].
func (b *Batch) At(i, t, f int) float32 {
	return b.Data[(i*b.MaxLen+t)*b.Features+f]
}

// MaskAt returns Mask[i, t].
func (b *Batch) MaskAt(i, t int) float32 {
	return b.Mask[i*b.MaxLen+t]
}

// Assemble builds batches from artifacts. Artifacts over cfg.MaxSeqLen are
// clamped to their leading rows, bucketed by length / cfg.BinSize, sorted
// within each bucket by length descending and carved into chunks of at most
// cfg.MaxBatchSize items. Each chunk is padded to its own maximum length.
// Malformed artifacts are skipped and counted, never fatal. The finished
// batch list is permuted with rng (nil means time-seeded) and returned
// together with the skip count.
func Assemble(arts []*traj.Artifact, cfg Config, rng *rand.Rand) ([]*Batch, int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Truncate and bucket. Arrival order within a bucket survives until the
	// stable by-length sort below, so equal lengths keep their input order.
	buckets := make(map[int][]*traj.Artifact)
	features := 0
	skipped := 0
	for _, a := range arts {
		if !a.Valid() {
			skipped++
			continue
		}
		if features == 0 {
			features = a.Features
		}
		if a.Features != features {
			skipped++
			continue
		}
		a = a.Truncated(cfg.MaxSeqLen)
		key := a.Len / cfg.BinSize
		buckets[key] = append(buckets[key], a)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var batches []*Batch
	for _, k := range keys {
		group := buckets[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Len > group[j].Len })
		for start := 0; start < len(group); start += cfg.MaxBatchSize {
			end := min(start+cfg.MaxBatchSize, len(group))
			batches = append(batches, pad(group[start:end]))
		}
	}

	// Contents are fixed once carved; only emission order is randomized.
	rng.Shuffle(len(batches), func(i, j int) {
		batches[i], batches[j] = batches[j], batches[i]
	})
	return batches, skipped, nil
}

// pad copies a chunk of by-length-descending artifacts into one zero-padded
// batch. chunk[0] is the longest, so it sets the batch's time dimension.
func pad(chunk []*traj.Artifact) *Batch {
	maxLen := chunk[0].Len
	features := chunk[0].Features
	b := &Batch{
		Data:     make([]float32, len(chunk)*maxLen*features),
		Mask:     make([]float32, len(chunk)*maxLen),
		Lengths:  make([]int, len(chunk)),
		Size:     len(chunk),
		MaxLen:   maxLen,
		Features: features,
	}
	for i, a := range chunk {
		copy(b.Data[i*maxLen*features:], a.Data)
		for t := 0; t < a.Len; t++ {
			b.Mask[i*maxLen+t] = 1
		}
		b.Lengths[i] = a.Len
	}
	return b
}
