// Package pipeline drives track catalogs through the artifact cache and the
// batcher, exposing each traversal as a restartable epoch of padded batches.
package pipeline

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/google/uuid"

	"github.com/tidegrid/trajbatch/batch"
	"github.com/tidegrid/trajbatch/internal/diag"
	"github.com/tidegrid/trajbatch/traj"
)

// progressEvery is how often the worker pool logs conversion progress.
const progressEvery = 2 * time.Second

// Config carries the run parameters.
type Config struct {
	Batch       batch.Config
	Workers     int   // conversion parallelism; 0 means runtime.NumCPU()
	ForceReload bool  // reconvert every track, overwriting cached entries
	Seed        int64 // batch emission shuffle seed; 0 seeds from the clock
}

func (c Config) validate() error {
	if err := c.Batch.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return &traj.ConfigError{Field: "worker_count", Reason: "must not be negative"}
	}
	return nil
}

// Failure records one track that could not be converted.
type Failure struct {
	ID  traj.ID
	Err error
}

// Summary describes one completed traversal.
type Summary struct {
	RunID     uuid.UUID
	Tracks    int // catalog size
	Converted int // artifacts produced, cache hits included
	CacheHits int // conversions served from persisted entries
	Skipped   int // malformed artifacts dropped by the batcher
	Batches   int
	Failures  []Failure
	Canceled  bool
	Elapsed   time.Duration
}

// Epoch is one traversal's output: the shuffled batch sequence plus its
// summary.
type Epoch struct {
	Batches []*batch.Batch
	Summary Summary
}

// Pipeline owns a source, a cache and the batching configuration. It also
// satisfies gomlx's train.Dataset: Yield hands out one batch per call as
// tensors and reports io.EOF at the end of the epoch; Restart drops the
// epoch so the next Yield rebuilds it, cheaply for anything already cached.
type Pipeline struct {
	src   traj.Source
	cache *traj.Cache
	cfg   Config

	mu    sync.Mutex
	rng   *rand.Rand
	epoch *Epoch
	next  int
}

// New validates the configuration up front; batching never sees a bad
// config afterwards.
func New(src traj.Source, cache *traj.Cache, cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pipeline{
		src:   src,
		cache: cache,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Run converts the whole catalog through the cache on a bounded worker pool
// and assembles one batching pass. Per-track conversion failures are
// collected into the summary and never stop the other tracks. Cancellation
// is cooperative: dispatch stops, in-flight conversions finish, and the
// partial epoch is returned together with ctx.Err().
func (p *Pipeline) Run(ctx context.Context) (*Epoch, error) {
	start := time.Now()
	ids := p.src.Tracks()
	hitsBefore := p.cache.Hits()

	arts, failures := p.convertAll(ctx, ids)

	p.mu.Lock()
	batches, skipped, err := batch.Assemble(arts, p.cfg.Batch, p.rng)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sum := Summary{
		RunID:     uuid.New(),
		Tracks:    len(ids),
		Converted: len(arts),
		CacheHits: int(p.cache.Hits() - hitsBefore),
		Skipped:   skipped,
		Batches:   len(batches),
		Failures:  failures,
		Canceled:  ctx.Err() != nil,
		Elapsed:   time.Since(start),
	}
	for _, f := range failures {
		diag.Logf("[pipeline] convert %s: %v", f.ID, f.Err)
	}
	diag.Logf("[pipeline] run %s: %d tracks -> %d artifacts (%d cache hits), %d failed, %d skipped, %d batches in %v",
		sum.RunID, sum.Tracks, sum.Converted, sum.CacheHits, len(sum.Failures), sum.Skipped,
		sum.Batches, sum.Elapsed.Round(time.Millisecond))

	ep := &Epoch{Batches: batches, Summary: sum}
	if cerr := ctx.Err(); cerr != nil {
		return ep, cerr
	}
	return ep, nil
}

type convResult struct {
	art *traj.Artifact
	id  traj.ID
	err error
}

// convertAll fans the catalog out over the worker pool. The jobs channel is
// sized to the pool so pending work never grows with catalog size, and a
// single collector loop owns the result slices.
func (p *Pipeline) convertAll(ctx context.Context, ids []traj.ID) ([]*traj.Artifact, []Failure) {
	if len(ids) == 0 {
		return nil, nil
	}
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(ids))

	jobs := make(chan traj.ID, workers)
	results := make(chan convResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				art, err := p.cache.Get(ctx, id, p.opener(id), p.cfg.ForceReload)
				results <- convResult{art: art, id: id, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var done int64
	total := len(ids)
	stopProgress := make(chan struct{})
	go func() {
		tick := time.NewTicker(progressEvery)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				d := atomic.LoadInt64(&done)
				diag.Logf("[pipeline] progress: %d/%d (%.1f%%)", d, total, 100*float64(d)/float64(total))
			case <-stopProgress:
				return
			}
		}
	}()
	defer close(stopProgress)

	var arts []*traj.Artifact
	var failures []Failure
	for res := range results {
		atomic.AddInt64(&done, 1)
		if res.err != nil {
			// Tracks left unprocessed by cancellation are not failures.
			if !errors.Is(res.err, context.Canceled) && !errors.Is(res.err, context.DeadlineExceeded) {
				failures = append(failures, Failure{ID: res.id, Err: res.err})
			}
			continue
		}
		arts = append(arts, res.art)
	}
	return arts, failures
}

// opener binds one identity to its supplier for the cache.
func (p *Pipeline) opener(id traj.ID) func() (*traj.RawTrack, error) {
	return func() (*traj.RawTrack, error) { return p.src.Open(id) }
}

// Name implements gomlx's train.Dataset.
func (p *Pipeline) Name() string { return "trajbatch" }

// Yield returns the next batch as gomlx tensors, inputs = [data, mask]. The
// epoch is built on first use; io.EOF signals its end. Label construction is
// task-specific and left to the consumer. Yielded batches are not retained.
func (p *Pipeline) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	p.mu.Lock()
	if p.epoch == nil {
		p.mu.Unlock()
		ep, err := p.Run(context.Background())
		if err != nil {
			return nil, nil, nil, err
		}
		p.mu.Lock()
		p.epoch = ep
		p.next = 0
	}
	if p.next >= len(p.epoch.Batches) {
		p.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	b := p.epoch.Batches[p.next]
	p.epoch.Batches[p.next] = nil
	p.next++
	p.mu.Unlock()

	data, mask, err := b.Tensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{data, mask}, nil, nil
}

// Restart drops the current epoch; the next Yield rebuilds it.
func (p *Pipeline) Restart() error {
	p.mu.Lock()
	p.epoch = nil
	p.next = 0
	p.mu.Unlock()
	return nil
}
