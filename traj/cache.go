package traj

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tidegrid/trajbatch/internal/diag"
)

// cacheVersion is bumped whenever the entry encoding changes; entries from
// other versions are reconverted.
const cacheVersion = 1

// cacheEntry is the persisted form of one normalized artifact.
type cacheEntry struct {
	Version   int
	ID        string
	Features  int
	Len       int
	CreatedAt int64
	Data      []float32
}

// Cache persists normalized artifacts, one gob file per track identity, and
// performs at most one effective conversion per identity even under
// concurrent access. Entries are written atomically and never mutated after
// a successful write; a forced reconversion overwrites the whole entry.
type Cache struct {
	dir    string
	schema Schema
	group  singleflight.Group

	conversions   int64
	hits          int64
	readFailures  int64
	writeFailures int64
}

// NewCache validates the schema and creates the cache directory when needed.
func NewCache(dir string, schema Schema) (*Cache, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheIOError{Op: "create", Path: dir, Err: err}
	}
	return &Cache{dir: dir, schema: schema}, nil
}

// Schema returns the schema artifacts are normalized under.
func (c *Cache) Schema() Schema { return c.schema }

// EntryPath returns the file an identity's artifact is persisted under. The
// identity is escaped so any ID maps to a safe file name.
func (c *Cache) EntryPath(id ID) string {
	return filepath.Join(c.dir, url.PathEscape(string(id))+".gob")
}

// Get returns the artifact for id. With force false a persisted entry is
// returned without invoking open or the normalizer. Otherwise the track is
// opened, normalized, persisted and returned. Concurrent calls for the same
// never-cached identity share a single conversion.
func (c *Cache) Get(ctx context.Context, id ID, open func() (*RawTrack, error), force bool) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !force {
		art, err := c.load(id)
		if err == nil {
			atomic.AddInt64(&c.hits, 1)
			return art, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			atomic.AddInt64(&c.readFailures, 1)
			diag.Logf("[cache] %v; reconverting", err)
		}
	}
	v, err, _ := c.group.Do(string(id), func() (any, error) {
		return c.convert(id, open)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// load decodes one persisted entry. A missing entry surfaces os.ErrNotExist;
// anything else comes back as a CacheIOError.
func (c *Cache) load(id ID) (*Artifact, error) {
	path := c.EntryPath(id)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, &CacheIOError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	var ent cacheEntry
	if err := gob.NewDecoder(f).Decode(&ent); err != nil {
		return nil, &CacheIOError{Op: "read", Path: path, Err: err}
	}
	if ent.Version != cacheVersion || ent.ID != string(id) ||
		ent.Features != c.schema.Features() || len(ent.Data) != ent.Len*ent.Features {
		return nil, &CacheIOError{Op: "read", Path: path, Err: fmt.Errorf("stale or inconsistent entry")}
	}
	return &Artifact{Data: ent.Data, Len: ent.Len, Features: ent.Features}, nil
}

// convert runs the supplier and the normalizer, then persists the result. A
// write failure is logged and the artifact still returned for the current
// pass.
func (c *Cache) convert(id ID, open func() (*RawTrack, error)) (*Artifact, error) {
	raw, err := open()
	if err != nil {
		return nil, &ConversionError{ID: id, Err: err}
	}
	if raw == nil {
		return nil, &ConversionError{ID: id, Err: fmt.Errorf("source returned no track")}
	}
	art, err := Normalize(raw, c.schema)
	if err != nil {
		return nil, &ConversionError{ID: id, Err: err}
	}
	atomic.AddInt64(&c.conversions, 1)
	if err := c.store(id, art); err != nil {
		atomic.AddInt64(&c.writeFailures, 1)
		diag.Logf("[cache] %v; artifact kept for this pass", err)
	}
	return art, nil
}

// store writes the entry atomically: temp file in the cache directory, sync,
// close, rename.
func (c *Cache) store(id ID, art *Artifact) error {
	path := c.EntryPath(id)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return &CacheIOError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &CacheIOError{Op: "write", Path: path, Err: err}
	}

	ent := cacheEntry{
		Version:   cacheVersion,
		ID:        string(id),
		Features:  art.Features,
		Len:       art.Len,
		CreatedAt: time.Now().Unix(),
		Data:      art.Data,
	}
	if err := gob.NewEncoder(tmp).Encode(&ent); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &CacheIOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &CacheIOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Conversions reports how many effective conversions have run.
func (c *Cache) Conversions() int64 { return atomic.LoadInt64(&c.conversions) }

// Hits reports how many gets were served from persisted entries.
func (c *Cache) Hits() int64 { return atomic.LoadInt64(&c.hits) }

// ReadFailures reports entries that existed but could not be decoded.
func (c *Cache) ReadFailures() int64 { return atomic.LoadInt64(&c.readFailures) }

// WriteFailures reports conversions whose entry could not be persisted.
func (c *Cache) WriteFailures() int64 { return atomic.LoadInt64(&c.writeFailures) }
