package main

// trajbatch runs the trajectory batching pipeline from the command line:
// survey a collection, import it into the consolidated store, or convert
// and batch it and report what came out.
//
// Usage:
//   trajbatch -data tracks/ -cache trajcache -batch-size 32
//   trajbatch -data tracks/ -db tracks.db -import
//   trajbatch -db tracks.db -region "30,32,-119,-117" -survey

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tidegrid/trajbatch/batch"
	"github.com/tidegrid/trajbatch/pipeline"
	"github.com/tidegrid/trajbatch/survey"
	"github.com/tidegrid/trajbatch/trackdb"
	"github.com/tidegrid/trajbatch/traj"
)

func main() {
	var (
		dataDir   = flag.String("data", "", "directory of per-track CSV files")
		pattern   = flag.String("pattern", "*.csv", "file pattern within -data")
		dbPath    = flag.String("db", "", "consolidated track store to read instead of -data")
		doImport  = flag.Bool("import", false, "import -data into -db before running")
		cacheDir  = flag.String("cache", "trajcache", "artifact cache directory")
		timeField = flag.String("time-field", "date", "timestamp column name")
		fields    = flag.String("fields", "lat,lon,sog,cog", "numeric columns, comma separated")
		regionStr = flag.String("region", "", "keep only tracks touching minLat,maxLat,minLon,maxLon")
		doSurvey  = flag.Bool("survey", false, "print collection statistics and exit")
		batchSize = flag.Int("batch-size", 32, "max items per batch")
		maxSeqLen = flag.Int("max-seq-len", 1024, "truncation cap on sequence length")
		binSize   = flag.Int("bin-size", 64, "length bucket granularity")
		workers   = flag.Int("workers", 0, "conversion workers (0 = all CPUs)")
		force     = flag.Bool("force", false, "reconvert every track, ignoring cached artifacts")
		seed      = flag.Int64("seed", 0, "batch shuffle seed (0 = random)")
		cfgPath   = flag.String("config", "", "JSON config file (flags still win)")
	)
	flag.Parse()

	schema := traj.Schema{
		TimeField:     *timeField,
		NumericFields: splitFields(*fields),
	}
	if err := schema.Validate(); err != nil {
		log.Fatalf("[trajbatch] %v", err)
	}

	src, db := openSource(*dataDir, *pattern, *dbPath, *doImport, schema)
	if db != nil {
		defer db.Close()
	}

	if *regionStr != "" {
		region, err := traj.ParseRegion(*regionStr)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		filtered, err := traj.NewRegionSource(src, region, schema)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		src = filtered
	}

	if *doSurvey {
		rep, err := survey.Scan(src, schema)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		fmt.Print(rep)
		return
	}

	cfg := pipeline.Config{
		Batch:       batch.Config{MaxBatchSize: *batchSize, MaxSeqLen: *maxSeqLen, BinSize: *binSize},
		Workers:     *workers,
		ForceReload: *force,
		Seed:        *seed,
	}
	if *cfgPath != "" {
		loaded, err := pipeline.LoadConfig(*cfgPath, cfg)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		cfg = loaded
		// Flags given on the command line win over file values.
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "batch-size":
				cfg.Batch.MaxBatchSize = *batchSize
			case "max-seq-len":
				cfg.Batch.MaxSeqLen = *maxSeqLen
			case "bin-size":
				cfg.Batch.BinSize = *binSize
			case "workers":
				cfg.Workers = *workers
			case "force":
				cfg.ForceReload = *force
			case "seed":
				cfg.Seed = *seed
			}
		})
	}

	cache, err := traj.NewCache(*cacheDir, schema)
	if err != nil {
		log.Fatalf("[trajbatch] %v", err)
	}
	p, err := pipeline.New(src, cache, cfg)
	if err != nil {
		log.Fatalf("[trajbatch] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ep, err := p.Run(ctx)
	if ep == nil {
		log.Fatalf("[trajbatch] %v", err)
	}
	if err != nil {
		log.Printf("[trajbatch] run interrupted: %v", err)
	}

	sum := ep.Summary
	log.Printf("[trajbatch] run %s: %d tracks, %d converted (%d cache hits), %d failed, %d skipped, %d batches",
		sum.RunID, sum.Tracks, sum.Converted, sum.CacheHits, len(sum.Failures), sum.Skipped, sum.Batches)
	for _, f := range sum.Failures {
		log.Printf("[trajbatch]   failed %s: %v", f.ID, f.Err)
	}
	log.Printf("[trajbatch] %s", batch.Stats(ep.Batches))
}

func splitFields(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// openSource picks the track source: a CSV directory, the consolidated
// store, or the store freshly populated from the directory under -import.
func openSource(dataDir, pattern, dbPath string, doImport bool, schema traj.Schema) (traj.Source, *trackdb.DB) {
	if dbPath == "" {
		if dataDir == "" {
			log.Fatalf("[trajbatch] need -data or -db")
		}
		src, err := traj.NewDirSource(dataDir, pattern)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		return src, nil
	}

	db, err := trackdb.Open(dbPath)
	if err != nil {
		log.Fatalf("[trajbatch] %v", err)
	}
	if doImport {
		if dataDir == "" {
			log.Fatalf("[trajbatch] -import needs -data")
		}
		dirSrc, err := traj.NewDirSource(dataDir, pattern)
		if err != nil {
			log.Fatalf("[trajbatch] %v", err)
		}
		imported := 0
		for _, id := range dirSrc.Tracks() {
			raw, err := dirSrc.Open(id)
			if err != nil {
				log.Printf("[trajbatch] import skip %s: %v", id, err)
				continue
			}
			if err := db.ImportTrack(id, raw, schema, dataDir); err != nil {
				log.Printf("[trajbatch] import skip %s: %v", id, err)
				continue
			}
			imported++
		}
		log.Printf("[trajbatch] imported %d tracks into %s", imported, dbPath)
	}
	src, err := db.Source()
	if err != nil {
		log.Fatalf("[trajbatch] %v", err)
	}
	return src, db
}
