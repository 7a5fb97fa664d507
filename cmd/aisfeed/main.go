package main

// aisfeed moves AIS position traffic between a Kafka topic and the track
// store. Pull mode drains the topic into the store; replay mode feeds
// recorded CSV tracks onto the topic.
//
// Broker settings come from the environment (or a .env file): KAFKA_BROKERS,
// KAFKA_TOPIC, KAFKA_GROUP_ID, KAFKA_AUTO_OFFSET_RESET, INGEST_FLUSH_EVERY.

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tidegrid/trajbatch/ingest"
	"github.com/tidegrid/trajbatch/trackdb"
	"github.com/tidegrid/trajbatch/traj"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[aisfeed] no .env file, using process environment")
	}

	var (
		mode    = flag.String("mode", "pull", "pull (topic -> store) or replay (csv dir -> topic)")
		dbPath  = flag.String("db", "tracks.db", "track store path (pull mode)")
		dataDir = flag.String("data", "", "CSV directory (replay mode)")
		pattern = flag.String("pattern", "*.csv", "file pattern within -data")
	)
	flag.Parse()

	cfg := ingest.ConfigFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "pull":
		db, err := trackdb.Open(*dbPath)
		if err != nil {
			log.Fatalf("[aisfeed] %v", err)
		}
		defer db.Close()
		consumer, err := ingest.NewConsumer(cfg, db)
		if err != nil {
			log.Fatalf("[aisfeed] %v", err)
		}
		log.Printf("[aisfeed] pulling %s from %s into %s", cfg.Topic, cfg.Brokers, *dbPath)
		if err := consumer.Run(ctx); err != nil {
			log.Fatalf("[aisfeed] %v", err)
		}
		consumer.LogMetrics()

	case "replay":
		if *dataDir == "" {
			log.Fatalf("[aisfeed] replay mode needs -data")
		}
		src, err := traj.NewDirSource(*dataDir, *pattern)
		if err != nil {
			log.Fatalf("[aisfeed] %v", err)
		}
		replayer, err := ingest.NewReplayer(cfg, traj.DefaultSchema())
		if err != nil {
			log.Fatalf("[aisfeed] %v", err)
		}
		log.Printf("[aisfeed] replaying %s onto %s at %s", *dataDir, cfg.Topic, cfg.Brokers)
		if err := replayer.Replay(ctx, src); err != nil {
			log.Printf("[aisfeed] replay stopped: %v", err)
		}
		replayer.Close()

	default:
		log.Fatalf("[aisfeed] unknown mode %q", *mode)
	}
}
