package ingest

import (
	"os"
	"strconv"
)

// Config carries the Kafka settings, read from the environment so deployments
// stay image-identical.
type Config struct {
	Brokers         string
	Topic           string
	GroupID         string
	AutoOffsetReset string
	FlushEvery      int // buffered positions before a store flush
}

// ConfigFromEnv applies defaults for anything unset.
func ConfigFromEnv() Config {
	return Config{
		Brokers:         getEnv("KAFKA_BROKERS", "localhost:9092"),
		Topic:           getEnv("KAFKA_TOPIC", "ais.positions"),
		GroupID:         getEnv("KAFKA_GROUP_ID", "trajbatch-ingest"),
		AutoOffsetReset: getEnv("KAFKA_AUTO_OFFSET_RESET", "earliest"),
		FlushEvery:      getEnvInt("INGEST_FLUSH_EVERY", 64),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
