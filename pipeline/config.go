package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileConfig is the JSON form of Config. Pointer fields keep keys absent
// from the file at their defaults.
type fileConfig struct {
	MaxBatchSize *int   `json:"max_batch_size"`
	MaxSeqLen    *int   `json:"max_seq_len"`
	BinSize      *int   `json:"bin_size"`
	Workers      *int   `json:"worker_count"`
	ForceReload  *bool  `json:"force_reload"`
	Seed         *int64 `json:"seed"`
}

// LoadConfig reads a JSON config file on top of the given defaults. Keys
// absent from the file keep their default values; the merged config is only
// validated once it reaches New.
func LoadConfig(path string, defaults Config) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(buf, &fc); err != nil {
		return defaults, fmt.Errorf("parse config %s: %w", path, err)
	}

	out := defaults
	if fc.MaxBatchSize != nil {
		out.Batch.MaxBatchSize = *fc.MaxBatchSize
	}
	if fc.MaxSeqLen != nil {
		out.Batch.MaxSeqLen = *fc.MaxSeqLen
	}
	if fc.BinSize != nil {
		out.Batch.BinSize = *fc.BinSize
	}
	if fc.Workers != nil {
		out.Workers = *fc.Workers
	}
	if fc.ForceReload != nil {
		out.ForceReload = *fc.ForceReload
	}
	if fc.Seed != nil {
		out.Seed = *fc.Seed
	}
	return out, nil
}
