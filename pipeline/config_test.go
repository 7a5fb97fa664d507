package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tidegrid/trajbatch/batch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trajbatch.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadConfig_PartialFileKeepsDefaults: keys absent from the file must not
// clobber the defaults they sit on top of.
func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	defaults := Config{
		Batch:   batch.Config{MaxBatchSize: 32, MaxSeqLen: 512, BinSize: 64},
		Workers: 4,
		Seed:    7,
	}
	path := writeConfig(t, `{"max_batch_size": 8, "force_reload": true}`)

	got, err := LoadConfig(path, defaults)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := defaults
	want.Batch.MaxBatchSize = 8
	want.ForceReload = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged config differs:\n%s", diff)
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `{
		"max_batch_size": 16,
		"max_seq_len": 300,
		"bin_size": 25,
		"worker_count": 3,
		"force_reload": false,
		"seed": 123
	}`)

	got, err := LoadConfig(path, Config{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := Config{
		Batch:   batch.Config{MaxBatchSize: 16, MaxSeqLen: 300, BinSize: 25},
		Workers: 3,
		Seed:    123,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("loaded config differs:\n%s", diff)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	defaults := Config{Batch: batch.Config{MaxBatchSize: 32, MaxSeqLen: 512, BinSize: 64}}

	got, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"), defaults)
	if err == nil {
		t.Fatalf("expected error for a missing file")
	}
	if diff := cmp.Diff(defaults, got); diff != "" {
		t.Fatalf("failed load should hand back the defaults:\n%s", diff)
	}

	if _, err := LoadConfig(writeConfig(t, `{"max_batch_size": `), defaults); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}

	// Unknown keys are ignored, not errors; operators share config files
	// across tool versions.
	if _, err := LoadConfig(writeConfig(t, `{"unknown_key": 1}`), defaults); err != nil {
		t.Fatalf("unknown keys should be tolerated: %v", err)
	}
}
