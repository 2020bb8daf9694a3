package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileMergesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"logging": {"level": "debug"},
		"scanner": {"worker_count": 8},
		"detectors": {"enabled": ["abcd", "reversal"]}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCANNER_MIN_CONFIDENCE", "0.7")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LoggingConfig.Level != "warn" {
		t.Fatalf("environment should override the file, got level %q", cfg.LoggingConfig.Level)
	}
	if cfg.ScannerConfig.WorkerCount != 8 {
		t.Fatalf("file value lost: worker_count = %d", cfg.ScannerConfig.WorkerCount)
	}
	if cfg.ScannerConfig.MinConfidence != 0.7 {
		t.Fatalf("env override lost: min_confidence = %v", cfg.ScannerConfig.MinConfidence)
	}
	// Untouched sections keep their defaults.
	if cfg.TrailingConfig.Strategy != "swing_low" {
		t.Fatalf("default trailing strategy lost: %q", cfg.TrailingConfig.Strategy)
	}

	detectors, err := cfg.DetectorConfig.Detectors()
	if err != nil {
		t.Fatal(err)
	}
	if len(detectors) != 2 || detectors[0].Name() != "ABCD" {
		t.Fatalf("enabled list not honored: %+v", detectors)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ScannerConfig.WorkerCount != 4 {
		t.Fatalf("defaults expected, got %+v", cfg.ScannerConfig)
	}
}

func TestUnknownDetectorName(t *testing.T) {
	dc := DetectorConfig{Enabled: []string{"head_and_shoulders"}}
	if _, err := dc.Detectors(); err == nil {
		t.Fatal("unknown detector name must error")
	}
}
