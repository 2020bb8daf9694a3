package scanner

import (
	"time"

	"candle-scanner/internal/market"
	"candle-scanner/internal/patterns"
)

// Snapshot is one symbol's bar series to be scanned, with an optional
// precomputed indicator context shared by all detectors.
type Snapshot struct {
	Symbol  string
	Bars    market.Series
	Context *patterns.Context
}

// Detection is one positive detector outcome on one symbol.
type Detection struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Detector    string          `json:"detector"`
	Result      patterns.Result `json:"result"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}

// ScanError records a detector that could not evaluate a symbol.
type ScanError struct {
	Symbol   string `json:"symbol"`
	Detector string `json:"detector"`
	Err      string `json:"error"`
}

// Report aggregates one scan run.
type Report struct {
	ScanID         string        `json:"scan_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int           `json:"symbols_scanned"`
	DetectorsRun   int           `json:"detectors_run"`
	Detections     []Detection   `json:"detections"`
	Errors         []ScanError   `json:"errors,omitempty"`
}

// Config holds engine configuration.
type Config struct {
	WorkerCount   int           `json:"worker_count"`   // default 4
	MaxResults    int           `json:"max_results"`    // 0 means unlimited
	MinConfidence float64       `json:"min_confidence"` // drop detections below this
	CacheTTL      time.Duration `json:"cache_ttl"`      // 0 disables the cache
}

func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		CacheTTL:    30 * time.Second,
	}
}

func (c *Config) normalize() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
}
