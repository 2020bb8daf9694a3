package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"candle-scanner/internal/exits"
	"candle-scanner/internal/logging"
	"candle-scanner/internal/patterns"
	"candle-scanner/internal/scanner"
	"candle-scanner/internal/trailing"
)

type Config struct {
	LoggingConfig  logging.Config  `json:"logging"`
	ScannerConfig  scanner.Config  `json:"scanner"`
	DetectorConfig DetectorConfig  `json:"detectors"`
	TrailingConfig trailing.Config `json:"trailing"`
	ExitsConfig    exits.Config    `json:"exits"`
}

// DetectorConfig selects and tunes the pattern detectors. Omitted sections
// fall back to the per-detector defaults.
type DetectorConfig struct {
	Enabled []string `json:"enabled"` // empty means all

	MicroPullback patterns.MicroPullbackConfig `json:"micro_pullback"`
	BullFlag      patterns.BullFlagConfig      `json:"bull_flag"`
	VWAPBreak     patterns.VWAPBreakConfig     `json:"vwap_break"`
	OpeningRange  patterns.OpeningRangeConfig  `json:"opening_range"`
	ABCD          patterns.ABCDConfig          `json:"abcd"`
	Reversal      patterns.ReversalConfig      `json:"reversal"`
}

// Detectors builds the detector set from the config. An empty Enabled list
// yields every detector in default scan order.
func (dc DetectorConfig) Detectors() ([]patterns.Detector, error) {
	all := map[string]patterns.Detector{
		"micro_pullback": patterns.NewMicroPullback(dc.MicroPullback),
		"bull_flag":      patterns.NewBullFlag(dc.BullFlag),
		"vwap_break":     patterns.NewVWAPBreak(dc.VWAPBreak),
		"opening_range":  patterns.NewOpeningRangeRetest(dc.OpeningRange),
		"abcd":           patterns.NewABCD(dc.ABCD),
		"reversal":       patterns.NewReversal(dc.Reversal),
	}
	order := dc.Enabled
	if len(order) == 0 {
		order = []string{"micro_pullback", "bull_flag", "vwap_break", "opening_range", "abcd", "reversal"}
	}

	detectors := make([]patterns.Detector, 0, len(order))
	for _, name := range order {
		det, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown detector %q", name)
		}
		detectors = append(detectors, det)
	}
	return detectors, nil
}

// Load reads config.json when present and applies environment overrides on
// top. A missing file is not an error; the defaults plus environment carry.
func Load() (*Config, error) {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LoggingConfig: logging.DefaultConfig(),
		ScannerConfig: scanner.DefaultConfig(),
		DetectorConfig: DetectorConfig{
			MicroPullback: patterns.DefaultMicroPullbackConfig(),
			BullFlag:      patterns.DefaultBullFlagConfig(),
			VWAPBreak:     patterns.DefaultVWAPBreakConfig(),
			OpeningRange:  patterns.DefaultOpeningRangeConfig(),
			ABCD:          patterns.DefaultABCDConfig(),
			Reversal:      patterns.DefaultReversalConfig(),
		},
		TrailingConfig: trailing.DefaultConfig(),
		ExitsConfig:    exits.DefaultConfig(),
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvBoolOrDefault("LOG_PRETTY", cfg.LoggingConfig.Pretty)

	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKER_COUNT", cfg.ScannerConfig.WorkerCount)
	cfg.ScannerConfig.MaxResults = getEnvIntOrDefault("SCANNER_MAX_RESULTS", cfg.ScannerConfig.MaxResults)
	cfg.ScannerConfig.MinConfidence = getEnvFloatOrDefault("SCANNER_MIN_CONFIDENCE", cfg.ScannerConfig.MinConfidence)
	cfg.ScannerConfig.CacheTTL = getEnvDurationOrDefault("SCANNER_CACHE_TTL", cfg.ScannerConfig.CacheTTL)

	cfg.TrailingConfig.Strategy = getEnvOrDefault("TRAILING_STRATEGY", cfg.TrailingConfig.Strategy)
	cfg.TrailingConfig.ActivationR = getEnvFloatOrDefault("TRAILING_ACTIVATION_R", cfg.TrailingConfig.ActivationR)
	cfg.TrailingConfig.MinBarsAfterEntry = getEnvIntOrDefault("TRAILING_MIN_BARS", cfg.TrailingConfig.MinBarsAfterEntry)
	cfg.TrailingConfig.NeverLoosenStop = getEnvBoolOrDefault("TRAILING_NEVER_LOOSEN", cfg.TrailingConfig.NeverLoosenStop)

	cfg.ExitsConfig.MACDConfirmationBars = getEnvIntOrDefault("EXITS_MACD_CONFIRMATION_BARS", cfg.ExitsConfig.MACDConfirmationBars)
	cfg.ExitsConfig.VWAPConfirmationBars = getEnvIntOrDefault("EXITS_VWAP_CONFIRMATION_BARS", cfg.ExitsConfig.VWAPConfirmationBars)
	cfg.ExitsConfig.VolumeDeclineRatio = getEnvFloatOrDefault("EXITS_VOLUME_DECLINE_RATIO", cfg.ExitsConfig.VolumeDeclineRatio)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a config file populated with the defaults.
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(defaults(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
