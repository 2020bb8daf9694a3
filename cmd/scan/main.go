// Command scan runs the pattern detectors once over bar data read from disk
// and prints the resulting report as JSON. It does no data acquisition and
// places no orders.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"candle-scanner/config"
	"candle-scanner/internal/logging"
	"candle-scanner/internal/market"
	"candle-scanner/internal/scanner"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	inputPath := flag.String("input", "", "path to OHLCV JSON input")
	symbol := flag.String("symbol", "SERIES", "symbol name when the input is a bare bar array")
	sampleConfig := flag.String("sample-config", "", "write a sample config file to this path and exit")
	flag.Parse()

	// .env is optional; environment overrides still apply without it.
	_ = godotenv.Load()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig, nil)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -input bars.json [-config config.json]")
		os.Exit(2)
	}
	snapshots, err := loadSnapshots(*inputPath, *symbol)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *inputPath).Msg("failed to load input")
	}

	detectors, err := cfg.DetectorConfig.Detectors()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid detector configuration")
	}

	engine := scanner.NewEngine(detectors, cfg.ScannerConfig, logger)
	report := engine.Scan(context.Background(), snapshots)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatal().Err(err).Msg("failed to encode report")
	}
}

// loadSnapshots reads either a symbol-to-bars object or a bare bar array.
func loadSnapshots(path, fallbackSymbol string) ([]scanner.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bySymbol map[string]market.Series
	if err := json.Unmarshal(data, &bySymbol); err == nil {
		snapshots := make([]scanner.Snapshot, 0, len(bySymbol))
		for sym, bars := range bySymbol {
			snapshots = append(snapshots, scanner.Snapshot{Symbol: sym, Bars: bars})
		}
		return snapshots, nil
	}

	var bars market.Series
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("input is neither a symbol map nor a bar array: %w", err)
	}
	return []scanner.Snapshot{{Symbol: fallbackSymbol, Bars: bars}}, nil
}
