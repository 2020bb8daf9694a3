// Package scanner runs a set of pattern detectors across bar-series
// snapshots. The engine is one-shot per call: feeding it data and deciding
// when to scan is the caller's job.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"candle-scanner/internal/patterns"
)

// Engine evaluates every registered detector against every snapshot.
type Engine struct {
	detectors []patterns.Detector
	config    Config
	cache     *resultCache
	log       zerolog.Logger

	mu         sync.RWMutex
	lastReport *Report
}

// NewEngine creates an engine over the given detector set.
func NewEngine(detectors []patterns.Detector, config Config, log zerolog.Logger) *Engine {
	config.normalize()
	e := &Engine{
		detectors: detectors,
		config:    config,
		log:       log.With().Str("component", "scanner").Logger(),
	}
	if config.CacheTTL > 0 {
		e.cache = newResultCache(config.CacheTTL)
	}
	return e
}

// Scan runs all detectors against all snapshots and returns the aggregated
// report. Detections are sorted by confidence, highest first.
func (e *Engine) Scan(ctx context.Context, snapshots []Snapshot) *Report {
	startTime := time.Now()
	scanID := uuid.NewString()

	log := e.log.With().Str("scan_id", scanID).Logger()
	log.Info().
		Int("symbols", len(snapshots)).
		Int("detectors", len(e.detectors)).
		Msg("starting scan")

	snapshotChan := make(chan Snapshot, len(snapshots))
	detectionChan := make(chan Detection, len(snapshots)*len(e.detectors))
	errChan := make(chan ScanError, len(snapshots)*len(e.detectors))

	var wg sync.WaitGroup
	for i := 0; i < e.config.WorkerCount; i++ {
		wg.Add(1)
		go e.worker(ctx, log, snapshotChan, detectionChan, errChan, &wg)
	}

	for _, snap := range snapshots {
		snapshotChan <- snap
	}
	close(snapshotChan)

	go func() {
		wg.Wait()
		close(detectionChan)
		close(errChan)
	}()

	detections := []Detection{}
	for d := range detectionChan {
		detections = append(detections, d)
	}
	var errs []ScanError
	for scanErr := range errChan {
		errs = append(errs, scanErr)
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Result.Confidence > detections[j].Result.Confidence
	})
	if e.config.MaxResults > 0 && len(detections) > e.config.MaxResults {
		detections = detections[:e.config.MaxResults]
	}

	report := &Report{
		ScanID:         scanID,
		StartTime:      startTime,
		EndTime:        time.Now(),
		Duration:       time.Since(startTime),
		SymbolsScanned: len(snapshots),
		DetectorsRun:   len(e.detectors),
		Detections:     detections,
		Errors:         errs,
	}

	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()

	log.Info().
		Dur("duration", report.Duration).
		Int("detections", len(detections)).
		Int("errors", len(errs)).
		Msg("scan completed")

	return report
}

func (e *Engine) worker(
	ctx context.Context,
	log zerolog.Logger,
	snapshotChan <-chan Snapshot,
	detectionChan chan<- Detection,
	errChan chan<- ScanError,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for snap := range snapshotChan {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, d := range e.scanSnapshot(log, snap, errChan) {
			detectionChan <- d
		}
	}
}

// scanSnapshot evaluates every detector against a single snapshot.
func (e *Engine) scanSnapshot(log zerolog.Logger, snap Snapshot, errChan chan<- ScanError) []Detection {
	key := cacheKey(snap.Symbol, snap.Bars)
	if cached, ok := e.cache.get(key); ok {
		return cached
	}

	detections := []Detection{}
	for _, det := range e.detectors {
		result, err := det.Detect(snap.Bars, snap.Context)
		if err != nil {
			log.Warn().
				Err(err).
				Str("symbol", snap.Symbol).
				Str("detector", det.Name()).
				Msg("detector failed")
			errChan <- ScanError{Symbol: snap.Symbol, Detector: det.Name(), Err: err.Error()}
			continue
		}
		if !result.Detected || result.Confidence < e.config.MinConfidence {
			log.Debug().
				Str("symbol", snap.Symbol).
				Str("detector", det.Name()).
				Str("reason", result.Reason).
				Msg("no detection")
			continue
		}
		log.Info().
			Str("symbol", snap.Symbol).
			Str("detector", det.Name()).
			Str("pattern", result.PatternName).
			Str("direction", result.Direction).
			Float64("confidence", result.Confidence).
			Float64("entry", result.EntryPrice).
			Float64("stop", result.StopPrice).
			Msg("pattern detected")
		detections = append(detections, Detection{
			ID:          uuid.NewString(),
			Symbol:      snap.Symbol,
			Detector:    det.Name(),
			Result:      result,
			EvaluatedAt: time.Now(),
		})
	}

	e.cache.set(key, detections)
	return detections
}

// LastReport returns the most recent scan report, nil before the first scan.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// CleanupCache drops expired cache entries.
func (e *Engine) CleanupCache() {
	e.cache.cleanupExpired()
}
