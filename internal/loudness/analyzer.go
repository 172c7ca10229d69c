package loudness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrNoDuration = errors.New("track has no duration")
	ErrNoSamples  = errors.New("no usable loudness samples")
)

// Estimate is the cached result of analysing one track.
type Estimate struct {
	TrackID   string
	AverageDb float64
	Samples   int
}

// Source is a decoded track opened only for measurement. It must never feed
// the audio output.
type Source interface {
	Duration() time.Duration
	// Read seeks to at and returns up to window worth of stereo frames.
	Read(at time.Duration, window time.Duration) ([][2]float64, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, trackID string) (Source, error)
}

// Store persists estimates between runs. Failures are logged and ignored.
type Store interface {
	Get(key string) (Estimate, error)
	Set(key string, value Estimate) error
	Clear() error
}

// AnalysisError wraps any failure while measuring a track.
type AnalysisError struct {
	TrackID string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.TrackID, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

type Analyzer struct {
	opener Opener
	store  Store
	log    *slog.Logger
	window time.Duration

	mu    sync.RWMutex
	memo  map[string]Estimate
	group singleflight.Group
}

// NewAnalyzer creates an analyzer. store may be nil to keep results in memory only.
func NewAnalyzer(opener Opener, store Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		opener: opener,
		store:  store,
		log:    logger.With("component", "loudness"),
		window: SampleWindow,
		memo:   make(map[string]Estimate),
	}
}

// Analyze returns the average loudness of a track in dB, or FallbackDb when
// it cannot be measured.
func (a *Analyzer) Analyze(ctx context.Context, trackID string) float64 {
	db, err := a.Measure(ctx, trackID)
	if err != nil {
		return FallbackDb
	}
	return db
}

// Measure is Analyze with the failure reported. Concurrent calls for the same
// track share one measurement.
func (a *Analyzer) Measure(ctx context.Context, trackID string) (float64, error) {
	if est, ok := a.Cached(trackID); ok {
		return est.AverageDb, nil
	}

	// in-flight work outlives any single caller
	workCtx := context.WithoutCancel(ctx)

	v, err, shared := a.group.Do(trackID, func() (any, error) {
		if est, ok := a.Cached(trackID); ok {
			return est, nil
		}
		est, err := a.measure(workCtx, trackID)
		if err != nil {
			return Estimate{}, err
		}
		a.remember(est)
		return est, nil
	})
	if err != nil {
		a.log.Warn("loudness analysis failed", "track", trackID, "error", err)
		return FallbackDb, &AnalysisError{TrackID: trackID, Err: err}
	}

	est := v.(Estimate)
	if shared {
		a.log.Debug("joined in-flight analysis", "track", trackID)
	}
	return est.AverageDb, nil
}

// Cached returns a stored estimate without measuring.
func (a *Analyzer) Cached(trackID string) (Estimate, bool) {
	a.mu.RLock()
	est, ok := a.memo[trackID]
	a.mu.RUnlock()
	if ok {
		return est, true
	}

	if a.store == nil {
		return Estimate{}, false
	}
	est, err := a.store.Get(trackID)
	if err != nil {
		return Estimate{}, false
	}

	a.mu.Lock()
	a.memo[trackID] = est
	a.mu.Unlock()
	return est, true
}

// ClearCache forgets every estimate in memory and on disk.
func (a *Analyzer) ClearCache() error {
	a.mu.Lock()
	a.memo = make(map[string]Estimate)
	a.mu.Unlock()

	if a.store == nil {
		return nil
	}
	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear loudness store: %w", err)
	}
	return nil
}

func (a *Analyzer) measure(ctx context.Context, trackID string) (Estimate, error) {
	start := time.Now()

	src, err := a.opener.Open(ctx, trackID)
	if err != nil {
		return Estimate{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			a.log.Debug("failed to close analysis source", "track", trackID, "error", err)
		}
	}()

	duration := src.Duration()
	if duration <= 0 {
		return Estimate{}, ErrNoDuration
	}

	n := SampleCount(duration)
	samples := make([]Sample, 0, n)

	for i, at := range Timestamps(duration, n) {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}

		frames, err := src.Read(at, a.window)
		if err != nil {
			return Estimate{}, fmt.Errorf("read at %s: %w", at, err)
		}

		db := RMSDecibels(frames)
		if !Usable(db) {
			continue
		}
		samples = append(samples, Sample{Position: float64(i) / float64(n), Db: db})
	}

	avg, ok := WeightedAverage(samples)
	if !ok {
		return Estimate{}, ErrNoSamples
	}

	a.log.Info("loudness analysed",
		"track", trackID,
		"duration", duration.Round(time.Second),
		"samples", len(samples),
		"db", fmt.Sprintf("%.2f", avg),
		"took", time.Since(start).Round(time.Millisecond),
	)

	return Estimate{TrackID: trackID, AverageDb: avg, Samples: len(samples)}, nil
}

func (a *Analyzer) remember(est Estimate) {
	a.mu.Lock()
	a.memo[est.TrackID] = est
	a.mu.Unlock()

	if a.store == nil {
		return
	}
	if err := a.store.Set(est.TrackID, est); err != nil {
		a.log.Warn("failed to persist loudness estimate", "track", est.TrackID, "error", err)
	}
}
