package gain

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"karolbroda.com/resonance/internal/loudness"
)

const (
	Unity   = 1.0
	MinGain = 0.1
	MaxGain = 3.0

	// RampDuration is how long every gain change takes to settle.
	RampDuration = 500 * time.Millisecond
)

// Sink is the output stage the controller adjusts.
type Sink interface {
	RampGain(target float64, over time.Duration)
}

type Analyzer interface {
	Measure(ctx context.Context, trackID string) (float64, error)
	Cached(trackID string) (loudness.Estimate, bool)
	ClearCache() error
}

type State struct {
	Enabled     bool
	Gain        float64
	Baseline    float64
	HasBaseline bool
}

// Controller smooths loudness jumps between consecutive tracks. It is driven
// only from queue transitions, which are already serialized by the queue.
type Controller struct {
	mu  sync.Mutex
	log *slog.Logger

	sink     Sink
	analyzer Analyzer
	ramp     time.Duration

	enabled     bool
	gain        float64
	baseline    float64
	hasBaseline bool

	prefetching sync.WaitGroup
}

func New(sink Sink, analyzer Analyzer, enabled bool, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		log:      logger.With("component", "gain"),
		sink:     sink,
		analyzer: analyzer,
		ramp:     RampDuration,
		enabled:  enabled,
		gain:     Unity,
	}
}

// Compute converts the loudness difference between two tracks into a linear
// gain for the current one.
func Compute(previousDb, currentDb float64) float64 {
	return clamp(math.Pow(10, (previousDb-currentDb)/20))
}

func clamp(g float64) float64 {
	return math.Min(MaxGain, math.Max(MinGain, g))
}

// Apply sets the output gain for trackID relative to the previous track and
// makes it the new baseline. It does nothing while normalization is off.
func (c *Controller) Apply(ctx context.Context, trackID string) float64 {
	c.mu.Lock()
	if !c.enabled {
		g := c.gain
		c.mu.Unlock()
		return g
	}
	c.mu.Unlock()

	current, err := c.analyzer.Measure(ctx, trackID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return c.gain
	}

	var target float64
	switch {
	case err != nil:
		// unknown loudness, play untouched and keep comparing against the old baseline
		target = Unity
	case !c.hasBaseline:
		target = Unity
		c.baseline, c.hasBaseline = current, true
	default:
		target = Compute(c.baseline, current)
		c.log.Debug("normalizing",
			"track", trackID,
			"previous_db", c.baseline,
			"current_db", current,
			"gain", target,
		)
		c.baseline = current
	}

	c.setLocked(target)
	return target
}

// Prefetch analyses trackID in the background so the next transition does not
// wait for it.
func (c *Controller) Prefetch(trackID string) {
	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()

	if !enabled || trackID == "" {
		return
	}
	if _, ok := c.analyzer.Cached(trackID); ok {
		return
	}

	c.prefetching.Add(1)
	go func() {
		defer c.prefetching.Done()
		if _, err := c.analyzer.Measure(context.Background(), trackID); err != nil {
			c.log.Debug("pre-analysis failed", "track", trackID, "error", err)
		}
	}()
}

// Wait blocks until background analyses started by Prefetch are done.
func (c *Controller) Wait() {
	c.prefetching.Wait()
}

// ResetBaseline makes the next applied track the reference again.
func (c *Controller) ResetBaseline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasBaseline = false
	c.baseline = 0
}

func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.hasBaseline = false
	c.baseline = 0

	if !enabled {
		c.setLocked(Unity)
	}
	c.log.Info("normalization toggled", "enabled", enabled)
}

// Toggle flips normalization and returns the new setting.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	next := !c.enabled
	c.mu.Unlock()

	c.SetEnabled(next)
	return next
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Enabled:     c.enabled,
		Gain:        c.gain,
		Baseline:    c.baseline,
		HasBaseline: c.hasBaseline,
	}
}

func (c *Controller) ClearLoudnessCache() error {
	return c.analyzer.ClearCache()
}

func (c *Controller) setLocked(target float64) {
	c.gain = target
	if c.sink != nil {
		c.sink.RampGain(target, c.ramp)
	}
}
