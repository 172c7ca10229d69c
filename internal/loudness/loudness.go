package loudness

import (
	"math"
	"time"
)

const (
	// SampleWindow is how much audio each measurement point covers.
	SampleWindow = 150 * time.Millisecond
	// SilenceFloorDb is the quietest sample still counted as signal.
	SilenceFloorDb = -100.0
	// FallbackDb is returned when a track cannot be measured.
	FallbackDb = 0.0

	edgeWeight = 0.8
	coreWeight = 1.2
)

// Sample is one loudness measurement. Position is the fraction of the track
// elapsed at the measurement point.
type Sample struct {
	Position float64
	Db       float64
}

// SampleCount scales the number of measurement points with track length.
func SampleCount(duration time.Duration) int {
	switch {
	case duration < 2*time.Minute:
		return 20
	case duration < 5*time.Minute:
		return 30
	default:
		return 40
	}
}

// Timestamps spreads n points evenly from the start of the track.
func Timestamps(duration time.Duration, n int) []time.Duration {
	if n <= 0 || duration <= 0 {
		return nil
	}
	step := duration / time.Duration(n)
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = step * time.Duration(i)
	}
	return out
}

// RMSDecibels mixes frames down to mono and returns their RMS level in dBFS.
func RMSDecibels(frames [][2]float64) float64 {
	if len(frames) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, f := range frames {
		mono := (f[0] + f[1]) / 2
		sum += mono * mono
	}
	rms := math.Sqrt(sum / float64(len(frames)))
	return 20 * math.Log10(rms)
}

// Usable reports whether a measurement is real signal rather than silence or noise.
func Usable(db float64) bool {
	return !math.IsNaN(db) && !math.IsInf(db, 0) && db > SilenceFloorDb
}

// Weight favours the body of a track over its intro and outro.
func Weight(position float64) float64 {
	if position < 0.2 || position > 0.8 {
		return edgeWeight
	}
	return coreWeight
}

// WeightedAverage returns the position-weighted mean level, or false when
// there are no samples.
func WeightedAverage(samples []Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var weighted, total float64
	for _, s := range samples {
		w := Weight(s.Position)
		weighted += s.Db * w
		total += w
	}
	return weighted / total, true
}
