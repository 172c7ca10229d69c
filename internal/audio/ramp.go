package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// gainRamp is a linear gain that moves towards a target one sample at a time.
// It outlives individual tracks so a ramp started before a track change keeps
// going on the new one.
type gainRamp struct {
	mu        sync.Mutex
	rate      beep.SampleRate
	current   float64
	target    float64
	step      float64
	remaining int
}

func newGainRamp(rate beep.SampleRate) *gainRamp {
	return &gainRamp{rate: rate, current: 1, target: 1}
}

func (r *gainRamp) set(target float64, over time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.rate.N(over)
	r.target = target
	if n <= 0 {
		r.current = target
		r.remaining = 0
		return
	}
	r.step = (target - r.current) / float64(n)
	r.remaining = n
}

func (r *gainRamp) value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *gainRamp) apply(samples [][2]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range samples {
		if r.remaining > 0 {
			r.current += r.step
			r.remaining--
			if r.remaining == 0 {
				r.current = r.target
			}
		}
		samples[i][0] *= r.current
		samples[i][1] *= r.current
	}
}

// rampStreamer scales everything it streams by the shared ramp.
type rampStreamer struct {
	s    beep.Streamer
	ramp *gainRamp
}

func (g *rampStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := g.s.Stream(samples)
	g.ramp.apply(samples[:n])
	return n, ok
}

func (g *rampStreamer) Err() error {
	return g.s.Err()
}
