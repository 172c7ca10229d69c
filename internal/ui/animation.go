package ui

import (
	"math"
)

const (
	lineTransitionTicks = 8
	revealStep          = 0.08
	glowDecay           = 0.85
)

// AnimState drives the focus lyric: the slide between lines, the per-letter
// reveal and the glow that fades after a line change.
type AnimState struct {
	TransitionProgress float64
	CharReveal         float64
	GlowIntensity      float64
	ShimmerPhase       float64
	ScrollPosition     float64
	TargetScrollY      float64
	PrevScrollY        float64
}

func (a *AnimState) Reset() {
	*a = AnimState{}
}

// Advance moves every animation one tick forward. newLine restarts the
// transition toward TargetScrollY.
func (a *AnimState) Advance(tickCount int, newLine bool) {
	if newLine {
		a.TransitionProgress = 0
		a.CharReveal = 0
		a.GlowIntensity = 1.0
		a.PrevScrollY = a.ScrollPosition
	}

	a.TransitionProgress = math.Min(1, a.TransitionProgress+1.0/lineTransitionTicks)
	a.CharReveal = math.Min(1, a.CharReveal+revealStep)
	a.ScrollPosition = lerp(a.PrevScrollY, a.TargetScrollY, easeOutCubic(a.TransitionProgress))

	if a.GlowIntensity > 0 {
		a.GlowIntensity *= glowDecay
		if a.GlowIntensity < 0.01 {
			a.GlowIntensity = 0
		}
	}

	a.ShimmerPhase = float64(tickCount) * 0.05
}

func (a *AnimState) SlideOffset() float64 {
	return easeOutCubic(a.TransitionProgress)
}

func easeOutCubic(t float64) float64 {
	return easeOut(t, 3)
}

func easeOutQuart(t float64) float64 {
	return easeOut(t, 4)
}

func easeOut(t, power float64) float64 {
	if t >= 1 {
		return 1
	}
	if t <= 0 {
		return 0
	}
	return 1 - math.Pow(1-t, power)
}

func lerp(a float64, b float64, t float64) float64 {
	return a + (b-a)*t
}
