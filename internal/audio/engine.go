package audio

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)

	timeUpdateInterval = 250 * time.Millisecond
	resampleQuality    = 4
)

var ErrNotLoaded = errors.New("no track loaded")

type EventKind int

const (
	EventTimeUpdate EventKind = iota
	EventLoadedMetadata
	EventEnded
	EventSeeked
)

func (k EventKind) String() string {
	switch k {
	case EventTimeUpdate:
		return "timeupdate"
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventEnded:
		return "ended"
	case EventSeeked:
		return "seeked"
	default:
		return "unknown"
	}
}

// Event is something the engine observed about the track loaded under
// Generation. Consumers compare generations to drop events from a replaced track.
type Event struct {
	Kind       EventKind
	Generation uint64
	Position   time.Duration
	Duration   time.Duration
}

type loadedTrack struct {
	generation uint64
	streamer   beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	speed      *beep.Resampler
	attached   bool
}

func (t *loadedTrack) duration() time.Duration {
	return t.format.SampleRate.D(t.streamer.Len())
}

func (t *loadedTrack) position() time.Duration {
	return t.format.SampleRate.D(t.streamer.Position())
}

// Engine decodes one track at a time and plays it through a Sink. It knows
// nothing about queues; it only reports what happens to the loaded track.
type Engine struct {
	mu  sync.Mutex
	log *slog.Logger

	sink   Sink
	rate   beep.SampleRate
	ramp   *gainRamp
	events chan Event

	generation uint64
	track      *loadedTrack
	volume     *effects.Volume
	level      float64
	speed      float64

	stop      chan struct{}
	closeOnce sync.Once
}

func NewEngine(sink Sink, rate beep.SampleRate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		log:    logger.With("component", "audio"),
		sink:   sink,
		rate:   rate,
		ramp:   newGainRamp(rate),
		events: make(chan Event, 64),
		level:  1,
		speed:  1,
		stop:   make(chan struct{}),
	}
	go e.timeLoop()
	return e
}

func (e *Engine) Events() <-chan Event {
	return e.events
}

// Load decodes data and makes it the current track, paused at zero. The
// previous track is released only once the new one decoded.
func (e *Engine) Load(data []byte) (uint64, error) {
	streamer, format, err := Decode(data)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.releaseLocked()

	e.generation++
	e.track = &loadedTrack{
		generation: e.generation,
		streamer:   streamer,
		format:     format,
	}
	e.attachLocked()

	e.log.Debug("track loaded",
		"generation", e.generation,
		"sample_rate", int(format.SampleRate),
		"duration", e.track.duration().Round(time.Second),
	)
	e.emit(Event{
		Kind:       EventLoadedMetadata,
		Generation: e.generation,
		Duration:   e.track.duration(),
	})
	return e.generation, nil
}

// Unload stops output and frees the decoder of the current track.
func (e *Engine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseLocked()
}

func (e *Engine) Play() {
	e.setPaused(false)
}

func (e *Engine) Pause() {
	e.setPaused(true)
}

func (e *Engine) setPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return
	}
	if !paused && !e.track.attached {
		e.attachLocked()
	}
	e.sink.Lock()
	e.track.ctrl.Paused = paused
	e.sink.Unlock()
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return true
	}
	e.sink.Lock()
	defer e.sink.Unlock()
	return e.track.ctrl.Paused
}

// Seek moves the current track to at and reports completion with EventSeeked.
func (e *Engine) Seek(at time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return ErrNotLoaded
	}

	t := e.track
	pos := max(0, min(t.format.SampleRate.N(at), t.streamer.Len()))

	e.sink.Lock()
	err := t.streamer.Seek(pos)
	e.sink.Unlock()
	if err != nil {
		return err
	}

	// a finished track left the sink, bring it back paused
	if !t.attached {
		e.attachLocked()
	}

	e.emit(Event{
		Kind:       EventSeeked,
		Generation: t.generation,
		Position:   t.position(),
		Duration:   t.duration(),
	})
	return nil
}

func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return 0
	}
	e.sink.Lock()
	defer e.sink.Unlock()
	return e.track.position()
}

func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return 0
	}
	return e.track.duration()
}

// SetVolume sets the linear output level, 0 is silent.
func (e *Engine) SetVolume(level float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = math.Max(0, level)
	if e.volume == nil {
		return
	}
	e.sink.Lock()
	applyLevel(e.volume, e.level)
	e.sink.Unlock()
}

// SetSpeed changes the playback rate of the current and later tracks.
func (e *Engine) SetSpeed(ratio float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.speed = ratio
	if e.track == nil || e.track.speed == nil {
		return
	}
	e.sink.Lock()
	e.track.speed.SetRatio(ratio)
	e.sink.Unlock()
}

// RampGain moves the normalization gain to target over the given time.
func (e *Engine) RampGain(target float64, over time.Duration) {
	e.ramp.set(target, over)
}

func (e *Engine) Gain() float64 {
	return e.ramp.value()
}

func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stop)
		e.Unload()
	})
	return e.sink.Close()
}

// attachLocked builds the output chain for the current track and hands it to
// the sink, paused.
func (e *Engine) attachLocked() {
	t := e.track
	generation := t.generation

	resampled := beep.Resample(resampleQuality, t.format.SampleRate, e.rate, t.streamer)
	t.ctrl = &beep.Ctrl{Streamer: resampled, Paused: true}
	t.speed = beep.ResampleRatio(resampleQuality, e.speed, t.ctrl)
	e.volume = &effects.Volume{Streamer: &rampStreamer{s: t.speed, ramp: e.ramp}, Base: 2}
	applyLevel(e.volume, e.level)
	t.attached = true

	e.sink.Play(beep.Seq(e.volume, beep.Callback(func() {
		// runs inside the sink's lock
		go e.finished(generation)
	})))
}

func (e *Engine) finished(generation uint64) {
	e.mu.Lock()
	if e.track == nil || e.track.generation != generation {
		e.mu.Unlock()
		return
	}
	e.track.attached = false
	duration := e.track.duration()
	e.mu.Unlock()

	select {
	case e.events <- Event{Kind: EventEnded, Generation: generation, Position: duration, Duration: duration}:
	case <-e.stop:
	}
}

func (e *Engine) releaseLocked() {
	if e.track == nil {
		return
	}
	e.sink.Clear()
	if err := e.track.streamer.Close(); err != nil {
		e.log.Debug("failed to close decoder", "generation", e.track.generation, "error", err)
	}
	e.track = nil
	e.volume = nil
}

func (e *Engine) timeLoop() {
	ticker := time.NewTicker(timeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.track != nil && e.track.attached {
				e.sink.Lock()
				playing := !e.track.ctrl.Paused
				pos := e.track.position()
				e.sink.Unlock()
				if playing {
					e.emit(Event{
						Kind:       EventTimeUpdate,
						Generation: e.track.generation,
						Position:   pos,
						Duration:   e.track.duration(),
					})
				}
			}
			e.mu.Unlock()
		}
	}
}

// emit drops the event when nobody keeps up, like a media element would.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func applyLevel(v *effects.Volume, level float64) {
	if level <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(level)
}
