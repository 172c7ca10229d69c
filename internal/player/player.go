package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"karolbroda.com/resonance/internal/audio"
)

const (
	DefaultVolume = 0.7
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	SpeedStep     = 0.25
)

var ErrNothingLoaded = errors.New("no track loaded")

// TrackUnavailableError reports that the bytes of a track could not be read.
type TrackUnavailableError struct {
	TrackID string
	Err     error
}

func (e *TrackUnavailableError) Error() string {
	return fmt.Sprintf("track %s unavailable: %v", e.TrackID, e.Err)
}

func (e *TrackUnavailableError) Unwrap() error {
	return e.Err
}

// Engine is the black-box media element the session drives.
type Engine interface {
	Load(data []byte) (uint64, error)
	Unload()
	Play()
	Pause()
	Seek(at time.Duration) error
	SetVolume(level float64)
	SetSpeed(ratio float64)
	Events() <-chan audio.Event
}

type Library interface {
	FetchTrackBytes(ctx context.Context, trackID string) ([]byte, error)
}

type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

type EventKind int

const (
	EventTrackLoaded EventKind = iota
	EventPositionChanged
	EventDurationKnown
	EventTrackEnded
	EventStateChanged
	EventSeeked
	EventSettingsChanged
)

// Event is a semantic playback notification. Position and Duration are in
// seconds like every other time the session exposes.
type Event struct {
	Kind     EventKind
	TrackID  string
	Position float64
	Duration float64
	State    State
}

type Status struct {
	TrackID  string
	State    State
	Position float64
	Duration float64
	Volume   float64
	Muted    bool
	Speed    float64
}

// Session owns the single loaded track and turns engine events into
// playback events for the rest of the app.
type Session struct {
	mu  sync.Mutex
	log *slog.Logger

	engine  Engine
	library Library

	trackID    string
	generation uint64
	state      State
	position   float64
	duration   float64
	seekWait   []chan struct{}

	volume     float64
	lastVolume float64
	muted      bool
	speed      float64

	listeners []func(Event)
}

func NewSession(engine Engine, library Library, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		log:        logger.With("component", "player"),
		engine:     engine,
		library:    library,
		volume:     DefaultVolume,
		lastVolume: DefaultVolume,
		speed:      1,
	}
	engine.SetVolume(DefaultVolume)
	return s
}

// Subscribe registers fn for every playback event. Listeners run on the
// session's event goroutine, one event at a time.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Run dispatches engine events until ctx is done.
func (s *Session) Run(ctx context.Context) {
	events := s.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev audio.Event) {
	s.mu.Lock()
	if ev.Generation != s.generation || s.trackID == "" {
		s.mu.Unlock()
		s.log.Debug("dropping stale engine event", "kind", ev.Kind.String(), "generation", ev.Generation)
		return
	}

	out := Event{
		TrackID:  s.trackID,
		Position: ev.Position.Seconds(),
		Duration: ev.Duration.Seconds(),
	}
	var waiters []chan struct{}

	switch ev.Kind {
	case audio.EventTimeUpdate:
		s.position, s.duration = out.Position, out.Duration
		out.Kind = EventPositionChanged
	case audio.EventLoadedMetadata:
		s.duration = out.Duration
		out.Kind = EventDurationKnown
	case audio.EventSeeked:
		s.position = out.Position
		waiters, s.seekWait = s.seekWait, nil
		out.Kind = EventSeeked
	case audio.EventEnded:
		s.position = out.Duration
		s.state = StatePaused
		out.Kind = EventTrackEnded
	}
	out.State = s.state
	listeners := s.listeners
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, fn := range listeners {
		fn(out)
	}
}

// Load reads trackID from the library and hands it to the engine, paused.
// On failure the previously loaded track is left alone.
func (s *Session) Load(ctx context.Context, trackID string) error {
	data, err := s.library.FetchTrackBytes(ctx, trackID)
	if err != nil {
		return &TrackUnavailableError{TrackID: trackID, Err: err}
	}

	generation, err := s.engine.Load(data)
	if err != nil {
		return &TrackUnavailableError{TrackID: trackID, Err: err}
	}

	s.mu.Lock()
	s.trackID = trackID
	s.generation = generation
	s.state = StatePaused
	s.position = 0
	s.duration = 0
	waiters := s.seekWait
	s.seekWait = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}

	s.log.Info("track loaded", "track", trackID)
	s.notify(Event{Kind: EventTrackLoaded, TrackID: trackID, State: StatePaused})
	return nil
}

func (s *Session) Play() {
	s.setState(StatePlaying)
}

func (s *Session) Pause() {
	s.setState(StatePaused)
}

// Toggle flips between playing and paused.
func (s *Session) Toggle() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StatePlaying {
		s.Pause()
	} else {
		s.Play()
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.trackID == "" || s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	trackID := s.trackID
	s.mu.Unlock()

	if state == StatePlaying {
		s.engine.Play()
	} else {
		s.engine.Pause()
	}
	s.notify(Event{Kind: EventStateChanged, TrackID: trackID, State: state})
}

// Stop unloads the current track.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.trackID == "" {
		s.mu.Unlock()
		return
	}
	s.trackID = ""
	s.state = StateStopped
	s.position, s.duration = 0, 0
	s.mu.Unlock()

	s.engine.Unload()
	s.notify(Event{Kind: EventStateChanged, State: StateStopped})
}

// Replay restarts the loaded track from zero and plays it.
func (s *Session) Replay(context.Context) error {
	if err := s.Seek(0); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StatePaused
	s.mu.Unlock()
	s.Play()
	return nil
}

// Seek clamps seconds into the loaded track and jumps there.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	if s.trackID == "" {
		s.mu.Unlock()
		return ErrNothingLoaded
	}
	seconds = clampSeek(seconds, s.duration)
	s.position = seconds
	s.mu.Unlock()

	return s.engine.Seek(time.Duration(seconds * float64(time.Second)))
}

// SeekWait seeks and blocks until the engine confirms the new position.
func (s *Session) SeekWait(ctx context.Context, seconds float64) error {
	done := make(chan struct{})
	s.mu.Lock()
	s.seekWait = append(s.seekWait, done)
	s.mu.Unlock()

	if err := s.Seek(seconds); err != nil {
		s.dropWaiter(done)
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.dropWaiter(done)
		return ctx.Err()
	}
}

func (s *Session) dropWaiter(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.seekWait {
		if ch == done {
			s.seekWait = append(s.seekWait[:i], s.seekWait[i+1:]...)
			return
		}
	}
}

// SetVolume sets the output level in [0, 1]. Any explicit level unmutes.
func (s *Session) SetVolume(level float64) {
	level = math.Max(0, math.Min(1, level))

	s.mu.Lock()
	s.volume = level
	s.muted = false
	if level > 0 {
		s.lastVolume = level
	}
	s.mu.Unlock()

	s.engine.SetVolume(level)
	s.notify(Event{Kind: EventSettingsChanged})
}

// ToggleMute silences output and restores the previous level on the next call.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	var level float64
	if s.muted || s.volume == 0 {
		level = s.lastVolume
		if level == 0 {
			level = DefaultVolume
		}
		s.volume = level
		s.muted = false
	} else {
		s.lastVolume = s.volume
		s.volume = 0
		s.muted = true
	}
	muted := s.muted
	s.mu.Unlock()

	s.engine.SetVolume(level)
	s.notify(Event{Kind: EventSettingsChanged})
	return muted
}

// SetSpeed sets the playback rate, snapped to quarter steps in [0.5, 2].
func (s *Session) SetSpeed(ratio float64) float64 {
	ratio = math.Round(ratio/SpeedStep) * SpeedStep
	ratio = math.Max(MinSpeed, math.Min(MaxSpeed, ratio))

	s.mu.Lock()
	s.speed = ratio
	s.mu.Unlock()

	s.engine.SetSpeed(ratio)
	s.notify(Event{Kind: EventSettingsChanged})
	return ratio
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		TrackID:  s.trackID,
		State:    s.state,
		Position: s.position,
		Duration: s.duration,
		Volume:   s.volume,
		Muted:    s.muted,
		Speed:    s.speed,
	}
}

func (s *Session) notify(ev Event) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func clampSeek(seconds, duration float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}
