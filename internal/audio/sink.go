package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Sink is where the engine's finished chain is played.
type Sink interface {
	Play(s beep.Streamer)
	Clear()
	// Lock stops the sink from pulling samples while the chain is changed.
	Lock()
	Unlock()
	Close() error
}

// NullSink consumes audio in real time without any output device. It keeps
// timing and end-of-track behaviour identical to a real speaker.
type NullSink struct {
	mu     sync.Mutex
	mixer  beep.Mixer
	rate   beep.SampleRate
	tick   time.Duration
	stop   chan struct{}
	closed sync.Once
}

func NewNullSink(rate beep.SampleRate) *NullSink {
	s := &NullSink{
		rate: rate,
		tick: 20 * time.Millisecond,
		stop: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *NullSink) pump() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	buf := make([][2]float64, s.rate.N(s.tick))
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.mixer.Stream(buf)
			s.mu.Unlock()
		}
	}
}

func (s *NullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Add(st)
}

func (s *NullSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
}

func (s *NullSink) Lock()   { s.mu.Lock() }
func (s *NullSink) Unlock() { s.mu.Unlock() }

func (s *NullSink) Close() error {
	s.closed.Do(func() { close(s.stop) })
	return nil
}
