//go:build (linux && cgo) || windows || darwin

package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// SpeakerAvailable reports whether this build can open an output device.
const SpeakerAvailable = true

type speakerSink struct{}

// NewSpeakerSink opens the default output device at rate.
func NewSpeakerSink(rate beep.SampleRate) (Sink, error) {
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	return speakerSink{}, nil
}

func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Clear()               { speaker.Clear() }
func (speakerSink) Lock()                { speaker.Lock() }
func (speakerSink) Unlock()              { speaker.Unlock() }

func (speakerSink) Close() error {
	speaker.Close()
	return nil
}
