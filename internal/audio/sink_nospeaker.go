//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"errors"

	"github.com/gopxl/beep/v2"
)

const SpeakerAvailable = false

func NewSpeakerSink(beep.SampleRate) (Sink, error) {
	return nil, errors.New("audio output not supported in this build")
}
