package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatFLAC
	FormatWAV
)

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatWAV:
		return "wav"
	default:
		return "unknown"
	}
}

// Sniff guesses the container from the first bytes of a file.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode turns an in-memory file into a seekable stream.
func Decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)

	switch kind := Sniff(data); kind {
	case FormatMP3:
		streamer, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case FormatFLAC:
		streamer, format, err = flac.Decode(bytes.NewReader(data))
	case FormatWAV:
		streamer, format, err = wav.Decode(bytes.NewReader(data))
	default:
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode audio: %w", err)
	}
	return streamer, format, nil
}
