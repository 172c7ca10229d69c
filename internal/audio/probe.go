package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"

	"karolbroda.com/resonance/internal/loudness"
)

// Fetcher supplies raw file bytes for a track.
type Fetcher interface {
	FetchTrackBytes(ctx context.Context, trackID string) ([]byte, error)
}

// Probe opens tracks for offline measurement. Nothing it decodes reaches a Sink.
type Probe struct {
	fetcher Fetcher
}

func NewProbe(fetcher Fetcher) *Probe {
	return &Probe{fetcher: fetcher}
}

func (p *Probe) Open(ctx context.Context, trackID string) (loudness.Source, error) {
	data, err := p.fetcher.FetchTrackBytes(ctx, trackID)
	if err != nil {
		return nil, err
	}
	streamer, format, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &probeSource{streamer: streamer, format: format}, nil
}

// Duration decodes just enough of trackID to report its length.
func (p *Probe) Duration(ctx context.Context, trackID string) (time.Duration, error) {
	src, err := p.Open(ctx, trackID)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return src.Duration(), nil
}

type probeSource struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
}

func (s *probeSource) Duration() time.Duration {
	return s.format.SampleRate.D(s.streamer.Len())
}

func (s *probeSource) Read(at time.Duration, window time.Duration) ([][2]float64, error) {
	pos := s.format.SampleRate.N(at)
	if pos >= s.streamer.Len() {
		return nil, nil
	}
	if err := s.streamer.Seek(pos); err != nil {
		return nil, fmt.Errorf("failed to seek: %w", err)
	}

	buf := make([][2]float64, s.format.SampleRate.N(window))
	n, _ := s.streamer.Stream(buf)
	if err := s.streamer.Err(); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *probeSource) Close() error {
	return s.streamer.Close()
}
