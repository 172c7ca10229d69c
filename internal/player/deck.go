package player

import (
	"context"
	"log/slog"

	"karolbroda.com/resonance/internal/queue"
)

// Normalizer adjusts output gain between tracks.
type Normalizer interface {
	Apply(ctx context.Context, trackID string) float64
	Prefetch(trackID string)
	ResetBaseline()
}

// Deck plays queue transitions on a Session, with loudness normalization
// applied before each new track becomes audible.
type Deck struct {
	session *Session
	gain    Normalizer
	log     *slog.Logger
}

var _ queue.Deck = (*Deck)(nil)

func NewDeck(session *Session, gain Normalizer, logger *slog.Logger) *Deck {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deck{
		session: session,
		gain:    gain,
		log:     logger.With("component", "deck"),
	}
}

func (d *Deck) Play(ctx context.Context, cue queue.Cue) error {
	trackID := cue.Entry.Track.ID

	if err := d.session.Load(ctx, trackID); err != nil {
		return err
	}

	if d.gain != nil {
		if cue.Fresh {
			d.gain.ResetBaseline()
		}
		d.gain.Apply(ctx, trackID)
	}
	d.session.Play()

	if d.gain != nil && cue.Next != nil {
		d.gain.Prefetch(cue.Next.Track.ID)
	}
	return nil
}

func (d *Deck) Replay(ctx context.Context) error {
	return d.session.Replay(ctx)
}

func (d *Deck) Pause() {
	d.session.Pause()
}

func (d *Deck) Stop() {
	d.session.Stop()
}

func (d *Deck) Release() {
	d.session.Stop()
	if d.gain != nil {
		d.gain.ResetBaseline()
	}
	d.log.Debug("playback released")
}
