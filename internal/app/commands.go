package app

import (
	"context"
	"fmt"
	"math"

	"karolbroda.com/resonance/internal/artwork"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

// Resolve returns the metadata for a song id. Songs seen for the first time
// get filename defaults and a probed duration, which are then stored.
func (a *App) Resolve(ctx context.Context, id string) (track.Info, error) {
	if !a.library.HasSong(id) {
		return track.Info{}, fmt.Errorf("%w: %s", library.ErrSongNotFound, id)
	}

	info, ok := a.store.Track(id)
	if ok && info.DurationSecs > 0 {
		return info, nil
	}
	if !ok {
		info = track.FromFilename(id)
	}

	if d, err := a.probe.Duration(ctx, id); err == nil {
		info.DurationSecs = int64(math.Round(d.Seconds()))
	} else {
		a.log.Debug("duration probe failed", "track", id, "error", err)
	}

	if err := a.store.UpsertTrack(info); err != nil {
		a.log.Warn("failed to store track metadata", "track", id, "error", err)
	}
	return info, nil
}

func (a *App) resolveAll(ctx context.Context, ids []string) ([]track.Info, error) {
	out := make([]track.Info, 0, len(ids))
	for _, id := range ids {
		info, err := a.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (a *App) Songs(ctx context.Context) ([]track.Info, error) {
	ids, err := a.library.Songs()
	if err != nil {
		return nil, err
	}
	return a.resolveAll(ctx, ids)
}

func (a *App) Playlists() ([]library.Playlist, error) {
	return a.library.Playlists()
}

func (a *App) PlaylistTracks(ctx context.Context, name string) ([]track.Info, error) {
	ids, err := a.library.ListPlaylistTracks(name)
	if err != nil {
		return nil, err
	}
	return a.resolveAll(ctx, ids)
}

// Artwork returns the cover reference for a song: its stored thumbnail, or an
// image file next to it in the library.
func (a *App) Artwork(id string) (string, error) {
	path, err := a.library.SongPath(id)
	if err != nil {
		return "", err
	}
	info, _ := a.store.Track(id)
	return artwork.Locate(path, info.Thumbnail)
}

// UpdateTrack replaces the stored title, artist, album and thumbnail of a song.
func (a *App) UpdateTrack(info track.Info) error {
	if !a.library.HasSong(info.ID) {
		return fmt.Errorf("%w: %s", library.ErrSongNotFound, info.ID)
	}
	if err := a.store.UpsertTrack(info); err != nil {
		return err
	}
	a.publish(Event{Kind: EventLibrary})
	return nil
}

func (a *App) Enqueue(ctx context.Context, id string) (int, error) {
	info, err := a.Resolve(ctx, id)
	if err != nil {
		return queue.NoCursor, err
	}
	return a.queue.Enqueue(ctx, info)
}

func (a *App) EnqueuePlaylist(ctx context.Context, name string, opts queue.GroupOptions) (queue.GroupID, error) {
	tracks, err := a.PlaylistTracks(ctx, name)
	if err != nil {
		return queue.GroupID{}, err
	}
	return a.queue.EnqueueGroup(ctx, name, tracks, opts)
}

func (a *App) PlayNow(ctx context.Context, id string) error {
	info, err := a.Resolve(ctx, id)
	if err != nil {
		return err
	}
	return a.queue.PlayNow(ctx, info)
}

func (a *App) Next(ctx context.Context) error { return a.queue.PlayNext(ctx) }
func (a *App) Previous(ctx context.Context) error { return a.queue.PlayPrevious(ctx) }

func (a *App) JumpTo(ctx context.Context, index int) error {
	return a.queue.PlayAt(ctx, index)
}

func (a *App) Remove(ctx context.Context, index int) error {
	return a.queue.RemoveAt(ctx, index)
}

func (a *App) Move(from, to int) error { return a.queue.Move(from, to) }
func (a *App) ClearQueue() { a.queue.Clear() }

func (a *App) ToggleGroup(group queue.GroupID) bool {
	return a.queue.ToggleGroupCollapse(group)
}

func (a *App) CycleLoop() queue.LoopMode { return a.queue.CycleLoopMode() }
func (a *App) SetLoop(mode queue.LoopMode) { a.queue.SetLoopMode(mode) }
func (a *App) Snapshot() queue.Snapshot { return a.queue.Snapshot() }
func (a *App) QueueView() queue.View { return queue.Project(a.queue.Snapshot()) }
func (a *App) Playback() player.Status { return a.session.Status() }

// TogglePlay pauses or resumes. With nothing loaded it restarts the current
// queue entry, which is how playback resumes after Stop.
func (a *App) TogglePlay(ctx context.Context) error {
	if a.session.Status().TrackID != "" {
		a.session.Toggle()
		return nil
	}
	cursor := a.queue.Cursor()
	if cursor == queue.NoCursor {
		return player.ErrNothingLoaded
	}
	return a.queue.PlayAt(ctx, cursor)
}

func (a *App) Play(ctx context.Context) error {
	if a.session.Status().State == player.StatePlaying {
		return nil
	}
	return a.TogglePlay(ctx)
}

func (a *App) Pause() { a.session.Pause() }
func (a *App) Stop() { a.session.Stop() }

func (a *App) Seek(seconds float64) error {
	return a.session.Seek(seconds)
}

func (a *App) SeekBy(delta float64) error {
	return a.session.Seek(a.session.Status().Position + delta)
}

func (a *App) SetVolume(level float64) {
	a.session.SetVolume(level)
	if err := a.store.SetVolume(a.session.Status().Volume); err != nil {
		a.log.Warn("failed to save volume", "error", err)
	}
}

func (a *App) AdjustVolume(delta float64) {
	a.SetVolume(a.session.Status().Volume + delta)
}

func (a *App) ToggleMute() bool { return a.session.ToggleMute() }

func (a *App) SetSpeed(ratio float64) float64 {
	ratio = a.session.SetSpeed(ratio)
	if err := a.store.SetSpeed(ratio); err != nil {
		a.log.Warn("failed to save speed", "error", err)
	}
	return ratio
}

// AdjustSpeed moves the playback rate by steps quarter steps.
func (a *App) AdjustSpeed(steps int) float64 {
	return a.SetSpeed(a.session.Status().Speed + float64(steps)*player.SpeedStep)
}

func (a *App) SetNormalization(enabled bool) {
	a.gain.SetEnabled(enabled)
	if err := a.store.SetNormalization(enabled); err != nil {
		a.log.Warn("failed to save normalization preference", "error", err)
	}
	a.publish(Event{Kind: EventSettings})
}

func (a *App) ToggleNormalization() bool {
	enabled := !a.gain.Enabled()
	a.SetNormalization(enabled)
	return enabled
}

func (a *App) ClearLoudnessCache() error {
	return a.gain.ClearLoudnessCache()
}

// Loudness measures a song, using the cached estimate when there is one.
func (a *App) Loudness(ctx context.Context, id string) (float64, error) {
	if !a.library.HasSong(id) {
		return 0, fmt.Errorf("%w: %s", library.ErrSongNotFound, id)
	}
	return a.analyzer.Measure(ctx, id)
}

func (a *App) Status() Status {
	g := a.gain.State()
	return buildStatus(a.session.Status(), a.queue.Snapshot(), g.Enabled, g.Gain)
}

// Lyrics fetches lyrics for a song using its stored metadata.
func (a *App) Lyrics(ctx context.Context, id string) (*lyrics.Lyrics, error) {
	info, err := a.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.lyrics.Fetch(ctx, info)
}

// SyncOffset is the lyric offset for a song: the configured global offset
// plus whatever was saved for the song.
func (a *App) SyncOffset(id string) float64 {
	return a.cfg.SyncOffset + a.store.SyncOffset(id)
}

// AdjustSyncOffset shifts a song's saved offset and returns the new
// effective offset.
func (a *App) AdjustSyncOffset(id string, delta float64) float64 {
	return a.saveSyncOffset(id, a.store.SyncOffset(id)+delta)
}

func (a *App) ResetSyncOffset(id string) float64 {
	return a.saveSyncOffset(id, 0)
}

func (a *App) saveSyncOffset(id string, saved float64) float64 {
	saved = math.Round(saved*10) / 10
	if err := a.store.SetSyncOffset(id, saved); err != nil {
		a.log.Warn("failed to save sync offset", "track", id, "error", err)
	}
	a.publish(Event{Kind: EventSettings})
	return a.cfg.SyncOffset + saved
}
