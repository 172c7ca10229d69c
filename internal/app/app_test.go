package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/audio"
	"karolbroda.com/resonance/internal/cache"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/logging"
	"karolbroda.com/resonance/internal/loudness"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
)

const testRate = 8000

func writeWAV(t *testing.T, path string, length time.Duration, level float64) {
	t.Helper()

	frames := int(float64(testRate) * length.Seconds())
	dataLen := frames * 4

	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteString("RIFF")
	write(uint32(36 + dataLen))
	buf.WriteString("WAVEfmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(2))
	write(uint32(testRate))
	write(uint32(testRate * 4))
	write(uint16(4))
	write(uint16(16))
	buf.WriteString("data")
	write(uint32(dataLen))
	sample := int16(level * 32767)
	for range frames {
		write(sample)
		write(sample)
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

type harness struct {
	app     *App
	cfg     *config.Config
	library string
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	if cfg == nil {
		root := t.TempDir()
		cfg = &config.Config{
			LibraryDir: filepath.Join(root, "library"),
			DataDir:    filepath.Join(root, "data"),
			LrclibURL:  "http://127.0.0.1:0/api/get",
			SampleRate: testRate,
			NoAudio:    true,
		}
	}

	a, err := New(cfg, logging.Discard(), Options{
		Sink:          audio.NewNullSink(testRate),
		LyricsCache:   cache.Memory[lyrics.Lyrics](0),
		LoudnessCache: cache.Memory[loudness.Estimate](0),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		app:     a,
		cfg:     cfg,
		library: filepath.Join(cfg.LibraryDir, library.SongsDir),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	select {
	case <-h.done:
		return
	default:
	}
	h.cancel()
	<-h.done
	_ = h.app.Close()
}

func (h *harness) song(t *testing.T, name string, length time.Duration) {
	writeWAV(t, filepath.Join(h.library, name), length, 0.1)
}

func currentID(a *App) string {
	st := a.Status()
	if st.Track == nil {
		return ""
	}
	return st.Track.ID
}

func TestResolveDefaults(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "my_song-name.wav", time.Second)

	info, err := h.app.Resolve(context.Background(), "my_song-name.wav")
	require.NoError(t, err)
	assert.Equal(t, "my song name", info.Title)
	assert.Equal(t, "Unknown Artist", info.Artist)
	assert.Equal(t, int64(1), info.DurationSecs)

	_, err = h.app.Resolve(context.Background(), "missing.wav")
	assert.ErrorIs(t, err, library.ErrSongNotFound)
}

func TestEnqueueAdvancesOnTrackEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "a.wav", time.Second)
	h.song(t, "b.wav", 5*time.Second)
	ctx := context.Background()

	idx, err := h.app.Enqueue(ctx, "a.wav")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a.wav", currentID(h.app))
	assert.Equal(t, player.StatePlaying.String(), h.app.Status().State)

	idx, err = h.app.Enqueue(ctx, "b.wav")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	require.Eventually(t, func() bool {
		return currentID(h.app) == "b.wav"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, h.app.Status().Cursor)
}

func TestTransportCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "a.wav", 5*time.Second)
	h.song(t, "b.wav", 5*time.Second)
	ctx := context.Background()

	assert.ErrorIs(t, h.app.TogglePlay(ctx), player.ErrNothingLoaded)

	_, err := h.app.Enqueue(ctx, "a.wav")
	require.NoError(t, err)
	_, err = h.app.Enqueue(ctx, "b.wav")
	require.NoError(t, err)

	require.NoError(t, h.app.TogglePlay(ctx))
	assert.Equal(t, "paused", h.app.Status().State)

	h.app.Stop()
	assert.Equal(t, "stopped", h.app.Status().State)
	require.NoError(t, h.app.TogglePlay(ctx))
	assert.Equal(t, "playing", h.app.Status().State)
	assert.Equal(t, "a.wav", currentID(h.app))

	require.NoError(t, h.app.Next(ctx))
	assert.Equal(t, "b.wav", currentID(h.app))
	require.NoError(t, h.app.Previous(ctx))
	assert.Equal(t, "a.wav", currentID(h.app))

	assert.Equal(t, queue.LoopRepeatAll, h.app.CycleLoop())
	assert.Equal(t, queue.LoopRepeatAll, h.app.Status().Loop)
}

func TestEnqueuePlaylist(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "a.wav", 5*time.Second)
	h.song(t, "b.wav", 5*time.Second)
	ctx := context.Background()

	lib := h.app.Library()
	require.NoError(t, lib.CreatePlaylist("focus"))
	require.NoError(t, lib.AddToPlaylist("focus", "b.wav"))
	require.NoError(t, lib.AddToPlaylist("focus", "a.wav"))
	require.NoError(t, lib.SaveOrder("focus", []string{"b.wav", "a.wav"}))

	group, err := h.app.EnqueuePlaylist(ctx, "focus", queue.GroupOptions{})
	require.NoError(t, err)
	assert.Equal(t, "focus", group.Playlist)

	view := h.app.QueueView()
	require.Len(t, view.Blocks, 1)
	assert.Equal(t, "focus", view.Blocks[0].Label)
	assert.Equal(t, "b.wav", currentID(h.app))

	_, err = h.app.EnqueuePlaylist(ctx, "nope", queue.GroupOptions{})
	assert.ErrorIs(t, err, library.ErrPlaylistNotFound)
}

func TestPreferencesPersist(t *testing.T) {
	h := newHarness(t, nil)
	h.app.SetVolume(0.4)
	h.app.SetNormalization(true)
	assert.Equal(t, 1.5, h.app.SetSpeed(1.6))
	h.stop()

	again := newHarness(t, h.cfg)
	st := again.app.Status()
	assert.InDelta(t, 0.4, st.Volume, 1e-9)
	assert.True(t, st.Normalization)
	assert.Equal(t, 1.5, st.Speed)
}

func TestSyncOffset(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.SyncOffset = 0.5

	assert.InDelta(t, 0.8, h.app.AdjustSyncOffset("a.wav", 0.3), 1e-9)
	assert.InDelta(t, 0.6, h.app.AdjustSyncOffset("a.wav", -0.2), 1e-9)
	assert.InDelta(t, 0.6, h.app.SyncOffset("a.wav"), 1e-9)
	assert.InDelta(t, 0.5, h.app.ResetSyncOffset("a.wav"), 1e-9)
}

func TestSubscribeReceivesQueueEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "a.wav", 5*time.Second)

	var mu sync.Mutex
	var kinds []EventKind
	h.app.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	_, err := h.app.Enqueue(context.Background(), "a.wav")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(kinds, EventQueue) && slices.Contains(kinds, EventPlayback)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoudness(t *testing.T) {
	h := newHarness(t, nil)
	h.song(t, "quiet.wav", 3*time.Second)

	db, err := h.app.Loudness(context.Background(), "quiet.wav")
	require.NoError(t, err)
	assert.InDelta(t, -20, db, 0.1)

	_, err = h.app.Loudness(context.Background(), "missing.wav")
	assert.ErrorIs(t, err, library.ErrSongNotFound)
}
