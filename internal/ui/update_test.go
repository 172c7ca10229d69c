package ui

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

type fakePlayer struct {
	status   app.Status
	view     queue.View
	songs    []track.Info
	lyrics   *lyrics.Lyrics
	offsets  map[string]float64
	loop     queue.LoopMode
	enqueued []string
	toggled  []queue.GroupID
	removed  []int
	jumped   []int
	cleared  int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{offsets: make(map[string]float64)}
}

func (f *fakePlayer) Status() app.Status    { return f.status }
func (f *fakePlayer) QueueView() queue.View { return f.view }
func (f *fakePlayer) Songs(context.Context) ([]track.Info, error) {
	return f.songs, nil
}
func (f *fakePlayer) Playlists() ([]library.Playlist, error) {
	return []library.Playlist{{Name: "mix", Tracks: 2}}, nil
}
func (f *fakePlayer) PlaylistTracks(context.Context, string) ([]track.Info, error) {
	return f.songs, nil
}
func (f *fakePlayer) Enqueue(_ context.Context, id string) (int, error) {
	f.enqueued = append(f.enqueued, id)
	return len(f.enqueued) - 1, nil
}
func (f *fakePlayer) EnqueuePlaylist(_ context.Context, name string, _ queue.GroupOptions) (queue.GroupID, error) {
	f.enqueued = append(f.enqueued, "playlist:"+name)
	return queue.GroupID{Playlist: name, Instance: 1}, nil
}
func (f *fakePlayer) PlayNow(context.Context, string) error { return nil }
func (f *fakePlayer) JumpTo(_ context.Context, index int) error {
	f.jumped = append(f.jumped, index)
	return nil
}
func (f *fakePlayer) Remove(_ context.Context, index int) error {
	f.removed = append(f.removed, index)
	return nil
}
func (f *fakePlayer) Move(int, int) error { return nil }
func (f *fakePlayer) ClearQueue()         { f.cleared++ }
func (f *fakePlayer) ToggleGroup(g queue.GroupID) bool {
	f.toggled = append(f.toggled, g)
	return true
}
func (f *fakePlayer) TogglePlay(context.Context) error { return nil }
func (f *fakePlayer) Next(context.Context) error       { return nil }
func (f *fakePlayer) Previous(context.Context) error   { return nil }
func (f *fakePlayer) Stop()                            {}
func (f *fakePlayer) SeekBy(float64) error             { return nil }
func (f *fakePlayer) AdjustVolume(float64)             {}
func (f *fakePlayer) ToggleMute() bool                 { return true }
func (f *fakePlayer) AdjustSpeed(int) float64          { return 1.25 }
func (f *fakePlayer) CycleLoop() queue.LoopMode {
	f.loop = f.loop.Next()
	return f.loop
}
func (f *fakePlayer) ToggleNormalization() bool { return true }
func (f *fakePlayer) Lyrics(context.Context, string) (*lyrics.Lyrics, error) {
	if f.lyrics == nil {
		return nil, lyrics.ErrNotFound
	}
	return f.lyrics, nil
}
func (f *fakePlayer) SyncOffset(id string) float64 { return f.offsets[id] }
func (f *fakePlayer) AdjustSyncOffset(id string, delta float64) float64 {
	f.offsets[id] += delta
	return f.offsets[id]
}
func (f *fakePlayer) ResetSyncOffset(id string) float64 {
	delete(f.offsets, id)
	return 0
}
func (f *fakePlayer) Artwork(string) (string, error) {
	return "", errors.New("no artwork")
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestQuit(t *testing.T) {
	m := NewModel(ModelConfig{Player: newFakePlayer()})

	m, cmd := update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.True(t, m.IsQuitting())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestPaneSwitching(t *testing.T) {
	m := NewModel(ModelConfig{Player: newFakePlayer()})
	assert.Equal(t, PaneLibrary, m.Pane())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneQueue, m.Pane())

	m, _ = update(t, m, keyPress("3"))
	assert.Equal(t, PaneLyrics, m.Pane())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneLibrary, m.Pane())
}

func TestTrackChangeStartsLoads(t *testing.T) {
	p := newFakePlayer()
	p.offsets["a.mp3"] = 0.4
	p.status = app.Status{State: "playing", Track: &track.Info{ID: "a.mp3", Title: "A"}, Duration: 100}

	m := NewModel(ModelConfig{Player: p})
	m, cmd := update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventQueue}})
	require.NotNil(t, cmd)

	require.NotNil(t, m.Track())
	assert.Equal(t, "a.mp3", m.Track().ID)
	assert.Equal(t, LoadingBoth, m.loadingState)
	assert.InDelta(t, 0.4, m.SyncOffset(), 1e-9)

	// same track again does not restart anything
	m.setLoadingLyrics(false)
	m, _ = update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventPlayback}})
	assert.Equal(t, LoadingArtwork, m.loadingState)
}

func TestLyricsFetched(t *testing.T) {
	p := newFakePlayer()
	p.status = app.Status{State: "playing", Track: &track.Info{ID: "a.mp3"}, Position: 6}

	m := NewModel(ModelConfig{Player: p})
	m, _ = update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventQueue}})

	m, _ = update(t, m, LyricsFetchedMsg{TrackID: "other.mp3", Err: errors.New("stale")})
	assert.NoError(t, m.Err())
	assert.True(t, m.loadingState.IsLoadingLyrics())

	lines := lyrics.ParseSynced("[00:01.00]one\n[00:05.00]two\n[00:09.00]three")
	m, _ = update(t, m, LyricsFetchedMsg{TrackID: "a.mp3", Lines: lines})
	assert.NoError(t, m.Err())
	assert.False(t, m.loadingState.IsLoadingLyrics())
	assert.Equal(t, 1, m.CurrentIndex())

	m, _ = update(t, m, keyPress("]"))
	assert.InDelta(t, 0.1, m.SyncOffset(), 1e-9)
	assert.InDelta(t, 0.1, p.offsets["a.mp3"], 1e-9)

	m, _ = update(t, m, keyPress("0"))
	assert.Zero(t, m.SyncOffset())
}

func TestLyricsNotFound(t *testing.T) {
	p := newFakePlayer()
	p.status = app.Status{Track: &track.Info{ID: "a.mp3"}}

	m := NewModel(ModelConfig{Player: p})
	m, _ = update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventQueue}})

	msg := fetchLyricsCmd(p, *p.status.Track)()
	m, _ = update(t, m, msg)
	require.Error(t, m.Err())
	assert.Equal(t, "no lyrics found", m.Err().Error())
}

func TestFetchLyricsFallsBackToPlain(t *testing.T) {
	p := newFakePlayer()
	p.lyrics = &lyrics.Lyrics{PlainLyrics: "first\n\nsecond\n"}

	msg, ok := fetchLyricsCmd(p, track.Info{ID: "a.mp3"})().(LyricsFetchedMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	assert.Empty(t, msg.Lines)
	assert.Equal(t, []string{"first", "second"}, msg.Plain)
}

func TestSettingsKeys(t *testing.T) {
	p := newFakePlayer()
	m := NewModel(ModelConfig{Player: p})

	m, _ = update(t, m, keyPress("r"))
	assert.Equal(t, queue.LoopRepeatAll, p.loop)
	assert.Equal(t, "repeat", m.Flash())

	m, _ = update(t, m, keyPress("N"))
	assert.Equal(t, "normalization on", m.Flash())

	m, _ = update(t, m, keyPress("m"))
	assert.Equal(t, "muted", m.Flash())
}

func TestLibraryEnqueue(t *testing.T) {
	p := newFakePlayer()
	p.songs = []track.Info{{ID: "a.mp3", Title: "A"}, {ID: "b.mp3", Title: "B"}}

	m := NewModel(ModelConfig{Player: p})
	msg := loadLibraryCmd(p)()
	m, _ = update(t, m, msg)

	m, _ = update(t, m, keyPress("j"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	result, ok := cmd().(ResultMsg)
	require.True(t, ok)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{"b.mp3"}, p.enqueued)

	m, _ = update(t, m, keyPress("t"))
	m, cmd = update(t, m, keyPress("S"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"b.mp3", "playlist:mix"}, p.enqueued)
}

func TestQueueKeys(t *testing.T) {
	p := newFakePlayer()
	p.view = testView(0, false)

	m := NewModel(ModelConfig{Player: p})
	m, _ = update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventQueue}})
	m, _ = update(t, m, keyPress("2"))

	// line 1 is the header of group X
	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, p.toggled, 1)
	assert.Equal(t, "X", p.toggled[0].Playlist)

	m, _ = update(t, m, keyPress("j"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []int{1}, p.jumped)

	m, cmd = update(t, m, keyPress("d"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []int{1}, p.removed)

	_, _ = update(t, m, keyPress("C"))
	assert.Equal(t, 1, p.cleared)
}

func TestViewRendersEveryPane(t *testing.T) {
	p := newFakePlayer()
	p.view = testView(1, false)
	p.status = app.Status{State: "playing", Track: &track.Info{ID: "b.mp3", Title: "Bee", Artist: "Band"}, Position: 30, Duration: 60}

	m := NewModel(ModelConfig{Player: p})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, AppEventMsg{Event: app.Event{Kind: app.EventQueue}})

	for _, key := range []string{"1", "2", "3"} {
		m, _ = update(t, m, keyPress(key))
		out := m.View()
		assert.Contains(t, out, "Bee")
		assert.Contains(t, out, "queue")
	}
}

func TestKittyArtLines(t *testing.T) {
	m := NewModel(ModelConfig{Player: newFakePlayer(), KittyGraphics: true})
	m.display.Image = image.NewRGBA(image.Rect(0, 0, 64, 64))

	lines := m.kittyArtLines(8, 4)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "\x1b_G"))
	assert.True(t, strings.HasSuffix(lines[0], strings.Repeat(" ", 8)))
	for _, line := range lines[1:] {
		assert.Equal(t, strings.Repeat(" ", 8), line)
	}
}
