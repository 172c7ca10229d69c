package ui

import (
	"context"
	"image"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/artwork"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

// Player is everything the terminal UI asks of the app.
type Player interface {
	Status() app.Status
	QueueView() queue.View
	Songs(ctx context.Context) ([]track.Info, error)
	Playlists() ([]library.Playlist, error)
	PlaylistTracks(ctx context.Context, name string) ([]track.Info, error)

	Enqueue(ctx context.Context, id string) (int, error)
	EnqueuePlaylist(ctx context.Context, name string, opts queue.GroupOptions) (queue.GroupID, error)
	PlayNow(ctx context.Context, id string) error
	JumpTo(ctx context.Context, index int) error
	Remove(ctx context.Context, index int) error
	Move(from, to int) error
	ClearQueue()
	ToggleGroup(group queue.GroupID) bool

	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Stop()
	SeekBy(delta float64) error
	AdjustVolume(delta float64)
	ToggleMute() bool
	AdjustSpeed(steps int) float64
	CycleLoop() queue.LoopMode
	ToggleNormalization() bool

	Lyrics(ctx context.Context, id string) (*lyrics.Lyrics, error)
	SyncOffset(id string) float64
	AdjustSyncOffset(id string, delta float64) float64
	ResetSyncOffset(id string) float64
	Artwork(id string) (string, error)
}

type Pane int

const (
	PaneLibrary Pane = iota
	PaneQueue
	PaneLyrics
)

var paneNames = []string{"library", "queue", "lyrics"}

func (p Pane) String() string { return paneNames[p] }

type LibraryTab int

const (
	TabSongs LibraryTab = iota
	TabPlaylists
)

type LoadingState int

const (
	LoadingNone LoadingState = iota
	LoadingLyrics
	LoadingArtwork
	LoadingBoth
)

func (l LoadingState) IsLoadingLyrics() bool {
	return l == LoadingLyrics || l == LoadingBoth
}

func (l LoadingState) IsLoadingArtwork() bool {
	return l == LoadingArtwork || l == LoadingBoth
}

func loadingState(lyricsLoading, artworkLoading bool) LoadingState {
	switch {
	case lyricsLoading && artworkLoading:
		return LoadingBoth
	case lyricsLoading:
		return LoadingLyrics
	case artworkLoading:
		return LoadingArtwork
	default:
		return LoadingNone
	}
}

type TickMsg time.Time

type AppEventMsg struct {
	Event app.Event
}

type ArtworkFetchedMsg struct {
	TrackID string
	Image   image.Image
	Palette *artwork.Palette
	Err     error
}

type LyricsFetchedMsg struct {
	TrackID    string
	Lines      []lyrics.TimedLine
	Plain      []string
	SyncOffset float64
	Err        error
}

type LibraryLoadedMsg struct {
	Songs     []track.Info
	Playlists []library.Playlist
	Err       error
}

type PlaylistLoadedMsg struct {
	Name   string
	Tracks []track.Info
	Err    error
}

// ResultMsg reports the outcome of a command run off the update loop.
type ResultMsg struct {
	Action string
	Err    error
}

type TrackDisplay struct {
	Track        *track.Info
	Image        image.Image
	// kitty escape for Image, encoded once per track and size
	kittyArt     string
	kittySize    [2]int
	Palette      *artwork.Palette
	Lines        []lyrics.TimedLine
	Plain        []string
	CurrentIndex int
	PrevIndex    int
}

type Model struct {
	player     Player
	events     <-chan app.Event
	hideHeader bool
	kitty      bool

	pane      Pane
	tab       LibraryTab
	songs     []track.Info
	playlists []library.Playlist
	libCursor int
	openList  string
	openSongs []track.Info

	queueView   queue.View
	queueCursor int

	status     app.Status
	display    TrackDisplay
	syncOffset float64

	loadingState   LoadingState
	err            error
	flash          string
	flashUntil     time.Time
	quitting       bool
	width          int
	height         int
	lastLineChange time.Time
	tickCount      int
	animState      AnimState
}

type ModelConfig struct {
	Player Player
	// Events delivers app events; the UI refreshes on each one.
	Events     <-chan app.Event
	HideHeader bool
	// KittyGraphics renders artwork with the kitty graphics protocol.
	KittyGraphics bool
}

func NewModel(cfg ModelConfig) Model {
	m := Model{
		player:         cfg.Player,
		events:         cfg.Events,
		hideHeader:     cfg.HideHeader,
		kitty:          cfg.KittyGraphics,
		lastLineChange: time.Now(),
	}

	m.display.CurrentIndex = -1
	m.display.PrevIndex = -1
	m.display.Palette = artwork.DefaultPalette()

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.listenForEvents(),
		loadLibraryCmd(m.player),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(config.PollInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) listenForEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}

	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return AppEventMsg{Event: ev}
	}
}

func (m *Model) resetForNewTrack(t *track.Info) {
	m.display = TrackDisplay{
		Track:        t,
		CurrentIndex: -1,
		PrevIndex:    -1,
		Palette:      artwork.DefaultPalette(),
	}
	m.lastLineChange = time.Now()
	m.err = nil
	m.animState.Reset()
}

func (m *Model) setLoadingLyrics(loading bool) {
	m.loadingState = loadingState(loading, m.loadingState.IsLoadingArtwork())
}

func (m *Model) setLoadingArtwork(loading bool) {
	m.loadingState = loadingState(m.loadingState.IsLoadingLyrics(), loading)
}

func (m *Model) updateLyricIndex(positionSecs float64) bool {
	if len(m.display.Lines) == 0 {
		return false
	}

	idx := lyrics.LineAt(m.display.Lines, positionSecs, m.syncOffset)
	if idx < 0 {
		idx = 0
	}

	if idx != m.display.CurrentIndex {
		m.display.PrevIndex = m.display.CurrentIndex
		m.display.CurrentIndex = idx
		m.lastLineChange = time.Now()
		m.animState.TargetScrollY = float64(idx)
		return true
	}

	return false
}

func (m *Model) setFlash(text string) {
	m.flash = text
	m.flashUntil = time.Now().Add(3 * time.Second)
}

// libraryItems is the length of the list shown in the library pane.
func (m Model) libraryItems() int {
	switch {
	case m.openList != "":
		return len(m.openSongs)
	case m.tab == TabPlaylists:
		return len(m.playlists)
	default:
		return len(m.songs)
	}
}

func (m Model) Width() int                { return m.width }
func (m Model) Height() int               { return m.height }
func (m Model) Pane() Pane                { return m.pane }
func (m Model) Status() app.Status        { return m.status }
func (m Model) Track() *track.Info        { return m.display.Track }
func (m Model) Palette() *artwork.Palette { return m.display.Palette }
func (m Model) Lines() []lyrics.TimedLine { return m.display.Lines }
func (m Model) CurrentIndex() int         { return m.display.CurrentIndex }
func (m Model) SyncOffset() float64       { return m.syncOffset }
func (m Model) HideHeader() bool          { return m.hideHeader }
func (m Model) Flash() string             { return m.flash }
func (m Model) Err() error                { return m.err }
func (m Model) IsQuitting() bool          { return m.quitting }
