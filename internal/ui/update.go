package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/artwork"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

const (
	seekStep   = 5.0
	volumeStep = 0.05
	fetchLimit = 15 * time.Second
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case AppEventMsg:
		return m.handleAppEvent(msg.Event)

	case ArtworkFetchedMsg:
		return m.handleArtworkFetched(msg)

	case LyricsFetchedMsg:
		return m.handleLyricsFetched(msg)

	case LibraryLoadedMsg:
		return m.handleLibraryLoaded(msg)

	case PlaylistLoadedMsg:
		return m.handlePlaylistLoaded(msg)

	case ResultMsg:
		if msg.Err != nil {
			m.setFlash(fmt.Sprintf("%s: %v", msg.Action, msg.Err))
		}
		return m.refresh()

	case TickMsg:
		return m.handleTick()
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.player

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.pane = (m.pane + 1) % Pane(len(paneNames))
		return m, nil
	case "shift+tab":
		m.pane = (m.pane + Pane(len(paneNames)) - 1) % Pane(len(paneNames))
		return m, nil
	case "1", "2", "3":
		m.pane = Pane(msg.String()[0] - '1')
		return m, nil
	case "i":
		m.hideHeader = !m.hideHeader
		return m, nil

	case " ":
		return m, run("play", func(ctx context.Context) error { return p.TogglePlay(ctx) })
	case "n":
		return m, run("next", func(ctx context.Context) error { return p.Next(ctx) })
	case "p":
		return m, run("previous", func(ctx context.Context) error { return p.Previous(ctx) })
	case "s":
		p.Stop()
		return m.refresh()
	case "left", "h":
		return m, run("seek", func(context.Context) error { return p.SeekBy(-seekStep) })
	case "right", "l":
		return m, run("seek", func(context.Context) error { return p.SeekBy(seekStep) })

	case "+", "=":
		p.AdjustVolume(volumeStep)
		return m.refresh()
	case "-":
		p.AdjustVolume(-volumeStep)
		return m.refresh()
	case "m":
		if p.ToggleMute() {
			m.setFlash("muted")
		}
		return m.refresh()
	case ">", ".":
		m.setFlash(fmt.Sprintf("speed %.2gx", p.AdjustSpeed(1)))
		return m.refresh()
	case "<", ",":
		m.setFlash(fmt.Sprintf("speed %.2gx", p.AdjustSpeed(-1)))
		return m.refresh()
	case "r":
		m.setFlash(loopLabel(p.CycleLoop()))
		return m.refresh()
	case "N":
		if p.ToggleNormalization() {
			m.setFlash("normalization on")
		} else {
			m.setFlash("normalization off")
		}
		return m.refresh()

	case "]":
		return m.shiftSyncOffset(0.1), nil
	case "[":
		return m.shiftSyncOffset(-0.1), nil
	case "}":
		return m.shiftSyncOffset(0.5), nil
	case "{":
		return m.shiftSyncOffset(-0.5), nil
	case "0":
		if m.display.Track != nil {
			m.syncOffset = p.ResetSyncOffset(m.display.Track.ID)
			m.updateLyricIndex(m.status.Position)
		}
		return m, nil
	}

	switch m.pane {
	case PaneLibrary:
		return m.handleLibraryKey(msg)
	case PaneQueue:
		return m.handleQueueKey(msg)
	}
	return m, nil
}

func (m Model) shiftSyncOffset(delta float64) Model {
	if m.display.Track == nil {
		return m
	}
	m.syncOffset = m.player.AdjustSyncOffset(m.display.Track.ID, delta)
	m.updateLyricIndex(m.status.Position)
	m.setFlash(fmt.Sprintf("sync offset %+.1fs", m.syncOffset))
	return m
}

func (m Model) handleLibraryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.player
	items := m.libraryItems()

	switch msg.String() {
	case "up", "k":
		m.libCursor = max(0, m.libCursor-1)
	case "down", "j":
		m.libCursor = max(0, min(items-1, m.libCursor+1))
	case "t":
		if m.openList == "" {
			m.tab = 1 - m.tab
			m.libCursor = 0
		}
	case "backspace", "esc":
		if m.openList != "" {
			m.openList = ""
			m.openSongs = nil
			m.libCursor = 0
		}

	case "enter", "a":
		if song, ok := m.selectedSong(); ok {
			return m, run("enqueue", func(ctx context.Context) error {
				_, err := p.Enqueue(ctx, song.ID)
				return err
			})
		}
		if pl, ok := m.selectedPlaylist(); ok {
			return m, enqueuePlaylistCmd(p, pl, queue.GroupOptions{})
		}
	case "P":
		if song, ok := m.selectedSong(); ok {
			return m, run("play", func(ctx context.Context) error { return p.PlayNow(ctx, song.ID) })
		}
		if pl, ok := m.selectedPlaylist(); ok {
			return m, enqueuePlaylistCmd(p, pl, queue.GroupOptions{PlayNow: true})
		}
	case "S":
		if pl, ok := m.selectedPlaylist(); ok {
			return m, enqueuePlaylistCmd(p, pl, queue.GroupOptions{Shuffle: true})
		}
	case "o":
		if pl, ok := m.selectedPlaylist(); ok {
			return m, loadPlaylistCmd(p, pl)
		}
	}
	return m, nil
}

func (m Model) selectedSong() (track.Info, bool) {
	list := m.songs
	if m.openList != "" {
		list = m.openSongs
	} else if m.tab != TabSongs {
		return track.Info{}, false
	}
	if m.libCursor < 0 || m.libCursor >= len(list) {
		return track.Info{}, false
	}
	return list[m.libCursor], true
}

func (m Model) selectedPlaylist() (string, bool) {
	if m.openList != "" || m.tab != TabPlaylists {
		return "", false
	}
	if m.libCursor < 0 || m.libCursor >= len(m.playlists) {
		return "", false
	}
	return m.playlists[m.libCursor].Name, true
}

func (m Model) handleQueueKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.player
	lines := flattenQueue(m.queueView)
	if len(lines) == 0 {
		return m, nil
	}
	m.queueCursor = max(0, min(m.queueCursor, len(lines)-1))
	line := lines[m.queueCursor]
	block := m.queueView.Blocks[line.block]

	switch msg.String() {
	case "up", "k":
		m.queueCursor = max(0, m.queueCursor-1)
	case "down", "j":
		m.queueCursor = min(len(lines)-1, m.queueCursor+1)
	case "g":
		if cur := currentLine(m.queueView, lines); cur >= 0 {
			m.queueCursor = cur
		}

	case "enter":
		if line.header {
			p.ToggleGroup(*block.Group)
			return m.refresh()
		}
		index := line.row.Index
		return m, run("jump", func(ctx context.Context) error { return p.JumpTo(ctx, index) })
	case "c":
		if block.Group != nil {
			p.ToggleGroup(*block.Group)
			return m.refresh()
		}
	case "d", "x", "delete":
		if !line.header {
			index := line.row.Index
			return m, run("remove", func(ctx context.Context) error { return p.Remove(ctx, index) })
		}
	case "K", "shift+up":
		if !line.header && line.row.Index > 0 {
			if err := p.Move(line.row.Index, line.row.Index-1); err != nil {
				m.setFlash(err.Error())
				return m, nil
			}
			m.queueCursor--
			return m.refresh()
		}
	case "J", "shift+down":
		if !line.header && line.row.Index < m.queueView.TotalTracks-1 {
			if err := p.Move(line.row.Index, line.row.Index+1); err != nil {
				m.setFlash(err.Error())
				return m, nil
			}
			m.queueCursor++
			return m.refresh()
		}
	case "C":
		p.ClearQueue()
		m.queueCursor = 0
		return m.refresh()
	}
	return m, nil
}

func (m Model) handleAppEvent(ev app.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.listenForEvents()}

	if ev.Kind == app.EventLibrary {
		cmds = append(cmds, loadLibraryCmd(m.player))
		if m.openList != "" {
			cmds = append(cmds, loadPlaylistCmd(m.player, m.openList))
		}
	}

	next, cmd := m.refresh()
	return next, tea.Batch(append(cmds, cmd)...)
}

// refresh pulls status and queue from the player and starts lyric and artwork
// loads when the current track changed.
func (m Model) refresh() (tea.Model, tea.Cmd) {
	if m.player == nil {
		return m, nil
	}

	m.status = m.player.Status()
	m.queueView = m.player.QueueView()
	if lines := flattenQueue(m.queueView); m.queueCursor >= len(lines) {
		m.queueCursor = max(0, len(lines)-1)
	}

	current := m.status.Track
	if current.IsSameTrack(m.display.Track) {
		return m, nil
	}

	m.resetForNewTrack(current)
	if current == nil {
		m.loadingState = LoadingNone
		return m, nil
	}

	m.syncOffset = m.player.SyncOffset(current.ID)
	m.setLoadingLyrics(true)
	m.setLoadingArtwork(true)
	return m, tea.Batch(
		fetchLyricsCmd(m.player, *current),
		fetchArtworkCmd(m.player, current.ID),
	)
}

func (m Model) handleArtworkFetched(msg ArtworkFetchedMsg) (tea.Model, tea.Cmd) {
	if m.display.Track == nil || m.display.Track.ID != msg.TrackID {
		return m, nil
	}
	m.setLoadingArtwork(false)

	if msg.Err == nil && msg.Image != nil {
		m.display.Image = msg.Image
		if m.kitty {
			w, h := headerArtSize(m.width)
			m.display.kittyArt = artwork.RenderKitty(msg.Image, w, h)
			m.display.kittySize = [2]int{w, h}
		}
		if msg.Palette != nil {
			m.display.Palette = msg.Palette
		}
	}
	return m, nil
}

func (m Model) handleLyricsFetched(msg LyricsFetchedMsg) (tea.Model, tea.Cmd) {
	if m.display.Track == nil || m.display.Track.ID != msg.TrackID {
		return m, nil
	}
	m.setLoadingLyrics(false)

	switch {
	case errors.Is(msg.Err, lyrics.ErrNotFound):
		m.err = errors.New("no lyrics found")
	case msg.Err != nil:
		m.err = msg.Err
	case len(msg.Lines) == 0 && len(msg.Plain) == 0:
		m.err = errors.New("no lyrics available")
	default:
		m.err = nil
		m.display.Lines = msg.Lines
		m.display.Plain = msg.Plain
		m.syncOffset = msg.SyncOffset
		m.updateLyricIndex(m.status.Position)
	}
	return m, nil
}

func (m Model) handleLibraryLoaded(msg LibraryLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setFlash(fmt.Sprintf("library: %v", msg.Err))
		return m, nil
	}
	m.songs = msg.Songs
	m.playlists = msg.Playlists
	if m.openList == "" {
		m.libCursor = max(0, min(m.libCursor, m.libraryItems()-1))
	}
	return m, nil
}

func (m Model) handlePlaylistLoaded(msg PlaylistLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setFlash(fmt.Sprintf("playlist: %v", msg.Err))
		return m, nil
	}
	if m.openList != msg.Name {
		m.libCursor = 0
	}
	m.openList = msg.Name
	m.openSongs = msg.Tracks
	m.libCursor = max(0, min(m.libCursor, len(m.openSongs)-1))
	return m, nil
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	m.tickCount++

	if m.flash != "" && time.Now().After(m.flashUntil) {
		m.flash = ""
	}

	if m.player == nil {
		m.animState.Advance(m.tickCount, false)
		return m, tickCmd()
	}

	m.status = m.player.Status()
	lineChanged := m.updateLyricIndex(m.status.Position)
	m.animState.Advance(m.tickCount, lineChanged)

	return m, tickCmd()
}

// run executes a player command off the update loop. Loading a track reads
// the whole file, which must not stall rendering.
func run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Action: action, Err: fn(context.Background())}
	}
}

func enqueuePlaylistCmd(p Player, name string, opts queue.GroupOptions) tea.Cmd {
	return run("enqueue "+name, func(ctx context.Context) error {
		_, err := p.EnqueuePlaylist(ctx, name, opts)
		return err
	})
}

func loadLibraryCmd(p Player) tea.Cmd {
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		songs, err := p.Songs(context.Background())
		if err != nil {
			return LibraryLoadedMsg{Err: err}
		}
		playlists, err := p.Playlists()
		return LibraryLoadedMsg{Songs: songs, Playlists: playlists, Err: err}
	}
}

func loadPlaylistCmd(p Player, name string) tea.Cmd {
	return func() tea.Msg {
		tracks, err := p.PlaylistTracks(context.Background(), name)
		return PlaylistLoadedMsg{Name: name, Tracks: tracks, Err: err}
	}
}

func fetchArtworkCmd(p Player, trackID string) tea.Cmd {
	return func() tea.Msg {
		ref, err := p.Artwork(trackID)
		if err != nil {
			return ArtworkFetchedMsg{TrackID: trackID, Err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), fetchLimit)
		defer cancel()
		img, err := artwork.Load(ctx, ref)
		if err != nil {
			return ArtworkFetchedMsg{TrackID: trackID, Err: err}
		}
		return ArtworkFetchedMsg{
			TrackID: trackID,
			Image:   img,
			Palette: artwork.ExtractPalette(img),
		}
	}
}

func fetchLyricsCmd(p Player, t track.Info) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchLimit)
		defer cancel()

		result, err := p.Lyrics(ctx, t.ID)
		if err != nil {
			return LyricsFetchedMsg{TrackID: t.ID, Err: err}
		}

		msg := LyricsFetchedMsg{TrackID: t.ID, SyncOffset: p.SyncOffset(t.ID)}
		if result.IsSynced() {
			msg.Lines = lyrics.ParseSynced(result.SyncedLyrics)
		}
		if len(msg.Lines) == 0 {
			msg.Plain = lyrics.ParsePlain(result.PlainLyrics)
		}
		return msg
	}
}
