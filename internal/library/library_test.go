package library

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T, songs ...string) *Library {
	t.Helper()
	l, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	for _, s := range songs {
		require.NoError(t, os.WriteFile(filepath.Join(l.SongsPath(), s), []byte("audio:"+s), 0644))
	}
	return l
}

func TestOpenCreatesLayout(t *testing.T) {
	l := newTestLibrary(t)

	assert.DirExists(t, filepath.Join(l.Root(), "all songs"))
	assert.DirExists(t, filepath.Join(l.Root(), "playlists"))
}

func TestSongs(t *testing.T) {
	l := newTestLibrary(t, "b.mp3", "a.flac", "notes.txt", "c.WAV")

	songs, err := l.Songs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.flac", "b.mp3", "c.WAV"}, songs)

	assert.True(t, l.HasSong("b.mp3"))
	assert.False(t, l.HasSong("zzz.mp3"))
	assert.False(t, l.HasSong("../b.mp3"))
}

func TestFetchTrackBytes(t *testing.T) {
	l := newTestLibrary(t, "a.mp3")
	ctx := context.Background()

	data, err := l.FetchTrackBytes(ctx, "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "audio:a.mp3", string(data))

	_, err = l.FetchTrackBytes(ctx, "missing.mp3")
	assert.ErrorIs(t, err, ErrSongNotFound)

	_, err = l.FetchTrackBytes(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestPlaylists(t *testing.T) {
	l := newTestLibrary(t, "a.mp3", "b.mp3", "c.mp3")

	require.NoError(t, l.CreatePlaylist("road trip"))
	assert.ErrorIs(t, l.CreatePlaylist("road trip"), ErrPlaylistExists)
	assert.ErrorIs(t, l.CreatePlaylist("../escape"), ErrInvalidName)

	require.NoError(t, l.AddToPlaylist("road trip", "c.mp3"))
	require.NoError(t, l.AddToPlaylist("road trip", "a.mp3"))
	require.NoError(t, l.AddToPlaylist("road trip", "a.mp3"))
	assert.ErrorIs(t, l.AddToPlaylist("road trip", "zzz.mp3"), ErrSongNotFound)
	assert.ErrorIs(t, l.AddToPlaylist("nope", "a.mp3"), ErrPlaylistNotFound)

	playlists, err := l.Playlists()
	require.NoError(t, err)
	assert.Equal(t, []Playlist{{Name: "road trip", Tracks: 2}}, playlists)

	tracks, err := l.ListPlaylistTracks("road trip")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "c.mp3"}, tracks)

	require.NoError(t, l.RemoveFromPlaylist("road trip", "a.mp3"))
	tracks, err = l.ListPlaylistTracks("road trip")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.mp3"}, tracks)

	require.NoError(t, l.RenamePlaylist("road trip", "commute"))
	_, err = l.ListPlaylistTracks("road trip")
	assert.ErrorIs(t, err, ErrPlaylistNotFound)

	require.NoError(t, l.DeletePlaylist("commute"))
	playlists, err = l.Playlists()
	require.NoError(t, err)
	assert.Empty(t, playlists)
}

func TestReferenceFiles(t *testing.T) {
	l := newTestLibrary(t, "a.mp3", "b.mp3")
	require.NoError(t, l.CreatePlaylist("mix"))

	ref := filepath.Join(l.PlaylistsPath(), "mix", "b.mp3.ref")
	require.NoError(t, os.WriteFile(ref, []byte("# Playlist Reference\nOriginal: x"), 0644))
	require.NoError(t, l.AddToPlaylist("mix", "a.mp3"))

	tracks, err := l.ListPlaylistTracks("mix")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, tracks)

	require.NoError(t, l.RemoveFromPlaylist("mix", "b.mp3"))
	assert.NoFileExists(t, ref)
}

func TestPlaylistOrder(t *testing.T) {
	l := newTestLibrary(t, "a.mp3", "b.mp3", "c.mp3", "d.mp3")
	require.NoError(t, l.CreatePlaylist("mix"))
	for _, s := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"} {
		require.NoError(t, l.AddToPlaylist("mix", s))
	}

	// saved order names a missing track and omits two present ones
	require.NoError(t, l.SaveOrder("mix", []string{"c.mp3", "gone.mp3", "a.mp3"}))

	tracks, err := l.ListPlaylistTracks("mix")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.mp3", "a.mp3", "b.mp3", "d.mp3"}, tracks)

	raw, err := os.ReadFile(filepath.Join(l.PlaylistsPath(), "mix", OrderFile))
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Contains(t, saved, "order")
	assert.Contains(t, saved, "lastUpdated")
}

func TestApplyOrder(t *testing.T) {
	got := applyOrder([]string{"z", "y", "x"}, []string{"y", "y", "q"})
	assert.Equal(t, []string{"y", "x", "z"}, got)

	assert.Equal(t, []string{"a", "b"}, applyOrder([]string{"b", "a"}, nil))
}

func TestImportAndDelete(t *testing.T) {
	l := newTestLibrary(t)

	src := filepath.Join(t.TempDir(), "New Song.mp3")
	require.NoError(t, os.WriteFile(src, []byte("id3"), 0644))

	id, err := l.Import(src)
	require.NoError(t, err)
	assert.Equal(t, "New Song.mp3", id)
	assert.True(t, l.HasSong(id))

	_, err = l.Import(src)
	assert.ErrorIs(t, err, ErrSongExists)

	txt := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0644))
	_, err = l.Import(txt)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	require.NoError(t, l.CreatePlaylist("mix"))
	require.NoError(t, l.AddToPlaylist("mix", id))
	require.NoError(t, l.DeleteSong(id))

	assert.False(t, l.HasSong(id))
	tracks, err := l.ListPlaylistTracks("mix")
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestWatch(t *testing.T) {
	l := newTestLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, func() { changes.Add(1) }) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(l.SongsPath(), "a.mp3"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(l.SongsPath(), "b.mp3"), []byte("x"), 0644))

	assert.Eventually(t, func() bool { return changes.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
