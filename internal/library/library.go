package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	SongsDir     = "all songs"
	PlaylistsDir = "playlists"
	OrderFile    = ".playlist-order.json"

	refExt = ".ref"
)

var audioExts = []string{".mp3", ".flac", ".wav"}

var (
	ErrPlaylistExists   = errors.New("playlist already exists")
	ErrPlaylistNotFound = errors.New("playlist does not exist")
	ErrSongNotFound     = errors.New("song does not exist")
	ErrSongExists       = errors.New("song already exists")
	ErrInvalidName      = errors.New("invalid name")
	ErrUnsupportedFile  = errors.New("not a supported audio file")
)

type Playlist struct {
	Name   string
	Tracks int
}

type playlistOrder struct {
	Order       []string  `json:"order"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Library is a directory of songs plus playlist directories whose entries
// point back at those songs.
type Library struct {
	root string
	log  *slog.Logger
}

// Open prepares the directory layout under root and returns the library.
func Open(root string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Library{root: root, log: logger.With("component", "library")}

	for _, dir := range []string{l.SongsPath(), l.PlaylistsPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}
	return l, nil
}

func (l *Library) Root() string          { return l.root }
func (l *Library) SongsPath() string     { return filepath.Join(l.root, SongsDir) }
func (l *Library) PlaylistsPath() string { return filepath.Join(l.root, PlaylistsDir) }

func (l *Library) songPath(id string) string {
	return filepath.Join(l.SongsPath(), id)
}

func (l *Library) playlistPath(name string) string {
	return filepath.Join(l.PlaylistsPath(), name)
}

// IsAudioFile reports whether name has an extension the player can decode.
func IsAudioFile(name string) bool {
	return slices.Contains(audioExts, strings.ToLower(filepath.Ext(name)))
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Songs lists every audio file in the library, sorted by name.
func (l *Library) Songs() ([]string, error) {
	entries, err := os.ReadDir(l.SongsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	songs := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), !e.IsDir() && IsAudioFile(e.Name())
	})
	slices.Sort(songs)
	return songs, nil
}

func (l *Library) HasSong(id string) bool {
	if validName(id) != nil {
		return false
	}
	info, err := os.Stat(l.songPath(id))
	return err == nil && !info.IsDir()
}

// SongPath returns the absolute path of a song file.
func (l *Library) SongPath(id string) (string, error) {
	if err := validName(id); err != nil {
		return "", err
	}
	return l.songPath(id), nil
}

// FetchTrackBytes reads the whole file for id.
func (l *Library) FetchTrackBytes(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validName(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.songPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, id)
		}
		return nil, err
	}
	return data, nil
}

// Import copies an audio file into the library and returns its id.
func (l *Library) Import(src string) (string, error) {
	id := filepath.Base(src)
	if !IsAudioFile(id) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, id)
	}
	if err := validName(id); err != nil {
		return "", err
	}

	dst := l.songPath(id)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%w: %s", ErrSongExists, id)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to copy %s: %w", id, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	l.log.Info("song imported", "song", id)
	return id, nil
}

// DeleteSong removes a song and every playlist entry pointing at it.
func (l *Library) DeleteSong(id string) error {
	if err := validName(id); err != nil {
		return err
	}
	playlists, err := l.Playlists()
	if err != nil {
		return err
	}
	for _, p := range playlists {
		if err := l.RemoveFromPlaylist(p.Name, id); err != nil {
			return err
		}
	}
	if err := os.Remove(l.songPath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSongNotFound, id)
		}
		return err
	}
	return nil
}

// Playlists lists playlist directories with their track counts.
func (l *Library) Playlists() ([]Playlist, error) {
	entries, err := os.ReadDir(l.PlaylistsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	var out []Playlist
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		members, err := l.members(e.Name())
		if err != nil {
			l.log.Warn("unreadable playlist", "playlist", e.Name(), "error", err)
			continue
		}
		out = append(out, Playlist{Name: e.Name(), Tracks: len(members)})
	}
	return out, nil
}

func (l *Library) CreatePlaylist(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := l.playlistPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrPlaylistExists, name)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (l *Library) DeletePlaylist(name string) error {
	if err := l.requirePlaylist(name); err != nil {
		return err
	}
	return os.RemoveAll(l.playlistPath(name))
}

func (l *Library) RenamePlaylist(from, to string) error {
	if err := l.requirePlaylist(from); err != nil {
		return err
	}
	if err := validName(to); err != nil {
		return err
	}
	if _, err := os.Stat(l.playlistPath(to)); err == nil {
		return fmt.Errorf("%w: %s", ErrPlaylistExists, to)
	}
	return os.Rename(l.playlistPath(from), l.playlistPath(to))
}

// AddToPlaylist links a song into a playlist. Where symlinks are not
// possible a .ref file naming the song is written instead.
func (l *Library) AddToPlaylist(name, id string) error {
	if err := l.requirePlaylist(name); err != nil {
		return err
	}
	if !l.HasSong(id) {
		return fmt.Errorf("%w: %s", ErrSongNotFound, id)
	}

	target := l.songPath(id)
	link := filepath.Join(l.playlistPath(name), id)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}

	if err := os.Symlink(target, link); err != nil {
		l.log.Debug("symlink failed, writing reference", "playlist", name, "song", id, "error", err)
		ref := fmt.Sprintf("# Playlist Reference\nOriginal: %s", target)
		if err := os.WriteFile(link+refExt, []byte(ref), 0644); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", id, name, err)
		}
	}
	return nil
}

func (l *Library) RemoveFromPlaylist(name, id string) error {
	if err := l.requirePlaylist(name); err != nil {
		return err
	}
	if err := validName(id); err != nil {
		return err
	}
	link := filepath.Join(l.playlistPath(name), id)
	for _, path := range []string{link, link + refExt} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ListPlaylistTracks returns the playlist's song ids: the saved order first,
// then anything not in it alphabetically.
func (l *Library) ListPlaylistTracks(name string) ([]string, error) {
	if err := l.requirePlaylist(name); err != nil {
		return nil, err
	}
	members, err := l.members(name)
	if err != nil {
		return nil, err
	}
	return applyOrder(members, l.order(name)), nil
}

// SaveOrder records the order playlist tracks should be listed in.
func (l *Library) SaveOrder(name string, order []string) error {
	if err := l.requirePlaylist(name); err != nil {
		return err
	}
	data, err := json.MarshalIndent(playlistOrder{Order: order, LastUpdated: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.playlistPath(name), OrderFile), data, 0644)
}

func (l *Library) requirePlaylist(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	info, err := os.Stat(l.playlistPath(name))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
	}
	return nil
}

func (l *Library) members(name string) ([]string, error) {
	entries, err := os.ReadDir(l.playlistPath(name))
	if err != nil {
		return nil, err
	}
	members := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		id := strings.TrimSuffix(e.Name(), refExt)
		return id, !e.IsDir() && IsAudioFile(id)
	})
	return lo.Uniq(members), nil
}

func (l *Library) order(name string) []string {
	data, err := os.ReadFile(filepath.Join(l.playlistPath(name), OrderFile))
	if err != nil {
		return nil
	}
	var saved playlistOrder
	if err := json.Unmarshal(data, &saved); err != nil {
		l.log.Warn("ignoring unreadable playlist order", "playlist", name, "error", err)
		return nil
	}
	return saved.Order
}

func applyOrder(members, order []string) []string {
	ordered := lo.Filter(lo.Uniq(order), func(id string, _ int) bool {
		return slices.Contains(members, id)
	})
	rest := lo.Without(members, ordered...)
	slices.Sort(rest)
	return append(ordered, rest...)
}
