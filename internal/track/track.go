package track

import (
	"path/filepath"
	"strings"
)

const UnknownArtist = "Unknown Artist"

// Info describes one library track. ID is the file name inside the library's
// song directory and is the only field playback depends on.
type Info struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album,omitempty"`
	DurationSecs int64  `json:"durationSecs"`
	Thumbnail    string `json:"thumbnail,omitempty"`
}

// FromFilename builds metadata defaults for a file that has no stored metadata.
func FromFilename(id string) Info {
	return Info{
		ID:     id,
		Title:  TitleFromFilename(id),
		Artist: UnknownArtist,
	}
}

func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func (t *Info) IsValid() bool {
	if t == nil {
		return false
	}
	return t.ID != ""
}

func (t *Info) IsSameTrack(other *Info) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

// HasLyricsKey reports whether the track carries enough metadata for a lyrics lookup.
func (t *Info) HasLyricsKey() bool {
	if t == nil {
		return false
	}
	return t.Title != "" && t.Artist != "" && t.Artist != UnknownArtist
}

// Display returns "artist - title", or just the title when the artist is unknown.
func (t *Info) Display() string {
	if t == nil {
		return ""
	}
	if t.Artist == "" || t.Artist == UnknownArtist {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}
