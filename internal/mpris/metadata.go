package mpris

import (
	"encoding/hex"
	"strings"

	"github.com/godbus/dbus/v5"

	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

const (
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	noTrackPath = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	trackPrefix = "/org/resonance/track/t"
)

const (
	StatusPlaying = "Playing"
	StatusPaused  = "Paused"
	StatusStopped = "Stopped"

	LoopNone     = "None"
	LoopTrack    = "Track"
	LoopPlaylist = "Playlist"
)

// TrackObjectPath encodes a track id into a valid object path. Ids are file
// names, so they are hex encoded.
func TrackObjectPath(id string) dbus.ObjectPath {
	if id == "" {
		return noTrackPath
	}
	return dbus.ObjectPath(trackPrefix + hex.EncodeToString([]byte(id)))
}

// TrackIDFromPath reverses TrackObjectPath. Paths from other players are
// returned as they are.
func TrackIDFromPath(path string) string {
	if path == string(noTrackPath) {
		return ""
	}
	encoded, ok := strings.CutPrefix(path, trackPrefix)
	if !ok {
		return path
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return path
	}
	return string(raw)
}

// Metadata builds the xesam/mpris metadata map for info. artURL may be empty.
func Metadata(info *track.Info, artURL string) map[string]dbus.Variant {
	if !info.IsValid() {
		return map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant(noTrackPath),
		}
	}

	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(TrackObjectPath(info.ID)),
		"xesam:title":   dbus.MakeVariant(info.Title),
		"xesam:artist":  dbus.MakeVariant([]string{info.Artist}),
	}
	if info.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(info.Album)
	}
	if info.DurationSecs > 0 {
		m["mpris:length"] = dbus.MakeVariant(info.DurationSecs * 1_000_000)
	}
	if artURL != "" {
		m["mpris:artUrl"] = dbus.MakeVariant(artURLFor(artURL))
	}
	return m
}

func artURLFor(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "file://" + ref
}

// ParseMetadata reads a metadata map published by any MPRIS player.
func ParseMetadata(metadata map[string]dbus.Variant) track.Info {
	return track.Info{
		ID:           TrackIDFromPath(extractString(metadata, "mpris:trackid")),
		Title:        extractString(metadata, "xesam:title"),
		Artist:       extractArtist(metadata, "xesam:artist"),
		Album:        extractString(metadata, "xesam:album"),
		Thumbnail:    extractString(metadata, "mpris:artUrl"),
		DurationSecs: extractDurationSeconds(metadata, "mpris:length"),
	}
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}

	switch typed := variant.Value().(type) {
	case string:
		return typed
	case dbus.ObjectPath:
		return string(typed)
	default:
		return ""
	}
}

func extractArtist(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}

	switch typed := variant.Value().(type) {
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
		return ""
	case string:
		return typed
	default:
		return ""
	}
}

func extractDurationSeconds(metadata map[string]dbus.Variant, key string) int64 {
	variant, exists := metadata[key]
	if !exists {
		return 0
	}

	switch typed := variant.Value().(type) {
	case int64:
		if typed <= 0 {
			return 0
		}
		return typed / 1_000_000
	case uint64:
		return int64(typed / 1_000_000)
	default:
		return 0
	}
}

// PlaybackStatus maps a session state name to the MPRIS status string.
func PlaybackStatus(state string) string {
	switch state {
	case player.StatePlaying.String():
		return StatusPlaying
	case player.StatePaused.String():
		return StatusPaused
	default:
		return StatusStopped
	}
}

// LoopStatus maps a loop mode to MPRIS. Both repeat modes replay the current
// track, so they both read as Track.
func LoopStatus(mode queue.LoopMode) string {
	if mode == queue.LoopOff {
		return LoopNone
	}
	return LoopTrack
}

// ParseLoopStatus maps a LoopStatus write to a loop mode. Playlist has no
// equivalent and reports false.
func ParseLoopStatus(status string) (queue.LoopMode, bool) {
	switch status {
	case LoopNone:
		return queue.LoopOff, true
	case LoopTrack:
		return queue.LoopRepeatAll, true
	default:
		return queue.LoopOff, false
	}
}

func micros(seconds float64) int64 {
	return int64(seconds * 1_000_000)
}

func seconds(micros int64) float64 {
	return float64(micros) / 1_000_000
}
