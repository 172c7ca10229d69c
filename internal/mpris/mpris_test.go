package mpris

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

func TestTrackObjectPath(t *testing.T) {
	for _, id := range []string{"a.mp3", "Daft Punk - One More Time (Radio Edit).flac", "ünïcødé.wav"} {
		path := TrackObjectPath(id)
		assert.True(t, path.IsValid(), "path %q", path)
		assert.Equal(t, id, TrackIDFromPath(string(path)))
	}

	assert.Equal(t, noTrackPath, TrackObjectPath(""))
	assert.Equal(t, "", TrackIDFromPath(string(noTrackPath)))
	assert.Equal(t, "/org/other/track/7", TrackIDFromPath("/org/other/track/7"))
}

func TestMetadataRoundTrip(t *testing.T) {
	info := &track.Info{
		ID:           "digital-love.mp3",
		Title:        "Digital Love",
		Artist:       "Daft Punk",
		Album:        "Discovery",
		DurationSecs: 301,
	}

	m := Metadata(info, "/music/cover.jpg")
	assert.Equal(t, int64(301_000_000), m["mpris:length"].Value())
	assert.Equal(t, []string{"Daft Punk"}, m["xesam:artist"].Value())
	assert.Equal(t, "file:///music/cover.jpg", m["mpris:artUrl"].Value())

	got := ParseMetadata(m)
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, info.Title, got.Title)
	assert.Equal(t, info.Artist, got.Artist)
	assert.Equal(t, info.Album, got.Album)
	assert.Equal(t, info.DurationSecs, got.DurationSecs)
	assert.Equal(t, "file:///music/cover.jpg", got.Thumbnail)
}

func TestMetadataWithoutTrack(t *testing.T) {
	m := Metadata(nil, "")
	require.Len(t, m, 1)
	assert.Equal(t, noTrackPath, m["mpris:trackid"].Value())

	m = Metadata(&track.Info{ID: "x.mp3", Title: "x"}, "https://img.example/x.jpg")
	assert.Equal(t, "https://img.example/x.jpg", m["mpris:artUrl"].Value())
	_, hasLength := m["mpris:length"]
	assert.False(t, hasLength)
	_, hasAlbum := m["xesam:album"]
	assert.False(t, hasAlbum)
}

func TestExtractHelpersTolerateForeignTypes(t *testing.T) {
	m := map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant(42),
		"xesam:artist": dbus.MakeVariant("Solo"),
		"mpris:length": dbus.MakeVariant(uint64(5_500_000)),
	}
	assert.Equal(t, "", extractString(m, "xesam:title"))
	assert.Equal(t, "Solo", extractArtist(m, "xesam:artist"))
	assert.Equal(t, int64(5), extractDurationSeconds(m, "mpris:length"))
	assert.Equal(t, "", extractString(nil, "xesam:album"))

	m["mpris:length"] = dbus.MakeVariant(int64(-1))
	assert.Equal(t, int64(0), extractDurationSeconds(m, "mpris:length"))
}

func TestLoopStatusMapping(t *testing.T) {
	assert.Equal(t, LoopNone, LoopStatus(queue.LoopOff))
	assert.Equal(t, LoopTrack, LoopStatus(queue.LoopRepeatAll))
	assert.Equal(t, LoopTrack, LoopStatus(queue.LoopRepeatOne))

	mode, ok := ParseLoopStatus(LoopNone)
	assert.True(t, ok)
	assert.Equal(t, queue.LoopOff, mode)

	mode, ok = ParseLoopStatus(LoopTrack)
	assert.True(t, ok)
	assert.Equal(t, queue.LoopRepeatAll, mode)

	_, ok = ParseLoopStatus(LoopPlaylist)
	assert.False(t, ok)
}

func TestPlaybackStatus(t *testing.T) {
	assert.Equal(t, StatusPlaying, PlaybackStatus("playing"))
	assert.Equal(t, StatusPaused, PlaybackStatus("paused"))
	assert.Equal(t, StatusStopped, PlaybackStatus("stopped"))
	assert.Equal(t, StatusStopped, PlaybackStatus(""))
}

func TestStatusValues(t *testing.T) {
	st := app.Status{
		State:       "playing",
		Track:       &track.Info{ID: "a.mp3", Title: "A", Artist: "B", DurationSecs: 10},
		Position:    2.5,
		Duration:    10,
		Volume:      0.6,
		Muted:       true,
		Speed:       1.25,
		Loop:        queue.LoopRepeatOne,
		Cursor:      0,
		QueueLength: 2,
	}

	v := statusValues(st, "")
	assert.Equal(t, StatusPlaying, v["PlaybackStatus"])
	assert.Equal(t, LoopTrack, v["LoopStatus"])
	assert.Equal(t, 0.0, v["Volume"])
	assert.Equal(t, 1.25, v["Rate"])
	assert.Equal(t, int64(2_500_000), v["Position"])
	assert.Equal(t, true, v["CanGoNext"])
	assert.Equal(t, false, v["CanGoPrevious"])
	assert.Equal(t, true, v["CanSeek"])

	empty := statusValues(app.Status{State: "stopped", Cursor: queue.NoCursor}, "")
	assert.Equal(t, false, empty["CanGoNext"])
	assert.Equal(t, false, empty["CanPlay"])
	assert.Equal(t, false, empty["CanPause"])
}

func TestEqualValue(t *testing.T) {
	a := Metadata(&track.Info{ID: "a.mp3", Title: "A", Artist: "B"}, "")
	b := Metadata(&track.Info{ID: "a.mp3", Title: "A", Artist: "B"}, "")
	c := Metadata(&track.Info{ID: "c.mp3", Title: "C", Artist: "B"}, "")
	assert.True(t, equalValue(a, b))
	assert.False(t, equalValue(a, c))
	assert.True(t, equalValue("Playing", "Playing"))
	assert.False(t, equalValue(a, "Playing"))
}

func TestParseSignal(t *testing.T) {
	changes := parseSignal(&dbus.Signal{
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []any{
			mprisPlayerIface,
			map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant(StatusPaused),
				"LoopStatus":     dbus.MakeVariant(LoopTrack),
			},
			[]string{},
		},
	})
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Kind: ChangePlayback, Status: StatusPaused}, changes[0])
	assert.Equal(t, Change{Kind: ChangeLoop, Loop: LoopTrack}, changes[1])

	seeked := parseSignal(&dbus.Signal{Name: mprisPlayerIface + ".Seeked", Body: []any{int64(3_000_000)}})
	require.Len(t, seeked, 1)
	assert.Equal(t, 3*time.Second, seeked[0].Position)

	assert.Nil(t, parseSignal(&dbus.Signal{
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []any{mprisRootIface, map[string]dbus.Variant{}},
	}))
	assert.Nil(t, parseSignal(nil))
}
