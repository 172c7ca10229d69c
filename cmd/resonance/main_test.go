package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/player"
)

func TestParsePosition(t *testing.T) {
	idx, err := parsePosition("1")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = parsePosition("12")
	require.NoError(t, err)
	assert.Equal(t, 11, idx)

	for _, bad := range []string{"0", "-3", "two", ""} {
		_, err := parsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(3*512*1024))
	assert.Equal(t, "2.0 GB", formatBytes(2*1024*1024*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "0:59", formatDuration(59))
	assert.Equal(t, "3:05", formatDuration(185))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "0:05.50", formatTimestamp(5.5))
	assert.Equal(t, "2:03.25", formatTimestamp(123.25))
}

func TestForwardEventsDropsTicksAndNeverBlocks(t *testing.T) {
	events := make(chan app.Event, 1)
	forward := forwardEvents(events)

	forward(app.Event{Kind: app.EventPlayback, Playback: player.Event{Kind: player.EventPositionChanged}})
	assert.Len(t, events, 0)

	forward(app.Event{Kind: app.EventQueue})
	forward(app.Event{Kind: app.EventSettings})
	require.Len(t, events, 1)
	assert.Equal(t, app.EventQueue, (<-events).Kind)
}
