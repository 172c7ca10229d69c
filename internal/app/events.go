package app

import (
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

type EventKind int

const (
	// EventPlayback carries a session event in Event.Playback.
	EventPlayback EventKind = iota
	// EventQueue means entries, cursor, loop mode or collapse state changed.
	EventQueue
	// EventSettings means normalization or a sync offset changed.
	EventSettings
	// EventLibrary means songs or playlists changed on disk.
	EventLibrary
)

func (k EventKind) String() string {
	switch k {
	case EventPlayback:
		return "playback"
	case EventQueue:
		return "queue"
	case EventSettings:
		return "settings"
	case EventLibrary:
		return "library"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	Playback player.Event
}

// Status is everything a remote or the UI needs to draw the player.
type Status struct {
	State         string         `json:"state"`
	Track         *track.Info    `json:"track,omitempty"`
	Position      float64        `json:"position"`
	Duration      float64        `json:"duration"`
	Volume        float64        `json:"volume"`
	Muted         bool           `json:"muted"`
	Speed         float64        `json:"speed"`
	Loop          queue.LoopMode `json:"loop"`
	Normalization bool           `json:"normalization"`
	Gain          float64        `json:"gain"`
	Cursor        int            `json:"cursor"`
	QueueLength   int            `json:"queueLength"`
}

func buildStatus(pb player.Status, snap queue.Snapshot, normalization bool, gainValue float64) Status {
	st := Status{
		State:         pb.State.String(),
		Position:      pb.Position,
		Duration:      pb.Duration,
		Volume:        pb.Volume,
		Muted:         pb.Muted,
		Speed:         pb.Speed,
		Loop:          snap.Loop,
		Normalization: normalization,
		Gain:          gainValue,
		Cursor:        snap.Cursor,
		QueueLength:   len(snap.Entries),
	}
	if entry, ok := snap.Current(); ok {
		info := entry.Track
		st.Track = &info
	}
	return st
}
