package control

import (
	"github.com/samber/lo"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

type GroupDTO struct {
	Playlist string `json:"playlist"`
	Instance int    `json:"instance"`
}

type RowDTO struct {
	Index   int        `json:"index"`
	EntryID string     `json:"entryId"`
	Track   track.Info `json:"track"`
	Current bool       `json:"current"`
}

type BlockDTO struct {
	Group        *GroupDTO `json:"group,omitempty"`
	Label        string    `json:"label"`
	Collapsed    bool      `json:"collapsed"`
	Rows         []RowDTO  `json:"rows"`
	DurationSecs int64     `json:"durationSecs"`
	HasCurrent   bool      `json:"hasCurrent"`
}

type QueueDTO struct {
	Blocks            []BlockDTO     `json:"blocks"`
	Cursor            int            `json:"cursor"`
	Loop              queue.LoopMode `json:"loop"`
	TotalTracks       int            `json:"totalTracks"`
	TotalDurationSecs int64          `json:"totalDurationSecs"`
}

type PlaylistDTO struct {
	Name   string `json:"name"`
	Tracks int    `json:"tracks"`
}

// EventDTO is what websocket clients receive for every app event.
type EventDTO struct {
	Type   string     `json:"type"`
	Status app.Status `json:"status"`
	Queue  *QueueDTO  `json:"queue,omitempty"`
}

type enqueueRequest struct {
	ID string `json:"id"`
}

type enqueuePlaylistRequest struct {
	Name     string `json:"name"`
	PlayNow  bool   `json:"playNow"`
	Shuffle  bool   `json:"shuffle"`
	Expanded bool   `json:"expanded"`
}

type seekRequest struct {
	Position *float64 `json:"position,omitempty"`
	Delta    *float64 `json:"delta,omitempty"`
}

type volumeRequest struct {
	Level float64 `json:"level"`
}

type speedRequest struct {
	Ratio float64 `json:"ratio"`
}

type loopRequest struct {
	Mode *queue.LoopMode `json:"mode,omitempty"`
}

type normalizationRequest struct {
	Enabled bool `json:"enabled"`
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (g GroupDTO) groupID() queue.GroupID {
	return queue.GroupID{Playlist: g.Playlist, Instance: g.Instance}
}

func toGroupDTO(g *queue.GroupID) *GroupDTO {
	if g == nil {
		return nil
	}
	return &GroupDTO{Playlist: g.Playlist, Instance: g.Instance}
}

func toQueueDTO(v queue.View) QueueDTO {
	return QueueDTO{
		Blocks: lo.Map(v.Blocks, func(b queue.Block, _ int) BlockDTO {
			return BlockDTO{
				Group:     toGroupDTO(b.Group),
				Label:     b.Label,
				Collapsed: b.Collapsed,
				Rows: lo.Map(b.Rows, func(r queue.Row, _ int) RowDTO {
					return RowDTO{Index: r.Index, EntryID: r.Entry.ID, Track: r.Entry.Track, Current: r.Current}
				}),
				DurationSecs: b.DurationSecs,
				HasCurrent:   b.HasCurrent,
			}
		}),
		Cursor:            v.Cursor,
		Loop:              v.Loop,
		TotalTracks:       v.TotalTracks,
		TotalDurationSecs: v.TotalDurationSecs,
	}
}

func toPlaylistDTOs(pls []library.Playlist) []PlaylistDTO {
	return lo.Map(pls, func(p library.Playlist, _ int) PlaylistDTO {
		return PlaylistDTO{Name: p.Name, Tracks: p.Tracks}
	})
}
