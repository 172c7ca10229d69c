package queue

import (
	"fmt"

	"github.com/samber/lo"
)

type Row struct {
	Index   int
	Entry   Entry
	Current bool
}

// Block is one renderable unit of the queue: either a single plain entry or
// a whole playlist group under a header.
type Block struct {
	Group        *GroupID
	Label        string
	Collapsed    bool
	Rows         []Row
	DurationSecs int64
	HasCurrent   bool
}

func (b Block) IsGroup() bool {
	return b.Group != nil
}

// Visible returns the rows a renderer should draw under the block header.
func (b Block) Visible() []Row {
	if b.Collapsed {
		return nil
	}
	return b.Rows
}

type View struct {
	Blocks            []Block
	Cursor            int
	Loop              LoopMode
	TotalTracks       int
	TotalDurationSecs int64
}

// Project groups a snapshot into display blocks. Collapsed groups keep their
// rows in the totals.
func Project(s Snapshot) View {
	labels := GroupLabels(s.Entries)
	view := View{
		Cursor:      s.Cursor,
		Loop:        s.Loop,
		TotalTracks: len(s.Entries),
	}

	for i, entry := range s.Entries {
		row := Row{Index: i, Entry: entry, Current: i == s.Cursor}
		view.TotalDurationSecs += entry.Track.DurationSecs

		last := len(view.Blocks) - 1
		if entry.Group != nil && last >= 0 && view.Blocks[last].Group != nil && *view.Blocks[last].Group == *entry.Group {
			block := &view.Blocks[last]
			block.Rows = append(block.Rows, row)
			block.DurationSecs += entry.Track.DurationSecs
			block.HasCurrent = block.HasCurrent || row.Current
			continue
		}

		block := Block{
			Rows:         []Row{row},
			DurationSecs: entry.Track.DurationSecs,
			HasCurrent:   row.Current,
		}
		if entry.Group != nil {
			group := *entry.Group
			block.Group = &group
			block.Label = labels[group]
			block.Collapsed = s.Collapsed[group]
		}
		view.Blocks = append(view.Blocks, block)
	}

	return view
}

// GroupLabels names each group after its playlist. When one playlist is in the
// queue more than once, every instance gets a 1-based suffix in queue order.
func GroupLabels(entries []Entry) map[GroupID]string {
	groups := lo.Uniq(lo.FilterMap(entries, func(e Entry, _ int) (GroupID, bool) {
		if e.Group == nil {
			return GroupID{}, false
		}
		return *e.Group, true
	}))

	perName := lo.CountValuesBy(groups, func(g GroupID) string { return g.Playlist })
	seen := make(map[string]int, len(perName))
	labels := make(map[GroupID]string, len(groups))

	for _, g := range groups {
		if perName[g.Playlist] < 2 {
			labels[g] = g.Playlist
			continue
		}
		seen[g.Playlist]++
		labels[g] = fmt.Sprintf("%s (%d)", g.Playlist, seen[g.Playlist])
	}
	return labels
}
