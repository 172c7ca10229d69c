package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/track"
)

var errUnavailable = errors.New("track unavailable")

type fakeDeck struct {
	played   []Cue
	replays  int
	pauses   int
	stops    int
	releases int
	fail     map[string]error
}

func newFakeDeck() *fakeDeck {
	return &fakeDeck{fail: make(map[string]error)}
}

func (d *fakeDeck) Play(_ context.Context, cue Cue) error {
	if err := d.fail[cue.Entry.Track.ID]; err != nil {
		return err
	}
	d.played = append(d.played, cue)
	return nil
}

func (d *fakeDeck) Replay(context.Context) error {
	d.replays++
	return nil
}

func (d *fakeDeck) Pause()   { d.pauses++ }
func (d *fakeDeck) Stop()    { d.stops++ }
func (d *fakeDeck) Release() { d.releases++ }

func (d *fakeDeck) lastPlayed() string {
	if len(d.played) == 0 {
		return ""
	}
	return d.played[len(d.played)-1].Entry.Track.ID
}

func tracks(ids ...string) []track.Info {
	out := make([]track.Info, len(ids))
	for i, id := range ids {
		out[i] = track.FromFilename(id)
	}
	return out
}

func newTestManager() (*Manager, *fakeDeck) {
	deck := newFakeDeck()
	return NewManager(deck, nil), deck
}

func enqueueAll(t *testing.T, m *Manager, ids ...string) {
	t.Helper()
	for _, info := range tracks(ids...) {
		_, err := m.Enqueue(context.Background(), info)
		require.NoError(t, err)
	}
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("first entry starts playback", func(t *testing.T) {
		m, deck := newTestManager()

		index, err := m.Enqueue(ctx, track.FromFilename("a.mp3"))

		require.NoError(t, err)
		assert.Equal(t, 0, index)
		assert.Equal(t, 0, m.Cursor())
		require.Len(t, deck.played, 1)
		assert.Equal(t, "a.mp3", deck.lastPlayed())
		assert.True(t, deck.played[0].Fresh)
		assert.Nil(t, deck.played[0].Entry.Group)
	})

	t.Run("later entries do not interrupt", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 3, m.Len())
		assert.Len(t, deck.played, 1)
	})

	t.Run("failed first load keeps entry without cursor", func(t *testing.T) {
		m, deck := newTestManager()
		deck.fail["a.mp3"] = errUnavailable

		index, err := m.Enqueue(ctx, track.FromFilename("a.mp3"))

		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 0, index)
		assert.Equal(t, NoCursor, m.Cursor())
		assert.Equal(t, 1, m.Len())

		delete(deck.fail, "a.mp3")
		require.NoError(t, m.PlayNext(ctx))
		assert.Equal(t, 0, m.Cursor())
	})

	t.Run("cue carries the following entry", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		require.NoError(t, m.PlayAt(ctx, 0))

		cue := deck.played[len(deck.played)-1]
		require.NotNil(t, cue.Next)
		assert.Equal(t, "b.mp3", cue.Next.Track.ID)
	})
}

func TestEnqueueGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("appends contiguously without moving cursor", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "x.mp3")

		group, err := m.EnqueueGroup(ctx, "X", tracks("a.mp3", "b.mp3", "c.mp3"), GroupOptions{})
		require.NoError(t, err)

		entries := m.Queue()
		require.Len(t, entries, 4)
		for _, e := range entries[1:] {
			require.NotNil(t, e.Group)
			assert.Equal(t, group, *e.Group)
		}
		assert.Equal(t, []string{"a.mp3", "b.mp3", "c.mp3"}, []string{
			entries[1].Track.ID, entries[2].Track.ID, entries[3].Track.ID,
		})
		assert.Equal(t, 0, m.Cursor())
		assert.Len(t, deck.played, 1)
		assert.True(t, m.Snapshot().Collapsed[group])
	})

	t.Run("starts playback when queue was empty", func(t *testing.T) {
		m, deck := newTestManager()

		_, err := m.EnqueueGroup(ctx, "X", tracks("a.mp3", "b.mp3"), GroupOptions{})
		require.NoError(t, err)

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, "a.mp3", deck.lastPlayed())
	})

	t.Run("same playlist twice gets distinct instances", func(t *testing.T) {
		m, _ := newTestManager()

		first, err := m.EnqueueGroup(ctx, "X", tracks("a.mp3"), GroupOptions{})
		require.NoError(t, err)
		second, err := m.EnqueueGroup(ctx, "X", tracks("b.mp3"), GroupOptions{})
		require.NoError(t, err)

		assert.Equal(t, "X", first.Playlist)
		assert.Equal(t, "X", second.Playlist)
		assert.NotEqual(t, first.Instance, second.Instance)
		assert.Less(t, first.Instance, second.Instance)

		view := Project(m.Snapshot())
		require.Len(t, view.Blocks, 2)
		assert.Equal(t, "X (1)", view.Blocks[0].Label)
		assert.Equal(t, "X (2)", view.Blocks[1].Label)
	})

	t.Run("play now replaces queue", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "old1.mp3", "old2.mp3")

		group, err := m.EnqueueGroup(ctx, "Y", tracks("a.mp3", "b.mp3"), GroupOptions{PlayNow: true})
		require.NoError(t, err)

		entries := m.Queue()
		require.Len(t, entries, 2)
		assert.Equal(t, "a.mp3", entries[0].Track.ID)
		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, "a.mp3", deck.lastPlayed())
		assert.True(t, deck.played[len(deck.played)-1].Fresh)
		assert.Equal(t, map[GroupID]bool{group: true}, m.Snapshot().Collapsed)
	})

	t.Run("failed play now keeps the old queue", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "old1.mp3", "old2.mp3")
		deck.fail["a.mp3"] = errUnavailable

		_, err := m.EnqueueGroup(ctx, "Y", tracks("a.mp3", "b.mp3"), GroupOptions{PlayNow: true})

		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 2, m.Len())
		assert.Equal(t, "old1.mp3", m.Queue()[0].Track.ID)
		assert.Equal(t, 0, m.Cursor())
	})

	t.Run("expanded option leaves group open", func(t *testing.T) {
		m, _ := newTestManager()

		group, err := m.EnqueueGroup(ctx, "X", tracks("a.mp3"), GroupOptions{Expanded: true})
		require.NoError(t, err)

		assert.False(t, m.Snapshot().Collapsed[group])
	})

	t.Run("shuffle permutes members only", func(t *testing.T) {
		m, _ := newTestManager()
		ids := []string{"1.mp3", "2.mp3", "3.mp3", "4.mp3", "5.mp3", "6.mp3"}

		_, err := m.EnqueueGroup(ctx, "S", tracks(ids...), GroupOptions{Shuffle: true})
		require.NoError(t, err)

		got := make([]string, 0, len(ids))
		for _, e := range m.Queue() {
			got = append(got, e.Track.ID)
		}
		assert.ElementsMatch(t, ids, got)
	})

	t.Run("empty playlist is rejected", func(t *testing.T) {
		m, _ := newTestManager()

		_, err := m.EnqueueGroup(ctx, "X", nil, GroupOptions{})

		assert.ErrorIs(t, err, ErrEmptyGroup)
		assert.Equal(t, 0, m.Len())
	})
}

func TestPlayNow(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces queue", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		_, err := m.EnqueueGroup(ctx, "X", tracks("c.mp3"), GroupOptions{})
		require.NoError(t, err)

		require.NoError(t, m.PlayNow(ctx, track.FromFilename("z.mp3")))

		entries := m.Queue()
		require.Len(t, entries, 1)
		assert.Equal(t, "z.mp3", entries[0].Track.ID)
		assert.Nil(t, entries[0].Group)
		assert.Equal(t, 0, m.Cursor())
		assert.Empty(t, m.Snapshot().Collapsed)
		assert.Equal(t, "z.mp3", deck.lastPlayed())
	})

	t.Run("failure leaves queue untouched", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		require.NoError(t, m.PlayNext(ctx))
		deck.fail["z.mp3"] = errUnavailable

		err := m.PlayNow(ctx, track.FromFilename("z.mp3"))

		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 2, m.Len())
		assert.Equal(t, 1, m.Cursor())
	})
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()

	t.Run("next advances", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")

		require.NoError(t, m.PlayNext(ctx))

		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, "b.mp3", deck.lastPlayed())
		assert.False(t, deck.played[len(deck.played)-1].Fresh)
	})

	t.Run("next at end pauses", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3")

		require.NoError(t, m.PlayNext(ctx))

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 1, deck.pauses)
		assert.Len(t, deck.played, 1)
	})

	t.Run("next on empty queue is harmless", func(t *testing.T) {
		m, deck := newTestManager()

		require.NoError(t, m.PlayNext(ctx))

		assert.Equal(t, NoCursor, m.Cursor())
		assert.Empty(t, deck.played)
	})

	t.Run("failed next keeps cursor", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		deck.fail["b.mp3"] = errUnavailable

		err := m.PlayNext(ctx)

		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 0, m.Cursor())
	})

	t.Run("previous steps back", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		require.NoError(t, m.PlayNext(ctx))

		require.NoError(t, m.PlayPrevious(ctx))

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, "a.mp3", deck.lastPlayed())
	})

	t.Run("previous at head does not wrap", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")

		require.NoError(t, m.PlayPrevious(ctx))

		assert.Equal(t, 0, m.Cursor())
		assert.Len(t, deck.played, 1)
	})

	t.Run("play at jumps", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")

		require.NoError(t, m.PlayAt(ctx, 2))
		assert.Equal(t, 2, m.Cursor())
		assert.Equal(t, "c.mp3", deck.lastPlayed())

		assert.ErrorIs(t, m.PlayAt(ctx, 3), ErrIndexOutOfRange)
		assert.ErrorIs(t, m.PlayAt(ctx, -1), ErrIndexOutOfRange)
	})
}

func TestRemoveAt(t *testing.T) {
	ctx := context.Background()

	t.Run("before cursor decrements", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		require.NoError(t, m.PlayAt(ctx, 2))
		playedBefore := len(deck.played)

		require.NoError(t, m.RemoveAt(ctx, 0))

		assert.Equal(t, 1, m.Cursor())
		current, ok := m.Current()
		require.True(t, ok)
		assert.Equal(t, "c.mp3", current.Track.ID)
		assert.Len(t, deck.played, playedBefore)
	})

	t.Run("after cursor leaves cursor", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")

		require.NoError(t, m.RemoveAt(ctx, 2))

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 2, m.Len())
		assert.Len(t, deck.played, 1)
	})

	t.Run("current in the middle plays the next one", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		require.NoError(t, m.PlayAt(ctx, 1))

		require.NoError(t, m.RemoveAt(ctx, 1))

		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, "c.mp3", deck.lastPlayed())
	})

	t.Run("current at the end clamps and stops", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		require.NoError(t, m.PlayAt(ctx, 2))
		playedBefore := len(deck.played)

		require.NoError(t, m.RemoveAt(ctx, 2))

		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, 1, deck.stops)
		assert.Len(t, deck.played, playedBefore)
	})

	t.Run("only entry clears playback", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3")

		require.NoError(t, m.RemoveAt(ctx, 0))

		assert.Equal(t, NoCursor, m.Cursor())
		assert.Equal(t, 0, m.Len())
		assert.Equal(t, 1, deck.releases)
	})

	t.Run("replacement that fails to load stops playback", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")
		deck.fail["b.mp3"] = errUnavailable

		err := m.RemoveAt(ctx, 0)

		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 1, m.Len())
		assert.Equal(t, 1, deck.stops)
	})

	t.Run("out of range", func(t *testing.T) {
		m, _ := newTestManager()
		enqueueAll(t, m, "a.mp3")

		assert.ErrorIs(t, m.RemoveAt(ctx, 1), ErrIndexOutOfRange)
		assert.ErrorIs(t, m.RemoveAt(ctx, -1), ErrIndexOutOfRange)
	})

	t.Run("removing a whole group drops its collapsed state", func(t *testing.T) {
		m, _ := newTestManager()
		enqueueAll(t, m, "a.mp3")
		group, err := m.EnqueueGroup(ctx, "X", tracks("b.mp3"), GroupOptions{})
		require.NoError(t, err)
		require.True(t, m.Snapshot().Collapsed[group])

		require.NoError(t, m.RemoveAt(ctx, 1))

		assert.Empty(t, m.Snapshot().Collapsed)
	})
}

func TestCursorStaysValid(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	m, _ := newTestManager()

	for i := 0; i < 500; i++ {
		n := m.Len()
		if n == 0 || rng.Intn(2) == 0 {
			_, err := m.Enqueue(ctx, track.FromFilename(fmt.Sprintf("%d.mp3", i)))
			require.NoError(t, err)
		} else {
			require.NoError(t, m.RemoveAt(ctx, rng.Intn(n)))
		}

		snap := m.Snapshot()
		if len(snap.Entries) == 0 {
			require.Equal(t, NoCursor, snap.Cursor, "step %d", i)
			continue
		}
		require.GreaterOrEqual(t, snap.Cursor, 0, "step %d", i)
		require.Less(t, snap.Cursor, len(snap.Entries), "step %d", i)
	}
}

func TestTrackEnded(t *testing.T) {
	ctx := context.Background()

	t.Run("off advances", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3")

		require.NoError(t, m.HandleTrackEnded(ctx))

		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, "b.mp3", deck.lastPlayed())
	})

	t.Run("off at the end pauses", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3")

		require.NoError(t, m.HandleTrackEnded(ctx))

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 1, deck.pauses)
	})

	t.Run("repeat one replays once then advances", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		m.SetLoopMode(LoopRepeatOne)

		require.NoError(t, m.HandleTrackEnded(ctx))
		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 1, deck.replays)
		assert.Equal(t, LoopRepeatOne, m.LoopMode())

		require.NoError(t, m.HandleTrackEnded(ctx))
		assert.Equal(t, LoopOff, m.LoopMode())
		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, 1, deck.replays)
		assert.Equal(t, "b.mp3", deck.lastPlayed())
	})

	t.Run("repeat all never advances", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		m.SetLoopMode(LoopRepeatAll)

		for i := 0; i < 5; i++ {
			require.NoError(t, m.HandleTrackEnded(ctx))
		}

		assert.Equal(t, 0, m.Cursor())
		assert.Equal(t, 5, deck.replays)
		assert.Len(t, deck.played, 1)
		assert.Equal(t, LoopRepeatAll, m.LoopMode())
	})

	t.Run("manual navigation cancels the pending repeat", func(t *testing.T) {
		m, deck := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")
		m.SetLoopMode(LoopRepeatOne)

		require.NoError(t, m.HandleTrackEnded(ctx))
		require.NoError(t, m.PlayNext(ctx))

		require.NoError(t, m.HandleTrackEnded(ctx))
		assert.Equal(t, 1, m.Cursor())
		assert.Equal(t, 2, deck.replays)
		assert.Equal(t, LoopRepeatOne, m.LoopMode())
	})

	t.Run("ignored without a cursor", func(t *testing.T) {
		m, deck := newTestManager()

		require.NoError(t, m.HandleTrackEnded(ctx))

		assert.Empty(t, deck.played)
		assert.Zero(t, deck.pauses)
	})
}

func TestCycleLoopMode(t *testing.T) {
	m, _ := newTestManager()

	assert.Equal(t, LoopOff, m.LoopMode())
	assert.Equal(t, LoopRepeatAll, m.CycleLoopMode())
	assert.Equal(t, LoopRepeatOne, m.CycleLoopMode())
	assert.Equal(t, LoopOff, m.CycleLoopMode())
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("current entry stays current", func(t *testing.T) {
		m, _ := newTestManager()
		enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")

		require.NoError(t, m.Move(0, 2))

		ids := []string{}
		for _, e := range m.Queue() {
			ids = append(ids, e.Track.ID)
		}
		assert.Equal(t, []string{"b.mp3", "c.mp3", "a.mp3"}, ids)
		assert.Equal(t, 2, m.Cursor())
	})

	t.Run("cannot split a group", func(t *testing.T) {
		m, _ := newTestManager()
		enqueueAll(t, m, "a.mp3")
		_, err := m.EnqueueGroup(ctx, "X", tracks("b.mp3", "c.mp3", "d.mp3"), GroupOptions{})
		require.NoError(t, err)

		assert.ErrorIs(t, m.Move(0, 2), ErrGroupSplit)
		assert.Equal(t, "a.mp3", m.Queue()[0].Track.ID)
	})

	t.Run("reorders within a group", func(t *testing.T) {
		m, _ := newTestManager()
		_, err := m.EnqueueGroup(ctx, "X", tracks("b.mp3", "c.mp3", "d.mp3"), GroupOptions{})
		require.NoError(t, err)

		require.NoError(t, m.Move(2, 0))

		assert.Equal(t, "d.mp3", m.Queue()[0].Track.ID)
		assert.Equal(t, 1, m.Cursor())
	})

	t.Run("out of range", func(t *testing.T) {
		m, _ := newTestManager()
		enqueueAll(t, m, "a.mp3")

		assert.ErrorIs(t, m.Move(0, 1), ErrIndexOutOfRange)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, deck := newTestManager()
	enqueueAll(t, m, "a.mp3", "b.mp3")
	_, err := m.EnqueueGroup(ctx, "X", tracks("c.mp3"), GroupOptions{})
	require.NoError(t, err)

	m.Clear()

	snap := m.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Equal(t, NoCursor, snap.Cursor)
	assert.Empty(t, snap.Collapsed)
	assert.Equal(t, 1, deck.releases)

	_, err = m.Enqueue(ctx, track.FromFilename("d.mp3"))
	require.NoError(t, err)
	assert.True(t, deck.played[len(deck.played)-1].Fresh)
}

func TestToggleGroupCollapse(t *testing.T) {
	ctx := context.Background()
	m, deck := newTestManager()
	group, err := m.EnqueueGroup(ctx, "X", tracks("a.mp3"), GroupOptions{})
	require.NoError(t, err)
	playedBefore := len(deck.played)

	assert.False(t, m.ToggleGroupCollapse(group))
	assert.False(t, m.Snapshot().Collapsed[group])
	assert.True(t, m.ToggleGroupCollapse(group))
	assert.True(t, m.Snapshot().Collapsed[group])
	assert.Len(t, deck.played, playedBefore)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	var snaps []Snapshot
	m.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	enqueueAll(t, m, "a.mp3", "b.mp3")
	require.NoError(t, m.PlayNext(ctx))

	require.Len(t, snaps, 3)
	assert.Len(t, snaps[1].Entries, 2)
	assert.Equal(t, 1, snaps[2].Cursor)
}

func TestUpcoming(t *testing.T) {
	m, _ := newTestManager()
	assert.Nil(t, m.Upcoming())

	enqueueAll(t, m, "a.mp3", "b.mp3", "c.mp3")

	upcoming := m.Upcoming()
	require.Len(t, upcoming, 2)
	assert.Equal(t, "b.mp3", upcoming[0].Track.ID)

	next, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, "b.mp3", next.Track.ID)
}
