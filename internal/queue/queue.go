package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"karolbroda.com/resonance/internal/track"
)

// NoCursor marks a queue with no current entry.
const NoCursor = -1

var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrGroupSplit      = errors.New("move would split a playlist group")
	ErrEmptyGroup      = errors.New("playlist has no tracks")
)

// GroupID identifies one insertion of a playlist into the queue. Adding the
// same playlist twice yields two groups with the same name and distinct instances.
type GroupID struct {
	Playlist string
	Instance int
}

func (g GroupID) String() string {
	return fmt.Sprintf("%s#%d", g.Playlist, g.Instance)
}

type Entry struct {
	ID    string
	Track track.Info
	Group *GroupID
}

func (e Entry) InGroup(g GroupID) bool {
	return e.Group != nil && *e.Group == g
}

// Cue is what the manager hands to the deck when a track should start.
type Cue struct {
	Entry Entry
	// Next is the entry queued after Entry, if any. Decks use it for prefetching.
	Next *Entry
	// Fresh is set when the queue was just emptied or replaced, so no earlier
	// track should be used as a reference for the new one.
	Fresh bool
}

// Deck is the playback side the manager drives. Calls happen with the manager
// locked, so a Deck must never call back into the Manager synchronously.
type Deck interface {
	// Play loads and starts the cued entry. On error nothing about the previous
	// playback state may be assumed, but the queue will not move.
	Play(ctx context.Context, cue Cue) error
	// Replay restarts the loaded track from zero.
	Replay(ctx context.Context) error
	// Pause holds the loaded track where it is.
	Pause()
	// Stop unloads the current track.
	Stop()
	// Release unloads the current track and forgets everything tied to the
	// previous queue.
	Release()
}

type GroupOptions struct {
	PlayNow  bool
	Shuffle  bool
	Expanded bool
}

// Snapshot is a copy of the queue state, safe to read without locking.
type Snapshot struct {
	Entries   []Entry
	Cursor    int
	Loop      LoopMode
	Collapsed map[GroupID]bool
}

func (s Snapshot) Current() (Entry, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Entries) {
		return Entry{}, false
	}
	return s.Entries[s.Cursor], true
}

type Manager struct {
	mu  sync.Mutex
	log *slog.Logger

	deck         Deck
	entries      []Entry
	cursor       int
	groupCounter int
	collapsed    map[GroupID]bool
	loop         LoopMode
	repeatedOnce bool

	listeners []func(Snapshot)
}

func NewManager(deck Deck, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:       logger.With("component", "queue"),
		deck:      deck,
		cursor:    NoCursor,
		collapsed: make(map[GroupID]bool),
	}
}

// Subscribe registers fn to receive a snapshot after every mutation.
// fn runs on the mutating goroutine after the manager is unlocked.
func (m *Manager) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Enqueue appends a plain entry and returns its index. If the queue was empty,
// playback starts on the new entry.
func (m *Manager) Enqueue(ctx context.Context, info track.Info) (int, error) {
	m.mu.Lock()
	defer m.unlockAndNotify()

	wasEmpty := len(m.entries) == 0
	m.entries = append(m.entries, newEntry(info, nil))
	index := len(m.entries) - 1

	if wasEmpty {
		if err := m.startLocked(ctx, index, true); err != nil {
			return index, err
		}
	}
	return index, nil
}

// EnqueueGroup appends tracks as one contiguous group tagged with a fresh
// instance of playlist. With PlayNow the existing queue is replaced.
func (m *Manager) EnqueueGroup(ctx context.Context, playlist string, tracks []track.Info, opts GroupOptions) (GroupID, error) {
	if len(tracks) == 0 {
		return GroupID{}, ErrEmptyGroup
	}

	m.mu.Lock()
	defer m.unlockAndNotify()

	m.groupCounter++
	group := GroupID{Playlist: playlist, Instance: m.groupCounter}

	added := make([]Entry, len(tracks))
	for i, info := range tracks {
		added[i] = newEntry(info, &group)
	}
	if opts.Shuffle {
		added = lo.Shuffle(added)
	}

	if opts.PlayNow {
		cue := Cue{Entry: added[0], Next: entryAt(added, 1), Fresh: true}
		if err := m.deck.Play(ctx, cue); err != nil {
			return group, err
		}
		m.entries = added
		m.cursor = 0
		m.repeatedOnce = false
		m.collapsed = make(map[GroupID]bool)
		if !opts.Expanded {
			m.collapsed[group] = true
		}
		m.log.Info("playing playlist", "group", group.String(), "tracks", len(added))
		return group, nil
	}

	wasEmpty := len(m.entries) == 0
	first := len(m.entries)
	m.entries = append(m.entries, added...)
	if !opts.Expanded {
		m.collapsed[group] = true
	}
	m.log.Debug("queued playlist", "group", group.String(), "tracks", len(added))

	if wasEmpty {
		if err := m.startLocked(ctx, first, true); err != nil {
			return group, err
		}
	}
	return group, nil
}

// PlayNow replaces the whole queue with a single entry and plays it.
func (m *Manager) PlayNow(ctx context.Context, info track.Info) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	entry := newEntry(info, nil)
	if err := m.deck.Play(ctx, Cue{Entry: entry, Fresh: true}); err != nil {
		return err
	}

	m.entries = []Entry{entry}
	m.cursor = 0
	m.repeatedOnce = false
	m.collapsed = make(map[GroupID]bool)
	return nil
}

// PlayNext advances to the following entry. At the end of the queue playback
// pauses instead.
func (m *Manager) PlayNext(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlockAndNotify()
	return m.advanceLocked(ctx)
}

// PlayPrevious steps back one entry. It does nothing at the head of the queue.
func (m *Manager) PlayPrevious(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.cursor <= 0 {
		return nil
	}
	return m.startLocked(ctx, m.cursor-1, false)
}

// PlayAt jumps to the entry at index.
func (m *Manager) PlayAt(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if index < 0 || index >= len(m.entries) {
		return ErrIndexOutOfRange
	}
	return m.startLocked(ctx, index, false)
}

// RemoveAt deletes the entry at index. Removing the current entry plays the
// one that takes its place, or stops when there is none.
func (m *Manager) RemoveAt(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if index < 0 || index >= len(m.entries) {
		return ErrIndexOutOfRange
	}

	m.entries = slices.Delete(m.entries, index, index+1)
	m.pruneCollapsedLocked()

	switch {
	case index < m.cursor:
		m.cursor--
	case index == m.cursor:
		switch {
		case len(m.entries) == 0:
			m.cursor = NoCursor
			m.repeatedOnce = false
			m.deck.Release()
		case index == len(m.entries):
			m.cursor = len(m.entries) - 1
			m.repeatedOnce = false
			m.deck.Stop()
		default:
			if err := m.startLocked(ctx, m.cursor, false); err != nil {
				m.deck.Stop()
				return err
			}
		}
	}
	return nil
}

// Move reorders one entry. The current entry stays current wherever it ends up.
func (m *Manager) Move(from, to int) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if from < 0 || from >= len(m.entries) || to < 0 || to >= len(m.entries) {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}

	moved := slices.Clone(m.entries)
	entry := moved[from]
	moved = slices.Delete(moved, from, from+1)
	moved = slices.Insert(moved, to, entry)
	if !groupsContiguous(moved) {
		return ErrGroupSplit
	}

	var currentID string
	if m.cursor >= 0 {
		currentID = m.entries[m.cursor].ID
	}
	m.entries = moved
	if currentID != "" {
		m.cursor = slices.IndexFunc(m.entries, func(e Entry) bool { return e.ID == currentID })
	}
	return nil
}

// Clear empties the queue and stops playback.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.unlockAndNotify()

	m.entries = nil
	m.cursor = NoCursor
	m.repeatedOnce = false
	m.collapsed = make(map[GroupID]bool)
	m.deck.Release()
}

// ToggleGroupCollapse flips the display state of a group and returns whether
// it is now collapsed.
func (m *Manager) ToggleGroupCollapse(group GroupID) bool {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.collapsed[group] {
		delete(m.collapsed, group)
		return false
	}
	m.collapsed[group] = true
	return true
}

// CycleLoopMode moves to the next loop mode and returns it.
func (m *Manager) CycleLoopMode() LoopMode {
	m.mu.Lock()
	defer m.unlockAndNotify()

	m.loop = m.loop.Next()
	m.repeatedOnce = false
	return m.loop
}

func (m *Manager) SetLoopMode(mode LoopMode) {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.loop != mode {
		m.loop = mode
		m.repeatedOnce = false
	}
}

func (m *Manager) LoopMode() LoopMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loop
}

// HandleTrackEnded applies the loop policy after the current track finished
// on its own.
func (m *Manager) HandleTrackEnded(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.cursor == NoCursor {
		return nil
	}

	switch m.loop {
	case LoopRepeatOne:
		if !m.repeatedOnce {
			m.repeatedOnce = true
			return m.deck.Replay(ctx)
		}
		m.repeatedOnce = false
		m.loop = LoopOff
		m.log.Debug("single repeat finished, loop off")
		return m.advanceLocked(ctx)
	case LoopRepeatAll:
		return m.deck.Replay(ctx)
	default:
		return m.advanceLocked(ctx)
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) Queue() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Current() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor < 0 {
		return Entry{}, false
	}
	return m.entries[m.cursor], true
}

// Next returns the entry after the cursor.
func (m *Manager) Next() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := entryAt(m.entries, m.cursor+1)
	if next == nil || m.cursor < 0 {
		return Entry{}, false
	}
	return *next, true
}

// Upcoming returns every entry after the cursor.
func (m *Manager) Upcoming() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor < 0 || m.cursor >= len(m.entries)-1 {
		return nil
	}
	return slices.Clone(m.entries[m.cursor+1:])
}

func (m *Manager) advanceLocked(ctx context.Context) error {
	m.repeatedOnce = false
	if m.cursor < len(m.entries)-1 {
		return m.startLocked(ctx, m.cursor+1, false)
	}
	m.deck.Pause()
	return nil
}

// startLocked plays the entry at index and only moves the cursor once the
// deck accepted it.
func (m *Manager) startLocked(ctx context.Context, index int, fresh bool) error {
	cue := Cue{
		Entry: m.entries[index],
		Next:  entryAt(m.entries, index+1),
		Fresh: fresh,
	}
	if err := m.deck.Play(ctx, cue); err != nil {
		m.log.Warn("track failed to start", "track", cue.Entry.Track.ID, "error", err)
		return err
	}
	m.cursor = index
	m.repeatedOnce = false
	return nil
}

func (m *Manager) pruneCollapsedLocked() {
	for group := range m.collapsed {
		inQueue := lo.ContainsBy(m.entries, func(e Entry) bool { return e.InGroup(group) })
		if !inQueue {
			delete(m.collapsed, group)
		}
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	collapsed := make(map[GroupID]bool, len(m.collapsed))
	for group, v := range m.collapsed {
		collapsed[group] = v
	}
	return Snapshot{
		Entries:   slices.Clone(m.entries),
		Cursor:    m.cursor,
		Loop:      m.loop,
		Collapsed: collapsed,
	}
}

func (m *Manager) unlockAndNotify() {
	snap := m.snapshotLocked()
	listeners := m.listeners
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func newEntry(info track.Info, group *GroupID) Entry {
	return Entry{
		ID:    uuid.NewString(),
		Track: info,
		Group: group,
	}
}

func entryAt(entries []Entry, index int) *Entry {
	if index < 0 || index >= len(entries) {
		return nil
	}
	e := entries[index]
	return &e
}

// groupsContiguous reports whether every group occupies one unbroken run.
func groupsContiguous(entries []Entry) bool {
	seen := make(map[GroupID]bool)
	var prev *GroupID
	for _, e := range entries {
		if e.Group != nil && (prev == nil || *prev != *e.Group) {
			if seen[*e.Group] {
				return false
			}
			seen[*e.Group] = true
		}
		prev = e.Group
	}
	return true
}
