package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go-pianoroll/debug"
	"go-pianoroll/notes"
)

type memClip struct {
	name  string
	notes []notes.Note
}

type step struct {
	clip    notes.Clip
	label   string
	changes []change
}

// Memory is a NoteStore that keeps every clip in process memory
type Memory struct {
	notifier

	mu     sync.Mutex
	clips  map[notes.Clip]*memClip
	order  []notes.Clip
	lastID int64
	undo   []step
	redo   []step
	limit  int
}

// DefaultHistoryLimit bounds the undo history of a Memory store
const DefaultHistoryLimit = 200

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{clips: make(map[notes.Clip]*memClip), limit: DefaultHistoryLimit}
}

// SetHistoryLimit changes how many undo steps are kept (0 keeps none)
func (m *Memory) SetHistoryLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = n
	m.trim()
}

// CreateClip adds an empty clip and returns its handle
func (m *Memory) CreateClip(name string) notes.Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	clip := notes.NewClip()
	m.addClip(clip, name)
	return clip
}

func (m *Memory) addClip(clip notes.Clip, name string) *memClip {
	c := &memClip{name: name}
	m.clips[clip] = c
	m.order = append(m.order, clip)
	return c
}

// Clips lists the clips in creation order
func (m *Memory) Clips(ctx context.Context) ([]ClipInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ClipInfo, 0, len(m.order))
	for _, clip := range m.order {
		c := m.clips[clip]
		out = append(out, ClipInfo{Clip: clip, Name: c.name, Notes: len(c.notes)})
	}
	return out, nil
}

// ListAllNotes returns a copy of the clip's notes ordered by id
func (m *Memory) ListAllNotes(ctx context.Context, clip notes.Clip) ([]notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clips[clip]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, clip)
	}
	return append([]notes.Note(nil), c.notes...), nil
}

// ChangeBatch applies deltas as one step. Labeled batches and batches that
// change more than the selection become undo steps.
func (m *Memory) ChangeBatch(ctx context.Context, clip notes.Clip, deltas []notes.Note, undoLabel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	c, ok := m.clips[clip]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownClip, clip)
	}

	lastID := m.lastID
	changes, err := plan(c.notes, deltas, func() int64 {
		lastID++
		return lastID
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("change batch on %s: %w", clip, err)
	}
	m.lastID = lastID
	c.notes = apply(c.notes, changes)

	label := undoLabelFor(undoLabel, changes)
	if label != "" && len(changes) > 0 {
		m.undo = append(m.undo, step{clip: clip, label: label, changes: changes})
		m.redo = nil
		m.trim()
	}
	m.mu.Unlock()

	debug.Log("store", "batch on %s: %d deltas, %d changes, label=%q", clip, len(deltas), len(changes), undoLabel)
	m.notify(Event{Clip: clip, Kind: EventBatch, Label: undoLabel, Count: len(changes)})
	return nil
}

func (m *Memory) trim() {
	if over := len(m.undo) - m.limit; over > 0 {
		m.undo = append([]step(nil), m.undo[over:]...)
	}
}

// Undo reverts the latest undo step and returns its label
func (m *Memory) Undo(ctx context.Context) (string, error) {
	return m.travel(ctx, EventUndo)
}

// Redo reapplies the latest undone step and returns its label
func (m *Memory) Redo(ctx context.Context) (string, error) {
	return m.travel(ctx, EventRedo)
}

func (m *Memory) travel(ctx context.Context, kind EventKind) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	from, to := &m.undo, &m.redo
	empty := ErrNothingToUndo
	if kind == EventRedo {
		from, to, empty = &m.redo, &m.undo, ErrNothingToRedo
	}
	if len(*from) == 0 {
		m.mu.Unlock()
		return "", empty
	}
	s := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]

	changes := s.changes
	if kind == EventUndo {
		changes = inverted(s.changes)
	}
	if c, ok := m.clips[s.clip]; ok {
		c.notes = apply(c.notes, changes)
	}
	*to = append(*to, s)
	m.mu.Unlock()

	debug.Log("store", "%s %q on %s", kind, s.label, s.clip)
	m.notify(Event{Clip: s.clip, Kind: kind, Label: s.label, Count: len(changes)})
	return s.label, nil
}

// CanUndo returns the label of the step Undo would revert
func (m *Memory) CanUndo() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return "", false
	}
	return m.undo[len(m.undo)-1].label, true
}

// CanRedo returns the label of the step Redo would reapply
func (m *Memory) CanRedo() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return "", false
	}
	return m.redo[len(m.redo)-1].label, true
}

// ReplaceNotes swaps the whole content of a clip, creating it when missing.
// Ids are reassigned and the history is cleared.
func (m *Memory) ReplaceNotes(clip notes.Clip, name string, all []notes.Note) {
	m.mu.Lock()
	c, ok := m.clips[clip]
	if !ok {
		c = m.addClip(clip, name)
	} else if name != "" {
		c.name = name
	}
	c.notes = make([]notes.Note, len(all))
	for i, n := range all {
		m.lastID++
		n.ID = m.lastID
		c.notes[i] = n
	}
	m.undo, m.redo = nil, nil
	m.mu.Unlock()

	m.notify(Event{Clip: clip, Kind: EventReplace, Count: len(all)})
}

// snapshot copies every clip for saving
func (m *Memory) snapshot() []savedClip {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]savedClip, 0, len(m.order))
	for _, clip := range m.order {
		c := m.clips[clip]
		out = append(out, savedClip{
			Clip:  clip,
			Name:  c.name,
			Notes: append([]notes.Note(nil), c.notes...),
		})
	}
	return out
}

// restore replaces the whole store with saved clips, keeping their ids
func (m *Memory) restore(saved []savedClip) {
	m.mu.Lock()
	m.clips = make(map[notes.Clip]*memClip, len(saved))
	m.order = nil
	m.lastID = 0
	m.undo, m.redo = nil, nil
	for _, s := range saved {
		c := m.addClip(s.Clip, s.Name)
		c.notes = append([]notes.Note(nil), s.Notes...)
		sort.Slice(c.notes, func(i, j int) bool { return c.notes[i].ID < c.notes[j].ID })
		for _, n := range c.notes {
			if n.ID > m.lastID {
				m.lastID = n.ID
			}
		}
	}
	m.mu.Unlock()

	for _, s := range saved {
		m.notify(Event{Clip: s.Clip, Kind: EventReplace, Count: len(s.Notes)})
	}
}
