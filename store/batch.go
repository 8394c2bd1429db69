// Package store holds the NoteStore implementations the editor commits to.
package store

import (
	"fmt"
	"sort"
	"sync"

	"go-pianoroll/notes"
)

// DefaultEditLabel names undo steps committed without a label
const DefaultEditLabel = "Edit Notes"

// change is one note before and after a batch. A nil side means the note did
// not exist on that side.
type change struct {
	ID     int64       `json:"id"`
	Before *notes.Note `json:"before,omitempty"`
	After  *notes.Note `json:"after,omitempty"`
}

func (c change) invert() change {
	return change{ID: c.ID, Before: c.After, After: c.Before}
}

// selectionOnly reports whether c flips nothing but the selected flag
func (c change) selectionOnly() bool {
	if c.Before == nil || c.After == nil {
		return false
	}
	b := *c.Before
	b.Selected = c.After.Selected
	return b == *c.After
}

func validNote(n notes.Note) error {
	switch {
	case n.Key < notes.MinKey || n.Key > notes.MaxKey:
		return fmt.Errorf("%w: key %d out of range", ErrInvalidNote, n.Key)
	case n.Tick < 0:
		return fmt.Errorf("%w: negative tick %d", ErrInvalidNote, n.Tick)
	case n.Duration < 0:
		return fmt.Errorf("%w: negative duration %d", ErrInvalidNote, n.Duration)
	}
	return nil
}

// plan turns a delta batch into changes against current. Inserts get ids
// from nextID. Deleting a note that is already gone is not an error.
func plan(current []notes.Note, deltas []notes.Note, nextID func() int64) ([]change, error) {
	byID := make(map[int64]int, len(current))
	for i, n := range current {
		byID[n.ID] = i
	}

	var out []change
	touched := make(map[int64]bool, len(deltas))
	for _, d := range deltas {
		switch {
		case d.IsNew():
			if d.IsDeletion() {
				continue
			}
			if err := validNote(d); err != nil {
				return nil, err
			}
			n := d
			n.ID = nextID()
			out = append(out, change{ID: n.ID, After: &n})
		case d.IsDeletion():
			i, ok := byID[d.ID]
			if !ok || touched[d.ID] {
				continue
			}
			before := current[i]
			touched[d.ID] = true
			out = append(out, change{ID: d.ID, Before: &before})
		default:
			i, ok := byID[d.ID]
			if !ok {
				return nil, fmt.Errorf("%w: no note with id %d", ErrInvalidNote, d.ID)
			}
			if touched[d.ID] {
				return nil, fmt.Errorf("%w: id %d changed twice in one batch", ErrInvalidNote, d.ID)
			}
			if err := validNote(d); err != nil {
				return nil, err
			}
			before, after := current[i], d
			touched[d.ID] = true
			if before == after {
				continue
			}
			out = append(out, change{ID: d.ID, Before: &before, After: &after})
		}
	}
	return out, nil
}

// apply returns current with changes applied, ordered by id
func apply(current []notes.Note, changes []change) []notes.Note {
	byID := make(map[int64]notes.Note, len(current)+len(changes))
	for _, n := range current {
		byID[n.ID] = n
	}
	for _, c := range changes {
		if c.After == nil {
			delete(byID, c.ID)
		} else {
			byID[c.ID] = *c.After
		}
	}
	out := make([]notes.Note, 0, len(byID))
	for _, n := range byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// undoLabelFor decides the history label of a batch. An empty result means
// the batch is not an undo step.
func undoLabelFor(label string, changes []change) string {
	if label != "" {
		return label
	}
	for _, c := range changes {
		if !c.selectionOnly() {
			return DefaultEditLabel
		}
	}
	return ""
}

func inverted(changes []change) []change {
	out := make([]change, len(changes))
	for i, c := range changes {
		out[len(changes)-1-i] = c.invert()
	}
	return out
}

// EventKind says what produced an Event
type EventKind int

const (
	EventBatch EventKind = iota
	EventUndo
	EventRedo
	EventReplace
)

func (k EventKind) String() string {
	switch k {
	case EventBatch:
		return "batch"
	case EventUndo:
		return "undo"
	case EventRedo:
		return "redo"
	case EventReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Event tells subscribers that the notes of a clip changed
type Event struct {
	Clip  notes.Clip
	Kind  EventKind
	Label string
	Count int
}

type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Subscribe calls fn after every change. The returned func unsubscribes.
func (n *notifier) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(Event))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) notify(ev Event) {
	n.mu.Lock()
	subs := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// ClipInfo describes a clip for listings
type ClipInfo struct {
	Clip  notes.Clip `json:"clip"`
	Name  string     `json:"name"`
	Notes int        `json:"notes"`
}
