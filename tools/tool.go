// Package tools implements the pointer drag tools of the piano roll.
package tools

import (
	"sync"

	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// Mode is the phase of a drag gesture
type Mode int

const (
	Start Mode = iota
	Move
	Scroll
	Stop
	Cancel
)

func (m Mode) String() string {
	switch m {
	case Start:
		return "start"
	case Move:
		return "move"
	case Scroll:
		return "scroll"
	case Stop:
		return "stop"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Point is a position in CSS pixels relative to the notes canvas
type Point struct {
	X, Y float64
}

// Pointer is one pointer event of a drag
type Pointer struct {
	X, Y  float64
	Shift bool
	Ctrl  bool
	Alt   bool

	// Coalesced holds the samples merged into this event, oldest first
	Coalesced []Point
}

// Samples returns the coalesced samples, or the pointer position alone
func (p Pointer) Samples() []Point {
	if len(p.Coalesced) == 0 {
		return []Point{{p.X, p.Y}}
	}
	return p.Coalesced
}

// Context is what a tool works against during a drag
type Context struct {
	Layout *layout.Layout
	Clip   notes.Clip
	Queue  *editqueue.Queue

	mu      sync.Mutex
	noteLen int64 // duration of painted notes, Quantization() when zero
}

// NoteLength returns the configured paint length, zero when it follows the
// grid
func (c *Context) NoteLength() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noteLen
}

// SetNoteLength sets the paint length. Modifiers may call it from the queue
// worker.
func (c *Context) SetNoteLength(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noteLen = n
}

func (c *Context) noteLength() int64 {
	if n := c.NoteLength(); n > 0 {
		return n
	}
	return c.Layout.Quantization()
}

// Tool reacts to the phases of a drag gesture. Each call returns the cycle
// of the last request it queued, or nil.
type Tool interface {
	DragStart(c *Context, p Pointer) *editqueue.Cycle
	DragMove(c *Context, p Pointer) *editqueue.Cycle
	DragScroll(c *Context, p Pointer) *editqueue.Cycle
	DragStop(c *Context, p Pointer) *editqueue.Cycle
	DragCancel(c *Context, p Pointer) *editqueue.Cycle
}

// Dispatch routes a drag phase to the matching method of t
func Dispatch(t Tool, m Mode, c *Context, p Pointer) *editqueue.Cycle {
	switch m {
	case Start:
		return t.DragStart(c, p)
	case Move:
		return t.DragMove(c, p)
	case Scroll:
		return t.DragScroll(c, p)
	case Stop:
		return t.DragStop(c, p)
	case Cancel:
		return t.DragCancel(c, p)
	}
	return nil
}

// Kind is the tool picked in the toolbar
type Kind byte

const (
	KindSelect     Kind = 'S'
	KindHorizontal Kind = 'H'
	KindPen        Kind = 'P'
	KindEraser     Kind = 'E'
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindHorizontal:
		return "horizontal select"
	case KindPen:
		return "pen"
	case KindEraser:
		return "eraser"
	default:
		return "unknown"
	}
}

// ParseKind maps a toolbar letter or name to a Kind
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "S", "s", "select":
		return KindSelect, true
	case "H", "h", "horizontal":
		return KindHorizontal, true
	case "P", "p", "pen":
		return KindPen, true
	case "E", "e", "eraser":
		return KindEraser, true
	}
	return 0, false
}

// headDistance is the minimum distance in ticks of a note tail from its start
const headDistance = 10

// HoverBody returns the id of the note under tick and key
func HoverBody(tick int64, key int, all []notes.Note) (int64, bool) {
	i := notes.Find(all, func(n notes.Note) bool { return n.Covers(tick, key) })
	if i < 0 {
		return 0, false
	}
	return all[i].ID, true
}

// HoverTail returns the id of the note whose second half is under tick and key
func HoverTail(tick int64, key int, all []notes.Note) (int64, bool) {
	i := notes.Find(all, func(n notes.Note) bool {
		return n.Key == key && tick >= n.Tick+max(headDistance, n.Duration/2) && tick < n.End()
	})
	if i < 0 {
		return 0, false
	}
	return all[i].ID, true
}

// HoverHead returns the id of the note under tick and key unless the
// position is on a note tail
func HoverHead(tick int64, key int, all []notes.Note) (int64, bool) {
	if _, ok := HoverTail(tick, key, all); ok {
		return 0, false
	}
	return HoverBody(tick, key, all)
}

// ForHover picks the tool a drag starting at tick and key uses. Pen drags on
// a note tail resize it, on a note head they move it; select drags on a note
// move the selection.
func ForHover(kind Kind, tick int64, key int, all []notes.Note) Tool {
	switch kind {
	case KindPen:
		if id, ok := HoverTail(tick, key, all); ok {
			return &Resize{NoteID: id}
		}
		if id, ok := HoverHead(tick, key, all); ok {
			return &MoveNotes{NoteID: id}
		}
		return &Pen{}
	case KindSelect, KindHorizontal:
		if id, ok := HoverBody(tick, key, all); ok {
			return &MoveNotes{NoteID: id}
		}
		return &Select{Horizontal: kind == KindHorizontal}
	case KindEraser:
		return &Eraser{}
	}
	return &Select{}
}

// modeFor maps pointer modifiers to a selection mode
func modeFor(p Pointer) selection.Mode {
	switch {
	case p.Shift && !p.Ctrl:
		return selection.Add
	case p.Ctrl && !p.Shift:
		return selection.Sub
	default:
		return selection.Assign
	}
}

// InRange matches notes on keys k0..k1 that start inside or overlap the
// start of the tick range t0..t1
func InRange(t0, t1 int64, k0, k1 int) selection.Predicate {
	return func(n notes.Note) bool {
		return n.Key >= k0 && n.Key <= k1 &&
			((t0 < n.Tick && t1 >= n.Tick) || (t0 >= n.Tick && t0 < n.End()))
	}
}
