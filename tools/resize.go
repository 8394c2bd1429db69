package tools

import (
	"sync"

	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
)

// MinResizeDuration is the shortest duration a resize drag produces
const MinResizeDuration = layout.PPQN / 16

const resizeLabel = "Resize Notes"

// Resize drags the end of note NoteID. Other selected notes keep their
// duration difference to it. On stop the resulting length becomes the
// context's note length.
type Resize struct {
	NoteID int64

	mu         sync.Mutex
	deltas     map[int64]int64
	lastLength int64
}

func (r *Resize) DragStart(c *Context, p Pointer) *editqueue.Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = make(map[int64]int64)
	r.lastLength = c.NoteLength()
	return nil
}

func (r *Resize) DragMove(c *Context, p Pointer) *editqueue.Cycle {
	r.mu.Lock()
	deltas := r.deltas
	r.mu.Unlock()
	if deltas == nil {
		return nil
	}
	id := r.NoteID
	tick := c.Layout.TickFromX(p.X)
	quant := c.Layout.Quantization()
	snap := !p.Shift

	return c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		i := notes.FindID(working, id)
		if i < 0 {
			return editqueue.Unchanged()
		}
		anchor := working[i]

		r.mu.Lock()
		defer r.mu.Unlock()
		if _, seen := deltas[id]; !seen {
			deltas[id] = 0
			for _, n := range working {
				if n.Selected {
					deltas[n.ID] = n.Duration - anchor.Duration
				}
			}
		}

		length := tick - anchor.Tick
		if snap {
			length = layout.QuantizeTo(length, quant, true)
		}
		selectAnchor := !anchor.Selected

		out := make([]notes.Note, len(working))
		for j, n := range working {
			if selectAnchor {
				n.Selected = n.ID == id
			}
			if n.Selected {
				n.Duration = max(MinResizeDuration, length+deltas[n.ID])
				if n.ID == id {
					r.lastLength = n.Duration
				}
			}
			out[j] = n
		}
		return editqueue.Apply(out)
	}, resizeLabel)
}

func (r *Resize) DragScroll(c *Context, p Pointer) *editqueue.Cycle {
	return r.DragMove(c, p)
}

// DragStop hands the resulting length to the context once the queued moves
// have run
func (r *Resize) DragStop(c *Context, p Pointer) *editqueue.Cycle {
	r.mu.Lock()
	r.deltas = nil
	r.mu.Unlock()
	return c.Queue.Submit(c.Clip, func(_ notes.Clip, _ []notes.Note) editqueue.Result {
		r.mu.Lock()
		length := r.lastLength
		r.mu.Unlock()
		if length > 0 {
			c.SetNoteLength(length)
		}
		return editqueue.Unchanged()
	}, resizeLabel)
}

func (r *Resize) DragCancel(c *Context, p Pointer) *editqueue.Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = nil
	return nil
}
