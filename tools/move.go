package tools

import (
	"sync"

	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// span is the tick and key extent of the selected notes
type span struct {
	minTick        int64
	minKey, maxKey int
	ok             bool
}

func selectedSpan(all []notes.Note) span {
	var s span
	for _, n := range all {
		if !n.Selected {
			continue
		}
		if !s.ok {
			s = span{minTick: n.Tick, minKey: n.Key, maxKey: n.Key, ok: true}
			continue
		}
		s.minTick = min(s.minTick, n.Tick)
		s.minKey = min(s.minKey, n.Key)
		s.maxKey = max(s.maxKey, n.Key)
	}
	return s
}

// moveState is shared between a MoveNotes drag and its queued modifiers
type moveState struct {
	mu           sync.Mutex
	ok           bool
	originals    map[int64]bool
	relTick      int64
	relKey       int
	gridOffset   int64
	cursorOffset int64
}

// MoveNotes drags the selection, starting at the note NoteID. The dragged
// notes are copies; unless Ctrl is held when the drag ends the originals are
// deleted.
type MoveNotes struct {
	NoteID int64

	state *moveState
}

func (m *MoveNotes) DragStart(c *Context, p Pointer) *editqueue.Cycle {
	st := &moveState{}
	m.state = st
	id := m.NoteID
	tick, key := c.Layout.TickFromX(p.X), c.Layout.MidinoteFromY(p.Y)
	quant := c.Layout.Quantization()

	c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		i := notes.FindID(working, id)
		st.mu.Lock()
		st.ok = i >= 0
		st.mu.Unlock()
		if i < 0 || working[i].Selected {
			return editqueue.Unchanged()
		}
		out, _ := selection.Apply(selection.Single, working, selection.ByID(id))
		return editqueue.Apply(out)
	}, "Select Note Before Move")

	return c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		st.mu.Lock()
		defer st.mu.Unlock()
		i := notes.FindID(working, id)
		if !st.ok || i < 0 {
			st.ok = false
			return editqueue.Unchanged()
		}
		anchor := working[i]
		sp := selectedSpan(working)
		st.relTick = anchor.Tick - sp.minTick
		st.relKey = key - sp.minKey
		st.gridOffset = anchor.Tick - layout.QuantizeTo(anchor.Tick, quant, false)
		st.cursorOffset = tick - anchor.Tick
		st.originals = make(map[int64]bool)

		out := make([]notes.Note, 0, len(working)+len(working)/2)
		for _, n := range working {
			if !n.Selected {
				out = append(out, n)
				continue
			}
			st.originals[n.ID] = true
			orig := n
			orig.Selected = false
			dup := n
			dup.ID = notes.NoID
			out = append(out, orig, dup)
		}
		return editqueue.Apply(out)
	}, "Start Move Notes")
}

func (m *MoveNotes) DragMove(c *Context, p Pointer) *editqueue.Cycle {
	st := m.state
	if st == nil {
		return nil
	}
	tick, key := c.Layout.TickFromX(p.X), c.Layout.MidinoteFromY(p.Y)
	quant := c.Layout.Quantization()
	snap := !p.Shift

	return c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.ok {
			return editqueue.Unchanged()
		}
		sp := selectedSpan(working)
		if !sp.ok {
			return editqueue.Unchanged()
		}

		start := tick - st.cursorOffset
		target := start
		if snap {
			target = snapTick(start, quant, st.gridOffset)
		}
		dKey := key - sp.minKey - st.relKey
		dTick := target - sp.minTick - st.relTick
		if sp.minTick+dTick < 0 {
			dTick = -sp.minTick
		}
		if sp.minKey+dKey < notes.MinKey {
			dKey = notes.MinKey - sp.minKey
		}
		if sp.maxKey+dKey > notes.MaxKey {
			dKey = notes.MaxKey - sp.maxKey
		}
		if dKey == 0 && dTick == 0 {
			return editqueue.Unchanged()
		}
		out, _ := notes.Modify(working, notes.Selected, func(n notes.Note) notes.Note {
			n.Tick += dTick
			n.Key += dKey
			return n
		})
		return editqueue.Apply(out)
	}, "Move Notes")
}

// snapTick returns the candidate closest to start among the grid positions
// around start and the grid positions shifted by offset
func snapTick(start, quant, offset int64) int64 {
	best := layout.QuantizeTo(start, quant, true)
	try := func(t int64) {
		if absTick(t-start) < absTick(best-start) {
			best = t
		}
	}
	for _, base := range []int64{
		layout.QuantizeTo(start, quant, true),
		layout.QuantizeTo(start-offset, quant, true) + offset,
	} {
		try(base - quant)
		try(base)
		try(base + quant)
	}
	return best
}

func absTick(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (m *MoveNotes) DragScroll(c *Context, p Pointer) *editqueue.Cycle {
	return m.DragMove(c, p)
}

func (m *MoveNotes) DragStop(c *Context, p Pointer) *editqueue.Cycle {
	return m.finish(c, p.Ctrl)
}

// DragCancel ends the move where it is, like a drop
func (m *MoveNotes) DragCancel(c *Context, p Pointer) *editqueue.Cycle {
	return m.finish(c, p.Ctrl)
}

func (m *MoveNotes) finish(c *Context, keepOriginals bool) *editqueue.Cycle {
	st := m.state
	m.state = nil
	if st == nil {
		return nil
	}
	return c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.ok || keepOriginals {
			return editqueue.Unchanged()
		}
		out, matched := notes.Modify(working, func(n notes.Note) bool { return st.originals[n.ID] }, notes.Note.Deleted)
		if !matched {
			return editqueue.Unchanged()
		}
		return editqueue.Apply(out)
	}, "End Move Notes")
}
