package tools

import (
	"sync"

	"go-pianoroll/editqueue"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// erasure is the state of one eraser drag. Its id set is read and extended
// by selection predicates running on the queue worker.
type erasure struct {
	mu  sync.Mutex
	ids map[int64]bool
	at  Point
}

func (e *erasure) has(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ids[id]
}

// Eraser marks every note the pointer passes over and deletes them when the
// drag ends. Cancelling the drag keeps the notes.
type Eraser struct {
	erase *erasure
}

// position is a rasterized (tick, key) test point
type position struct {
	tick int64
	key  int
}

func (e *Eraser) DragStart(c *Context, p Pointer) *editqueue.Cycle {
	e.erase = &erasure{ids: make(map[int64]bool), at: Point{p.X, p.Y}}
	return e.DragMove(c, p)
}

func (e *Eraser) DragMove(c *Context, p Pointer) *editqueue.Cycle {
	er := e.erase
	if er == nil {
		return nil
	}
	l := c.Layout

	var positions []position
	x0, k0 := er.at.X, l.MidinoteFromY(er.at.Y)
	for _, s := range p.Samples() {
		x1, k1 := s.X, l.MidinoteFromY(s.Y)
		// rasterize at twice the horizontal resolution
		for _, pt := range RasterLine(roundInt(x0*2), k0, roundInt(x1*2), k1) {
			pos := position{tick: l.TickFromX(float64(pt.X) / 2), key: pt.Y}
			if n := len(positions); n == 0 || positions[n-1] != pos {
				positions = append(positions, pos)
			}
		}
		x0, k0 = x1, k1
		er.at = s
	}

	erasable := func(n notes.Note) bool {
		er.mu.Lock()
		defer er.mu.Unlock()
		if er.ids[n.ID] {
			return true
		}
		for _, pos := range positions {
			if n.Covers(pos.tick, pos.key) {
				er.ids[n.ID] = true
				return true
			}
		}
		return false
	}
	return c.Queue.ChangeSelection(c.Clip, selection.Assign, erasable)
}

func (e *Eraser) DragScroll(c *Context, p Pointer) *editqueue.Cycle {
	return e.DragMove(c, p)
}

func (e *Eraser) DragStop(c *Context, p Pointer) *editqueue.Cycle {
	er := e.erase
	e.erase = nil
	if er != nil {
		c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
			out, matched := notes.Modify(working, func(n notes.Note) bool { return er.has(n.ID) }, notes.Note.Deleted)
			if !matched {
				return editqueue.Unchanged()
			}
			return editqueue.Apply(out)
		}, "Erase Notes")
	}
	return c.Queue.ChangeSelection(c.Clip, selection.None, nil)
}

func (e *Eraser) DragCancel(c *Context, p Pointer) *editqueue.Cycle {
	e.erase = nil
	return c.Queue.ChangeSelection(c.Clip, selection.None, nil)
}
