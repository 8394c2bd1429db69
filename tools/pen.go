package tools

import (
	"go-pianoroll/editqueue"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// Pen paints a note wherever the pointer passes over empty space
type Pen struct{}

func (*Pen) DragStart(c *Context, p Pointer) *editqueue.Cycle {
	c.Queue.ChangeSelection(c.Clip, selection.None, nil)
	return paint(c, p)
}

func (*Pen) DragMove(c *Context, p Pointer) *editqueue.Cycle   { return paint(c, p) }
func (*Pen) DragScroll(c *Context, p Pointer) *editqueue.Cycle { return paint(c, p) }
func (*Pen) DragStop(*Context, Pointer) *editqueue.Cycle       { return nil }
func (*Pen) DragCancel(*Context, Pointer) *editqueue.Cycle     { return nil }

func paint(c *Context, p Pointer) *editqueue.Cycle {
	tick := c.Layout.TickFromX(p.X)
	key := c.Layout.MidinoteFromY(p.Y)
	note := notes.Note{
		ID:       notes.NoID,
		Key:      key,
		Tick:     c.Layout.Quantize(tick, false),
		Duration: c.noteLength(),
		Velocity: 1,
		Selected: true,
	}
	return c.Queue.Submit(c.Clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		if notes.Find(working, func(n notes.Note) bool { return n.Covers(tick, key) }) >= 0 {
			return editqueue.Unchanged()
		}
		return editqueue.Apply(notes.Insert(working, note))
	}, "Paint Note")
}
