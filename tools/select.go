package tools

import (
	"go-pianoroll/editqueue"
	"go-pianoroll/notes"
)

// Rect is the selection rectangle in CSS pixels
type Rect struct {
	X, Y, W, H float64
}

// Empty reports whether the rectangle has collapsed
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Select drags a selection rectangle. Shift adds to the selection, Ctrl
// subtracts from it. Horizontal selects over the full key range.
type Select struct {
	Horizontal bool

	begin  Point
	beginS Point // scroll offsets at drag start
	at     Point
	rect   Rect
}

// Rect returns the rectangle to draw
func (s *Select) Rect() Rect {
	return s.rect
}

func (s *Select) DragStart(c *Context, p Pointer) *editqueue.Cycle {
	s.begin = Point{p.X, p.Y}
	s.beginS = Point{c.Layout.XScroll(), c.Layout.YScroll()}
	s.at = s.begin
	return s.update(c, p)
}

func (s *Select) DragMove(c *Context, p Pointer) *editqueue.Cycle {
	s.at = Point{p.X, p.Y}
	return s.update(c, p)
}

// DragScroll keeps the pointer position and follows the new scroll offsets
func (s *Select) DragScroll(c *Context, p Pointer) *editqueue.Cycle {
	return s.update(c, p)
}

func (s *Select) DragStop(c *Context, p Pointer) *editqueue.Cycle {
	s.rect.W, s.rect.H = 0, 0
	return nil
}

func (s *Select) DragCancel(c *Context, p Pointer) *editqueue.Cycle {
	s.rect.W, s.rect.H = 0, 0
	return nil
}

func (s *Select) update(c *Context, p Pointer) *editqueue.Cycle {
	l := c.Layout
	// drag origin in current viewport coordinates
	bx := s.begin.X + s.beginS.X - l.XScroll()
	by := s.begin.Y + s.beginS.Y - l.YScroll()

	r := Rect{X: min(s.at.X, bx), Y: min(s.at.Y, by)}
	r.W = max(s.at.X, bx) - r.X
	r.H = max(s.at.Y, by) - r.Y
	if s.Horizontal {
		r.Y = 0
		r.H = l.CSSHeight()
	}
	s.rect = r

	t0, t1 := l.TickFromX(r.X), l.TickFromX(r.X+r.W)
	k0, k1 := l.MidinoteFromY(r.Y+r.H), l.MidinoteFromY(r.Y)
	if s.Horizontal {
		k0, k1 = notes.MinKey, notes.MaxKey
	}
	return c.Queue.ChangeSelection(c.Clip, modeFor(p), InRange(t0, t1, k0, k1))
}
