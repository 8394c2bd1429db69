// Package layout maps between pointer pixels and musical coordinates.
//
// A Layout is an immutable geometry snapshot. Zoom, scroll and viewport
// changes produce a new Layout; consumers never mutate one.
package layout

import "math"

// PPQN is the number of ticks per quarter note
const PPQN int64 = 4838400

// Piano geometry
const (
	PianoOctaves = 11
	PianoKeys    = PianoOctaves * 12
)

// Defaults for zero Viewport fields
const (
	DefaultPixelRatio = 1.0
	DefaultRowHeight  = 8.0                  // CSS px per key row
	DefaultTickScale  = 40.0 / float64(PPQN) // CSS px per tick, 40px per quarter
	MinStepPixels     = 8.0                  // narrowest grid step drawn
	minGridStep       = PPQN / 16            // 1/64 note
)

// Viewport describes what the editor currently shows
type Viewport struct {
	CSSWidth   float64
	CSSHeight  float64
	PixelRatio float64 // device pixels per CSS pixel

	// Scroll offsets in CSS pixels
	ScrollX float64
	ScrollY float64

	TickScale float64 // CSS px per tick (horizontal zoom)
	RowHeight float64 // CSS px per key row (vertical zoom)

	GridStepping int64 // fixed grid in ticks, 0 = follow zoom

	// Time signature used for stepping
	Numerator   int
	Denominator int
}

// Layout is the geometry derived from a Viewport
type Layout struct {
	vp           Viewport
	dpr          float64
	tickScale    float64 // device px per tick
	xscroll      float64 // device px
	yscroll      float64 // device px
	rowHeight    float64 // device px, whole pixels
	octaveHeight float64 // device px
	stepping     int64
}

// New computes a layout for vp
func New(vp Viewport) *Layout {
	if vp.PixelRatio <= 0 {
		vp.PixelRatio = DefaultPixelRatio
	}
	if vp.TickScale <= 0 {
		vp.TickScale = DefaultTickScale
	}
	if vp.RowHeight <= 0 {
		vp.RowHeight = DefaultRowHeight
	}
	if vp.Numerator <= 0 {
		vp.Numerator = 4
	}
	if vp.Denominator <= 0 {
		vp.Denominator = 4
	}
	if vp.ScrollX < 0 {
		vp.ScrollX = 0
	}
	if vp.ScrollY < 0 {
		vp.ScrollY = 0
	}

	l := &Layout{
		vp:        vp,
		dpr:       vp.PixelRatio,
		tickScale: vp.TickScale * vp.PixelRatio,
		xscroll:   vp.ScrollX * vp.PixelRatio,
		yscroll:   vp.ScrollY * vp.PixelRatio,
	}
	// octaves only grow in whole 12-row steps
	l.rowHeight = math.Max(1, math.Round(vp.RowHeight*vp.PixelRatio))
	l.octaveHeight = 12 * l.rowHeight
	l.stepping = computeStepping(vp)
	return l
}

func computeStepping(vp Viewport) int64 {
	beat := PPQN * 4 / int64(vp.Denominator)
	bar := beat * int64(vp.Numerator)

	var steps []int64
	for s := minGridStep; s < beat; s *= 2 {
		steps = append(steps, s)
	}
	steps = append(steps, beat, bar)

	for _, s := range steps {
		if float64(s)*vp.TickScale >= MinStepPixels {
			return s
		}
	}
	// zoomed far out, group whole bars
	s := bar
	for float64(s)*vp.TickScale < MinStepPixels && s < math.MaxInt64/2 {
		s *= 2
	}
	return s
}

// Viewport returns the viewport this layout was built from
func (l *Layout) Viewport() Viewport { return l.vp }

// WithScroll returns a layout scrolled to the given CSS offsets
func (l *Layout) WithScroll(x, y float64) *Layout {
	vp := l.vp
	vp.ScrollX, vp.ScrollY = x, y
	return New(vp)
}

// WithZoom returns a layout with a new horizontal scale, keeping the tick at
// CSS x-position anchor in place
func (l *Layout) WithZoom(tickScale, anchor float64) *Layout {
	if tickScale <= 0 {
		return l
	}
	tick := (l.xscroll + anchor*l.dpr) / l.tickScale
	vp := l.vp
	vp.TickScale = tickScale
	vp.ScrollX = tick*tickScale - anchor
	return New(vp)
}

// WithSize returns a layout for a resized viewport
func (l *Layout) WithSize(w, h float64) *Layout {
	vp := l.vp
	vp.CSSWidth, vp.CSSHeight = w, h
	return New(vp)
}

// XScroll returns the horizontal scroll offset in CSS pixels
func (l *Layout) XScroll() float64 { return l.vp.ScrollX }

// YScroll returns the vertical scroll offset in CSS pixels
func (l *Layout) YScroll() float64 { return l.vp.ScrollY }

// CSSWidth is the visible width in CSS pixels
func (l *Layout) CSSWidth() float64 { return l.vp.CSSWidth }

// CSSHeight is the visible height in CSS pixels
func (l *Layout) CSSHeight() float64 { return l.vp.CSSHeight }

// TickScale is the horizontal scale in CSS pixels per tick
func (l *Layout) TickScale() float64 { return l.vp.TickScale }

// RowHeight is the height of one key row in CSS pixels
func (l *Layout) RowHeight() float64 { return l.rowHeight / l.dpr }

// ContentHeight is the height of all piano rows in CSS pixels
func (l *Layout) ContentHeight() float64 {
	return float64(PianoKeys) * l.rowHeight / l.dpr
}

// TickFromX maps a CSS x-position to the nearest tick
func (l *Layout) TickFromX(cssX float64) int64 {
	t := int64(math.Round((l.xscroll + cssX*l.dpr) / l.tickScale))
	if t < 0 {
		return 0
	}
	return t
}

// XFromTick maps a tick to its CSS x-position
func (l *Layout) XFromTick(tick int64) float64 {
	return (float64(tick)*l.tickScale - l.xscroll) / l.dpr
}

// MidinoteFromY maps a CSS y-position to the key of the row under it
func (l *Layout) MidinoteFromY(cssY float64) int {
	y := l.yscroll + cssY*l.dpr
	octave := int(math.Floor(y / l.octaveHeight))
	row := int((y - float64(octave)*l.octaveHeight) / l.rowHeight)
	if row > 11 {
		row = 11
	}
	key := (PianoOctaves-1-octave)*12 + 11 - row
	return clampKey(key)
}

// YFromMidinote maps a key to the CSS y-position of its row top
func (l *Layout) YFromMidinote(key int) float64 {
	return (float64(PianoKeys-1-key)*l.rowHeight - l.yscroll) / l.dpr
}

func clampKey(key int) int {
	if key < 0 {
		return 0
	}
	if key > 127 {
		return 127
	}
	return key
}

// Stepping is the grid resolution the current zoom level shows
func (l *Layout) Stepping() int64 { return l.stepping }

// Quantization is the active grid resolution in ticks
func (l *Layout) Quantization() int64 {
	if l.vp.GridStepping > 0 {
		return l.vp.GridStepping
	}
	return min(l.stepping, PPQN)
}

// Quantize rounds (nearest) or truncates tick to the grid
func (l *Layout) Quantize(tick int64, nearest bool) int64 {
	return QuantizeTo(tick, l.Quantization(), nearest)
}

// QuantizeTo rounds (nearest, half up) or truncates tick to multiples of quant
func QuantizeTo(tick, quant int64, nearest bool) int64 {
	if quant <= 0 {
		return tick
	}
	if !nearest {
		return tick / quant * quant
	}
	return floorDiv(2*tick+quant, 2*quant) * quant
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
