// Package commands maps key chords to note edits.
package commands

import (
	"fmt"
	"math"
	"sort"

	"go-pianoroll/debug"
	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
	"go-pianoroll/tools"
)

// Action names a keyboard command
type Action string

const (
	SelectAll       Action = "select-all"
	SelectNone      Action = "select-none"
	InvertSelection Action = "invert-selection"
	Delete          Action = "delete"
	Quantize        Action = "quantize"
	QuantizeEnd     Action = "quantize-end"
	ShiftRight      Action = "shift-right"
	ShiftLeft       Action = "shift-left"
	ShiftUp         Action = "shift-up"
	ShiftDown       Action = "shift-down"
	OctaveUp        Action = "octave-up"
	OctaveDown      Action = "octave-down"
	Lengthen        Action = "lengthen"
	Shorten         Action = "shorten"
	FocusNext       Action = "focus-next"
	FocusPrev       Action = "focus-prev"
	Cut             Action = "cut"
	Copy            Action = "copy"
	Paste           Action = "paste"
)

var actionLabels = map[Action]string{
	SelectAll:       "Select All",
	SelectNone:      "Select None",
	InvertSelection: "Invert Selection",
	Delete:          "Delete",
	Quantize:        "Quantize",
	QuantizeEnd:     "Quantize Duration",
	ShiftRight:      "Shift Right",
	ShiftLeft:       "Shift Left",
	ShiftUp:         "Shift Up",
	ShiftDown:       "Shift Down",
	OctaveUp:        "Shift Octave Up",
	OctaveDown:      "Shift Octave Down",
	Lengthen:        "Lengthen",
	Shorten:         "Shorten",
	FocusNext:       "Focus Next",
	FocusPrev:       "Focus Previous",
	Cut:             "Cut Notes",
	Copy:            "Copy Notes",
	Paste:           "Paste Notes",
}

// Label returns the undo label of a
func (a Action) Label() string {
	if l, ok := actionLabels[a]; ok {
		return l
	}
	return string(a)
}

// Actions lists every known action
func Actions() []Action {
	out := make([]Action, 0, len(actionLabels))
	for a := range actionLabels {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shortest fine step of tick edits
const (
	MinDuration = layout.PPQN / 64
	MinTicks    = MinDuration / 6
)

// DefaultBindings returns the built-in keymap
func DefaultBindings() map[Chord]Action {
	return map[Chord]Action{
		Letter('A') | Ctrl:         SelectAll,
		Letter('A') | Ctrl | Shift: SelectNone,
		Letter('I') | Ctrl:         InvertSelection,
		KeyBackspace:               Delete,
		KeyDelete:                  Delete,
		Letter('Q'):                Quantize,
		Letter('Q') | Shift:        QuantizeEnd,
		KeyRight:                   ShiftRight,
		KeyRight | Shift:           ShiftRight,
		KeyLeft:                    ShiftLeft,
		KeyLeft | Shift:            ShiftLeft,
		KeyUp:                      ShiftUp,
		KeyDown:                    ShiftDown,
		KeyUp | Ctrl:               OctaveUp,
		KeyDown | Ctrl:             OctaveDown,
		KeyRight | Ctrl:            Lengthen,
		KeyRight | Ctrl | Shift:    Lengthen,
		KeyLeft | Ctrl:             Shorten,
		KeyLeft | Ctrl | Shift:     Shorten,
		KeyRight | Alt:             FocusNext,
		KeyLeft | Alt:              FocusPrev,
		Letter('X') | Ctrl:         Cut,
		Letter('C') | Ctrl:         Copy,
		Letter('V') | Ctrl:         Paste,
	}
}

// Binding pairs a chord with its action
type Binding struct {
	Chord  Chord
	Action Action
}

// Dispatcher runs the action bound to a chord against an editor context
type Dispatcher struct {
	bindings  map[Chord]Action
	clipboard Clipboard
}

// New creates a dispatcher with the default keymap. A nil clipboard uses a
// process clipboard.
func New(cb Clipboard) *Dispatcher {
	if cb == nil {
		cb = &ProcessClipboard{}
	}
	return &Dispatcher{bindings: DefaultBindings(), clipboard: cb}
}

// Bind maps c to a, replacing any previous binding of c
func (d *Dispatcher) Bind(c Chord, a Action) {
	d.bindings[c] = a
}

// Rebind applies keymap overrides of the form action name -> chord
func (d *Dispatcher) Rebind(keymap map[string]string) error {
	for name, text := range keymap {
		a := Action(name)
		if _, ok := actionLabels[a]; !ok {
			return fmt.Errorf("keymap: unknown action %q", name)
		}
		c, err := ParseChord(text)
		if err != nil {
			return fmt.Errorf("keymap %s: %w", name, err)
		}
		d.Bind(c, a)
	}
	return nil
}

// Lookup returns the action bound to c
func (d *Dispatcher) Lookup(c Chord) (Action, bool) {
	a, ok := d.bindings[c]
	return a, ok
}

// Bindings returns all bindings ordered by action then chord
func (d *Dispatcher) Bindings() []Binding {
	out := make([]Binding, 0, len(d.bindings))
	for c, a := range d.bindings {
		out = append(out, Binding{c, a})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Chord < out[j].Chord
	})
	return out
}

// KeyDown runs the action bound to c. It reports false when c is unbound.
func (d *Dispatcher) KeyDown(ctx *tools.Context, c Chord) (*editqueue.Cycle, bool) {
	a, ok := d.bindings[c]
	if !ok {
		return nil, false
	}
	debug.Log("commands", "%s -> %s", c, a)
	return d.Run(ctx, a, c.Has(Shift)), true
}

// Run queues action a. fine selects the small tick step for tick edits.
func (d *Dispatcher) Run(ctx *tools.Context, a Action, fine bool) *editqueue.Cycle {
	q, clip, label := ctx.Queue, ctx.Clip, a.Label()
	l := ctx.Layout

	switch a {
	case SelectAll:
		return q.ChangeSelection(clip, selection.Assign, selection.All)
	case SelectNone:
		return q.ChangeSelection(clip, selection.Assign, selection.Nothing)
	case InvertSelection:
		return q.ChangeSelection(clip, selection.Assign, func(n notes.Note) bool { return !n.Selected })

	case Delete:
		return q.Submit(clip, deleteSelected, label)

	case Quantize:
		quant := l.Quantization()
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			n.Tick = layout.QuantizeTo(n.Tick, quant, true)
			return n, true
		}), label)
	case QuantizeEnd:
		quant := l.Quantization()
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			end := layout.QuantizeTo(n.End(), quant, true)
			if quant > 0 && end-n.Tick < quant {
				// first grid line at least one step past the start
				end = (n.Tick + 2*quant - 1) / quant * quant
			}
			n.Duration = end - n.Tick
			return n, true
		}), label)

	case ShiftRight, ShiftLeft:
		delta := TickDelta(l, fine)
		if a == ShiftLeft {
			delta = -delta
		}
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			n.Tick += delta
			return n, n.Tick >= 0
		}), label)

	case ShiftUp, ShiftDown, OctaveUp, OctaveDown:
		step := map[Action]int{ShiftUp: 1, ShiftDown: -1, OctaveUp: 12, OctaveDown: -12}[a]
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			n.Key += step
			return n, n.Key >= notes.MinKey && n.Key <= notes.MaxKey
		}), label)

	case Lengthen:
		delta := TickDelta(l, fine)
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			n.Duration += delta
			return n, true
		}), label)
	case Shorten:
		delta := TickDelta(l, fine)
		return q.Submit(clip, modifySelected(func(n notes.Note) (notes.Note, bool) {
			if delta < n.Duration {
				n.Duration -= delta
			}
			return n, true
		}), label)

	case FocusNext, FocusPrev:
		forward := a == FocusNext
		return q.SelectSingle(clip, func(_ notes.Clip, working []notes.Note) (int64, bool) {
			return advanceFocus(working, forward)
		})

	case Cut:
		return q.Submit(clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
			if !d.copySelected(working) {
				return editqueue.Unchanged()
			}
			return deleteSelected(clip, working)
		}, label)
	case Copy:
		return q.Submit(clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
			d.copySelected(working)
			return editqueue.Unchanged()
		}, "")
	case Paste:
		return q.Submit(clip, d.paste, label)
	}
	return nil
}

// TickDelta returns the tick step of left/right edits: one grid step, or
// with fine about two pixels rounded to MinTicks
func TickDelta(l *layout.Layout, fine bool) int64 {
	if !fine {
		return l.Quantization()
	}
	const pixelStep = 2
	dist := int64(math.Ceil(pixelStep / (l.TickScale() * float64(MinTicks))))
	return max(MinTicks, dist*MinTicks)
}

// modifySelected applies edit to every selected note. If edit rejects any
// note the whole batch bounces and nothing changes.
func modifySelected(edit func(notes.Note) (notes.Note, bool)) editqueue.Modifier {
	return func(_ notes.Clip, working []notes.Note) editqueue.Result {
		bounced := false
		out, matched := notes.Modify(working, notes.Selected, func(n notes.Note) notes.Note {
			m, ok := edit(n)
			bounced = bounced || !ok
			return m
		})
		if !matched || bounced {
			return editqueue.Unchanged()
		}
		return editqueue.Apply(out)
	}
}

func deleteSelected(_ notes.Clip, working []notes.Note) editqueue.Result {
	out, matched := notes.Modify(working, notes.Selected, notes.Note.Deleted)
	if !matched {
		return editqueue.Unchanged()
	}
	return editqueue.Apply(out)
}

// copySelected writes the selected notes to the clipboard without ids
func (d *Dispatcher) copySelected(working []notes.Note) bool {
	sel := notes.StripIDs(notes.Filter(working, notes.Selected))
	if len(sel) == 0 {
		return false
	}
	text, err := notes.Encode(sel)
	if err == nil {
		err = d.clipboard.WriteText(text)
	}
	if err != nil {
		debug.Log("commands", "copy failed: %v", err)
		return false
	}
	return true
}

// paste deselects the working notes and adds the clipboard notes as new ones
func (d *Dispatcher) paste(_ notes.Clip, working []notes.Note) editqueue.Result {
	text, err := d.clipboard.ReadText()
	if err != nil {
		debug.Log("commands", "paste failed: %v", err)
		return editqueue.Unchanged()
	}
	pasted, err := notes.Decode(text)
	if err != nil {
		debug.Log("commands", "paste failed: %v", err)
		return editqueue.Unchanged()
	}
	if len(pasted) == 0 {
		return editqueue.Unchanged()
	}
	out, _ := selection.Apply(selection.None, working, nil)
	return editqueue.Apply(notes.Insert(out, notes.StripIDs(pasted)...))
}

// focusScore orders notes by time, higher keys first
func focusScore(n notes.Note) int64 {
	return n.Tick*1000 + int64(128-n.Key)
}

// advanceFocus picks the note after the last selected one (forward) or
// before the first selected one, wrapping at either end
func advanceFocus(all []notes.Note, forward bool) (int64, bool) {
	if len(all) == 0 {
		return 0, false
	}
	sorted := make([]notes.Note, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool { return focusScore(sorted[i]) < focusScore(sorted[j]) })

	var before, after *notes.Note
	seen := false
	for i := range sorted {
		n := &sorted[i]
		switch {
		case n.Selected:
			seen = true
			after = nil
		case !seen:
			before = n
		case after == nil:
			after = n
		}
	}
	if forward {
		if after == nil || !seen {
			after = &sorted[0]
		}
		return after.ID, true
	}
	if before == nil {
		before = &sorted[len(sorted)-1]
	}
	return before.ID, true
}
