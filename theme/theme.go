package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Piano roll cells
	Empty    rune // · empty cell
	Beat     rune // ┊ beat line
	Bar      rune // │ bar line
	NoteHead rune // ▐ first cell of a note
	NoteBody rune // █ following cells
	Focus    rune // ◆ head of the focused note

	// Pointer
	Cursor     rune // ┼ pointer cell
	RectCorner rune // ┌ selection rectangle

	// Key help widget
	Bound   rune // ■ chord has an action
	Unbound rune // □ action without chord
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Empty:    '·',
			Beat:     '┊',
			Bar:      '│',
			NoteHead: '▐',
			NoteBody: '█',
			Focus:    '◆',

			Cursor:     '┼',
			RectCorner: '┌',

			Bound:   '■',
			Unbound: '□',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG       = 0.0 // background
	RoleSurface  = 0.1 // black key rows
	RoleMuted    = 0.2 // grid lines
	RoleFG       = 0.4 // text
	RoleNote     = 0.5 // unselected notes
	RoleCursor   = 0.6 // pointer and focus
	RoleSelected = 0.7 // selected notes
	RoleWarning  = 0.8 // errors
	RoleSuccess  = 1.0 // status ok
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) Surface() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSurface))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Selected() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSelected))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// NoteColor shades unselected notes by velocity (0-1) between the muted and
// note roles. Selected notes always use the selected role.
func (t *Theme) NoteColor(velocity float64, selected bool) lipgloss.Color {
	if selected {
		return t.Selected()
	}
	velocity = min(max(velocity, 0), 1)
	return t.Color(RoleMuted + (RoleNote-RoleMuted)*velocity)
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
