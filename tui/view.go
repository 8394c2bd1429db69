package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/tools"
	"go-pianoroll/widgets"
)

// cell is one rendered grid cell
type cell struct {
	r      rune
	fg, bg lipgloss.Color
	note   bool
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.help.ShowAll {
		help := widgets.RenderKeyHelp(commandHelp(m.dispatcher))
		b.WriteString(lipgloss.NewStyle().MaxHeight(m.gridRows()).Render(help))
		b.WriteString(strings.Repeat("\n", max(m.gridRows()-lipgloss.Height(help), 0)+1))
	} else {
		b.WriteString(m.renderGrid())
		b.WriteString("\n")
	}
	b.WriteString(widgets.RenderStatus(m.theme, m.status(), m.width))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// columnLine returns the background of a column covering [t0, t1)
func (m *Model) columnLine(t0, t1 int64) rune {
	bar, beat := m.barTicks(), m.beatTicks()
	switch {
	case bar > 0 && crosses(t0, t1, bar):
		return m.theme.Symbols.Bar
	case beat > 0 && crosses(t0, t1, beat):
		return m.theme.Symbols.Beat
	}
	return m.theme.Symbols.Empty
}

// crosses reports whether a multiple of step lies in [t0, t1)
func crosses(t0, t1, step int64) bool {
	first := (t0 + step - 1) / step * step
	return first < t1
}

func (m *Model) columnTicks(col int) (int64, int64) {
	l := m.tc.Layout
	return l.TickFromX(float64(col) * cellW), l.TickFromX(float64(col+1) * cellW)
}

func (m *Model) renderHeader() string {
	bar := m.barTicks()
	line := []rune(strings.Repeat(" ", gutterW+m.gridCols()))
	for col := 0; col < m.gridCols(); col++ {
		t0, t1 := m.columnTicks(col)
		if bar <= 0 || !crosses(t0, t1, bar) {
			continue
		}
		label := strconv.FormatInt((t0+bar-1)/bar+1, 10)
		for i, r := range label {
			if gutterW+col+i < len(line) {
				line[gutterW+col+i] = r
			}
		}
	}
	return lipgloss.NewStyle().Foreground(m.theme.Muted()).Render(string(line))
}

// rowKey returns the key shown on grid row, or -1 above the MIDI range
func (m *Model) rowKey(row int) int {
	key := layout.PianoKeys - 1 - int((m.tc.Layout.YScroll()+float64(row)*cellH)/cellH)
	if key > notes.MaxKey || key < notes.MinKey {
		return -1
	}
	return key
}

func (m *Model) renderGrid() string {
	byKey := map[int][]notes.Note{}
	for _, n := range m.cache {
		byKey[n.Key] = append(byKey[n.Key], n)
	}
	var focus int64 = notes.NoID
	if sel := notes.Filter(m.cache, notes.Selected); len(sel) == 1 {
		focus = sel[0].ID
	}

	var rect tools.Rect
	if s, ok := m.tool.(*tools.Select); ok {
		rect = s.Rect()
	}

	cols := m.gridCols()
	lines := make([]string, m.gridRows())
	row := make([]cell, cols)
	for r := range lines {
		key := m.rowKey(r)
		bg := m.theme.BG()
		if key >= 0 && widgets.IsBlackKey(key) {
			bg = m.theme.Surface()
		}
		for c := range row {
			t0, t1 := m.columnTicks(c)
			row[c] = cell{r: m.columnLine(t0, t1), fg: m.theme.Muted(), bg: bg}
			if key < 0 {
				row[c].r = ' '
				continue
			}
			for _, n := range byKey[key] {
				if n.End() <= t0 || n.Tick >= t1 {
					continue
				}
				row[c].fg = m.theme.NoteColor(n.Velocity, n.Selected)
				row[c].note = true
				switch {
				case n.Tick >= t0 && n.ID == focus:
					row[c].r = m.theme.Symbols.Focus
				case n.Tick >= t0:
					row[c].r = m.theme.Symbols.NoteHead
				default:
					row[c].r = m.theme.Symbols.NoteBody
				}
			}
			if !rect.Empty() && inRect(rect, c, r) {
				row[c].bg = m.theme.Cursor()
			}
		}
		if p := m.pointer; p != nil && m.tool == nil && int(p.Y/cellH) == r {
			c := int(p.X / cellW)
			if c < cols && !row[c].note {
				row[c].r, row[c].fg = m.theme.Symbols.Cursor, m.theme.FG()
			}
		}
		lines[r] = m.renderGutter(key) + renderCells(row)
	}
	return strings.Join(lines, "\n")
}

func inRect(rect tools.Rect, col, row int) bool {
	x, y := (float64(col)+0.5)*cellW, (float64(row)+0.5)*cellH
	return x >= rect.X && x <= rect.X+rect.W && y >= rect.Y && y <= rect.Y+rect.H
}

func (m *Model) renderGutter(key int) string {
	if key < 0 {
		return strings.Repeat(" ", gutterW)
	}
	style := lipgloss.NewStyle().Width(gutterW).Foreground(m.theme.FG())
	if widgets.IsBlackKey(key) {
		style = style.Background(m.theme.Surface()).Foreground(m.theme.Muted())
	}
	return style.Render(widgets.NoteName(key))
}

// renderCells renders a row, one style per run of equal colors
func renderCells(row []cell) string {
	var b strings.Builder
	for i := 0; i < len(row); {
		j := i
		var run strings.Builder
		for j < len(row) && row[j].fg == row[i].fg && row[j].bg == row[i].bg {
			run.WriteRune(row[j].r)
			j++
		}
		b.WriteString(lipgloss.NewStyle().Foreground(row[i].fg).Background(row[i].bg).Render(run.String()))
		i = j
	}
	return b.String()
}

func (m *Model) status() widgets.Status {
	s := widgets.Status{
		Tool:    m.kind.String(),
		Clip:    m.opts.ClipName,
		Grid:    gridLabel(m.tc.Layout.Quantization()),
		Notes:   len(m.cache),
		Message: m.message,
		Err:     m.err,
	}
	if m.armed {
		s.Tool += fmt.Sprintf(" [step %s]", m.position(m.step.Cursor()))
	}
	s.Selected = len(notes.Filter(m.cache, notes.Selected))
	if p := m.pointer; p != nil {
		l := m.tc.Layout
		s.Pointer = fmt.Sprintf("%s %s", widgets.NoteName(l.MidinoteFromY(p.Y)), m.position(l.TickFromX(p.X)))
	}
	if u, ok := m.store.(interface{ CanUndo() (string, bool) }); ok {
		s.Undo, _ = u.CanUndo()
	}
	return s
}

// gridLabel names a grid step as a note value, 1/16 for a sixteenth
func gridLabel(step int64) string {
	whole := layout.PPQN * 4
	switch {
	case step <= 0:
		return "off"
	case step >= whole && step%whole == 0:
		return strconv.FormatInt(step/whole, 10)
	case whole%step == 0:
		return fmt.Sprintf("1/%d", whole/step)
	case (whole*3)%(step*2) == 0:
		return fmt.Sprintf("1/%d.", whole*3/(step*2))
	}
	return fmt.Sprintf("%dt", step)
}

// position formats a tick as bar.beat, both counted from one
func (m *Model) position(tick int64) string {
	return formatPosition(tick, m.barTicks(), m.beatTicks())
}

func formatPosition(tick, bar, beat int64) string {
	if bar <= 0 || beat <= 0 {
		return strconv.FormatInt(tick, 10)
	}
	return fmt.Sprintf("%d.%d", tick/bar+1, tick%bar/beat+1)
}
