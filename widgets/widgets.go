package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSwatch renders a single colored cell
func RenderSwatch(color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render("■")
}

// RenderSwatchRow renders a row of colored cells with spacing
func RenderSwatchRow(colors []lipgloss.Color) string {
	var out strings.Builder
	for i, c := range colors {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(RenderSwatch(c))
	}
	return out.String()
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(color lipgloss.Color, name, desc string) string {
	return fmt.Sprintf("  %s %s - %s", RenderSwatch(color), name, desc)
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	width := 0
	for _, sec := range sections {
		for _, k := range sec.Keys {
			width = max(width, lipgloss.Width(k.Key))
		}
	}

	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			pad := strings.Repeat(" ", width-lipgloss.Width(k.Key))
			lines = append(lines, fmt.Sprintf("  %s%s  %s", k.Key, pad, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the name of a MIDI key, middle C (60) is C4
func NoteName(key int) string {
	if key < 0 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[key%12], key/12-1)
}

// IsBlackKey reports whether key is a black piano key
func IsBlackKey(key int) bool {
	switch key % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
