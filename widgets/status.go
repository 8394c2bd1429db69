package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-pianoroll/theme"
)

// Status is what the status line shows
type Status struct {
	Tool     string
	Clip     string
	Grid     string
	Notes    int
	Selected int
	Pointer  string // note name and position under the pointer
	Undo     string // label of the step undo would revert
	Message  string
	Err      error
}

// RenderStatus renders a single status line of at most width cells
func RenderStatus(th *theme.Theme, s Status, width int) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	fg := lipgloss.NewStyle().Foreground(th.FG())

	parts := []string{
		fg.Render(s.Tool),
		dim.Render(s.Clip),
		dim.Render("grid " + s.Grid),
		fg.Render(fmt.Sprintf("%d/%d sel", s.Selected, s.Notes)),
	}
	if s.Pointer != "" {
		parts = append(parts, dim.Render(s.Pointer))
	}
	if s.Undo != "" {
		parts = append(parts, dim.Render("undo: "+s.Undo))
	}
	switch {
	case s.Err != nil:
		parts = append(parts, lipgloss.NewStyle().Foreground(th.Warning()).Render(s.Err.Error()))
	case s.Message != "":
		parts = append(parts, lipgloss.NewStyle().Foreground(th.Success()).Render(s.Message))
	}

	line := strings.Join(parts, dim.Render("  "))
	if width > 0 && lipgloss.Width(line) > width {
		line = lipgloss.NewStyle().MaxWidth(width).Render(line)
	}
	return line
}
