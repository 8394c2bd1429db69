package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"go-pianoroll/commands"
	"go-pianoroll/widgets"
)

// keyMap holds the editor keys that are not note commands
type keyMap struct {
	Quit           key.Binding
	Help           key.Binding
	Escape         key.Binding
	Undo           key.Binding
	Redo           key.Binding
	Save           key.Binding
	ToolSelect     key.Binding
	ToolHorizontal key.Binding
	ToolPen        key.Binding
	ToolEraser     key.Binding
	ZoomIn         key.Binding
	ZoomOut        key.Binding
	ScrollLeft     key.Binding
	ScrollRight    key.Binding
	ScrollUp       key.Binding
	ScrollDown     key.Binding
	StepInput      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:           key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("ctrl+q", "quit")),
		Help:           key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Escape:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel drag / select none")),
		Undo:           key.NewBinding(key.WithKeys("ctrl+z"), key.WithHelp("ctrl+z", "undo")),
		Redo:           key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "redo")),
		Save:           key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		ToolSelect:     key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "select")),
		ToolHorizontal: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "time select")),
		ToolPen:        key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "pen")),
		ToolEraser:     key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "eraser")),
		ZoomIn:         key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "zoom")),
		ZoomOut:        key.NewBinding(key.WithKeys("-", "_")),
		ScrollLeft:     key.NewBinding(key.WithKeys("["), key.WithHelp("[/]", "scroll bar")),
		ScrollRight:    key.NewBinding(key.WithKeys("]")),
		ScrollUp:       key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup/pgdn", "scroll octave")),
		ScrollDown:     key.NewBinding(key.WithKeys("pgdown")),
		StepInput:      key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "midi step input")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToolSelect, k.ToolHorizontal, k.ToolPen, k.ToolEraser, k.Undo, k.Redo, k.Save, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ToolSelect, k.ToolHorizontal, k.ToolPen, k.ToolEraser},
		{k.ZoomIn, k.ScrollLeft, k.ScrollUp, k.Escape},
		{k.Undo, k.Redo, k.Save, k.StepInput},
		{k.Help, k.Quit},
	}
}

// chordFromKey translates a terminal key into a dispatcher chord. Upper case
// letters carry Shift.
func chordFromKey(msg tea.KeyMsg) (commands.Chord, bool) {
	s := msg.String()
	switch s {
	case " ":
		return commands.KeySpace, true
	case "+":
		return commands.Chord('+'), true
	}

	var c commands.Chord
	if i := strings.LastIndex(s, "+"); i >= 0 && i < len(s)-1 {
		last := s[i+1:]
		if r, size := utf8.DecodeRuneInString(last); size == len(last) && unicode.IsUpper(r) {
			c |= commands.Shift
		}
	} else if r, size := utf8.DecodeRuneInString(s); size == len(s) && unicode.IsUpper(r) {
		c |= commands.Shift
	}

	parsed, err := commands.ParseChord(s)
	if err != nil {
		return 0, false
	}
	return parsed | c, true
}

// commandHelp lists the dispatcher's bindings for the full help view
func commandHelp(d *commands.Dispatcher) []widgets.KeySection {
	byAction := map[commands.Action][]string{}
	var order []commands.Action
	for _, b := range d.Bindings() {
		if _, seen := byAction[b.Action]; !seen {
			order = append(order, b.Action)
		}
		byAction[b.Action] = append(byAction[b.Action], b.Chord.String())
	}

	sec := widgets.KeySection{Title: "Notes"}
	for _, a := range order {
		sec.Keys = append(sec.Keys, widgets.KeyBinding{
			Key:  strings.Join(byAction[a], ", "),
			Desc: a.Label(),
		})
	}
	return []widgets.KeySection{sec}
}
