package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"go-pianoroll/commands"
	"go-pianoroll/config"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/store"
	"go-pianoroll/tools"
)

func TestChordFromKey(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want commands.Chord
		ok   bool
	}{
		{"ctrl letter", tea.KeyMsg{Type: tea.KeyCtrlA}, commands.Letter('A') | commands.Ctrl, true},
		{"lower letter", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, commands.Letter('Q'), true},
		{"upper letter", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'Q'}}, commands.Letter('Q') | commands.Shift, true},
		{"arrow", tea.KeyMsg{Type: tea.KeyRight}, commands.KeyRight, true},
		{"alt arrow", tea.KeyMsg{Type: tea.KeyLeft, Alt: true}, commands.KeyLeft | commands.Alt, true},
		{"ctrl shift arrow", tea.KeyMsg{Type: tea.KeyCtrlShiftUp}, commands.KeyUp | commands.Ctrl | commands.Shift, true},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, commands.KeySpace, true},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, commands.KeyBackspace, true},
		{"function key", tea.KeyMsg{Type: tea.KeyF5}, 0, false},
	}
	for _, tt := range tests {
		got, ok := chordFromKey(tt.msg)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: chordFromKey(%q) = %v, %v, want %v, %v", tt.name, tt.msg.String(), got, ok, tt.want, tt.ok)
		}
	}
}

func TestGridLabel(t *testing.T) {
	tests := []struct {
		step int64
		want string
	}{
		{0, "off"},
		{layout.PPQN * 4, "1"},
		{layout.PPQN * 8, "2"},
		{layout.PPQN, "1/4"},
		{layout.PPQN / 4, "1/16"},
		{layout.PPQN * 3 / 4, "1/8."},
		{7, "7t"},
	}
	for _, tt := range tests {
		if got := gridLabel(tt.step); got != tt.want {
			t.Errorf("gridLabel(%d) = %q, want %q", tt.step, got, tt.want)
		}
	}
}

func TestFormatPosition(t *testing.T) {
	bar, beat := layout.PPQN*4, layout.PPQN
	tests := []struct {
		tick int64
		want string
	}{
		{0, "1.1"},
		{beat, "1.2"},
		{bar + 3*beat + 5, "2.4"},
	}
	for _, tt := range tests {
		if got := formatPosition(tt.tick, bar, beat); got != tt.want {
			t.Errorf("formatPosition(%d) = %q, want %q", tt.tick, got, tt.want)
		}
	}
	if got := formatPosition(42, 0, 0); got != "42" {
		t.Errorf("formatPosition without bars = %q, want 42", got)
	}
}

func newTestModel(t *testing.T) (*Model, *store.Memory, notes.Clip) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemory()
	clip := mem.CreateClip("test")
	m, err := New(ctx, Options{Store: mem, Clip: clip, ClipName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m, mem, clip
}

// run executes cmd and feeds its message back, as the program loop would
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	msg := cmd()
	if msg == nil {
		return
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			run(t, m, c)
		}
		return
	}
	_, next := m.Update(msg)
	if _, ok := msg.(cycleDoneMsg); ok {
		run(t, m, next)
	}
}

func TestNewStartsOnMiddleOfKeyboard(t *testing.T) {
	m, _, _ := newTestModel(t)
	if got := m.rowKey(0); got != 84 {
		t.Errorf("top row key = %d, want 84", got)
	}
	if got := m.tc.Layout.MidinoteFromY(4); got != 84 {
		t.Errorf("layout key of top row = %d, want 84", got)
	}
	if got := m.gridRows(); got != 24-headerH-footerH {
		t.Errorf("gridRows = %d", got)
	}
}

func TestNewOptions(t *testing.T) {
	if m, err := New(context.Background(), Options{}); err == nil || m != nil {
		t.Error("New without store succeeded")
	}

	cfg := config.DefaultConfig()
	cfg.Keymap = map[string]string{"delete": "Nope+X"}
	if _, err := New(context.Background(), Options{Store: store.NewMemory(), Config: cfg}); err == nil {
		t.Error("New accepted an invalid keymap")
	}
}

func TestPenClickPaintsNote(t *testing.T) {
	m, mem, clip := newTestModel(t)
	m.kind = tools.KindPen

	press := tea.MouseMsg{X: gutterW + 2, Y: headerH + 3, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
	_, cmd := m.Update(press)
	if m.tool == nil {
		t.Fatal("press did not start a drag")
	}
	run(t, m, cmd)

	release := press
	release.Action = tea.MouseActionRelease
	_, cmd = m.Update(release)
	run(t, m, cmd)
	if m.tool != nil {
		t.Error("drag still active after release")
	}

	all, err := mem.ListAllNotes(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("notes = %v, want one", all)
	}
	if all[0].Key != 81 || !all[0].Selected {
		t.Errorf("painted %v, want selected key 81", all[0])
	}
	if len(m.cache) != 1 {
		t.Errorf("cache has %d notes after refresh, want 1", len(m.cache))
	}
	if !strings.Contains(m.View(), string(m.theme.Symbols.Focus)) {
		t.Error("view does not show the focused note")
	}
}

func TestKeyCommandAndUndo(t *testing.T) {
	m, mem, clip := newTestModel(t)
	ctx := context.Background()
	if err := mem.ChangeBatch(ctx, clip, []notes.Note{
		{ID: notes.NoID, Key: 60, Duration: layout.PPQN, Velocity: 1},
		{ID: notes.NoID, Key: 64, Duration: layout.PPQN, Velocity: 1},
	}, "setup"); err != nil {
		t.Fatal(err)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	run(t, m, cmd)
	all, _ := mem.ListAllNotes(ctx, clip)
	if got := len(notes.Filter(all, notes.Selected)); got != 2 {
		t.Fatalf("selected = %d after ctrl+a, want 2", got)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyDelete})
	run(t, m, cmd)
	if all, _ = mem.ListAllNotes(ctx, clip); len(all) != 0 {
		t.Fatalf("notes = %v after delete, want none", all)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlZ})
	run(t, m, cmd)
	if all, _ = mem.ListAllNotes(ctx, clip); len(all) != 2 {
		t.Errorf("notes = %v after undo, want 2", all)
	}
	if m.err != nil {
		t.Errorf("err = %v", m.err)
	}
}

func TestToolKeysAndZoom(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'4'}})
	if m.kind != tools.KindEraser {
		t.Errorf("kind = %v, want eraser", m.kind)
	}

	before := m.tc.Layout.TickScale()
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if after := m.tc.Layout.TickScale(); after != 2*before {
		t.Errorf("tick scale after zoom in = %v, want %v", after, 2*before)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	if got := m.rowKey(0); got != 72 {
		t.Errorf("top row after page down = %d, want 72", got)
	}
}

func TestConfigReload(t *testing.T) {
	m, _, _ := newTestModel(t)

	cfg := config.DefaultConfig()
	cfg.Keymap = map[string]string{"select-all": "Ctrl+E"}
	m.Update(ConfigMsg{Config: cfg})
	if m.err != nil {
		t.Fatalf("reload: %v", m.err)
	}
	if a, ok := m.dispatcher.Lookup(commands.Letter('E') | commands.Ctrl); !ok || a != commands.SelectAll {
		t.Errorf("ctrl+e = %v, %v, want select all", a, ok)
	}

	bad := config.DefaultConfig()
	bad.Theme = "no-such-palette"
	m.Update(ConfigMsg{Config: bad})
	if m.err == nil {
		t.Error("bad palette accepted")
	}
	if m.opts.Config != cfg {
		t.Error("failed reload replaced the config")
	}
}
