package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-pianoroll/editqueue"
	"go-pianoroll/layout"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
	"go-pianoroll/tools"
)

type recordingStore struct {
	mu      sync.Mutex
	all     []notes.Note
	nextID  int64
	batches int
	labels  []string
}

func (s *recordingStore) ListAllNotes(ctx context.Context, clip notes.Clip) ([]notes.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notes.Note(nil), s.all...), nil
}

func (s *recordingStore) ChangeBatch(ctx context.Context, clip notes.Clip, deltas []notes.Note, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	s.labels = append(s.labels, label)
	for _, d := range deltas {
		i := notes.FindID(s.all, d.ID)
		switch {
		case d.IsNew():
			s.nextID++
			d.ID = 1000 + s.nextID
			s.all = append(s.all, d)
		case i < 0:
		case d.IsDeletion():
			s.all = append(s.all[:i:i], s.all[i+1:]...)
		default:
			s.all[i] = d
		}
	}
	return nil
}

func (s *recordingStore) snapshot() ([]notes.Note, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notes.Note(nil), s.all...), s.batches
}

func setup(vp layout.Viewport, all ...notes.Note) (*Dispatcher, *tools.Context, *recordingStore) {
	store := &recordingStore{all: all}
	ctx := &tools.Context{
		Layout: layout.New(vp),
		Clip:   "clip",
		Queue:  editqueue.New(context.Background(), store),
	}
	return New(nil), ctx, store
}

func press(t *testing.T, d *Dispatcher, ctx *tools.Context, c Chord) {
	t.Helper()
	cycle, ok := d.KeyDown(ctx, c)
	if !ok {
		t.Fatalf("%s is not bound", c)
	}
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cycle.Wait(wctx); err != nil {
		t.Fatalf("%s: %v", c, err)
	}
}

func selected(all []notes.Note) []int64 {
	var ids []int64
	for _, n := range all {
		if n.Selected {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func threeNotes() []notes.Note {
	return []notes.Note{
		{ID: 3, Key: 60, Tick: 960, Duration: 480},
		{ID: 1, Key: 60, Tick: 0, Duration: 480},
		{ID: 2, Key: 60, Tick: 480, Duration: 480},
	}
}

func TestFocusNext(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{}, threeNotes()...)

	press(t, d, ctx, KeyRight|Alt)
	all, _ := store.snapshot()
	if got := selected(all); len(got) != 1 || got[0] != 1 {
		t.Fatalf("after first Alt+Right selected = %v, want [1]", got)
	}

	press(t, d, ctx, KeyRight|Alt)
	all, _ = store.snapshot()
	if got := selected(all); len(got) != 1 || got[0] != 2 {
		t.Errorf("after second Alt+Right selected = %v, want [2]", got)
	}
}

func TestFocusWraps(t *testing.T) {
	tests := []struct {
		name    string
		forward bool
		sel     int64
		want    int64
	}{
		{"prev without selection", false, 0, 3},
		{"next after last", true, 3, 1},
		{"prev before first", false, 1, 3},
		{"prev", false, 3, 2},
	}
	for _, tt := range tests {
		all := threeNotes()
		for i := range all {
			all[i].Selected = all[i].ID == tt.sel
		}
		if got, ok := advanceFocus(all, tt.forward); !ok || got != tt.want {
			t.Errorf("%s: advanceFocus = %d, want %d", tt.name, got, tt.want)
		}
	}
	if _, ok := advanceFocus(nil, true); ok {
		t.Error("advanceFocus on an empty clip should find nothing")
	}
}

func TestFocusOrdersHigherKeyFirst(t *testing.T) {
	all := []notes.Note{
		{ID: 1, Key: 60, Tick: 0},
		{ID: 2, Key: 72, Tick: 0},
	}
	if got, _ := advanceFocus(all, true); got != 2 {
		t.Errorf("first focus = %d, want the higher key 2", got)
	}
}

func TestKeyRangeBounces(t *testing.T) {
	tests := []struct {
		name  string
		chord Chord
		keys  []int
	}{
		{"up at top", KeyUp, []int{127}},
		{"up with one at top", KeyUp, []int{60, 127}},
		{"down at bottom", KeyDown, []int{0}},
		{"octave up near top", KeyUp | Ctrl, []int{116}},
		{"octave down near bottom", KeyDown | Ctrl, []int{11}},
	}
	for _, tt := range tests {
		var all []notes.Note
		for i, k := range tt.keys {
			all = append(all, notes.Note{ID: int64(i + 1), Key: k, Duration: 10, Selected: true})
		}
		d, ctx, store := setup(layout.Viewport{}, all...)
		press(t, d, ctx, tt.chord)
		got, batches := store.snapshot()
		if batches != 0 {
			t.Errorf("%s: %d batches, want none", tt.name, batches)
		}
		for i, k := range tt.keys {
			if got[i].Key != k {
				t.Errorf("%s: key = %d, want %d", tt.name, got[i].Key, k)
			}
		}
	}
}

func TestKeyShift(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{},
		notes.Note{ID: 1, Key: 60, Duration: 10, Selected: true},
		notes.Note{ID: 2, Key: 64, Duration: 10},
	)
	press(t, d, ctx, KeyUp)
	press(t, d, ctx, KeyUp|Ctrl)
	press(t, d, ctx, KeyDown)
	all, batches := store.snapshot()
	if all[0].Key != 72 || all[1].Key != 64 {
		t.Errorf("keys = %d, %d, want 72, 64", all[0].Key, all[1].Key)
	}
	if batches != 3 {
		t.Errorf("batches = %d, want 3", batches)
	}
	if store.labels[1] != "Shift Octave Up" {
		t.Errorf("label = %q, want %q", store.labels[1], "Shift Octave Up")
	}
}

func TestTickShift(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{TickScale: 1, GridStepping: 100},
		notes.Note{ID: 1, Key: 60, Tick: 50, Duration: 100, Selected: true},
	)
	press(t, d, ctx, KeyRight)
	all, _ := store.snapshot()
	if all[0].Tick != 150 {
		t.Fatalf("tick after Right = %d, want 150", all[0].Tick)
	}

	// moving left past zero bounces
	press(t, d, ctx, KeyLeft)
	press(t, d, ctx, KeyLeft)
	all, batches := store.snapshot()
	if all[0].Tick != 50 || batches != 2 {
		t.Errorf("tick, batches = %d, %d, want 50, 2", all[0].Tick, batches)
	}

	press(t, d, ctx, KeyRight|Shift)
	all, _ = store.snapshot()
	if all[0].Tick != 50+MinTicks {
		t.Errorf("tick after Shift+Right = %d, want %d", all[0].Tick, 50+MinTicks)
	}
}

func TestTickDelta(t *testing.T) {
	tests := []struct {
		name string
		vp   layout.Viewport
		fine bool
		want int64
	}{
		{"grid", layout.Viewport{GridStepping: 480}, false, 480},
		{"fine default zoom", layout.Viewport{}, true, 20 * MinTicks},
		{"fine zoomed in", layout.Viewport{TickScale: 1.0 / 4000}, true, MinTicks},
		{"fine zoomed out", layout.Viewport{TickScale: 1.0 / 47250}, true, 8 * MinTicks},
	}
	for _, tt := range tests {
		if got := TickDelta(layout.New(tt.vp), tt.fine); got != tt.want {
			t.Errorf("%s: TickDelta = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestQuantize(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{TickScale: 1, GridStepping: 100},
		notes.Note{ID: 1, Key: 60, Tick: 130, Duration: 30, Selected: true},
		notes.Note{ID: 2, Key: 62, Tick: 160, Duration: 260, Selected: true},
		notes.Note{ID: 3, Key: 64, Tick: 170, Duration: 10},
	)
	press(t, d, ctx, Letter('Q'))
	all, _ := store.snapshot()
	if all[0].Tick != 100 || all[1].Tick != 200 || all[2].Tick != 170 {
		t.Fatalf("ticks = %d, %d, %d, want 100, 200, 170", all[0].Tick, all[1].Tick, all[2].Tick)
	}

	press(t, d, ctx, Letter('Q')|Shift)
	all, _ = store.snapshot()
	// end 130 rounds to the start, so the note keeps one grid step
	if all[0].Duration != 100 || all[1].Duration != 300 {
		t.Errorf("durations = %d, %d, want 100, 300", all[0].Duration, all[1].Duration)
	}
}

func TestQuantizeEndOffGrid(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{TickScale: 1, GridStepping: 480},
		notes.Note{ID: 1, Key: 60, Tick: 300, Duration: 20, Selected: true},
		notes.Note{ID: 2, Key: 62, Tick: 200, Duration: 10, Selected: true},
		notes.Note{ID: 3, Key: 64, Tick: 300, Duration: 700, Selected: true},
		notes.Note{ID: 4, Key: 65, Tick: 960, Duration: 100, Selected: true},
	)
	press(t, d, ctx, Letter('Q')|Shift)
	all, _ := store.snapshot()
	want := map[int64]int64{1: 660, 2: 760, 3: 660, 4: 480}
	for _, n := range all {
		if n.Duration != want[n.ID] {
			t.Errorf("note %d duration = %d, want %d", n.ID, n.Duration, want[n.ID])
		}
		if n.End()%480 != 0 {
			t.Errorf("note %d end = %d, want a grid line", n.ID, n.End())
		}
	}
}

func TestLengthenShorten(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{TickScale: 1, GridStepping: 100},
		notes.Note{ID: 1, Key: 60, Duration: 300, Selected: true},
		notes.Note{ID: 2, Key: 62, Duration: 50, Selected: true},
	)
	press(t, d, ctx, KeyRight|Ctrl)
	press(t, d, ctx, KeyLeft|Ctrl)
	press(t, d, ctx, KeyLeft|Ctrl)
	all, _ := store.snapshot()
	if all[0].Duration != 200 {
		t.Errorf("duration = %d, want 200", all[0].Duration)
	}
	if all[1].Duration != 50 {
		t.Errorf("short note duration = %d, want 50", all[1].Duration)
	}
}

func TestSelectionCommands(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{},
		notes.Note{ID: 1, Key: 60, Duration: 10, Selected: true},
		notes.Note{ID: 2, Key: 62, Duration: 10},
	)
	press(t, d, ctx, Letter('I')|Ctrl)
	all, _ := store.snapshot()
	if got := selected(all); len(got) != 1 || got[0] != 2 {
		t.Errorf("after invert = %v, want [2]", got)
	}
	press(t, d, ctx, Letter('A')|Ctrl)
	all, _ = store.snapshot()
	if got := selected(all); len(got) != 2 {
		t.Errorf("after select all = %v", got)
	}
	press(t, d, ctx, Letter('A')|Ctrl|Shift)
	all, _ = store.snapshot()
	if got := selected(all); len(got) != 0 {
		t.Errorf("after select none = %v", got)
	}
}

func TestDelete(t *testing.T) {
	for _, c := range []Chord{KeyBackspace, KeyDelete} {
		d, ctx, store := setup(layout.Viewport{},
			notes.Note{ID: 1, Key: 60, Duration: 10, Selected: true},
			notes.Note{ID: 2, Key: 62, Duration: 10},
		)
		press(t, d, ctx, c)
		all, _ := store.snapshot()
		if len(all) != 1 || all[0].ID != 2 {
			t.Errorf("%s: notes = %v, want only 2", c, all)
		}
	}
}

func TestCopyPasteCut(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{},
		notes.Note{ID: 1, Key: 60, Tick: 10, Duration: 10, Velocity: 0.5, Selected: true},
		notes.Note{ID: 2, Key: 62, Duration: 10},
	)

	press(t, d, ctx, Letter('C')|Ctrl)
	text, _ := d.clipboard.ReadText()
	copied, err := notes.Decode(text)
	if err != nil || len(copied) != 1 || copied[0].ID != notes.NoID || copied[0].Key != 60 {
		t.Fatalf("clipboard = %q (%v)", text, err)
	}
	if _, batches := store.snapshot(); batches != 0 {
		t.Errorf("copy sent %d batches", batches)
	}

	press(t, d, ctx, Letter('V')|Ctrl)
	all, _ := store.snapshot()
	if len(all) != 3 {
		t.Fatalf("notes after paste = %v, want 3", all)
	}
	if all[0].Selected {
		t.Error("paste should deselect existing notes")
	}
	p := all[2]
	if p.ID < 0 || p.Key != 60 || p.Tick != 10 || p.Velocity != 0.5 || !p.Selected {
		t.Errorf("pasted note = %v", p)
	}

	press(t, d, ctx, Letter('X')|Ctrl)
	all, _ = store.snapshot()
	if len(all) != 2 || notes.FindID(all, p.ID) >= 0 {
		t.Errorf("notes after cut = %v", all)
	}
	if text, _ := d.clipboard.ReadText(); !strings.Contains(text, `"id":-1`) {
		t.Errorf("clipboard after cut = %q", text)
	}
}

func TestCopyLeavesPendingSelectionUnlabeled(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{},
		notes.Note{ID: 1, Key: 60, Duration: 10},
		notes.Note{ID: 2, Key: 62, Duration: 10},
	)
	ctx.Queue.ChangeSelection(ctx.Clip, selection.Assign, selection.All)
	cycle := d.Run(ctx, Copy, false)
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cycle.Wait(wctx); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	labels := append([]string(nil), store.labels...)
	store.mu.Unlock()
	for _, l := range labels {
		if l != "" {
			t.Errorf("batch labels = %q, want only unlabeled batches", labels)
			break
		}
	}
	all, _ := store.snapshot()
	if got := selected(all); len(got) != 2 {
		t.Errorf("selected = %v, want [1 2]", got)
	}
	text, _ := d.clipboard.ReadText()
	if copied, err := notes.Decode(text); err != nil || len(copied) != 2 {
		t.Errorf("clipboard = %q (%v), want 2 notes", text, err)
	}
}

func TestPasteEmptyClipboard(t *testing.T) {
	d, ctx, store := setup(layout.Viewport{}, notes.Note{ID: 1, Key: 60, Duration: 10, Selected: true})
	press(t, d, ctx, Letter('V')|Ctrl)
	if _, batches := store.snapshot(); batches != 0 {
		t.Errorf("pasting nothing sent %d batches", batches)
	}
}

func TestUnboundChord(t *testing.T) {
	d, ctx, _ := setup(layout.Viewport{})
	if _, ok := d.KeyDown(ctx, Letter('Z')|Alt); ok {
		t.Error("Alt+Z should not be bound")
	}
}

func TestRebind(t *testing.T) {
	d := New(nil)
	if err := d.Rebind(map[string]string{"quantize": "Ctrl+Shift+Q"}); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if a, ok := d.Lookup(Letter('Q') | Ctrl | Shift); !ok || a != Quantize {
		t.Errorf("Lookup(Ctrl+Shift+Q) = %v, %v", a, ok)
	}
	if err := d.Rebind(map[string]string{"explode": "Q"}); err == nil {
		t.Error("unknown action should fail")
	}
	if err := d.Rebind(map[string]string{"quantize": "Hyper+Q"}); !errors.Is(err, ErrInvalidChord) {
		t.Errorf("bad chord err = %v, want ErrInvalidChord", err)
	}
}

func TestParseChord(t *testing.T) {
	tests := []struct {
		in   string
		want Chord
	}{
		{"Ctrl+A", Letter('A') | Ctrl},
		{"ctrl+shift+a", Letter('A') | Ctrl | Shift},
		{"Alt+Right", KeyRight | Alt},
		{"Q", Letter('Q')},
		{"Backspace", KeyBackspace},
		{"Shift+Del", KeyDelete | Shift},
	}
	for _, tt := range tests {
		got, err := ParseChord(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseChord(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
		if back, err := ParseChord(got.String()); err != nil || back != got {
			t.Errorf("ParseChord(%q.String()) = %v, %v", tt.in, back, err)
		}
	}
	for _, bad := range []string{"", "Ctrl+", "Hyper+A", "Ctrl+F13"} {
		if _, err := ParseChord(bad); !errors.Is(err, ErrInvalidChord) {
			t.Errorf("ParseChord(%q) err = %v, want ErrInvalidChord", bad, err)
		}
	}
}

func TestChordString(t *testing.T) {
	if got := (Letter('A') | Ctrl | Shift).String(); got != "Ctrl+Shift+A" {
		t.Errorf("String() = %q, want Ctrl+Shift+A", got)
	}
	if c := MakeChord(KeyLeft, true, false, true); c != KeyLeft|Shift|Alt || c.Code() != KeyLeft {
		t.Errorf("MakeChord = %v", c)
	}
}

func TestBindingsSorted(t *testing.T) {
	b := New(nil).Bindings()
	for i := 1; i < len(b); i++ {
		if b[i-1].Action > b[i].Action {
			t.Fatalf("bindings out of order at %d: %v", i, b[i])
		}
	}
	if len(Actions()) != len(actionLabels) {
		t.Errorf("Actions() = %d entries, want %d", len(Actions()), len(actionLabels))
	}
}
