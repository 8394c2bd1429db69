package store

import (
	"context"
	"errors"
	"testing"

	"go-pianoroll/editqueue"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// noteStore is what both stores offer beyond editqueue.NoteStore
type noteStore interface {
	editqueue.NoteStore
	Undo(ctx context.Context) (string, error)
	Redo(ctx context.Context) (string, error)
	Subscribe(fn func(Event)) func()
}

func newNote(key int, tick, dur int64) notes.Note {
	return notes.Note{ID: notes.NoID, Key: key, Tick: tick, Duration: dur, Velocity: 1}
}

func mustList(t *testing.T, s editqueue.NoteStore, clip notes.Clip) []notes.Note {
	t.Helper()
	all, err := s.ListAllNotes(context.Background(), clip)
	if err != nil {
		t.Fatalf("ListAllNotes: %v", err)
	}
	return all
}

func mustBatch(t *testing.T, s editqueue.NoteStore, clip notes.Clip, label string, deltas ...notes.Note) {
	t.Helper()
	if err := s.ChangeBatch(context.Background(), clip, deltas, label); err != nil {
		t.Fatalf("ChangeBatch(%q): %v", label, err)
	}
}

// exerciseStore runs the behaviour shared by every store implementation
func exerciseStore(t *testing.T, s noteStore, clip notes.Clip) {
	ctx := context.Background()

	var events []Event
	cancel := s.Subscribe(func(ev Event) { events = append(events, ev) })

	mustBatch(t, s, clip, "Paint Note", newNote(60, 0, 100), newNote(62, 100, 100))
	all := mustList(t, s, clip)
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].IsNew() || all[1].IsNew() || all[0].ID >= all[1].ID {
		t.Fatalf("ids = %d, %d, want assigned ascending ids", all[0].ID, all[1].ID)
	}

	moved := all[0]
	moved.Key = 64
	mustBatch(t, s, clip, "Move Notes", moved)
	if got := mustList(t, s, clip)[0].Key; got != 64 {
		t.Errorf("key after move = %d, want 64", got)
	}

	sel := all[1]
	sel.Selected = true
	mustBatch(t, s, clip, "", sel)

	mustBatch(t, s, clip, "Erase Notes", all[1].Deleted())
	if got := mustList(t, s, clip); len(got) != 1 {
		t.Fatalf("after erase len = %d, want 1", len(got))
	}

	label, err := s.Undo(ctx)
	if err != nil || label != "Erase Notes" {
		t.Fatalf("Undo = %q, %v, want Erase Notes", label, err)
	}
	got := mustList(t, s, clip)
	if len(got) != 2 || got[1].ID != all[1].ID || !got[1].Selected {
		t.Fatalf("after undo = %v, want the erased note back with its selection", got)
	}

	// selection-only batches are not undo steps
	label, err = s.Undo(ctx)
	if err != nil || label != "Move Notes" {
		t.Fatalf("second Undo = %q, %v, want Move Notes", label, err)
	}
	if got := mustList(t, s, clip)[0].Key; got != 60 {
		t.Errorf("key after undoing move = %d, want 60", got)
	}

	label, err = s.Redo(ctx)
	if err != nil || label != "Move Notes" {
		t.Fatalf("Redo = %q, %v, want Move Notes", label, err)
	}
	if got := mustList(t, s, clip)[0].Key; got != 64 {
		t.Errorf("key after redo = %d, want 64", got)
	}

	// a new step clears the redo list
	mustBatch(t, s, clip, "Quantize", newNote(70, 0, 10))
	if _, err := s.Redo(ctx); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo after new step = %v, want ErrNothingToRedo", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Undo(ctx); err != nil {
			t.Fatalf("Undo %d: %v", i, err)
		}
	}
	if got := mustList(t, s, clip); len(got) != 0 {
		t.Errorf("after undoing everything = %v, want empty", got)
	}
	if _, err := s.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo on empty history = %v, want ErrNothingToUndo", err)
	}

	cancel()
	n := len(events)
	mustBatch(t, s, clip, "Paint Note", newNote(60, 0, 100))
	if len(events) != n {
		t.Error("event delivered after unsubscribe")
	}
	if n == 0 || events[0].Kind != EventBatch || events[0].Clip != clip || events[0].Count != 2 {
		t.Errorf("first event = %+v, want a batch of 2 on %s", events, clip)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m, m.CreateClip("verse"))
}

func TestMemoryRejectsInvalidBatches(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clip := m.CreateClip("a")
	mustBatch(t, m, clip, "Paint Note", newNote(60, 0, 100))
	existing := mustList(t, m, clip)[0]

	tests := []struct {
		name  string
		delta notes.Note
	}{
		{"key too high", newNote(128, 0, 10)},
		{"negative tick", newNote(60, -1, 10)},
		{"unknown id", notes.Note{ID: 999, Key: 60, Duration: 10}},
		{"negative duration", func() notes.Note { n := existing; n.Duration = -5; return n }()},
	}
	for _, tt := range tests {
		err := m.ChangeBatch(ctx, clip, []notes.Note{newNote(61, 0, 10), tt.delta}, "x")
		if !errors.Is(err, ErrInvalidNote) {
			t.Errorf("%s: err = %v, want ErrInvalidNote", tt.name, err)
		}
	}
	if got := mustList(t, m, clip); len(got) != 1 {
		t.Errorf("rejected batches left %d notes, want 1", len(got))
	}

	if _, err := m.ListAllNotes(ctx, "nope"); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("ListAllNotes(unknown) = %v, want ErrUnknownClip", err)
	}
	if err := m.ChangeBatch(ctx, "nope", nil, ""); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("ChangeBatch(unknown) = %v, want ErrUnknownClip", err)
	}
}

func TestMemoryIgnoresStaleDeletes(t *testing.T) {
	m := NewMemory()
	clip := m.CreateClip("a")
	mustBatch(t, m, clip, "", notes.Note{ID: 42, Key: 60}.Deleted(), notes.Note{ID: notes.NoID, Duration: 0})
	if _, ok := m.CanUndo(); ok {
		t.Error("empty batch recorded an undo step")
	}
}

func TestMemoryHistoryLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetHistoryLimit(2)
	clip := m.CreateClip("a")
	for i := 0; i < 4; i++ {
		mustBatch(t, m, clip, "Paint Note", newNote(60+i, 0, 10))
	}
	for i := 0; i < 2; i++ {
		if _, err := m.Undo(ctx); err != nil {
			t.Fatalf("Undo %d: %v", i, err)
		}
	}
	if _, err := m.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("third Undo = %v, want ErrNothingToUndo", err)
	}
	if got := mustList(t, m, clip); len(got) != 2 {
		t.Errorf("len = %d, want the 2 notes older than the history", len(got))
	}
}

func TestMemoryReplaceNotes(t *testing.T) {
	m := NewMemory()
	clip := m.CreateClip("a")
	mustBatch(t, m, clip, "Paint Note", newNote(60, 0, 10))

	var got Event
	m.Subscribe(func(ev Event) { got = ev })
	m.ReplaceNotes(clip, "renamed", []notes.Note{newNote(40, 0, 5), newNote(41, 5, 5)})

	all := mustList(t, m, clip)
	if len(all) != 2 || all[0].IsNew() || all[0].Key != 40 {
		t.Errorf("notes = %v", all)
	}
	if _, ok := m.CanUndo(); ok {
		t.Error("history kept after ReplaceNotes")
	}
	if got.Kind != EventReplace || got.Count != 2 {
		t.Errorf("event = %+v, want replace of 2", got)
	}
	clips, _ := m.Clips(context.Background())
	if len(clips) != 1 || clips[0].Name != "renamed" || clips[0].Notes != 2 {
		t.Errorf("Clips = %+v", clips)
	}
}

func TestQueueCommitsToMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clip := m.CreateClip("a")
	mustBatch(t, m, clip, "Paint Note", newNote(60, 0, 10), newNote(62, 0, 10), newNote(64, 0, 10))

	q := editqueue.New(ctx, m)
	q.ChangeSelection(clip, selection.Assign, func(n notes.Note) bool { return n.Key >= 62 })
	c := q.Submit(clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		out, _ := notes.Modify(working, notes.Selected, func(n notes.Note) notes.Note {
			n.Key++
			return n
		})
		return editqueue.Apply(out)
	}, "Shift Up")
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	var keys []int
	for _, n := range mustList(t, m, clip) {
		keys = append(keys, n.Key)
	}
	if len(keys) != 3 || keys[0] != 60 || keys[1] != 63 || keys[2] != 65 {
		t.Errorf("keys = %v, want [60 63 65]", keys)
	}
	if label, _ := m.CanUndo(); label != "Shift Up" {
		t.Errorf("undo label = %q, want Shift Up", label)
	}
}
