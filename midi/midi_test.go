package midi

import (
	"context"
	"errors"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-pianoroll/editqueue"
	"go-pianoroll/store"
)

func TestDecodeNote(t *testing.T) {
	tests := []struct {
		name string
		msg  gomidi.Message
		want NoteEvent
		ok   bool
	}{
		{"note on", gomidi.NoteOn(2, 60, 100), NoteEvent{Note: 60, Velocity: 100, Channel: 2, On: true}, true},
		{"note off", gomidi.NoteOff(2, 60), NoteEvent{Note: 60, Channel: 2}, true},
		{"zero velocity", gomidi.NoteOn(0, 61, 0), NoteEvent{Note: 61}, true},
		{"control change", gomidi.ControlChange(0, 7, 100), NoteEvent{}, false},
	}
	for _, tt := range tests {
		got, ok := decodeNote(tt.msg)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: decodeNote = %+v, %v, want %+v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeyboardChannelFilter(t *testing.T) {
	kb, err := NewKeyboardController("kb", nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	kb.deliver(NoteEvent{Note: 1, Channel: 0, On: true})
	kb.deliver(NoteEvent{Note: 2, Channel: 3, On: true})
	kb.Close()
	kb.deliver(NoteEvent{Note: 3, Channel: 3, On: true})

	var got []uint8
	for ev := range kb.NoteEvents() {
		got = append(got, ev.Note)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("delivered notes = %v, want [2]", got)
	}
}

type fakeController struct {
	id     string
	closed bool
}

func (f *fakeController) ID() string                   { return f.id }
func (f *fakeController) Type() ControllerType         { return ControllerKeyboard }
func (f *fakeController) NoteEvents() <-chan NoteEvent { return nil }
func (f *fakeController) Close() error                 { f.closed = true; return nil }

func TestDeviceManagerScan(t *testing.T) {
	ports := []inPort{{name: "Midi Through Port-0"}, {name: "Keystation 49 MIDI 1"}}
	opened := map[string]*fakeController{}
	channels := map[string]int{}

	dm := NewDeviceManager()
	dm.listPorts = func() []inPort { return ports }
	dm.open = func(id string, _ drivers.In, channel int) (Controller, error) {
		if id == "broken" {
			return nil, errors.New("busy")
		}
		c := &fakeController{id: id}
		opened[id] = c
		channels[id] = channel
		return c, nil
	}

	dm.scan()
	ev := <-dm.Events()
	if ev.Type != DeviceConnected || ev.ID != "Keystation 49 MIDI 1" {
		t.Fatalf("event = %+v, want keystation connected", ev)
	}
	if _, ok := opened["Midi Through Port-0"]; ok {
		t.Error("through port opened")
	}
	if channels[ev.ID] != AnyChannel {
		t.Errorf("channel = %d, want AnyChannel", channels[ev.ID])
	}

	// a second scan keeps the open controller
	dm.scan()
	if n := len(dm.Controllers()); n != 1 {
		t.Errorf("controllers = %d, want 1", n)
	}

	ports = []inPort{{name: "broken"}}
	dm.scan()
	ev = <-dm.Events()
	if ev.Type != DeviceDisconnected || !opened["Keystation 49 MIDI 1"].closed {
		t.Errorf("event = %+v, want keystation disconnected and closed", ev)
	}
	if n := len(dm.Controllers()); n != 0 {
		t.Errorf("controllers = %d, want 0", n)
	}
}

func TestDeviceManagerRules(t *testing.T) {
	dm := NewDeviceManager(PortRule{Match: "keystation", Channel: 1})
	if r, ok := dm.match("Keystation 49"); !ok || r.Channel != 1 {
		t.Errorf("match(Keystation 49) = %+v, %v", r, ok)
	}
	if _, ok := dm.match("Launchpad X"); ok {
		t.Error("unmatched port accepted")
	}
}

func TestStepInputWritesChords(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	clip := m.CreateClip("steps")
	q := editqueue.New(ctx, m)

	s := NewStepInput(q)
	var advances []int64
	s.OnAdvance = func(c int64) { advances = append(advances, c) }

	if c := s.Handle(NoteEvent{Note: 60, Velocity: 127, On: true}); c != nil {
		t.Fatal("disarmed step input queued a note")
	}

	s.SetTarget(clip, 1000, 500)
	s.Handle(NoteEvent{Note: 60, Velocity: 127, On: true})
	c := s.Handle(NoteEvent{Note: 64, Velocity: 127, On: true})
	s.Handle(NoteEvent{Note: 60})
	s.Handle(NoteEvent{Note: 64})
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("chord: %v", err)
	}
	c = s.Handle(NoteEvent{Note: 67, Velocity: 127, On: true})
	s.Handle(NoteEvent{Note: 67})
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("single note: %v", err)
	}

	if got := s.Cursor(); got != 2000 {
		t.Errorf("Cursor = %d, want 2000", got)
	}
	if len(advances) != 2 || advances[0] != 1500 || advances[1] != 2000 {
		t.Errorf("advances = %v, want [1500 2000]", advances)
	}

	all, err := m.ListAllNotes(ctx, clip)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int]struct {
		tick     int64
		selected bool
	}{60: {1000, false}, 64: {1000, false}, 67: {1500, true}}
	if len(all) != 3 {
		t.Fatalf("notes = %v, want 3", all)
	}
	for _, n := range all {
		w := want[n.Key]
		if n.Tick != w.tick || n.Duration != 500 || n.Selected != w.selected || n.Velocity != 1 {
			t.Errorf("note %v, want tick %d selected %v", n, w.tick, w.selected)
		}
	}
	if label, _ := m.CanUndo(); label != StepInputLabel {
		t.Errorf("undo label = %q, want %q", label, StepInputLabel)
	}
}

func TestStepInputRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := store.NewMemory()
	clip := m.CreateClip("steps")
	q := editqueue.New(ctx, m)
	s := NewStepInput(q)
	s.SetTarget(clip, 0, 10)

	events := make(chan NoteEvent, 2)
	events <- NoteEvent{Note: 50, Velocity: 64, On: true}
	events <- NoteEvent{Note: 50}
	close(events)
	s.Run(ctx, events)

	if err := q.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	all, _ := m.ListAllNotes(ctx, clip)
	if len(all) != 1 || all[0].Key != 50 || all[0].Duration != 10 {
		t.Errorf("notes = %v, want key 50 of length 10", all)
	}
	if s.Cursor() != 10 {
		t.Errorf("Cursor = %d, want 10", s.Cursor())
	}
}
