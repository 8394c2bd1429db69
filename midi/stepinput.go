package midi

import (
	"context"
	"sync"

	"go-pianoroll/debug"
	"go-pianoroll/editqueue"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// StepInputLabel is the undo label of notes entered from a keyboard
const StepInputLabel = "Step Input"

// StepInput writes notes played on a keyboard into a clip at a cursor tick.
// Keys held together form a chord; the cursor advances by the note length
// once every key is released.
type StepInput struct {
	queue *editqueue.Queue

	mu     sync.Mutex
	clip   notes.Clip
	cursor int64
	length int64
	held   map[uint8]bool
	armed  bool

	// OnAdvance, when set, is called with the new cursor after each chord
	OnAdvance func(cursor int64)
}

// NewStepInput creates a step input committing through q
func NewStepInput(q *editqueue.Queue) *StepInput {
	return &StepInput{queue: q, held: make(map[uint8]bool)}
}

// SetTarget moves the cursor and selects the clip and note length. A
// non-positive length disarms the input.
func (s *StepInput) SetTarget(clip notes.Clip, cursor, length int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clip, s.cursor, s.length = clip, max(cursor, 0), length
	s.armed = length > 0
	clear(s.held)
}

// Disarm stops writing notes until the next SetTarget
func (s *StepInput) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	clear(s.held)
}

// Cursor returns the tick the next chord is written at
func (s *StepInput) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Handle feeds one keyboard event. Note on queues an insert and returns its
// cycle; note off returns nil.
func (s *StepInput) Handle(ev NoteEvent) *editqueue.Cycle {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return nil
	}

	if !ev.On {
		if !s.held[ev.Note] {
			s.mu.Unlock()
			return nil
		}
		delete(s.held, ev.Note)
		var advanced bool
		var cursor int64
		if len(s.held) == 0 {
			s.cursor += s.length
			advanced, cursor = true, s.cursor
		}
		onAdvance := s.OnAdvance
		s.mu.Unlock()
		if advanced && onAdvance != nil {
			onAdvance(cursor)
		}
		return nil
	}

	chordStart := len(s.held) == 0
	s.held[ev.Note] = true
	n := notes.Note{
		ID:       notes.NoID,
		Channel:  int(ev.Channel),
		Key:      int(ev.Note & 0x7f),
		Tick:     s.cursor,
		Duration: s.length,
		Velocity: float64(ev.Velocity) / 127,
		Selected: true,
	}
	clip := s.clip
	s.mu.Unlock()

	debug.Log("midi", "step input %s at %d", n, n.Tick)
	return s.queue.Submit(clip, func(_ notes.Clip, working []notes.Note) editqueue.Result {
		if chordStart {
			working, _ = selection.Apply(selection.Assign, working, selection.Nothing)
		}
		return editqueue.Apply(notes.Insert(working, n))
	}, StepInputLabel)
}

// Run feeds events to Handle until ctx ends or events closes
func (s *StepInput) Run(ctx context.Context, events <-chan NoteEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Handle(ev)
		}
	}
}
