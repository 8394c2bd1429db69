package notes

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NoID marks a note the store has not assigned an id to yet
const NoID int64 = -1

// Key range of a MIDI note
const (
	MinKey = 0
	MaxKey = 127
)

// Clip is an opaque handle to a clip owned by a note store
type Clip string

// NewClip mints a fresh clip handle
func NewClip() Clip {
	return Clip(uuid.NewString())
}

// Note is a single clip event. Duration 0 is reserved as a deletion marker.
type Note struct {
	ID       int64   `json:"id"`
	Channel  int     `json:"channel"`
	Key      int     `json:"key"`
	Tick     int64   `json:"tick"`
	Duration int64   `json:"duration"`
	Velocity float64 `json:"velocity"`
	FineTune float64 `json:"fine_tune"`
	Selected bool    `json:"selected"`
}

// End returns the first tick after the note
func (n Note) End() int64 {
	return n.Tick + n.Duration
}

// Covers reports whether the note sounds at tick on key
func (n Note) Covers(tick int64, key int) bool {
	return n.Key == key && tick >= n.Tick && tick < n.End()
}

// IsNew reports whether the note still waits for a store id
func (n Note) IsNew() bool {
	return n.ID < 0
}

// IsDeletion reports whether the note is a deletion instruction
func (n Note) IsDeletion() bool {
	return n.Duration == 0
}

// Equal compares every field
func (n Note) Equal(o Note) bool {
	return n == o
}

// Deleted returns a deletion delta for n
func (n Note) Deleted() Note {
	n.Duration = 0
	return n
}

func (n Note) String() string {
	sel := ""
	if n.Selected {
		sel = "*"
	}
	return fmt.Sprintf("#%d%s k%d t%d+%d", n.ID, sel, n.Key, n.Tick, n.Duration)
}

// Find returns the index of the first note matching pred, or -1
func Find(all []Note, pred func(Note) bool) int {
	for i := range all {
		if pred(all[i]) {
			return i
		}
	}
	return -1
}

// FindID returns the index of the note with the given id, or -1
func FindID(all []Note, id int64) int {
	return Find(all, func(n Note) bool { return n.ID == id })
}

// Modify returns a copy of all where every note matching pred is replaced by
// patch(note). The second result reports whether any note matched.
func Modify(all []Note, pred func(Note) bool, patch func(Note) Note) ([]Note, bool) {
	out := make([]Note, len(all))
	matched := false
	for i, n := range all {
		if pred(n) {
			out[i] = patch(n)
			matched = true
		} else {
			out[i] = n
		}
	}
	return out, matched
}

// Filter returns copies of the notes matching pred
func Filter(all []Note, pred func(Note) bool) []Note {
	var out []Note
	for _, n := range all {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// Selected is a predicate for selected notes
func Selected(n Note) bool {
	return n.Selected
}

// StripIDs resets every id to NoID in place and returns the slice
func StripIDs(all []Note) []Note {
	for i := range all {
		all[i].ID = NoID
	}
	return all
}

// Encode serializes notes the way the clipboard stores them
func Encode(all []Note) (string, error) {
	if all == nil {
		all = []Note{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return "", fmt.Errorf("encode notes: %w", err)
	}
	return string(data), nil
}

// Decode parses a clipboard string produced by Encode
func Decode(s string) ([]Note, error) {
	if s == "" {
		return nil, nil
	}
	var all []Note
	if err := json.Unmarshal([]byte(s), &all); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return all, nil
}

// Insert returns a new slice holding all followed by add
func Insert(all []Note, add ...Note) []Note {
	out := make([]Note, 0, len(all)+len(add))
	out = append(out, all...)
	return append(out, add...)
}
