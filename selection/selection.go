// Package selection derives new note selections from old ones.
package selection

import "go-pianoroll/notes"

// Mode chooses how a predicate combines with the current selection
type Mode int

const (
	None Mode = iota
	Single
	Add
	Sub
	Assign
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Single:
		return "single"
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Assign:
		return "assign"
	default:
		return "unknown"
	}
}

// Predicate decides whether a note is hit
type Predicate func(notes.Note) bool

// All matches every note
func All(notes.Note) bool { return true }

// Nothing matches no note
func Nothing(notes.Note) bool { return false }

// ByID matches the note with the given id
func ByID(id int64) Predicate {
	return func(n notes.Note) bool { return n.ID == id }
}

// Apply returns all with selection flags recomputed for mode. Single treats
// pred as an identity test (see ByID). When no flag flips, all is returned as
// is and changed is false; callers must then skip committing.
func Apply(mode Mode, all []notes.Note, pred Predicate) (out []notes.Note, changed bool) {
	if pred == nil {
		pred = Nothing
	}
	for i, n := range all {
		var flag bool
		switch mode {
		case None:
			flag = false
		case Sub:
			flag = n.Selected && !pred(n)
		case Add:
			flag = n.Selected || pred(n)
		case Assign, Single:
			flag = pred(n)
		default:
			flag = n.Selected
		}
		if flag == n.Selected {
			continue
		}
		if out == nil {
			out = make([]notes.Note, len(all))
			copy(out, all)
		}
		out[i].Selected = flag
	}
	if out == nil {
		return all, false
	}
	return out, true
}
