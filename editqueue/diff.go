package editqueue

import "go-pianoroll/notes"

// Diff returns the entries of working that must be sent to the store to turn
// all into working. Both arrays are walked in id order; where ids line up and
// the notes are equal nothing is sent. Entries that fall out of alignment are
// looked up by id so a removed or reordered note does not resend its
// neighbours. New notes and deletion markers are always included.
func Diff(all, working []notes.Note) []notes.Note {
	var (
		deltas []notes.Note
		index  map[int64]int
	)
	j := 0
	for _, n := range working {
		if n.IsNew() || n.IsDeletion() {
			deltas = append(deltas, n)
			if j < len(all) && all[j].ID == n.ID {
				j++
			}
			continue
		}
		if j < len(all) && all[j].ID == n.ID {
			old := all[j]
			j++
			if old.Equal(n) {
				continue
			}
			deltas = append(deltas, n)
			continue
		}
		if index == nil {
			index = make(map[int64]int, len(all))
			for i, a := range all {
				index[a.ID] = i
			}
		}
		if i, ok := index[n.ID]; ok {
			j = i + 1
			if all[i].Equal(n) {
				continue
			}
		}
		deltas = append(deltas, n)
	}
	return deltas
}

// hasStructuralChange reports whether working contains creations or deletions
func hasStructuralChange(working []notes.Note) bool {
	for _, n := range working {
		if n.IsNew() || n.IsDeletion() {
			return true
		}
	}
	return false
}
