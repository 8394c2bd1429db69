package store

import "errors"

var (
	// ErrUnknownClip is returned when a clip handle is not known to the store
	ErrUnknownClip = errors.New("unknown clip")

	// ErrInvalidNote is returned when a batch carries a note the store cannot accept
	ErrInvalidNote = errors.New("invalid note")

	// ErrNothingToUndo is returned by Undo when the history is empty
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo when no undone step is left
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrNoSaves is returned when a project has no saved snapshot
	ErrNoSaves = errors.New("no saves found")
)
