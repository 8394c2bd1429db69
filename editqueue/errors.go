package editqueue

import (
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Error kinds carried by errors returned from a Cycle
const (
	FetchFailure  ftag.Kind = "fetch_failure"
	CommitFailure ftag.Kind = "commit_failure"
)

// ErrClosed is returned for requests submitted after the queue context ended
var ErrClosed = errors.New("edit queue closed")

func fetchError(err error, clip string) error {
	return fault.Wrap(err,
		ftag.With(FetchFailure),
		fmsg.WithDesc("list notes of clip "+clip, "Could not load the notes of this clip"),
	)
}

func commitError(err error, clip string) error {
	return fault.Wrap(err,
		ftag.With(CommitFailure),
		fmsg.WithDesc("change batch on clip "+clip, "Could not save note changes"),
	)
}

// IsFetchFailure reports whether err came from NoteStore.ListAllNotes
func IsFetchFailure(err error) bool {
	return err != nil && ftag.Get(err) == FetchFailure
}

// IsCommitFailure reports whether err came from NoteStore.ChangeBatch
func IsCommitFailure(err error) bool {
	return err != nil && ftag.Get(err) == CommitFailure
}
