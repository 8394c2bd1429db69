// Package editqueue serializes note edits for a clip and commits only the
// notes that actually changed to the backing NoteStore.
package editqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"go-pianoroll/debug"
	"go-pianoroll/notes"
	"go-pianoroll/selection"
)

// NoteStore owns the authoritative notes of every clip
type NoteStore interface {
	// ListAllNotes returns every note of clip in a stable order
	ListAllNotes(ctx context.Context, clip notes.Clip) ([]notes.Note, error)
	// ChangeBatch applies inserts (ID -1), deletions (Duration 0) and
	// updates as one undoable step labelled undoLabel
	ChangeBatch(ctx context.Context, clip notes.Clip, deltas []notes.Note, undoLabel string) error
}

// Outcome tags a modifier result
type Outcome int

const (
	NoChange Outcome = iota
	Applied
	NeedsResync
)

func (o Outcome) String() string {
	switch o {
	case NoChange:
		return "no-change"
	case Applied:
		return "applied"
	case NeedsResync:
		return "needs-resync"
	default:
		return "unknown"
	}
}

// Result is what a Modifier hands back to the queue
type Result struct {
	Outcome Outcome
	Notes   []notes.Note
}

// Unchanged reports that the modifier left the working notes alone
func Unchanged() Result { return Result{Outcome: NoChange} }

// Apply replaces the working notes with all
func Apply(all []notes.Note) Result { return Result{Outcome: Applied, Notes: all} }

// Resync commits immediately and makes the next request refetch. all may be
// nil when the modifier only had side effects.
func Resync(all []notes.Note) Result { return Result{Outcome: NeedsResync, Notes: all} }

// Modifier derives new working notes from the current ones. It runs on the
// queue's worker goroutine and must not retain working.
type Modifier func(clip notes.Clip, working []notes.Note) Result

// Cycle completes when the worker that picked up a request goes idle
type Cycle struct {
	done chan struct{}
	err  error
}

func newCycle() *Cycle {
	return &Cycle{done: make(chan struct{})}
}

func (c *Cycle) finish(err error) {
	c.err = err
	close(c.done)
}

// Done is closed when the cycle has drained or failed
func (c *Cycle) Done() <-chan struct{} { return c.done }

// Err returns the cycle's error once Done is closed
func (c *Cycle) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the cycle completes or ctx ends
func (c *Cycle) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats counts queue traffic
type Stats struct {
	Requests int64
	Fetches  int64
	Commits  int64
	Failures int64
}

// CommitHook observes every batch sent to the store
type CommitHook func(clip notes.Clip, deltas []notes.Note, undoLabel string)

// Option configures a Queue
type Option func(*Queue)

// WithCommitHook calls hook after each successful ChangeBatch
func WithCommitHook(hook CommitHook) Option {
	return func(q *Queue) { q.onCommit = hook }
}

type request struct {
	clip      notes.Clip
	modify    Modifier
	undoLabel string
}

// snapshot is owned by the worker goroutine of one cycle
type snapshot struct {
	clip     notes.Clip
	loaded   bool
	allnotes []notes.Note
	notes    []notes.Note // nil until a modifier applied something
}

// Queue is one editor's edit pipeline
type Queue struct {
	ctx      context.Context
	store    NoteStore
	onCommit CommitHook

	mu       sync.Mutex
	requests []request
	cycle    *Cycle

	requestCount atomic.Int64
	fetchCount   atomic.Int64
	commitCount  atomic.Int64
	failureCount atomic.Int64
}

// New creates a queue committing to store. Store calls use ctx, cancelling it
// shuts the queue down.
func New(ctx context.Context, store NoteStore, opts ...Option) *Queue {
	q := &Queue{ctx: ctx, store: store}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit enqueues modify for clip. The returned cycle is shared by every
// request processed by the same worker run.
func (q *Queue) Submit(clip notes.Clip, modify Modifier, undoLabel string) *Cycle {
	q.requestCount.Add(1)
	if q.ctx.Err() != nil {
		c := newCycle()
		c.finish(ErrClosed)
		return c
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, request{clip: clip, modify: modify, undoLabel: undoLabel})
	if q.cycle == nil {
		q.cycle = newCycle()
		go q.run(q.cycle)
	}
	return q.cycle
}

// ChangeSelection submits a selection change. Nothing is committed unless
// some note's selection flips.
func (q *Queue) ChangeSelection(clip notes.Clip, mode selection.Mode, pred selection.Predicate) *Cycle {
	return q.Submit(clip, func(_ notes.Clip, working []notes.Note) Result {
		out, changed := selection.Apply(mode, working, pred)
		if !changed {
			return Unchanged()
		}
		return Apply(out)
	}, "")
}

// SelectSingle selects only the note picked by target. When target reports
// no note the selection is cleared.
func (q *Queue) SelectSingle(clip notes.Clip, target func(clip notes.Clip, working []notes.Note) (int64, bool)) *Cycle {
	return q.Submit(clip, func(c notes.Clip, working []notes.Note) Result {
		mode, pred := selection.None, selection.Predicate(nil)
		if id, ok := target(c, working); ok {
			mode, pred = selection.Single, selection.ByID(id)
		}
		out, changed := selection.Apply(mode, working, pred)
		if !changed {
			return Unchanged()
		}
		return Apply(out)
	}, "")
}

// Flush waits until the current cycle, if any, has finished
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	c := q.cycle
	q.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Wait(ctx)
}

// Stats returns traffic counters
func (q *Queue) Stats() Stats {
	return Stats{
		Requests: q.requestCount.Load(),
		Fetches:  q.fetchCount.Load(),
		Commits:  q.commitCount.Load(),
		Failures: q.failureCount.Load(),
	}
}

// pop returns the next request, or ends the cycle when none is left
func (q *Queue) pop() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.requests) == 0 {
		q.cycle = nil
		return request{}, false
	}
	r := q.requests[0]
	q.requests[0] = request{}
	q.requests = q.requests[1:]
	return r, true
}

func (q *Queue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests) == 0
}

// fail drops what is still queued for this cycle and hands err to its callers
func (q *Queue) fail(c *Cycle, err error) {
	q.failureCount.Add(1)
	q.mu.Lock()
	dropped := len(q.requests)
	q.requests = nil
	q.cycle = nil
	q.mu.Unlock()
	debug.Log("editqueue", "cycle failed, dropped %d queued requests: %v", dropped, err)
	c.finish(err)
}

func (q *Queue) run(c *Cycle) {
	var snap snapshot
	for {
		r, ok := q.pop()
		if !ok {
			break
		}
		if err := q.process(&snap, r); err != nil {
			q.fail(c, err)
			return
		}
	}
	c.finish(nil)
}

func (q *Queue) process(snap *snapshot, r request) error {
	if snap.loaded && snap.clip != r.clip {
		if err := q.commit(snap, ""); err != nil {
			return err
		}
		*snap = snapshot{}
	}
	if !snap.loaded {
		if err := q.fetch(snap, r.clip); err != nil {
			return err
		}
	}

	working := snap.notes
	if working == nil {
		working = snap.allnotes
	}
	res := r.modify(r.clip, working)

	force := r.undoLabel != ""
	switch res.Outcome {
	case Applied:
		snap.notes = res.Notes
		if hasStructuralChange(res.Notes) {
			force = true
		}
	case NeedsResync:
		if res.Notes != nil {
			snap.notes = res.Notes
		}
		force = true
		if snap.notes == nil {
			*snap = snapshot{}
		}
	}

	if force || q.drained() {
		return q.commit(snap, r.undoLabel)
	}
	return nil
}

func (q *Queue) fetch(snap *snapshot, clip notes.Clip) error {
	q.fetchCount.Add(1)
	all, err := q.store.ListAllNotes(q.ctx, clip)
	if err != nil {
		*snap = snapshot{}
		return fetchError(err, string(clip))
	}
	*snap = snapshot{clip: clip, loaded: true, allnotes: all}
	debug.Log("editqueue", "fetched %d notes of %s", len(all), clip)
	return nil
}

// commit sends the diff of the working notes and resets the snapshot. Without
// working notes there is nothing to send and the snapshot is kept.
func (q *Queue) commit(snap *snapshot, undoLabel string) error {
	if !snap.loaded || snap.notes == nil {
		return nil
	}
	clip, deltas := snap.clip, Diff(snap.allnotes, snap.notes)
	*snap = snapshot{}
	if len(deltas) == 0 {
		return nil
	}

	q.commitCount.Add(1)
	if err := q.store.ChangeBatch(q.ctx, clip, deltas, undoLabel); err != nil {
		return commitError(err, string(clip))
	}
	debug.Log("editqueue", "committed %d deltas to %s label=%q", len(deltas), clip, undoLabel)
	if q.onCommit != nil {
		q.onCommit(clip, deltas, undoLabel)
	}
	return nil
}
