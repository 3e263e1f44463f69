package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// DefaultTimeout is the age after which an in-flight turn is abandoned.
const DefaultTimeout = 10 * time.Second

// AdmitFunc is invoked exactly once per queued turn: with true when the turn
// may start, with false when it was abandoned.
type AdmitFunc func(admitted bool)

// Options configure a Queue.
type Options struct {
	// Timeout after which the in-flight marker is considered abandoned.
	Timeout time.Duration

	// Markers persists the in-flight marker. Defaults to an in-memory store.
	Markers MarkerStore

	Logger logging.Logger

	// Now returns the current time. Tests replace it with a fake clock.
	Now func() time.Time
}

type entry struct {
	seq            uint64
	conversationID string
	enqueuedAt     time.Time
	admit          AdmitFunc
}

type callback struct {
	admit    AdmitFunc
	admitted bool
}

// Queue is a FIFO of pending turns plus a single in-flight marker.
type Queue struct {
	opts Options

	mu      sync.Mutex
	entries []entry
	seq     uint64
}

// New creates an empty queue.
func New(optFns ...func(o *Options)) *Queue {
	opts := Options{
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Markers == nil {
		opts.Markers = NewInMemoryMarkerStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Queue{opts: opts}
}

// AddInput appends a turn for conversationID and tries to admit the head of
// the queue. admit fires later, possibly from another goroutine's Pop.
func (q *Queue) AddInput(ctx context.Context, conversationID string, admit AdmitFunc) error {
	q.enqueue(conversationID, admit)
	return q.Advance(ctx)
}

func (q *Queue) enqueue(conversationID string, admit AdmitFunc) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.entries = append(q.entries, entry{
		seq:            q.seq,
		conversationID: conversationID,
		enqueuedAt:     q.opts.Now(),
		admit:          admit,
	})
	q.opts.Logger.Debug("queued input", "conversation_id", conversationID, "queue_length", len(q.entries))
	return q.seq
}

// Acquire queues a turn and blocks until it is admitted. It returns
// core.ErrQueueTimeout when the turn is abandoned and ctx.Err() when ctx is
// done first; in that case the turn is withdrawn, or released if it was
// admitted concurrently. A nil return must be paired with Pop.
func (q *Queue) Acquire(ctx context.Context, conversationID string) error {
	admitted := make(chan bool, 1)
	seq := q.enqueue(conversationID, func(ok bool) { admitted <- ok })
	if err := q.Advance(ctx); err != nil {
		q.withdraw(seq)
		return err
	}

	select {
	case ok := <-admitted:
		if !ok {
			return fmt.Errorf("%w: conversation %s", core.ErrQueueTimeout, conversationID)
		}
		return nil
	case <-ctx.Done():
		if q.withdraw(seq) {
			return ctx.Err()
		}
		if ok := <-admitted; ok {
			if err := q.Pop(context.WithoutCancel(ctx), conversationID); err != nil {
				q.opts.Logger.Error("failed to release cancelled turn", "conversation_id", conversationID, "error", err)
			}
		}
		return ctx.Err()
	}
}

// withdraw removes a still queued entry, reporting whether it was found.
func (q *Queue) withdraw(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.seq == seq {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Advance reclaims an abandoned marker and, when no turn is in flight,
// admits the head of the queue.
func (q *Queue) Advance(ctx context.Context) error {
	q.mu.Lock()
	fire, err := q.advanceLocked(ctx)
	q.mu.Unlock()

	for _, cb := range fire {
		cb.admit(cb.admitted)
	}
	return err
}

func (q *Queue) advanceLocked(ctx context.Context) ([]callback, error) {
	var fire []callback

	marker, err := q.opts.Markers.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read in-flight marker: %w", err)
	}

	if marker != nil {
		age := q.opts.Now().Sub(marker.StartedAt)
		if age <= q.opts.Timeout {
			return nil, nil
		}

		q.opts.Logger.Warn("in-flight turn expired", "conversation_id", marker.ConversationID, "age", age)
		if err := q.opts.Markers.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear in-flight marker: %w", err)
		}

		if i := q.indexOf(marker.ConversationID); i >= 0 {
			abandoned := q.entries[i]
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			fire = append(fire, callback{admit: abandoned.admit, admitted: false})
		} else {
			q.opts.Logger.Warn("no queued input for expired turn", "conversation_id", marker.ConversationID)
		}
	}

	if len(q.entries) == 0 {
		return fire, nil
	}

	next := q.entries[0]
	if err := q.opts.Markers.Set(ctx, Marker{ConversationID: next.conversationID, StartedAt: q.opts.Now()}); err != nil {
		return fire, fmt.Errorf("failed to set in-flight marker: %w", err)
	}
	q.entries = q.entries[1:]

	q.opts.Logger.Debug("admitted input", "conversation_id", next.conversationID,
		"waited", q.opts.Now().Sub(next.enqueuedAt), "queue_length", len(q.entries))
	return append(fire, callback{admit: next.admit, admitted: true}), nil
}

func (q *Queue) indexOf(conversationID string) int {
	for i, e := range q.entries {
		if e.conversationID == conversationID {
			return i
		}
	}
	return -1
}

// Pop releases the marker held by conversationID and admits the next turn.
//
// The marker is only cleared when conversationID owns it. A completion that
// does not (a turn reclaimed after its timeout, or a duplicate Pop) is
// logged and leaves the marker untouched, so it cannot release the turn
// admitted after it. Callers expecting an unconditional release must not
// rely on Pop with a foreign conversation id.
func (q *Queue) Pop(ctx context.Context, conversationID string) error {
	q.mu.Lock()
	marker, err := q.opts.Markers.Get(ctx)
	if err != nil {
		q.mu.Unlock()
		return fmt.Errorf("failed to read in-flight marker: %w", err)
	}

	switch {
	case marker == nil:
		q.opts.Logger.Warn("pop without in-flight turn", "conversation_id", conversationID)
	case marker.ConversationID != conversationID:
		q.opts.Logger.Warn("unexpected conversation id on pop",
			"conversation_id", conversationID, "in_flight", marker.ConversationID)
	default:
		if err := q.opts.Markers.Clear(ctx); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("failed to clear in-flight marker: %w", err)
		}
	}
	q.mu.Unlock()

	return q.Advance(ctx)
}

// Watch calls Advance every interval until ctx is done, reclaiming abandoned
// turns even when no new input arrives.
func (q *Queue) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Advance(ctx); err != nil {
				q.opts.Logger.Error("queue sweep failed", "error", err)
			}
		}
	}
}

// Len returns the number of turns waiting for admission.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// InFlight returns the current marker or nil.
func (q *Queue) InFlight(ctx context.Context) (*Marker, error) {
	return q.opts.Markers.Get(ctx)
}

// Timeout returns the age after which an in-flight turn is reclaimed.
func (q *Queue) Timeout() time.Duration { return q.opts.Timeout }
