package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) admit(id string) AdmitFunc {
	return func(admitted bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if admitted {
			r.events = append(r.events, "+"+id)
		} else {
			r.events = append(r.events, "-"+id)
		}
	}
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestQueue(clock *fakeClock) *Queue {
	return New(func(o *Options) {
		o.Now = clock.Now
	})
}

func TestQueue_AdmitsOneAtATimeInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(newFakeClock())
	rec := &recorder{}

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.AddInput(ctx, id, rec.admit(id)))
	}
	assert.Equal(t, []string{"+a"}, rec.Events())
	assert.Equal(t, 2, q.Len())

	marker, err := q.InFlight(ctx)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "a", marker.ConversationID)

	require.NoError(t, q.Pop(ctx, "a"))
	assert.Equal(t, []string{"+a", "+b"}, rec.Events())

	require.NoError(t, q.Pop(ctx, "b"))
	require.NoError(t, q.Pop(ctx, "c"))
	assert.Equal(t, []string{"+a", "+b", "+c"}, rec.Events())

	marker, err = q.InFlight(ctx)
	require.NoError(t, err)
	assert.Nil(t, marker)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TimeoutRecovery(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q := newTestQueue(clock)
	rec := &recorder{}

	require.NoError(t, q.AddInput(ctx, "stuck", rec.admit("stuck-1")))
	require.NoError(t, q.AddInput(ctx, "other", rec.admit("other")))

	clock.Advance(5 * time.Second)
	require.NoError(t, q.Advance(ctx))
	assert.Equal(t, []string{"+stuck-1"}, rec.Events(), "marker is still fresh")

	clock.Advance(6 * time.Second)
	require.NoError(t, q.Advance(ctx))
	assert.Equal(t, []string{"+stuck-1", "+other"}, rec.Events())

	marker, err := q.InFlight(ctx)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "other", marker.ConversationID)
}

func TestQueue_TimeoutFailsQueuedTurnOfSameConversation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q := newTestQueue(clock)
	rec := &recorder{}

	require.NoError(t, q.AddInput(ctx, "a", rec.admit("a-1")))
	require.NoError(t, q.AddInput(ctx, "b", rec.admit("b-1")))
	require.NoError(t, q.AddInput(ctx, "a", rec.admit("a-2")))

	clock.Advance(DefaultTimeout + time.Millisecond)
	require.NoError(t, q.Advance(ctx))

	assert.Equal(t, []string{"+a-1", "-a-2", "+b-1"}, rec.Events())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_LatePopIsIgnored(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q := newTestQueue(clock)
	rec := &recorder{}

	require.NoError(t, q.AddInput(ctx, "slow", rec.admit("slow")))
	require.NoError(t, q.AddInput(ctx, "next", rec.admit("next")))
	clock.Advance(11 * time.Second)
	require.NoError(t, q.Advance(ctx))

	// the reclaimed turn finishes late
	require.NoError(t, q.Pop(ctx, "slow"))

	marker, err := q.InFlight(ctx)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "next", marker.ConversationID)
}

func TestQueue_CallbackMayReenter(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(newFakeClock())
	done := make(chan struct{})

	require.NoError(t, q.AddInput(ctx, "a", func(admitted bool) {
		require.True(t, admitted)
		// releasing from inside the callback must not deadlock
		require.NoError(t, q.Pop(ctx, "a"))
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not complete")
	}
}

func TestQueue_AcquireSerializesConcurrentTurns(t *testing.T) {
	ctx := context.Background()
	q := New()

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		wg       sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if !assert.NoError(t, q.Acquire(ctx, id)) {
				return
			}

			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()

			assert.NoError(t, q.Pop(ctx, id))
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_AcquireTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	q := newTestQueue(clock)

	require.NoError(t, q.Acquire(ctx, "a"))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Acquire(ctx, "a") }()

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	clock.Advance(DefaultTimeout + time.Second)
	require.NoError(t, q.Advance(ctx))

	err := <-errCh
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrQueueTimeout))
}

func TestQueue_AcquireCancelWithdraws(t *testing.T) {
	q := newTestQueue(newFakeClock())
	require.NoError(t, q.Acquire(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- q.Acquire(ctx, "b") }()

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newFakeClock()
	q := newTestQueue(clock)
	rec := &recorder{}

	require.NoError(t, q.AddInput(ctx, "a", rec.admit("a")))
	require.NoError(t, q.AddInput(ctx, "b", rec.admit("b")))
	clock.Advance(time.Minute)

	go q.Watch(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.Events()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"+a", "+b"}, rec.Events())
}

type failingMarkers struct{ InMemoryMarkerStore }

func (*failingMarkers) Set(context.Context, Marker) error { return errors.New("boom") }

func TestQueue_MarkerStoreFailureKeepsEntry(t *testing.T) {
	q := New(func(o *Options) { o.Markers = &failingMarkers{} })
	rec := &recorder{}

	err := q.AddInput(context.Background(), "a", rec.admit("a"))
	require.Error(t, err)
	assert.Empty(t, rec.Events())
	assert.Equal(t, 1, q.Len())
}
