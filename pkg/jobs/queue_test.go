package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesSubmittedJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := New("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		return nil
	}, Config{Workers: 2, BufferSize: 8})
	q.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(Job{ID: id}))
	}
	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
}

func TestQueueRejectsBeforeStartAndAfterStop(t *testing.T) {
	q := New("test", func(context.Context, Job) error { return nil }, Config{})
	require.ErrorIs(t, q.Submit(Job{ID: "early"}), ErrQueueStopped)

	q.Start(context.Background())
	require.NoError(t, q.Stop(context.Background()))
	require.ErrorIs(t, q.Submit(Job{ID: "late"}), ErrQueueStopped)
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	q := New("test", func(context.Context, Job) error {
		<-release
		return nil
	}, Config{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.Submit(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Submit(Job{ID: "buffered"}))
	require.ErrorIs(t, q.Submit(Job{ID: "overflow"}), ErrQueueFull)

	close(release)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueRetriesThenDeadLetters(t *testing.T) {
	var calls int32
	dead := make(chan Job, 1)
	q := New("test", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, Config{
		MaxRetries:   2,
		BaseBackoff:  time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		OnDeadLetter: func(job Job, _ error) { dead <- job },
	})
	q.Start(context.Background())
	require.NoError(t, q.Submit(Job{ID: "flaky"}))

	select {
	case job := <-dead:
		require.Equal(t, "flaky", job.ID)
		require.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never dead-lettered")
	}
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueBackoffIsCapped(t *testing.T) {
	q := New("test", nil, Config{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond})
	require.Equal(t, 100*time.Millisecond, q.backoff(1))
	require.Equal(t, 200*time.Millisecond, q.backoff(2))
	require.Equal(t, 300*time.Millisecond, q.backoff(3))
	require.Equal(t, 300*time.Millisecond, q.backoff(8))
}
