package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/errs"
	"github.com/torsvc/tor-runtime/internal/queue"
)

func waitFor(t *testing.T, j *queue.Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = j.Wait(ctx)
}

func TestJobsRunInFIFOOrder(t *testing.T) {
	s := queue.NewScheduler(nil)
	defer s.Close()

	var mu sync.Mutex
	var order []int

	var jobs []*queue.Job
	for i := 0; i < 5; i++ {
		i := i
		jobs = append(jobs, s.Enqueue(queue.Action, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	for _, j := range jobs {
		waitFor(t, j)
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStopCancelsPendingStart(t *testing.T) {
	s := queue.NewScheduler(nil)
	defer s.Close()

	block := make(chan struct{})
	running := s.Enqueue(queue.Action, func(ctx context.Context) error {
		<-block
		return nil
	})
	require.Equal(t, queue.Executing, pollState(t, running, queue.Executing))

	start := s.Enqueue(queue.Start, func(ctx context.Context) error { return nil })
	stop := s.Enqueue(queue.Stop, func(ctx context.Context) error { return nil })

	close(block)
	waitFor(t, running)
	waitFor(t, start)
	waitFor(t, stop)

	require.Equal(t, queue.Cancelled, start.State())
	require.ErrorIs(t, start.Err(), errs.ErrInterruptedByStop)
	require.Equal(t, queue.Success, stop.State())
}

func TestStopCancelsPendingAction(t *testing.T) {
	s := queue.NewScheduler(nil)
	defer s.Close()

	block := make(chan struct{})
	running := s.Enqueue(queue.Action, func(ctx context.Context) error {
		<-block
		return nil
	})
	require.Equal(t, queue.Executing, pollState(t, running, queue.Executing))

	cmd := s.Enqueue(queue.Action, func(ctx context.Context) error { return nil })
	stop := s.Enqueue(queue.Stop, func(ctx context.Context) error { return nil })

	close(block)
	waitFor(t, running)
	waitFor(t, cmd)
	waitFor(t, stop)

	require.Equal(t, queue.Cancelled, cmd.State())
	require.ErrorIs(t, cmd.Err(), errs.ErrInterruptedByStop)
	require.Equal(t, queue.Success, stop.State())
}

func TestSecondStartCoalesces(t *testing.T) {
	s := queue.NewScheduler(nil)
	defer s.Close()

	block := make(chan struct{})
	running := s.Enqueue(queue.Action, func(ctx context.Context) error {
		<-block
		return nil
	})
	require.Equal(t, queue.Executing, pollState(t, running, queue.Executing))

	var mu sync.Mutex
	runCount := 0
	a := s.Enqueue(queue.Start, func(ctx context.Context) error {
		mu.Lock()
		runCount++
		mu.Unlock()
		return nil
	})
	b := s.Enqueue(queue.Start, func(ctx context.Context) error {
		mu.Lock()
		runCount++
		mu.Unlock()
		return nil
	})
	require.Same(t, a, b)

	close(block)
	waitFor(t, running)
	waitFor(t, a)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, runCount)
}

func TestExecutingJobInterruptedByStopObservesCancellation(t *testing.T) {
	s := queue.NewScheduler(nil)
	defer s.Close()

	interrupted := make(chan struct{})
	start := s.Enqueue(queue.Start, func(ctx context.Context) error {
		<-ctx.Done()
		close(interrupted)
		return ctx.Err()
	})
	pollState(t, start, queue.Executing)

	stop := s.Enqueue(queue.Stop, func(ctx context.Context) error { return nil })

	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("executing Start job was not interrupted")
	}

	waitFor(t, start)
	waitFor(t, stop)
	require.Equal(t, queue.Error, start.State())
	require.True(t, errors.Is(start.Err(), context.Canceled))
}

func pollState(t *testing.T, j *queue.Job, want queue.State) queue.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.State() == want {
			return want
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job never reached state %v, got %v", want, j.State())
	return j.State()
}
