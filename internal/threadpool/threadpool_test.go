package threadpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJob(t *testing.T) {
	p := New(2)
	defer p.Close()

	done := make(chan int, 1)
	p.Submit(Job{
		Fn: func() (any, error) { return 42, nil },
		Complete: func(result any, err error) {
			require.NoError(t, err)
			done <- result.(int)
		},
	})

	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}
}

func TestCancelQueuedJob(t *testing.T) {
	p := New(1)
	defer p.Close()

	// occupy the single worker so the next submission stays queued
	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(Job{
		Fn: func() (any, error) {
			close(started)
			<-block
			return nil, nil
		},
	})
	<-started

	var mu sync.Mutex
	var gotErr error
	completed := make(chan struct{})
	h := p.Submit(Job{
		Fn: func() (any, error) { return nil, nil },
		Complete: func(_ any, err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
			close(completed)
		},
	})

	ok := p.Cancel(h)
	require.True(t, ok)

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("cancelled job's Complete never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	require.True(t, errors.Is(gotErr, ErrCancelled))

	close(block)
}

func TestCancelAfterRunningFails(t *testing.T) {
	p := New(1)
	defer p.Close()

	done := make(chan struct{})
	h := p.Submit(Job{
		Fn: func() (any, error) { return nil, nil },
		Complete: func(any, error) { close(done) },
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	require.False(t, p.Cancel(h))
}

func TestSubmitAfterCloseIsCancelled(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Close())

	done := make(chan error, 1)
	p.Submit(Job{
		Fn:       func() (any, error) { return nil, nil },
		Complete: func(_ any, err error) { done <- err },
	})

	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Complete never ran for post-close submission")
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	enqueued []int
	finished []bool
}

func (o *recordingObserver) JobEnqueued(depth int) {
	o.mu.Lock()
	o.enqueued = append(o.enqueued, depth)
	o.mu.Unlock()
}

func (o *recordingObserver) JobFinished(cancelled bool) {
	o.mu.Lock()
	o.finished = append(o.finished, cancelled)
	o.mu.Unlock()
}

func TestObserverReceivesEnqueueAndFinish(t *testing.T) {
	p := New(1)
	defer p.Close()

	obs := &recordingObserver{}
	p.SetObserver(obs)

	done := make(chan struct{})
	p.Submit(Job{
		Fn:       func() (any, error) { return nil, nil },
		Complete: func(any, error) { close(done) },
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.enqueued, 1)
	require.Equal(t, []bool{false}, obs.finished)
}

func TestSizeFromEnv(t *testing.T) {
	t.Setenv("UVLOOP_THREADPOOL_SIZE", "256")
	require.Equal(t, 128, Size())

	t.Setenv("UVLOOP_THREADPOOL_SIZE", "0")
	require.Equal(t, 1, Size())

	t.Setenv("UVLOOP_THREADPOOL_SIZE", "not-a-number")
	require.Equal(t, defaultWorkers, Size())

	t.Setenv("UVLOOP_THREADPOOL_SIZE", "")
	require.Equal(t, defaultWorkers, Size())
}
