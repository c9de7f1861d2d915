// Package threadpool implements a fixed-size worker pool for offloading
// blocking work off the loop goroutine, grounded on original_source's
// threadpool.c: a bounded worker count, one FIFO queue shared by all
// workers, and cancel-iff-still-queued semantics.
package threadpool

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/gammazero/deque"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkers     = 1
	maxWorkers     = 128
	defaultWorkers = 4
	sizeEnvVar     = "UVLOOP_THREADPOOL_SIZE"
)

// Job is one unit of offloaded work: Fn runs on a worker goroutine, Complete
// runs on that same worker goroutine immediately after Fn returns. A job
// cancelled before it ran gets Complete with ErrCancelled on Cancel's
// calling goroutine, and a job submitted to a closed pool gets Complete
// with context.Canceled on Submit's calling goroutine.
// Callers that need the result on a particular goroutine (e.g. a loop's own
// thread) must hop there themselves inside Complete.
type Job struct {
	Fn       func() (any, error)
	Complete func(result any, err error)
}

// Handle identifies a submitted job for Cancel.
type Handle struct {
	id uint64
}

// Observer receives pool lifecycle events for instrumentation. All methods
// are called synchronously from whichever goroutine triggered the event
// (Submit's caller, a worker, or Cancel's caller), so implementations must
// be cheap and non-blocking — exactly the contract internal/telemetry's
// counters and gauges already satisfy. A nil Observer (the default)
// disables instrumentation entirely.
type Observer interface {
	// JobEnqueued reports the queue depth immediately after a job was
	// added to the queue by Submit or removed from it by Cancel.
	JobEnqueued(queueDepth int)
	// JobFinished reports that a job reached a terminal state: ran to
	// completion (cancelled=false), or was cancelled before running or
	// submitted to a closed pool (cancelled=true). For a job that ran, it
	// is called before the job's Complete callback.
	JobFinished(cancelled bool)
}

type queuedJob struct {
	id  uint64
	job Job
}

// Pool runs a fixed number of worker goroutines pulling from one FIFO
// queue. Submitted jobs run in submission order across however many
// workers are idle; Cancel only succeeds while a job is still sitting in
// the queue; once a worker has popped it, it runs to completion.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  deque.Deque[*queuedJob]
	closed bool
	nextID uint64
	obs    Observer

	g errgroup.Group
}

// SetObserver installs obs to receive subsequent pool lifecycle events.
// Pass nil to disable instrumentation. Safe to call at any time.
func (p *Pool) SetObserver(obs Observer) {
	p.mu.Lock()
	p.obs = obs
	p.mu.Unlock()
}

// Size resolves the worker count: the UVLOOP_THREADPOOL_SIZE environment
// variable if set to a valid integer, clamped to [1, 128], else 4.
func Size() int {
	if v := os.Getenv(sizeEnvVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < minWorkers {
				n = minWorkers
			}
			if n > maxWorkers {
				n = maxWorkers
			}
			return n
		}
	}
	return defaultWorkers
}

// New starts a pool with the given number of workers. A size <= 0 resolves
// via Size().
func New(size int) *Pool {
	if size <= 0 {
		size = Size()
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		p.g.Go(func() error {
			p.worker()
			return nil
		})
	}
	return p
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.queue.Len() == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		qj := p.queue.PopFront()
		obs := p.obs
		p.mu.Unlock()

		result, err := qj.job.Fn()
		if obs != nil {
			obs.JobFinished(false)
		}
		if qj.job.Complete != nil {
			qj.job.Complete(result, err)
		}
	}
}

// Submit enqueues job and returns a Handle that can be passed to Cancel.
// Submit on a closed pool runs job.Complete synchronously with
// context.Canceled and returns a zero Handle.
func (p *Pool) Submit(job Job) Handle {
	p.mu.Lock()
	if p.closed {
		obs := p.obs
		p.mu.Unlock()
		if job.Complete != nil {
			job.Complete(nil, context.Canceled)
		}
		if obs != nil {
			obs.JobFinished(true)
		}
		return Handle{}
	}
	p.nextID++
	qj := &queuedJob{id: p.nextID, job: job}
	p.queue.PushBack(qj)
	depth := p.queue.Len()
	obs := p.obs
	p.mu.Unlock()
	p.cond.Signal()
	if obs != nil {
		obs.JobEnqueued(depth)
	}
	return Handle{id: qj.id}
}

// Cancel removes the job identified by h from the queue and, if found,
// runs its Complete callback with ErrCancelled on the calling goroutine.
// It reports false if the job is no longer queued (already running, done,
// or never existed) — a job in flight on a worker always runs to
// completion.
func (p *Pool) Cancel(h Handle) bool {
	if h.id == 0 {
		return false
	}
	p.mu.Lock()
	n := p.queue.Len()
	for i := 0; i < n; i++ {
		qj := p.queue.At(i)
		if qj.id == h.id {
			p.queue.Remove(i)
			depth := p.queue.Len()
			obs := p.obs
			p.mu.Unlock()
			if qj.job.Complete != nil {
				qj.job.Complete(nil, ErrCancelled)
			}
			if obs != nil {
				obs.JobEnqueued(depth)
				obs.JobFinished(true)
			}
			return true
		}
	}
	p.mu.Unlock()
	return false
}

// QueueDepth reports the number of jobs currently queued (not counting any
// in flight on a worker).
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Close stops accepting new jobs, lets in-flight jobs finish, and waits for
// every worker goroutine to exit. Any jobs still queued at the moment of
// Close run to completion normally; Close does not cancel them.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return p.g.Wait()
}
