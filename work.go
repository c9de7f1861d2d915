package uvloop

import (
	"context"
	"errors"

	"github.com/arrowlake/uvloop/internal/telemetry"
	"github.com/arrowlake/uvloop/internal/threadpool"
)

// WorkCallback reports the result of work submitted via Loop.QueueWork,
// invoked on the loop goroutine.
type WorkCallback func(w *Work, err error)

// Work is a request offloaded to the threadpool. Unlike stream requests it
// has no owning handle: its lifetime is just the interval between
// QueueWork and its single callback invocation.
type Work struct {
	Request
	result any
	handle threadpool.Handle
	pool   *threadpool.Pool
}

// Result returns the value fn returned, valid only once the callback has
// fired with a nil error.
func (w *Work) Result() any { return w.result }

// QueueWork runs fn on a threadpool worker goroutine and reports its
// result via cb on the loop goroutine. fn must not touch anything owned by
// the loop or any handle bound to it; cb may freely do so.
func (l *Loop) QueueWork(fn func() (any, error), cb WorkCallback) *Work {
	w := &Work{pool: l.pool}
	w.Request.init(l, nil, ReqWork, func(r *Request, err error) {
		if cb != nil {
			cb(w, err)
		}
	})
	_, span := l.tel.Tracer.StartSpan(context.Background(), telemetry.SpanThreadpoolJob)
	w.handle = l.pool.Submit(threadpool.Job{
		Fn: fn,
		Complete: func(result any, err error) {
			if errors.Is(err, threadpool.ErrCancelled) {
				err = ErrCancelled
			}
			l.postCross(func() {
				span.Finish()
				w.result = result
				w.Request.finish(err)
			})
		},
	})
	return w
}

// Cancel removes the work item from the threadpool queue if it has not
// started running yet, delivering ErrCancelled to its callback on the loop
// goroutine. It reports ErrNotQueued if the item is no longer queued
// (already running or already completed).
func (w *Work) Cancel() error {
	if w.pool.Cancel(w.handle) {
		return nil
	}
	return ErrNotQueued
}
