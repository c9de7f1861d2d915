package uvloop

import "errors"

// Sentinel errors returned by handle, request and loop operations. Callers
// should compare with errors.Is rather than direct equality, since wrapped
// variants may carry additional context.
var (
	// ErrLoopClosed is returned by Loop.Run and Loop.Close once the loop's
	// Close has succeeded.
	ErrLoopClosed = errors.New("uvloop: loop is closed")

	// ErrAlreadyClosing is returned specifically when Close is called twice
	// on the same handle (double-close). Operations other than Close
	// attempted against a CLOSING or CLOSED handle return ErrBadState
	// instead, per spec.md §4.2's distinction between the two failures.
	ErrAlreadyClosing = errors.New("uvloop: handle is already closing or closed")

	// ErrBadState is returned when an operation other than Close (Start,
	// Write, ReadStart, Shutdown, and similar) is attempted against a
	// handle already CLOSING or CLOSED — the "bad file descriptor"-class
	// failure spec.md §4.2 documents separately from double-close.
	ErrBadState = errors.New("uvloop: handle is not in a usable state")

	// ErrInvalidArgument covers malformed timer repeats, zero-length
	// buffers where one is required, and similar caller errors.
	ErrInvalidArgument = errors.New("uvloop: invalid argument")

	// ErrWouldBlock is returned by TryWrite when a single non-blocking
	// write attempt could not complete immediately.
	ErrWouldBlock = errors.New("uvloop: operation would block")

	// ErrNoMemory mirrors libuv's UV_ENOMEM: delivered to a stream's read
	// callback when its AllocCallback returns a nil or empty buffer; no
	// read is attempted in that case.
	ErrNoMemory = errors.New("uvloop: no memory available for operation")

	// ErrTooManyHandles names libuv's UV_EMFILE class (a handle-count
	// limit exceeded). No operation in this package returns it; the
	// package has no handle-count limit.
	ErrTooManyHandles = errors.New("uvloop: too many open handles")

	// ErrAlreadyExists names libuv's UV_EADDRINUSE/UV_EEXIST class (a
	// resource already bound elsewhere). No operation in this package
	// returns it; Listen takes an already-bound net.Listener.
	ErrAlreadyExists = errors.New("uvloop: resource already exists")

	// ErrTimedOut names the class of an operation exceeding an explicit
	// deadline. No operation in this package returns it.
	ErrTimedOut = errors.New("uvloop: operation timed out")

	// ErrCancelled is delivered to a request's callback when it is
	// cancelled before completion (queued threadpool work, queued writes
	// drained by a stream close).
	ErrCancelled = errors.New("uvloop: request cancelled")

	// ErrNotQueued is returned by Work.Cancel when the work item is no
	// longer sitting in the threadpool queue (already running or done).
	ErrNotQueued = errors.New("uvloop: work item is not queued")

	// ErrPollerClosed is returned by Poller methods called after Close.
	ErrPollerClosed = errors.New("uvloop: poller is closed")

	// ErrShuttingDown is returned when Write is called on a stream that
	// has already started its shutdown sequence.
	ErrShuttingDown = errors.New("uvloop: stream is shutting down")

	// ErrEOF is delivered to a stream's read callback when the peer has
	// performed an orderly shutdown.
	ErrEOF = errors.New("uvloop: end of stream")
)
