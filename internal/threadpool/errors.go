package threadpool

import "errors"

// ErrCancelled is delivered to a job's Complete callback when Cancel pulls
// it out of the queue before a worker picks it up.
var ErrCancelled = errors.New("threadpool: job cancelled")
