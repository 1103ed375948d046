package queue

import (
	"context"
	"errors"
)

// Client enqueues jobs for asynchronous execution.
type Client interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes a dequeued job. Handlers must be idempotent keyed on
// Job.Key: executing a job whose work is already done must be a no-op.
type Handler interface {
	HandleJob(ctx context.Context, job Job) error
}

// FailureHandler is optionally implemented by handlers that need to record
// a job's terminal failure once retries are exhausted.
type FailureHandler interface {
	HandleFailure(ctx context.Context, job Job, cause error)
}

// ErrQueueClosed is returned by Enqueue after the pool has been closed.
var ErrQueueClosed = errors.New("queue closed")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable. The pool stops retrying a job
// whose handler returned a permanent error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the non-retryable marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
