package queue

import (
	"context"
	"sync"
	"time"

	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency = 4
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultJobTimeout  = 20 * time.Minute
	maxBackoff         = 30 * time.Second
	queueDepth         = 256
)

// PoolOptions tunes the in-process worker pool.
type PoolOptions struct {
	Concurrency int
	MaxAttempts int
	BaseDelay   time.Duration
	JobTimeout  time.Duration
}

// Pool is an in-process Client backed by a bounded worker pool. Delivery is
// at-least-once; execution is single-flight per job key; transient handler
// errors are retried with exponential backoff up to MaxAttempts.
type Pool struct {
	handler Handler
	opts    PoolOptions

	jobs     chan Job
	shutdown chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
}

// NewPool constructs a Pool and starts its workers.
func NewPool(handler Handler, opts PoolOptions) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		handler:  handler,
		opts:     opts,
		jobs:     make(chan Job, queueDepth),
		shutdown: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}

	for i := 0; i < opts.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue submits a job for asynchronous execution and returns immediately.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case p.jobs <- job:
		metrics.IncJobsEnqueued()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrQueueClosed
	}
}

// Close stops accepting jobs and waits for in-flight work up to the context
// deadline.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// The job channel stays open: an Enqueue racing this Close may still be
	// sending, and a send on a closed channel panics. Workers drain what is
	// queued and exit on the shutdown signal instead.
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			p.dispatch(job)
		case <-p.shutdown:
			// Finish whatever is already queued, then exit.
			for {
				select {
				case job := <-p.jobs:
					p.dispatch(job)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) dispatch(job Job) {
	if !p.acquire(job.Key) {
		// Another worker is executing this key right now; defer the
		// duplicate instead of dropping it.
		p.requeueLater(job)
		return
	}
	p.execute(job)
	p.release(job.Key)
}

func (p *Pool) execute(job Job) {
	metrics.IncJobsStarted()
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(p.ctx, p.opts.JobTimeout)
		err := p.handler.HandleJob(attemptCtx, job)
		cancel()

		if err == nil {
			metrics.IncJobsCompleted()
			metrics.ObserveJobDurationMs(float64(time.Since(start).Milliseconds()))
			return
		}
		lastErr = err

		if IsPermanent(err) || p.ctx.Err() != nil {
			break
		}

		telemetry.Warn("queue.job_retry", map[string]any{
			"job_key": job.Key,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt < p.opts.MaxAttempts {
			if !p.sleep(backoffDelay(p.opts.BaseDelay, attempt)) {
				break
			}
		}
	}

	metrics.IncJobsFailed()
	telemetry.Error("queue.job_failed", map[string]any{
		"job_key":  job.Key,
		"attempts": p.opts.MaxAttempts,
		"error":    lastErr.Error(),
	})
	if fh, ok := p.handler.(FailureHandler); ok {
		// Failure recording must not be cut short by pool shutdown.
		failCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		fh.HandleFailure(failCtx, job, lastErr)
		cancel()
	}
}

func (p *Pool) acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[key]; busy {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Pool) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

func (p *Pool) requeueLater(job Job) {
	time.AfterFunc(p.opts.BaseDelay, func() {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		select {
		case p.jobs <- job:
		case <-p.ctx.Done():
		}
	})
}

func (p *Pool) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

var _ Client = (*Pool)(nil)
