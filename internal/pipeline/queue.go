package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
)

// ErrQueueClosed is returned by Request after Close.
var ErrQueueClosed = errors.New("regenerate queue is closed")

// Runner performs one generation run.
type Runner interface {
	Generate(ctx context.Context) (Result, error)
}

// ResultHook observes every finished run.
type ResultHook func(run uint64, result Result, err error)

// Queue serializes regenerate requests onto a single worker. At most one
// request is pending at a time: requests arriving while one is already
// waiting are folded into it, and a request arriving during a run causes
// exactly one more run afterwards. Runs never overlap and a running
// generate is never cancelled.
type Queue struct {
	runner    Runner
	logger    logging.Logger
	handler   *generrors.ErrorHandler
	collector *generrors.ErrorCollector
	metrics   *RunMetrics
	hook      ResultHook

	pending chan struct{}
	stop    chan struct{}
	done    chan struct{}

	// mu protects closed
	mu     sync.RWMutex
	closed bool
	once   sync.Once

	run uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithErrorHandler reports failed runs through h instead of the logger alone.
func WithErrorHandler(h *generrors.ErrorHandler) QueueOption {
	return func(q *Queue) { q.handler = h }
}

// WithCollector records failed runs in c.
func WithCollector(c *generrors.ErrorCollector) QueueOption {
	return func(q *Queue) { q.collector = c }
}

// WithResultHook calls hook on the worker goroutine after every run.
func WithResultHook(hook ResultHook) QueueOption {
	return func(q *Queue) { q.hook = hook }
}

// NewQueue starts the worker goroutine.
func NewQueue(runner Runner, logger logging.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	q := &Queue{
		runner:  runner,
		logger:  logger.WithComponent("queue"),
		metrics: NewRunMetrics(),
		pending: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.handler == nil {
		q.handler = generrors.NewErrorHandler(q.logger, nil)
	}

	go q.worker()
	return q
}

// Request asks for a run. It never blocks.
func (q *Queue) Request() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.pending <- struct{}{}:
	default:
		q.metrics.RecordCoalesced()
	}
	return nil
}

// Close stops the worker once the in-flight run, if any, has finished. A
// pending request that has not started is dropped.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stop)
	})
	<-q.done
}

// Metrics returns a snapshot of the run counters.
func (q *Queue) Metrics() RunMetrics {
	return q.metrics.Snapshot()
}

func (q *Queue) worker() {
	defer close(q.done)
	for {
		// Prefer stopping over starting another run.
		select {
		case <-q.stop:
			return
		default:
		}

		select {
		case <-q.stop:
			return
		case <-q.pending:
			q.runOnce()
		}
	}
}

func (q *Queue) runOnce() {
	q.run++
	run := q.run
	ctx := context.Background()

	start := time.Now()
	result, err := q.safeGenerate(ctx)
	q.metrics.RecordRun(time.Since(start), err)

	if err != nil {
		q.handler.Handle(ctx, err)
		if q.collector != nil {
			q.collector.Add(run, err)
		}
	} else {
		q.logger.Info(ctx, "Regenerated", "run", run,
			"documents", result.Documents, "duration_ms", result.Duration.Milliseconds())
	}

	if q.hook != nil {
		q.hook(run, result, err)
	}
}

// safeGenerate keeps a panicking run from taking the worker down.
func (q *Queue) safeGenerate(ctx context.Context) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generate panicked: %v", r)
		}
	}()
	return q.runner.Generate(ctx)
}
