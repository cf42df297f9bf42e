package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when the primary queue has no free slot.
	ErrQueueFull = errors.New("host: primary queue full")
	// ErrClosed is returned after the queue has been closed.
	ErrClosed = errors.New("host: primary queue closed")
)

type task struct {
	name string
	fn   func()
}

// Queue is a bounded task queue drained by a single worker, standing in for
// the host's primary thread. Tasks run in the order they were scheduled.
type Queue struct {
	tasks  chan task
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Scheduler = (*Queue)(nil)

// NewQueue creates a queue holding at most size pending tasks.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		tasks:  make(chan task, size),
		logger: logger,
	}
}

// Schedule enqueues fn without blocking.
func (q *Queue) Schedule(name string, fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Run executes tasks until ctx is cancelled or the queue is closed and
// drained. Only one Run may be active at a time.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-q.tasks:
			if !ok {
				return nil
			}
			q.exec(t)
		}
	}
}

// RunPending executes every task queued so far on the calling goroutine and
// returns how many ran. It must not be used while Run is active.
func (q *Queue) RunPending() int {
	n := 0
	for {
		select {
		case t, ok := <-q.tasks:
			if !ok {
				return n
			}
			q.exec(t)
			n++
		default:
			return n
		}
	}
}

// Close stops accepting tasks. Pending tasks are still executed by Run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

func (q *Queue) exec(t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("primary task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn()
}
