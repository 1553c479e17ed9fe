// Package workqueue provides the deferred-execution queue an image
// context uses to run completion work outside any caller call stack.
package workqueue

import (
	"errors"
	"sync"

	"github.com/behrlich/go-dblk/internal/constants"
	"github.com/behrlich/go-dblk/internal/logging"
)

// ErrQueueClosed is returned by Submit after Shutdown has begun
var ErrQueueClosed = errors.New("workqueue: queue closed")

// Queue runs submitted units of work on a fixed pool of worker
// goroutines. Submit never executes work inline on the caller's stack;
// that guarantee is what the zero-sub-operation completion path relies on.
type Queue struct {
	tasks  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *logging.Logger
}

// Config holds work queue configuration
type Config struct {
	Workers int // Number of worker goroutines (default: DefaultWorkQueueWorkers)
	Backlog int // Buffered task backlog (default: DefaultWorkQueueBacklog)
	Logger  *logging.Logger
}

// New creates a work queue and starts its workers
func New(config Config) *Queue {
	if config.Workers <= 0 {
		config.Workers = constants.DefaultWorkQueueWorkers
	}
	if config.Backlog <= 0 {
		config.Backlog = constants.DefaultWorkQueueBacklog
	}
	if config.Logger == nil {
		config.Logger = logging.Default()
	}

	q := &Queue{
		tasks:  make(chan func(), config.Backlog),
		logger: config.Logger,
	}
	q.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go q.run(i)
	}
	return q
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()
	q.logger.Debugf("workqueue worker %d starting", worker)
	for fn := range q.tasks {
		// Panics from submitted work are the submitter's problem;
		// swallowing them here would hide callback bugs.
		fn()
	}
	q.logger.Debugf("workqueue worker %d exiting", worker)
}

// Submit enqueues fn for asynchronous execution. fn is guaranteed to run
// on a worker goroutine, never on the caller's stack. Submit blocks only
// when the backlog is full. Returns ErrQueueClosed after Shutdown.
func (q *Queue) Submit(fn func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.tasks <- fn
	return nil
}

// Shutdown stops accepting work, drains the backlog, and waits for all
// workers to exit. Safe to call more than once.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
