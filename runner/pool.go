package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
)

// ErrQueueFull is returned by Submit when no more cases can be queued.
var ErrQueueFull = errors.New("run queue is full")

// CaseRunner runs a single test case to completion.
type CaseRunner interface {
	RunCase(ctx context.Context, caseID uuid.UUID) (*testrun.TestRun, error)
}

// Pool runs queued test cases on a fixed number of goroutines. It backs the
// fire-and-forget run triggers: callers get an acknowledgement immediately
// and results land in the run store.
type Pool struct {
	queue      chan uuid.UUID
	maxWorkers int
	runner     CaseRunner
	logger     logger.Logger
	wg         sync.WaitGroup
}

// NewPool creates a pool. queueSize bounds how many cases may wait.
func NewPool(maxWorkers, queueSize int, runner CaseRunner, log logger.Logger) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = maxWorkers
	}
	return &Pool{
		queue:      make(chan uuid.UUID, queueSize),
		maxWorkers: maxWorkers,
		runner:     runner,
		logger:     log,
	}
}

// Start spawns the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info(ctx, "starting run pool", map[string]interface{}{
		"max_workers": p.maxWorkers,
		"queue_size":  cap(p.queue),
	})
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit queues cases without blocking. It returns how many were queued and
// ErrQueueFull if the queue filled up before all of them fit.
func (p *Pool) Submit(caseIDs ...uuid.UUID) (int, error) {
	for i, id := range caseIDs {
		select {
		case p.queue <- id:
		default:
			return i, ErrQueueFull
		}
	}
	return len(caseIDs), nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Info(ctx, "worker started", map[string]interface{}{
		"worker_id": id,
	})
	for {
		select {
		case caseID := <-p.queue:
			p.logger.Info(ctx, "worker running test case", map[string]interface{}{
				"worker_id": id,
				"case_id":   caseID.String(),
			})
			run, err := p.runner.RunCase(ctx, caseID)
			if err != nil {
				p.logger.Error(ctx, "queued test case did not complete", map[string]interface{}{
					"worker_id": id,
					"case_id":   caseID.String(),
					"error":     err.Error(),
				})
				continue
			}
			p.logger.Info(ctx, "worker finished test case", map[string]interface{}{
				"worker_id": id,
				"case_id":   caseID.String(),
				"run_id":    run.ID.String(),
				"status":    string(run.Status),
			})
		case <-ctx.Done():
			p.logger.Info(ctx, "worker stopping", map[string]interface{}{
				"worker_id": id,
			})
			return
		}
	}
}
