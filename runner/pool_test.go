package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	ran   []uuid.UUID
	fail  map[uuid.UUID]bool
	block chan struct{}
}

func (r *recordingRunner) RunCase(ctx context.Context, caseID uuid.UUID) (*testrun.TestRun, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.ran = append(r.ran, caseID)
	r.mu.Unlock()
	if r.fail[caseID] {
		return nil, errors.New("persistence failed")
	}
	return &testrun.TestRun{ID: uuid.New(), CaseID: caseID, Status: testrun.StatusPassed}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestPool_RunsSubmittedCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := uuid.New()
	rr := &recordingRunner{fail: map[uuid.UUID]bool{failing: true}}
	log := logger.NewTestLogger()
	pool := NewPool(2, 10, rr, log)
	pool.Start(ctx)

	n, err := pool.Submit(uuid.New(), failing, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Eventually(t, func() bool { return rr.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return log.HasMessage("error", "queued test case did not complete")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
	assert.True(t, log.HasMessage("info", "worker stopping"))
}

func TestPool_SubmitReportsFullQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rr := &recordingRunner{block: make(chan struct{})}
	pool := NewPool(1, 1, rr, logger.NewTestLogger())

	// Without started workers nothing drains the queue.
	n, err := pool.Submit(uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, n)

	pool.Start(ctx)
	close(rr.block)
	require.Eventually(t, func() bool { return rr.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
}
