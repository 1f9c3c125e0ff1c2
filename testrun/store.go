package testrun

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for test run persistence operations.
// Runs are append-only: there is no update.
type Store interface {
	// Save inserts the run and then its log entries in one transaction.
	// Failures are wrapped with ErrPersistenceFailure.
	Save(ctx context.Context, run *TestRun, entries []LogEntry) error

	// GetByID retrieves a test run by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error)

	// ListByCase retrieves a paginated list of runs of a test case, newest first.
	ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*TestRun, error)

	// ListLogs retrieves the log entries of a run in the order they were recorded.
	ListLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error)
}
