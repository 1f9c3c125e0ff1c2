package testrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"gorm.io/gorm"
)

// MySQLStore implements the Store interface using GORM.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new GORM-backed test run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Save inserts the run row, then one row per entry keyed by the new run id.
// It makes exactly one attempt.
func (s *MySQLStore) Save(ctx context.Context, run *TestRun, entries []LogEntry) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	for _, entry := range entries {
		if !entry.Level.IsValid() {
			return fmt.Errorf("%w: %w", ErrPersistenceFailure, ErrInvalidLevel)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for i := range entries {
			entries[i].RunID = run.ID
			entries[i].Seq = i + 1
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		s.logger.Error(ctx, "failed to save test run", map[string]interface{}{
			"error":   err.Error(),
			"case_id": run.CaseID.String(),
			"status":  string(run.Status),
			"entries": len(entries),
		})
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.logger.Info(ctx, "test run saved", map[string]interface{}{
		"test_run_id": run.ID.String(),
		"case_id":     run.CaseID.String(),
		"status":      string(run.Status),
		"entries":     len(entries),
	})

	return nil
}

// GetByID retrieves a test run by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error) {
	var testRun TestRun
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&testRun).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestRunNotFound
		}
		s.logger.Error(ctx, "failed to get test run by ID", map[string]interface{}{
			"error":       err.Error(),
			"test_run_id": id.String(),
		})
		return nil, err
	}

	return &testRun, nil
}

// ListByCase retrieves a paginated list of runs of a test case, newest first.
func (s *MySQLStore) ListByCase(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*TestRun, error) {
	var testRuns []*TestRun
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("start_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&testRuns).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list test runs by case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": caseID.String(),
			"limit":   limit,
			"offset":  offset,
		})
		return nil, err
	}

	return testRuns, nil
}

// ListLogs retrieves the log entries of a run in recording order.
func (s *MySQLStore) ListLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&entries).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list run logs", map[string]interface{}{
			"error":       err.Error(),
			"test_run_id": runID.String(),
		})
		return nil, err
	}

	return entries, nil
}
