package testrun

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and test run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &TestRun{}, &LogEntry{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

// createTestRun creates a finished test run with default values.
func createTestRun(caseID uuid.UUID, status Status, start time.Time) *TestRun {
	run := &TestRun{
		CaseID:    caseID,
		Executor:  "local",
		StartTime: start,
		TracePath: "reports/run/trace.zip",
		LogPath:   "reports/run/run.log",
	}
	run.Complete(status, start.Add(1500*time.Millisecond))
	return run
}
