package testmodule

import (
	"testing"

	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and module store for testing.
// Test case tables are migrated too so Delete can detach cases.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Module{}, &testcase.TestCase{}, &testcase.Step{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}
