package project

import (
	"testing"

	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and project store for testing.
// Module and test case tables are migrated so Delete can cascade into them.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Project{}, &testmodule.Module{}, &testcase.TestCase{}, &testcase.Step{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

// createTestProject creates a project with default values.
func createTestProject(name string) *Project {
	return &Project{
		Name:     name,
		BaseURL:  "http://app.local",
		Browser:  BrowserChromium,
		Headless: true,
	}
}
