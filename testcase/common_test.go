package testcase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and test case store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &TestCase{}, &Step{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

func strPtr(s string) *string { return &s }

// createTestCase builds the login scenario used across tests.
func createTestCase(name string, projectID uuid.UUID) *TestCase {
	return &TestCase{
		Name:      name,
		ProjectID: projectID,
		Steps: []Step{
			{Position: 1, Operation: "navigate", Value: strPtr("/login")},
			{Position: 2, Operation: "fill", Locator: strPtr("#user"), Value: strPtr("bob")},
			{Position: 3, Operation: "click", Locator: strPtr("#submit")},
			{Position: 4, Operation: "assert_text_equals", Locator: strPtr("#greeting"), Value: strPtr("Welcome bob")},
		},
	}
}
