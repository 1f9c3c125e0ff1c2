package testcase

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for test case persistence operations.
type Store interface {
	// Create creates a test case together with its steps.
	Create(ctx context.Context, testCase *TestCase) error

	// GetByID retrieves a test case with its steps ordered by position.
	GetByID(ctx context.Context, id uuid.UUID) (*TestCase, error)

	// Update applies the setters and replaces the step list wholesale.
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// Delete removes a test case and its steps.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByProject retrieves a paginated list of test cases for a project.
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*TestCase, error)

	// ListByModule retrieves every test case attached to a module.
	ListByModule(ctx context.Context, moduleID uuid.UUID) ([]*TestCase, error)
}

// UpdateSetter is a function that updates a test case field.
type UpdateSetter func(*TestCase) error
