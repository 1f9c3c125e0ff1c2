package project

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for project persistence operations.
type Store interface {
	// Create creates a new project in the store.
	Create(ctx context.Context, project *Project) error

	// GetByID retrieves a project by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)

	// Update updates a project with the given setters.
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// Delete removes a project together with its modules, cases and steps.
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves a paginated list of projects, newest first.
	List(ctx context.Context, limit, offset int) ([]*Project, error)
}

// UpdateSetter is a function that updates a project field.
type UpdateSetter func(*Project) error
