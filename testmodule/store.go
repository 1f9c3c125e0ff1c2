package testmodule

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for module persistence operations.
type Store interface {
	// Create creates a new module in the store.
	Create(ctx context.Context, module *Module) error

	// GetByID retrieves a module by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Module, error)

	// Update updates a module with the given setters.
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// Delete removes a module. Its test cases are kept and detached.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByProject retrieves every module of a project.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Module, error)
}

// UpdateSetter is a function that updates a module field.
type UpdateSetter func(*Module) error
