package testmodule

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"gorm.io/gorm"
)

// MySQLStore implements the Store interface using GORM.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new GORM-backed module store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new module in the database.
func (s *MySQLStore) Create(ctx context.Context, module *Module) error {
	if err := module.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(module).Error; err != nil {
		s.logger.Error(ctx, "failed to create module", map[string]interface{}{
			"error":      err.Error(),
			"name":       module.Name,
			"project_id": module.ProjectID.String(),
		})
		return err
	}

	s.logger.Info(ctx, "module created", map[string]interface{}{
		"module_id":  module.ID.String(),
		"project_id": module.ProjectID.String(),
	})

	return nil
}

// GetByID retrieves a module by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Module, error) {
	var module Module
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&module).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModuleNotFound
		}
		s.logger.Error(ctx, "failed to get module by ID", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id.String(),
		})
		return nil, err
	}

	return &module, nil
}

// Update updates a module with the given setters.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	module, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(module); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(module).Error; err != nil {
		s.logger.Error(ctx, "failed to update module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id.String(),
		})
		return err
	}

	return nil
}

// Delete removes the module and detaches its test cases in one transaction.
func (s *MySQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&Module{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrModuleNotFound
		}
		return tx.Exec("UPDATE test_cases SET module_id = NULL WHERE module_id = ?", id).Error
	})

	if err != nil {
		if !errors.Is(err, ErrModuleNotFound) {
			s.logger.Error(ctx, "failed to delete module", map[string]interface{}{
				"error":     err.Error(),
				"module_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "module deleted", map[string]interface{}{
		"module_id": id.String(),
	})

	return nil
}

// ListByProject retrieves every module of a project ordered by name.
func (s *MySQLStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Module, error) {
	var modules []*Module
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&modules).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list modules by project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID.String(),
		})
		return nil, err
	}

	return modules, nil
}
