package testcase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQLStore implements the Store interface using GORM.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new GORM-backed test case store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create creates the test case row and inserts its steps in one transaction.
func (s *MySQLStore) Create(ctx context.Context, testCase *TestCase) error {
	if err := testCase.Validate(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(testCase).Error; err != nil {
			return err
		}
		return insertSteps(tx, testCase)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to create test case", map[string]interface{}{
			"error":      err.Error(),
			"name":       testCase.Name,
			"project_id": testCase.ProjectID.String(),
		})
		return err
	}

	s.logger.Info(ctx, "test case created", map[string]interface{}{
		"test_case_id": testCase.ID.String(),
		"project_id":   testCase.ProjectID.String(),
		"steps":        len(testCase.Steps),
	})

	return nil
}

func insertSteps(tx *gorm.DB, testCase *TestCase) error {
	if len(testCase.Steps) == 0 {
		return nil
	}
	for i := range testCase.Steps {
		testCase.Steps[i].CaseID = testCase.ID
	}
	return tx.Create(&testCase.Steps).Error
}

// GetByID retrieves a test case with its steps ordered by position.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*TestCase, error) {
	var testCase TestCase
	err := s.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("id = ?", id).
		First(&testCase).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestCaseNotFound
		}
		s.logger.Error(ctx, "failed to get test case by ID", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": id.String(),
		})
		return nil, err
	}

	return &testCase, nil
}

// Update applies the setters, then rewrites the case row and replaces every
// step in one transaction.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	testCase, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(testCase); err != nil {
			return err
		}
	}
	if err := testCase.Validate(); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&TestCase{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"name":        testCase.Name,
				"description": testCase.Description,
				"module_id":   testCase.ModuleID,
				"updated_at":  time.Now(),
			}).Error
		if err != nil {
			return err
		}

		if err := tx.Where("case_id = ?", id).Delete(&Step{}).Error; err != nil {
			return err
		}
		return insertSteps(tx, testCase)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to update test case", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": id.String(),
		})
		return err
	}

	s.logger.Info(ctx, "test case updated", map[string]interface{}{
		"test_case_id": id.String(),
		"steps":        len(testCase.Steps),
	})

	return nil
}

// Delete removes a test case and its steps.
func (s *MySQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("case_id = ?", id).Delete(&Step{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&TestCase{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTestCaseNotFound
		}
		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrTestCaseNotFound) {
			s.logger.Error(ctx, "failed to delete test case", map[string]interface{}{
				"error":        err.Error(),
				"test_case_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "test case deleted", map[string]interface{}{
		"test_case_id": id.String(),
	})

	return nil
}

// ListByProject retrieves a paginated list of test cases for a project, oldest first.
func (s *MySQLStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*TestCase, error) {
	var testCases []*TestCase
	err := s.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&testCases).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list test cases by project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID.String(),
			"limit":      limit,
			"offset":     offset,
		})
		return nil, err
	}

	return testCases, nil
}

// ListByModule retrieves every test case attached to a module, oldest first.
func (s *MySQLStore) ListByModule(ctx context.Context, moduleID uuid.UUID) ([]*TestCase, error) {
	var testCases []*TestCase
	err := s.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("module_id = ?", moduleID).
		Order("created_at ASC").
		Find(&testCases).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list test cases by module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": moduleID.String(),
		})
		return nil, err
	}

	return testCases, nil
}
