package testcase

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/keyword"
	"gorm.io/gorm"
)

var (
	// ErrTestCaseNotFound is returned when a test case is not found.
	ErrTestCaseNotFound = errors.New("test case not found")

	// ErrInvalidTestCaseName is returned when a test case name is empty.
	ErrInvalidTestCaseName = errors.New("test case name is required")

	// ErrInvalidProjectID is returned when project_id is not set.
	ErrInvalidProjectID = errors.New("project_id is required")

	// ErrInvalidStepPosition is returned when a step position is not positive.
	ErrInvalidStepPosition = errors.New("step position must be greater than zero")

	// ErrDuplicateStepPosition is returned when two steps share a position.
	ErrDuplicateStepPosition = errors.New("step positions must be unique within a test case")

	// ErrInvalidOperation is returned when a step has no operation.
	ErrInvalidOperation = errors.New("step operation is required")
)

// Step is one keyword invocation inside a test case. Steps are never edited
// individually; the whole list is replaced when the case is updated.
type Step struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	CaseID      uuid.UUID `json:"case_id" gorm:"type:char(36);not null;uniqueIndex:idx_case_position"`
	Position    int       `json:"position" gorm:"not null;uniqueIndex:idx_case_position"`
	Operation   string    `json:"operation" gorm:"type:varchar(64);not null"`
	Locator     *string   `json:"locator,omitempty" gorm:"type:text"`
	Value       *string   `json:"value,omitempty" gorm:"type:text"`
	Description string    `json:"description" gorm:"type:text"`
}

// TableName pins the table name used by migrations and raw cleanup queries.
func (Step) TableName() string {
	return "test_steps"
}

// BeforeCreate hook to generate UUID before creating a new step
func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// KeywordStep converts the stored step into the dispatcher's input.
func (s Step) KeywordStep() keyword.Step {
	return keyword.Step{
		Position:    s.Position,
		Operation:   s.Operation,
		Locator:     s.Locator,
		Value:       s.Value,
		Description: s.Description,
	}
}

// TestCase is a named, ordered sequence of steps belonging to a project and
// optionally a module.
type TestCase struct {
	ID          uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:char(36);not null;index:idx_test_cases_project_id"`
	ModuleID    *uuid.UUID `json:"module_id,omitempty" gorm:"type:char(36);index:idx_test_cases_module_id"`
	Name        string     `json:"name" gorm:"type:varchar(255);not null"`
	Description string     `json:"description" gorm:"type:text"`
	Steps       []Step     `json:"steps" gorm:"foreignKey:CaseID"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName pins the table name used by migrations and raw cleanup queries.
func (TestCase) TableName() string {
	return "test_cases"
}

// BeforeCreate hook to generate UUID before creating a new test case
func (tc *TestCase) BeforeCreate(tx *gorm.DB) error {
	if tc.ID == uuid.Nil {
		tc.ID = uuid.New()
	}
	return nil
}

// Validate checks if the test case has valid required fields and a
// well-formed step list.
func (tc *TestCase) Validate() error {
	if tc.Name == "" {
		return ErrInvalidTestCaseName
	}
	if tc.ProjectID == uuid.Nil {
		return ErrInvalidProjectID
	}

	seen := make(map[int]bool, len(tc.Steps))
	for _, step := range tc.Steps {
		if step.Position <= 0 {
			return ErrInvalidStepPosition
		}
		if seen[step.Position] {
			return ErrDuplicateStepPosition
		}
		seen[step.Position] = true
		if step.Operation == "" {
			return ErrInvalidOperation
		}
	}
	return nil
}

// SortedSteps returns a copy of the steps in ascending position order.
func (tc *TestCase) SortedSteps() []Step {
	steps := make([]Step, len(tc.Steps))
	copy(steps, tc.Steps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})
	return steps
}
