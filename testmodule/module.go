package testmodule

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrModuleNotFound is returned when a module is not found.
	ErrModuleNotFound = errors.New("module not found")

	// ErrInvalidModuleName is returned when a module name is empty.
	ErrInvalidModuleName = errors.New("module name is required")

	// ErrInvalidProjectID is returned when project_id is not set.
	ErrInvalidProjectID = errors.New("project_id is required")
)

// Module groups related test cases within a project.
type Module struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	ProjectID   uuid.UUID `json:"project_id" gorm:"type:char(36);not null;index:idx_modules_project_id"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName pins the table name used by migrations and raw cleanup queries.
func (Module) TableName() string {
	return "modules"
}

// BeforeCreate hook to generate UUID before creating a new module
func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Validate checks if the module has valid required fields.
func (m *Module) Validate() error {
	if m.Name == "" {
		return ErrInvalidModuleName
	}
	if m.ProjectID == uuid.Nil {
		return ErrInvalidProjectID
	}
	return nil
}
