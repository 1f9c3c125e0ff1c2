package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound is returned when a project is not found.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidProjectName is returned when a project name is empty.
	ErrInvalidProjectName = errors.New("project name is required")

	// ErrInvalidBrowser is returned when the browser kind is not supported.
	ErrInvalidBrowser = errors.New("browser must be one of chromium, firefox, webkit")
)

// Browser is the kind of browser a project's cases run in.
type Browser string

const (
	BrowserChromium Browser = "chromium"
	BrowserFirefox  Browser = "firefox"
	BrowserWebkit   Browser = "webkit"
)

// IsValid checks if the browser kind is supported.
func (b Browser) IsValid() bool {
	switch b {
	case BrowserChromium, BrowserFirefox, BrowserWebkit:
		return true
	default:
		return false
	}
}

// Project groups modules and test cases that target one application.
type Project struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	BaseURL     string    `json:"base_url" gorm:"type:varchar(512)"`
	Browser     Browser   `json:"browser" gorm:"type:varchar(20);not null"`
	Headless    bool      `json:"headless" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating a new project
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Validate checks if the project has valid required fields.
// An empty browser defaults to chromium.
func (p *Project) Validate() error {
	if p.Name == "" {
		return ErrInvalidProjectName
	}
	if p.Browser == "" {
		p.Browser = BrowserChromium
	}
	if !p.Browser.IsValid() {
		return ErrInvalidBrowser
	}
	return nil
}

// Config is the subset of a project that a remote executor needs to run its cases.
func (p *Project) Config() map[string]interface{} {
	return map[string]interface{}{
		"id":       p.ID.String(),
		"name":     p.Name,
		"base_url": p.BaseURL,
		"browser":  string(p.Browser),
		"headless": p.Headless,
	}
}
