package testrun

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTestRunNotFound is returned when a test run is not found.
	ErrTestRunNotFound = errors.New("test run not found")

	// ErrInvalidStatus is returned when status is invalid.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidLevel is returned when a log entry has an unknown level.
	ErrInvalidLevel = errors.New("invalid log level")

	// ErrPersistenceFailure is returned when a run and its log could not be written.
	// Nothing above the store can record the run once this happens.
	ErrPersistenceFailure = errors.New("failed to persist test run")
)

// Status is the terminal outcome of a test run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusPassed || s == StatusFailed
}

// Level is the severity of a run log entry.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// IsValid checks if the level is valid.
func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

// TestRun is one execution attempt of a test case. It is written once, when
// the run has finished, and never updated.
type TestRun struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	CaseID    uuid.UUID `json:"case_id" gorm:"type:char(36);not null;index:idx_test_runs_case_id"`
	Status    Status    `json:"status" gorm:"type:varchar(20);not null;index:idx_test_runs_status"`
	Executor  string    `json:"executor" gorm:"type:varchar(255)"`
	StartTime time.Time `json:"start_time" gorm:"not null"`
	EndTime   time.Time `json:"end_time" gorm:"not null"`
	Duration  float64   `json:"duration"`
	TracePath string    `json:"trace_path" gorm:"type:varchar(1024)"`
	LogPath   string    `json:"log_path" gorm:"type:varchar(1024)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name used by migrations.
func (TestRun) TableName() string {
	return "test_runs"
}

// BeforeCreate hook to generate UUID before creating a new test run
func (tr *TestRun) BeforeCreate(tx *gorm.DB) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return nil
}

// Validate checks if the test run has a terminal status.
func (tr *TestRun) Validate() error {
	if !tr.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Complete sets the final status, end time and duration in seconds.
func (tr *TestRun) Complete(status Status, end time.Time) {
	tr.Status = status
	tr.EndTime = end
	tr.Duration = end.Sub(tr.StartTime).Seconds()
}

// LogEntry is the recorded outcome of one attempted step, or the single
// critical entry of a run that failed outside step execution.
type LogEntry struct {
	ID             uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RunID          uuid.UUID `json:"run_id" gorm:"type:char(36);not null;index:idx_run_logs_run_id"`
	Seq            int       `json:"seq" gorm:"not null"`
	Position       *int      `json:"position"`
	Level          Level     `json:"level" gorm:"type:varchar(20);not null"`
	Message        string    `json:"message" gorm:"type:text"`
	ScreenshotPath string    `json:"screenshot_path,omitempty" gorm:"type:varchar(1024)"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName pins the table name used by migrations.
func (LogEntry) TableName() string {
	return "run_logs"
}

// BeforeCreate hook to generate UUID before creating a new log entry
func (e *LogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// StepEntry builds the log entry for a step at position.
func StepEntry(position int, level Level, message, screenshotPath string) LogEntry {
	return LogEntry{
		Position:       &position,
		Level:          level,
		Message:        message,
		ScreenshotPath: screenshotPath,
	}
}

// CriticalEntry builds the single top-level entry of a run that broke outside
// step execution.
func CriticalEntry(message string) LogEntry {
	return LogEntry{
		Level:   LevelCritical,
		Message: message,
	}
}
