package keyword

import "fmt"

// Step is one operation invocation within a test case.
type Step struct {
	Position    int     `json:"position"`
	Operation   string  `json:"operation"`
	Locator     *string `json:"locator,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Describe returns the step description, or a generated one when empty.
func (s Step) Describe() string {
	if s.Description != "" {
		return s.Description
	}
	if s.Locator != nil && *s.Locator != "" {
		return fmt.Sprintf("%s on %s", s.Operation, *s.Locator)
	}
	return s.Operation
}

func (s Step) locator() string {
	if s.Locator == nil {
		return ""
	}
	return *s.Locator
}

func (s Step) value() string {
	if s.Value == nil {
		return ""
	}
	return *s.Value
}

// Result is the outcome of executing one step.
type Result struct {
	Success bool
	Message string

	// ScreenshotPath is set by capture_screenshot steps and by failures whose
	// screenshot could be captured.
	ScreenshotPath string

	// Err is the underlying failure, nil on success.
	Err error
}
