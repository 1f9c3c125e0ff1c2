package main

import (
	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
)

// PaginatedResponse matches handlers.PaginatedResponse.
type PaginatedResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// SuccessResponse matches handlers.SuccessResponse.
type SuccessResponse struct {
	Message string `json:"message"`
}

// TriggeredResponse matches handlers.TriggeredResponse.
type TriggeredResponse struct {
	Message   string     `json:"message"`
	Count     int        `json:"count"`
	CommandID *uuid.UUID `json:"command_id,omitempty"`
}

// CreateProjectRequest matches handlers.CreateProjectRequest.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseURL     string `json:"base_url"`
	Browser     string `json:"browser,omitempty"`
	Headless    *bool  `json:"headless,omitempty"`
}

// UpdateProjectRequest matches handlers.UpdateProjectRequest.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	BaseURL     *string `json:"base_url,omitempty"`
	Browser     *string `json:"browser,omitempty"`
	Headless    *bool   `json:"headless,omitempty"`
}

// StepRequest matches handlers.StepRequest.
type StepRequest struct {
	Position    int     `json:"position"`
	Operation   string  `json:"operation"`
	Locator     *string `json:"locator,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description string  `json:"description,omitempty"`
}

// CreateTestCaseRequest matches handlers.CreateTestCaseRequest.
type CreateTestCaseRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	ModuleID    *uuid.UUID    `json:"module_id,omitempty"`
	Steps       []StepRequest `json:"steps"`
}

// RunDetailResponse matches handlers.RunDetailResponse.
type RunDetailResponse struct {
	testrun.TestRun
	Logs []testrun.LogEntry `json:"logs"`
}
