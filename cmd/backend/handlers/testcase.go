package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/keyword"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
)

// TestCaseHandler handles test case requests.
type TestCaseHandler struct {
	testCaseStore testcase.Store
	projectStore  project.Store
	logger        logger.Logger
}

// NewTestCaseHandler creates a new test case handler.
func NewTestCaseHandler(testCaseStore testcase.Store, projectStore project.Store, log logger.Logger) *TestCaseHandler {
	return &TestCaseHandler{
		testCaseStore: testCaseStore,
		projectStore:  projectStore,
		logger:        log,
	}
}

// StepRequest is one step of a create or update request.
type StepRequest struct {
	Position    int     `json:"position"`
	Operation   string  `json:"operation"`
	Locator     *string `json:"locator,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description string  `json:"description,omitempty"`
}

// CreateTestCaseRequest represents a test case creation request.
type CreateTestCaseRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	ModuleID    *uuid.UUID    `json:"module_id,omitempty"`
	Steps       []StepRequest `json:"steps"`
}

// UpdateTestCaseRequest represents a test case update. Steps, when present,
// replace the existing ones.
type UpdateTestCaseRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	ModuleID    *uuid.UUID     `json:"module_id,omitempty"`
	ClearModule bool           `json:"clear_module,omitempty"`
	Steps       *[]StepRequest `json:"steps,omitempty"`
}

// toSteps checks every step against the keyword vocabulary and stores the
// canonical operation name.
func toSteps(reqs []StepRequest) ([]testcase.Step, error) {
	steps := make([]testcase.Step, 0, len(reqs))
	for _, req := range reqs {
		ks := keyword.Step{
			Position:    req.Position,
			Operation:   req.Operation,
			Locator:     req.Locator,
			Value:       req.Value,
			Description: req.Description,
		}
		if err := keyword.Validate(ks); err != nil {
			return nil, fmt.Errorf("step %d: %w", req.Position, err)
		}
		op, _ := keyword.ParseOperation(req.Operation)
		steps = append(steps, testcase.Step{
			Position:    req.Position,
			Operation:   string(op),
			Locator:     req.Locator,
			Value:       req.Value,
			Description: req.Description,
		})
	}
	return steps, nil
}

func isTestCaseValidationError(err error) bool {
	return errors.Is(err, testcase.ErrInvalidTestCaseName) ||
		errors.Is(err, testcase.ErrInvalidProjectID) ||
		errors.Is(err, testcase.ErrInvalidStepPosition) ||
		errors.Is(err, testcase.ErrDuplicateStepPosition) ||
		errors.Is(err, testcase.ErrInvalidOperation)
}

// Keywords lists the operation vocabulary.
func (h *TestCaseHandler) Keywords(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, keyword.Definitions())
}

// Create handles creating a test case in a project.
func (h *TestCaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	var req CreateTestCaseRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.projectStore.GetByID(r.Context(), projectID); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to create test case")
		return
	}

	steps, err := toSteps(req.Steps)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tc := &testcase.TestCase{
		ProjectID:   projectID,
		ModuleID:    req.ModuleID,
		Name:        req.Name,
		Description: req.Description,
		Steps:       steps,
	}
	if err := h.testCaseStore.Create(r.Context(), tc); err != nil {
		if isTestCaseValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to create test case", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to create test case")
		return
	}

	respondJSON(w, http.StatusCreated, tc)
}

// ListByProject handles listing the test cases of a project.
func (h *TestCaseHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	cases, err := h.testCaseStore.ListByProject(r.Context(), projectID, limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list test cases", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(cases, len(cases), limit, offset))
}

// ListByModule handles listing the test cases of a module.
func (h *TestCaseHandler) ListByModule(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := parseUUIDOrRespond(w, r, "id", "module")
	if !ok {
		return
	}

	cases, err := h.testCaseStore.ListByModule(r.Context(), moduleID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list test cases", map[string]interface{}{
			"error":     err.Error(),
			"module_id": moduleID,
		})
		respondError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(cases, len(cases), len(cases), 0))
}

// GetByID handles getting a test case with its steps.
func (h *TestCaseHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	tc, err := h.testCaseStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get test case")
		return
	}

	respondJSON(w, http.StatusOK, tc)
}

// Update handles updating a test case.
func (h *TestCaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	var req UpdateTestCaseRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var setters []testcase.UpdateSetter
	if req.Name != nil {
		setters = append(setters, testcase.SetName(*req.Name))
	}
	if req.Description != nil {
		setters = append(setters, testcase.SetDescription(*req.Description))
	}
	if req.ModuleID != nil {
		setters = append(setters, testcase.SetModule(req.ModuleID))
	} else if req.ClearModule {
		setters = append(setters, testcase.SetModule(nil))
	}
	if req.Steps != nil {
		steps, err := toSteps(*req.Steps)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		setters = append(setters, testcase.SetSteps(steps))
	}

	if len(setters) == 0 {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.testCaseStore.Update(r.Context(), id, setters...); err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		if isTestCaseValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to update test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to update test case")
		return
	}

	updated, err := h.testCaseStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error(r.Context(), "failed to get updated test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get updated test case")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Delete handles deleting a test case.
func (h *TestCaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	if err := h.testCaseStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		h.logger.Error(r.Context(), "failed to delete test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to delete test case")
		return
	}

	respondSuccess(w, "test case deleted successfully")
}
