package handlers

import (
	"errors"
	"net/http"

	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
)

// ModuleHandler handles module requests.
type ModuleHandler struct {
	moduleStore  testmodule.Store
	projectStore project.Store
	logger       logger.Logger
}

// NewModuleHandler creates a new module handler.
func NewModuleHandler(moduleStore testmodule.Store, projectStore project.Store, log logger.Logger) *ModuleHandler {
	return &ModuleHandler{
		moduleStore:  moduleStore,
		projectStore: projectStore,
		logger:       log,
	}
}

// CreateModuleRequest represents a module creation request.
type CreateModuleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateModuleRequest represents a module update request.
type UpdateModuleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Create handles creating a module in a project.
func (h *ModuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	var req CreateModuleRequest
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
		respondError(w, http.StatusInternalServerError, "failed to create module")
		return
	}

	m := &testmodule.Module{
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.moduleStore.Create(r.Context(), m); err != nil {
		if errors.Is(err, testmodule.ErrInvalidModuleName) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to create module", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to create module")
		return
	}

	respondJSON(w, http.StatusCreated, m)
}

// ListByProject handles listing the modules of a project.
func (h *ModuleHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	modules, err := h.moduleStore.ListByProject(r.Context(), projectID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list modules", map[string]interface{}{
			"error":      err.Error(),
			"project_id": projectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to list modules")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(modules, len(modules), len(modules), 0))
}

// GetByID handles getting a single module.
func (h *ModuleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "module")
	if !ok {
		return
	}

	m, err := h.moduleStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, testmodule.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "module not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get module")
		return
	}

	respondJSON(w, http.StatusOK, m)
}

// Update handles renaming or describing a module.
func (h *ModuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "module")
	if !ok {
		return
	}

	var req UpdateModuleRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var setters []testmodule.UpdateSetter
	if req.Name != nil {
		setters = append(setters, testmodule.SetName(*req.Name))
	}
	if req.Description != nil {
		setters = append(setters, testmodule.SetDescription(*req.Description))
	}
	if len(setters) == 0 {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.moduleStore.Update(r.Context(), id, setters...); err != nil {
		if errors.Is(err, testmodule.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "module not found")
			return
		}
		if errors.Is(err, testmodule.ErrInvalidModuleName) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to update module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to update module")
		return
	}

	updated, err := h.moduleStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error(r.Context(), "failed to get updated module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get updated module")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Delete handles deleting a module. Its test cases are kept and detached.
func (h *ModuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "module")
	if !ok {
		return
	}

	if err := h.moduleStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, testmodule.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "module not found")
			return
		}
		h.logger.Error(r.Context(), "failed to delete module", map[string]interface{}{
			"error":     err.Error(),
			"module_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to delete module")
		return
	}

	respondSuccess(w, "module deleted successfully")
}
