package handlers

import (
	"errors"
	"net/http"

	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
)

// ProjectHandler handles project-related requests.
type ProjectHandler struct {
	projectStore project.Store
	logger       logger.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projectStore project.Store, log logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectStore: projectStore,
		logger:       log,
	}
}

// CreateProjectRequest represents a project creation request.
// Headless defaults to true when omitted.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseURL     string `json:"base_url"`
	Browser     string `json:"browser"`
	Headless    *bool  `json:"headless,omitempty"`
}

// UpdateProjectRequest represents a project update request.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	BaseURL     *string `json:"base_url,omitempty"`
	Browser     *string `json:"browser,omitempty"`
	Headless    *bool   `json:"headless,omitempty"`
}

func isProjectValidationError(err error) bool {
	return errors.Is(err, project.ErrInvalidProjectName) || errors.Is(err, project.ErrInvalidBrowser)
}

// Create handles creating a new project.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	proj := &project.Project{
		Name:        req.Name,
		Description: req.Description,
		BaseURL:     req.BaseURL,
		Browser:     project.Browser(req.Browser),
		Headless:    true,
	}
	if req.Headless != nil {
		proj.Headless = *req.Headless
	}

	if err := h.projectStore.Create(r.Context(), proj); err != nil {
		if isProjectValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to create project", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, proj)
}

// List handles listing projects with pagination.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	projects, err := h.projectStore.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list projects", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(projects, len(projects), limit, offset))
}

// GetByID handles getting a single project by ID.
func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	proj, err := h.projectStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get project")
		return
	}

	respondJSON(w, http.StatusOK, proj)
}

// Update handles updating a project.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var setters []project.UpdateSetter
	if req.Name != nil {
		setters = append(setters, project.SetName(*req.Name))
	}
	if req.Description != nil {
		setters = append(setters, project.SetDescription(*req.Description))
	}
	if req.BaseURL != nil {
		setters = append(setters, project.SetBaseURL(*req.BaseURL))
	}
	if req.Browser != nil {
		setters = append(setters, project.SetBrowser(project.Browser(*req.Browser)))
	}
	if req.Headless != nil {
		setters = append(setters, project.SetHeadless(*req.Headless))
	}

	if len(setters) == 0 {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.projectStore.Update(r.Context(), id, setters...); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "project not found")
			return
		}
		if isProjectValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to update project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to update project")
		return
	}

	updated, err := h.projectStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error(r.Context(), "failed to get updated project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get updated project")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Delete handles deleting a project with its modules and test cases.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}

	if err := h.projectStore.Delete(r.Context(), id); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error(r.Context(), "failed to delete project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	respondSuccess(w, "project deleted successfully")
}
