package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
)

// AgentHandler exposes the agent registry and the command protocol.
type AgentHandler struct {
	registry      *agent.Registry
	testCaseStore testcase.Store
	projectStore  project.Store
	logger        logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(registry *agent.Registry, testCaseStore testcase.Store, projectStore project.Store, log logger.Logger) *AgentHandler {
	return &AgentHandler{
		registry:      registry,
		testCaseStore: testCaseStore,
		projectStore:  projectStore,
		logger:        log,
	}
}

// RegisterAgentRequest represents an agent registration.
type RegisterAgentRequest struct {
	Name         string   `json:"name"`
	Hostname     string   `json:"hostname"`
	IPAddress    string   `json:"ip_address"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// UpdateStatusRequest represents an agent status change.
type UpdateStatusRequest struct {
	Status agent.Status `json:"status"`
}

// SendCommandRequest represents a synchronous command for an agent.
type SendCommandRequest struct {
	Type           agent.CommandType `json:"type"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	TimeoutSeconds int               `json:"timeout,omitempty"`
}

// SweepResponse lists the agents removed by a sweep.
type SweepResponse struct {
	Removed int      `json:"removed"`
	IDs     []string `json:"ids"`
}

// Register handles agent registration.
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "agent name is required")
		return
	}

	info := h.registry.Register(r.Context(), agent.Info{
		Name:         req.Name,
		Hostname:     req.Hostname,
		IPAddress:    req.IPAddress,
		Capabilities: req.Capabilities,
	})
	respondJSON(w, http.StatusCreated, info)
}

// Unregister handles removing an agent.
func (h *AgentHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}
	h.registry.Unregister(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// List handles listing all agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.List()
	respondJSON(w, http.StatusOK, NewPaginatedResponse(agents, len(agents), len(agents), 0))
}

// ListAvailable handles listing agents that can take work.
func (h *AgentHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.ListAvailable()
	respondJSON(w, http.StatusOK, NewPaginatedResponse(agents, len(agents), len(agents), 0))
}

// GetByID handles getting a single agent.
func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}
	info, err := h.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Heartbeat refreshes an agent's last-seen time.
func (h *AgentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}
	if !h.registry.Touch(id) {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UpdateStatus handles an explicit status change.
func (h *AgentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.IsValid() {
		respondError(w, http.StatusBadRequest, agent.ErrInvalidStatus.Error())
		return
	}
	if !h.registry.UpdateStatus(id, req.Status) {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}

	info, _ := h.registry.Get(id)
	respondJSON(w, http.StatusOK, info)
}

// Sweep removes agents silent for longer than the threshold query parameter,
// or the registry default when it is absent.
func (h *AgentHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var threshold time.Duration
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "threshold must be a positive duration such as 5m")
			return
		}
		threshold = d
	}

	removed := h.registry.Sweep(r.Context(), threshold)
	ids := make([]string, len(removed))
	for i, id := range removed {
		ids[i] = id.String()
	}
	respondJSON(w, http.StatusOK, SweepResponse{Removed: len(ids), IDs: ids})
}

// SendCommand dispatches a command and waits for the agent's response.
func (h *AgentHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}

	var req SendCommandRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Type.IsValid() {
		respondError(w, http.StatusBadRequest, agent.ErrInvalidCommand.Error())
		return
	}

	cmd := agent.Command{
		Type:           req.Type,
		Payload:        req.Payload,
		TimeoutSeconds: req.TimeoutSeconds,
	}
	resp, err := h.registry.Dispatch(r.Context(), id, cmd)
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		respondJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, agent.ErrCommandTimeout):
		respondJSON(w, http.StatusGatewayTimeout, resp)
	case errors.Is(err, agent.ErrAgentBusy):
		respondJSON(w, http.StatusConflict, resp)
	case err != nil:
		h.logger.Warn(r.Context(), "command dispatch abandoned", map[string]interface{}{
			"error":    err.Error(),
			"agent_id": id,
		})
		respondJSON(w, http.StatusServiceUnavailable, resp)
	default:
		respondJSON(w, http.StatusOK, resp)
	}
}

// Poll hands the agent its oldest pending command, or an empty object.
func (h *AgentHandler) Poll(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}

	cmd, err := h.registry.Poll(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	if cmd == nil {
		respondJSON(w, http.StatusOK, struct{}{})
		return
	}
	respondJSON(w, http.StatusOK, cmd)
}

// Respond delivers an agent's response to the waiting dispatcher.
func (h *AgentHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}

	var resp agent.Response
	if err := parseJSON(r, &resp, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	delivered, err := h.registry.Respond(r.Context(), id, resp)
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

// RunTestCase queues a run of one test case on an agent without waiting for
// the result.
func (h *AgentHandler) RunTestCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "agent")
	if !ok {
		return
	}
	caseID, ok := parseUUIDOrRespond(w, r, "case_id", "test case")
	if !ok {
		return
	}

	tc, err := h.testCaseStore.GetByID(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": caseID,
		})
		respondError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	proj, err := h.projectStore.GetByID(r.Context(), tc.ProjectID)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get project", map[string]interface{}{
			"error":      err.Error(),
			"project_id": tc.ProjectID,
		})
		respondError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	cmd, err := agent.NewCommand(agent.CommandRunTestCase, agent.RunCasePayload{
		CaseID:        caseID,
		ProjectConfig: proj.Config(),
	})
	if err != nil {
		h.logger.Error(r.Context(), "failed to build command", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	cmd, err = h.registry.Enqueue(r.Context(), id, cmd)
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	respondJSON(w, http.StatusAccepted, TriggeredResponse{Message: "queued", Count: 1, CommandID: &cmd.ID})
}
