// Package agent is the coordinator side of remote execution: a registry of
// executor agents and the polling-based command protocol used to hand them
// work.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAgentNotFound is returned when an agent id is not registered.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCommandTimeout is returned when an agent did not answer a command in time.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrAgentBusy is returned when an agent already has an execution command outstanding.
	ErrAgentBusy = errors.New("agent is busy")

	// ErrInvalidStatus is returned when an agent status is unknown.
	ErrInvalidStatus = errors.New("invalid agent status")

	// ErrInvalidCommand is returned when a command type is unknown.
	ErrInvalidCommand = errors.New("invalid command type")
)

// Status is the health of an agent as seen by the coordinator.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusError:
		return true
	default:
		return false
	}
}

// DefaultCapabilities are announced by agents that run browser tests.
var DefaultCapabilities = []string{"playwright", "ui_testing"}

// Info describes a registered agent.
type Info struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Hostname        string    `json:"hostname"`
	IPAddress       string    `json:"ip_address"`
	Status          Status    `json:"status"`
	Capabilities    []string  `json:"capabilities"`
	LastSeen        time.Time `json:"last_seen"`
	CurrentTask     string    `json:"current_task,omitempty"`
	PendingCommands int       `json:"pending_commands"`
	CreatedAt       time.Time `json:"created_at"`
}

// CommandType names an instruction for an agent.
type CommandType string

const (
	CommandRunTestCase CommandType = "run_test_case"
	CommandRunModule   CommandType = "run_module"
	CommandRunProject  CommandType = "run_project"
	CommandPing        CommandType = "ping"
	CommandShutdown    CommandType = "shutdown"
)

// IsValid checks if the command type is known.
func (t CommandType) IsValid() bool {
	switch t {
	case CommandRunTestCase, CommandRunModule, CommandRunProject, CommandPing, CommandShutdown:
		return true
	default:
		return false
	}
}

// IsExecution reports whether the command runs tests and so occupies the agent.
func (t CommandType) IsExecution() bool {
	switch t {
	case CommandRunTestCase, CommandRunModule, CommandRunProject:
		return true
	default:
		return false
	}
}

// Command is an instruction queued for an agent.
type Command struct {
	ID      uuid.UUID       `json:"id"`
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// TimeoutSeconds bounds how long a dispatcher waits for the response.
	// Zero means the registry default.
	TimeoutSeconds int       `json:"timeout,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewCommand builds a command with a fresh id and the payload encoded as JSON.
func NewCommand(t CommandType, payload interface{}) (Command, error) {
	if !t.IsValid() {
		return Command{}, fmt.Errorf("%w: %s", ErrInvalidCommand, t)
	}
	cmd := Command{ID: uuid.New(), Type: t, CreatedAt: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Command{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		cmd.Payload = raw
	}
	return cmd, nil
}

// DecodePayload unmarshals the payload into v.
func (c Command) DecodePayload(v interface{}) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("%s command has no payload", c.Type)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", c.Type, err)
	}
	return nil
}

func (c Command) timeout(def time.Duration) time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return def
}

// Response is an agent's answer to a command.
type Response struct {
	CommandID uuid.UUID       `json:"command_id"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Failure builds an unsuccessful response for a command.
func Failure(commandID uuid.UUID, message string, err error) Response {
	resp := Response{CommandID: commandID, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// RunCasePayload asks an agent to run one test case.
type RunCasePayload struct {
	CaseID        uuid.UUID              `json:"test_case_id"`
	ProjectConfig map[string]interface{} `json:"project_config,omitempty"`
}

// RunModulePayload asks an agent to run every case of a module.
type RunModulePayload struct {
	ModuleID      uuid.UUID              `json:"module_id"`
	ProjectConfig map[string]interface{} `json:"project_config,omitempty"`
}

// RunProjectPayload asks an agent to run every case of a project.
type RunProjectPayload struct {
	ProjectID     uuid.UUID              `json:"project_id"`
	ProjectConfig map[string]interface{} `json:"project_config,omitempty"`
}

// RunResult summarises one finished run in a command response.
type RunResult struct {
	RunID    uuid.UUID `json:"run_id"`
	CaseID   uuid.UUID `json:"test_case_id"`
	Status   string    `json:"status"`
	Duration float64   `json:"duration"`
}
