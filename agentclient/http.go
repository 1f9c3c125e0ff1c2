package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
)

// APIError is an error response from the coordinator.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coordinator error (%d): %s", e.StatusCode, e.Message)
}

// HTTPTransport talks to the coordinator's agent endpoints.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the coordinator at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a JSON answer into out when out is non-nil.
// A 404 maps to agent.ErrAgentNotFound.
func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return agent.ErrAgentNotFound
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (t *HTTPTransport) Register(ctx context.Context, info agent.Info) (agent.Info, error) {
	var out agent.Info
	if err := t.do(ctx, http.MethodPost, "/api/agents/register", info, &out); err != nil {
		return agent.Info{}, err
	}
	return out, nil
}

func (t *HTTPTransport) Unregister(ctx context.Context, id uuid.UUID) error {
	return t.do(ctx, http.MethodDelete, "/api/agents/"+id.String(), nil, nil)
}

func (t *HTTPTransport) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return t.do(ctx, http.MethodPost, "/api/agents/"+id.String()+"/heartbeat", nil, nil)
}

// Poll decodes the coordinator's answer; the empty object means no command.
func (t *HTTPTransport) Poll(ctx context.Context, id uuid.UUID) (*agent.Command, error) {
	var cmd agent.Command
	if err := t.do(ctx, http.MethodGet, "/api/agents/"+id.String()+"/commands", nil, &cmd); err != nil {
		return nil, err
	}
	if cmd.ID == uuid.Nil {
		return nil, nil
	}
	return &cmd, nil
}

func (t *HTTPTransport) Respond(ctx context.Context, id uuid.UUID, resp agent.Response) error {
	return t.do(ctx, http.MethodPost, "/api/agents/"+id.String()+"/responses", resp, nil)
}
