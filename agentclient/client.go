// Package agentclient runs on an executor host. It registers with the
// coordinator, keeps announcing liveness, polls for commands and runs them
// through the same orchestration used for local runs.
package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"golang.org/x/sync/errgroup"
)

// ErrStopping is reported for commands that were polled but not run because
// the agent was stopping.
var ErrStopping = errors.New("agent is stopping")

// Transport carries the agent side of the command protocol to the coordinator.
type Transport interface {
	Register(ctx context.Context, info agent.Info) (agent.Info, error)
	Unregister(ctx context.Context, id uuid.UUID) error
	Heartbeat(ctx context.Context, id uuid.UUID) error

	// Poll returns the next command, or nil when none is pending.
	Poll(ctx context.Context, id uuid.UUID) (*agent.Command, error)
	Respond(ctx context.Context, id uuid.UUID, resp agent.Response) error
}

// Executor runs test cases. *runner.Runner satisfies it.
type Executor interface {
	RunCase(ctx context.Context, caseID uuid.UUID) (*testrun.TestRun, error)
	RunModule(ctx context.Context, moduleID uuid.UUID) ([]*testrun.TestRun, error)
	RunProject(ctx context.Context, projectID uuid.UUID) ([]*testrun.TestRun, error)
}

// Config configures a Client.
type Config struct {
	Name         string
	Hostname     string
	IPAddress    string
	Capabilities []string

	HeartbeatInterval time.Duration
	PollInterval      time.Duration

	// BufferSize bounds how many polled commands wait for execution.
	BufferSize int
}

// Client is the agent process's connection to the coordinator.
type Client struct {
	transport Transport
	executor  Executor
	cfg       Config
	logger    logger.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	mu sync.RWMutex
	id uuid.UUID
}

// New creates a Client.
func New(transport Transport, executor Executor, cfg Config, log logger.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = append([]string(nil), agent.DefaultCapabilities...)
	}
	return &Client{
		transport: transport,
		executor:  executor,
		cfg:       cfg,
		logger:    log,
		stopCh:    make(chan struct{}),
	}
}

// ID returns the id assigned by the coordinator, or uuid.Nil before registration.
func (c *Client) ID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Running reports whether the activities are still scheduled.
func (c *Client) Running() bool {
	return c.running.Load()
}

// Stop asks every activity to exit at its next scheduling point.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		close(c.stopCh)
	})
}

func (c *Client) register(ctx context.Context) error {
	info, err := c.transport.Register(ctx, agent.Info{
		Name:         c.cfg.Name,
		Hostname:     c.cfg.Hostname,
		IPAddress:    c.cfg.IPAddress,
		Capabilities: c.cfg.Capabilities,
	})
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	c.mu.Lock()
	c.id = info.ID
	c.mu.Unlock()

	c.logger.Info(ctx, "agent registered with coordinator", map[string]interface{}{
		"agent_id": info.ID.String(),
		"name":     c.cfg.Name,
	})
	return nil
}

// Start registers the agent and runs the heartbeat, poll and execute
// activities until ctx is cancelled or Stop is called. The agent is
// unregistered on the way out.
func (c *Client) Start(ctx context.Context) error {
	if err := c.register(ctx); err != nil {
		return err
	}
	c.running.Store(true)

	buffer := make(chan agent.Command, c.cfg.BufferSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.heartbeatLoop(gctx)
	})
	g.Go(func() error {
		defer close(buffer)
		return c.pollLoop(gctx, buffer)
	})
	g.Go(func() error {
		return c.executeLoop(gctx, buffer)
	})
	err := g.Wait()
	c.Stop()
	c.abandon(ctx, buffer)

	unregisterCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if uerr := c.transport.Unregister(unregisterCtx, c.ID()); uerr != nil {
		c.logger.Warn(ctx, "failed to unregister agent", map[string]interface{}{
			"agent_id": c.ID().String(),
			"error":    uerr.Error(),
		})
	} else {
		c.logger.Info(ctx, "agent unregistered", map[string]interface{}{
			"agent_id": c.ID().String(),
		})
	}
	return err
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			err := c.transport.Heartbeat(ctx, c.ID())
			if errors.Is(err, agent.ErrAgentNotFound) {
				c.logger.Warn(ctx, "coordinator forgot this agent, registering again", nil)
				err = c.register(ctx)
			}
			if err != nil {
				c.logger.Warn(ctx, "heartbeat failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

func (c *Client) pollLoop(ctx context.Context, buffer chan<- agent.Command) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
		}

		cmd, err := c.transport.Poll(ctx, c.ID())
		if err != nil {
			c.logger.Warn(ctx, "failed to poll for commands", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if cmd == nil {
			continue
		}

		c.logger.Debug(ctx, "received command", map[string]interface{}{
			"command_id": cmd.ID.String(),
			"type":       string(cmd.Type),
		})
		if !c.Running() || ctx.Err() != nil {
			c.reject(ctx, *cmd)
			return nil
		}
		select {
		case buffer <- *cmd:
		case <-ctx.Done():
			c.reject(ctx, *cmd)
			return nil
		case <-c.stopCh:
			c.reject(ctx, *cmd)
			return nil
		}
	}
}

func (c *Client) executeLoop(ctx context.Context, buffer <-chan agent.Command) error {
	for {
		select {
		case <-ctx.Done():
			c.abandon(ctx, buffer)
			return nil
		case <-c.stopCh:
			c.abandon(ctx, buffer)
			return nil
		case cmd, ok := <-buffer:
			if !ok {
				return nil
			}
			// Both cases above may have been ready together with this one.
			if !c.Running() || ctx.Err() != nil {
				c.reject(ctx, cmd)
				c.abandon(ctx, buffer)
				return nil
			}
			resp := c.Handle(ctx, cmd)
			if err := c.transport.Respond(ctx, c.ID(), resp); err != nil {
				c.logger.Error(ctx, "failed to send command response", map[string]interface{}{
					"command_id": cmd.ID.String(),
					"error":      err.Error(),
				})
			}
			if cmd.Type == agent.CommandShutdown {
				c.Stop()
				c.abandon(ctx, buffer)
				return nil
			}
		}
	}
}

// abandon rejects every command still held in the buffer without running it.
func (c *Client) abandon(ctx context.Context, buffer <-chan agent.Command) {
	for {
		select {
		case cmd, ok := <-buffer:
			if !ok {
				return
			}
			c.reject(ctx, cmd)
		default:
			return
		}
	}
}

// reject answers a command that was polled but will not run because the
// agent is stopping.
func (c *Client) reject(ctx context.Context, cmd agent.Command) {
	c.logger.Warn(ctx, "agent stopping, command not executed", map[string]interface{}{
		"command_id": cmd.ID.String(),
		"type":       string(cmd.Type),
	})
	respondCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	resp := agent.Failure(cmd.ID, "agent stopping", ErrStopping)
	if err := c.transport.Respond(respondCtx, c.ID(), resp); err != nil {
		c.logger.Warn(ctx, "failed to reject command", map[string]interface{}{
			"command_id": cmd.ID.String(),
			"error":      err.Error(),
		})
	}
}

// Handle executes one command and always returns a response; execution
// errors and panics become unsuccessful responses.
func (c *Client) Handle(ctx context.Context, cmd agent.Command) (resp agent.Response) {
	log := c.logger.WithFields(map[string]interface{}{
		"command_id": cmd.ID.String(),
		"type":       string(cmd.Type),
	})
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			log.Error(ctx, "command execution panicked", map[string]interface{}{
				"error": err.Error(),
			})
			resp = agent.Failure(cmd.ID, "command execution failed", err)
		}
	}()

	log.Info(ctx, "executing command", nil)
	switch cmd.Type {
	case agent.CommandPing:
		return agent.Response{CommandID: cmd.ID, Success: true, Message: "pong"}

	case agent.CommandShutdown:
		return agent.Response{CommandID: cmd.ID, Success: true, Message: "shutting down"}

	case agent.CommandRunTestCase:
		var payload agent.RunCasePayload
		if err := cmd.DecodePayload(&payload); err != nil {
			return agent.Failure(cmd.ID, "invalid payload", err)
		}
		run, err := c.executor.RunCase(ctx, payload.CaseID)
		if run == nil {
			return agent.Failure(cmd.ID, "test case run failed", err)
		}
		if errors.Is(err, testrun.ErrPersistenceFailure) {
			return agent.Failure(cmd.ID, "test case run was not recorded", err)
		}
		return c.runResponse(ctx, log, cmd.ID, []*testrun.TestRun{run}, err)

	case agent.CommandRunModule:
		var payload agent.RunModulePayload
		if err := cmd.DecodePayload(&payload); err != nil {
			return agent.Failure(cmd.ID, "invalid payload", err)
		}
		runs, err := c.executor.RunModule(ctx, payload.ModuleID)
		if len(runs) == 0 && err != nil {
			return agent.Failure(cmd.ID, "module run failed", err)
		}
		if errors.Is(err, testrun.ErrPersistenceFailure) {
			return agent.Failure(cmd.ID, "module runs were not all recorded", err)
		}
		return c.runResponse(ctx, log, cmd.ID, runs, err)

	case agent.CommandRunProject:
		var payload agent.RunProjectPayload
		if err := cmd.DecodePayload(&payload); err != nil {
			return agent.Failure(cmd.ID, "invalid payload", err)
		}
		runs, err := c.executor.RunProject(ctx, payload.ProjectID)
		if len(runs) == 0 && err != nil {
			return agent.Failure(cmd.ID, "project run failed", err)
		}
		if errors.Is(err, testrun.ErrPersistenceFailure) {
			return agent.Failure(cmd.ID, "project runs were not all recorded", err)
		}
		return c.runResponse(ctx, log, cmd.ID, runs, err)

	default:
		return agent.Failure(cmd.ID, "unknown command", fmt.Errorf("%w: %s", agent.ErrInvalidCommand, cmd.Type))
	}
}

// runResponse reports executed runs. The command succeeded once the runs are
// recorded, whatever their status; a partial error other than a persistence
// failure is carried alongside.
func (c *Client) runResponse(ctx context.Context, log logger.Logger, cmdID uuid.UUID, runs []*testrun.TestRun, runErr error) agent.Response {
	results := make([]agent.RunResult, 0, len(runs))
	passed := 0
	for _, run := range runs {
		results = append(results, agent.RunResult{
			RunID:    run.ID,
			CaseID:   run.CaseID,
			Status:   string(run.Status),
			Duration: run.Duration,
		})
		if run.Status == testrun.StatusPassed {
			passed++
		}
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return agent.Failure(cmdID, "failed to encode results", err)
	}

	resp := agent.Response{
		CommandID: cmdID,
		Success:   true,
		Message:   fmt.Sprintf("%d of %d runs passed", passed, len(runs)),
		Result:    raw,
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	log.Info(ctx, "command completed", map[string]interface{}{
		"runs":   len(runs),
		"passed": passed,
	})
	return resp
}
