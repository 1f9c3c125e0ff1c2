package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCommandTimeout applies to commands without their own timeout.
	DefaultCommandTimeout = 300 * time.Second

	// DefaultInactivityThreshold is how long an agent may stay silent before
	// a sweep removes it.
	DefaultInactivityThreshold = 5 * time.Minute
)

// Options configures a Registry.
type Options struct {
	DefaultTimeout      time.Duration
	InactivityThreshold time.Duration
}

type entry struct {
	info  Info
	queue []Command

	// running is the execution command a dispatcher is waiting on, if any.
	running uuid.UUID
}

// waiter is the single dispatcher blocked on a command's response.
type waiter struct {
	agentID uuid.UUID
	ch      chan Response
	gone    chan struct{}
}

// Registry tracks agents and their command queues. It is owned by the
// coordinator process and shared by every handler.
type Registry struct {
	mu      sync.Mutex
	agents  map[uuid.UUID]*entry
	waiters map[uuid.UUID]*waiter
	opts    Options
	logger  logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, log logger.Logger) *Registry {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultCommandTimeout
	}
	if opts.InactivityThreshold <= 0 {
		opts.InactivityThreshold = DefaultInactivityThreshold
	}
	return &Registry{
		agents:  make(map[uuid.UUID]*entry),
		waiters: make(map[uuid.UUID]*waiter),
		opts:    opts,
		logger:  log,
		tracer:  otel.Tracer("keyword-runner/agent"),
		now:     time.Now,
	}
}

func (r *Registry) snapshot(e *entry) Info {
	info := e.info
	info.Capabilities = append([]string(nil), e.info.Capabilities...)
	info.PendingCommands = len(e.queue)
	return info
}

// Register adds an agent, assigns it an id and marks it online.
func (r *Registry) Register(ctx context.Context, info Info) Info {
	now := r.now()
	info.ID = uuid.New()
	info.Status = StatusOnline
	info.LastSeen = now
	info.CreatedAt = now
	info.CurrentTask = ""
	if len(info.Capabilities) == 0 {
		info.Capabilities = append([]string(nil), DefaultCapabilities...)
	}

	r.mu.Lock()
	e := &entry{info: info}
	r.agents[info.ID] = e
	out := r.snapshot(e)
	r.mu.Unlock()

	r.logger.Info(ctx, "agent registered", map[string]interface{}{
		"agent_id": info.ID.String(),
		"name":     info.Name,
		"hostname": info.Hostname,
	})
	return out
}

// Unregister removes an agent with its queue. Dispatchers still waiting on
// it are released with ErrAgentNotFound. Unknown ids are ignored.
func (r *Registry) Unregister(ctx context.Context, id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.agents[id]
	if ok {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info(ctx, "agent unregistered", map[string]interface{}{
			"agent_id": id.String(),
		})
	}
}

func (r *Registry) removeLocked(id uuid.UUID) {
	delete(r.agents, id)
	for cmdID, w := range r.waiters {
		if w.agentID == id {
			close(w.gone)
			delete(r.waiters, cmdID)
		}
	}
}

// Get returns an agent by id.
func (r *Registry) Get(id uuid.UUID) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return Info{}, ErrAgentNotFound
	}
	return r.snapshot(e), nil
}

// List returns every agent, oldest registration first.
func (r *Registry) List() []Info {
	return r.list(func(Info) bool { return true })
}

// ListAvailable returns the agents that are online.
func (r *Registry) ListAvailable() []Info {
	return r.list(func(i Info) bool { return i.Status == StatusOnline })
}

func (r *Registry) list(keep func(Info) bool) []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.agents))
	for _, e := range r.agents {
		if keep(e.info) {
			out = append(out, r.snapshot(e))
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus sets an agent's status and refreshes its last-seen time. It
// reports false for unknown ids.
func (r *Registry) UpdateStatus(id uuid.UUID, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return false
	}
	e.info.Status = status
	e.info.LastSeen = r.now()
	return true
}

// Touch refreshes an agent's last-seen time without changing its status.
func (r *Registry) Touch(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return false
	}
	e.info.LastSeen = r.now()
	return true
}

// Sweep removes agents silent for longer than threshold and returns their
// ids. A non-positive threshold uses the configured one.
func (r *Registry) Sweep(ctx context.Context, threshold time.Duration) []uuid.UUID {
	if threshold <= 0 {
		threshold = r.opts.InactivityThreshold
	}
	cutoff := r.now().Add(-threshold)

	r.mu.Lock()
	var removed []uuid.UUID
	for id, e := range r.agents {
		if e.info.LastSeen.Before(cutoff) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	for _, id := range removed {
		r.logger.Warn(ctx, "removed inactive agent", map[string]interface{}{
			"agent_id":  id.String(),
			"threshold": threshold.String(),
		})
	}
	return removed
}

// Enqueue queues a command without waiting for its response. Any response
// the agent sends for it is dropped.
func (r *Registry) Enqueue(ctx context.Context, id uuid.UUID, cmd Command) (Command, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = r.now()
	}

	r.mu.Lock()
	e, ok := r.agents[id]
	if ok {
		e.queue = append(e.queue, cmd)
	}
	r.mu.Unlock()
	if !ok {
		return cmd, ErrAgentNotFound
	}

	r.logger.Info(ctx, "command queued", map[string]interface{}{
		"agent_id":   id.String(),
		"command_id": cmd.ID.String(),
		"type":       string(cmd.Type),
	})
	return cmd, nil
}

// Poll hands out the oldest pending command of an agent, or nil when there is
// none. It never blocks and counts as a sign of life.
func (r *Registry) Poll(id uuid.UUID) (*Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	e.info.LastSeen = r.now()
	if len(e.queue) == 0 {
		return nil, nil
	}
	cmd := e.queue[0]
	e.queue = e.queue[1:]
	return &cmd, nil
}

// Respond delivers an agent's response to the dispatcher waiting for it and
// reports whether one was. Responses nobody waits for are dropped.
func (r *Registry) Respond(ctx context.Context, id uuid.UUID, resp Response) (bool, error) {
	r.mu.Lock()
	e, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return false, ErrAgentNotFound
	}
	e.info.LastSeen = r.now()

	w, waiting := r.waiters[resp.CommandID]
	if waiting && w.agentID == id {
		delete(r.waiters, resp.CommandID)
		w.ch <- resp
	} else {
		waiting = false
	}
	r.mu.Unlock()

	if !waiting {
		r.logger.Warn(ctx, "dropping response without a waiting dispatcher", map[string]interface{}{
			"agent_id":   id.String(),
			"command_id": resp.CommandID.String(),
		})
	}
	return waiting, nil
}

// Dispatch queues a command and waits for the agent's response, up to the
// command's timeout. Execution commands mark the agent busy until the
// response arrives; a timeout leaves it in error. While one execution command
// is outstanding, another is refused with ErrAgentBusy and not queued.
// Failures are returned both as an unsuccessful Response and as an error.
func (r *Registry) Dispatch(ctx context.Context, id uuid.UUID, cmd Command) (Response, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = r.now()
	}
	ctx, span := r.tracer.Start(ctx, "agent.Dispatch", trace.WithAttributes(
		attribute.String("agent_id", id.String()),
		attribute.String("command_id", cmd.ID.String()),
		attribute.String("command_type", string(cmd.Type)),
	))
	defer span.End()

	resp, err := r.dispatch(ctx, id, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (r *Registry) dispatch(ctx context.Context, id uuid.UUID, cmd Command) (Response, error) {
	exec := cmd.Type.IsExecution()
	w := &waiter{agentID: id, ch: make(chan Response, 1), gone: make(chan struct{})}

	r.mu.Lock()
	e, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return Failure(cmd.ID, "agent not found", ErrAgentNotFound), ErrAgentNotFound
	}
	if exec && e.running != uuid.Nil {
		busyWith := e.running
		r.mu.Unlock()
		r.logger.Warn(ctx, "agent busy, refusing command", map[string]interface{}{
			"agent_id":   id.String(),
			"command_id": cmd.ID.String(),
			"running":    busyWith.String(),
		})
		return Failure(cmd.ID, "agent is busy", ErrAgentBusy), ErrAgentBusy
	}
	if exec {
		e.running = cmd.ID
		e.info.Status = StatusBusy
		e.info.CurrentTask = string(cmd.Type)
		e.info.LastSeen = r.now()
	}
	e.queue = append(e.queue, cmd)
	r.waiters[cmd.ID] = w
	r.mu.Unlock()

	log := r.logger.WithFields(map[string]interface{}{
		"agent_id":   id.String(),
		"command_id": cmd.ID.String(),
		"type":       string(cmd.Type),
	})
	timeout := cmd.timeout(r.opts.DefaultTimeout)
	log.Info(ctx, "command dispatched", map[string]interface{}{
		"timeout": timeout.String(),
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-w.ch:
		r.settle(id, cmd.ID, exec, StatusOnline)
		log.Info(ctx, "command completed", map[string]interface{}{
			"success": resp.Success,
		})
		return resp, nil
	case <-w.gone:
		log.Warn(ctx, "agent left while command was pending", nil)
		return Failure(cmd.ID, "agent unregistered", ErrAgentNotFound), ErrAgentNotFound
	case <-timer.C:
		select {
		case resp := <-w.ch:
			r.settle(id, cmd.ID, exec, StatusOnline)
			return resp, nil
		default:
		}
		r.settle(id, cmd.ID, exec, StatusError)
		log.Error(ctx, "command timed out", map[string]interface{}{
			"timeout": timeout.String(),
		})
		return Failure(cmd.ID, "command timed out after "+timeout.String(), ErrCommandTimeout), ErrCommandTimeout
	case <-ctx.Done():
		r.settle(id, cmd.ID, exec, StatusOnline)
		log.Warn(ctx, "dispatcher stopped waiting", map[string]interface{}{
			"error": ctx.Err().Error(),
		})
		return Failure(cmd.ID, "dispatch abandoned", ctx.Err()), ctx.Err()
	}
}

// settle drops the waiter and, for execution commands, sets the agent's
// post-command status.
func (r *Registry) settle(id, cmdID uuid.UUID, exec bool, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, cmdID)
	if !exec {
		return
	}
	if e, ok := r.agents[id]; ok && e.running == cmdID {
		e.running = uuid.Nil
		e.info.Status = status
		e.info.CurrentTask = ""
		e.info.LastSeen = r.now()
	}
}

// IsProtocolError reports whether err is a dispatch failure carried in a
// Response rather than a fault of the coordinator.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrAgentNotFound) || errors.Is(err, ErrCommandTimeout) || errors.Is(err, ErrAgentBusy)
}
