package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T, opts Options) (*Registry, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	return NewRegistry(opts, log), log
}

func registerAgent(t *testing.T, r *Registry, name string) Info {
	t.Helper()
	return r.Register(context.Background(), Info{Name: name, Hostname: name + ".local", IPAddress: "10.0.0.1"})
}

func runCommand(t *testing.T) Command {
	t.Helper()
	cmd, err := NewCommand(CommandRunTestCase, RunCasePayload{CaseID: uuid.New()})
	require.NoError(t, err)
	return cmd
}

func TestRegistry_Register(t *testing.T) {
	r, _ := setupRegistry(t, Options{})

	a := registerAgent(t, r, "alpha")
	b := registerAgent(t, r, "beta")

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StatusOnline, a.Status)
	assert.Equal(t, DefaultCapabilities, a.Capabilities)
	assert.False(t, a.LastSeen.IsZero())

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.Len(t, r.List(), 2)
}

func TestRegistry_Unregister(t *testing.T) {
	ctx := context.Background()
	r, _ := setupRegistry(t, Options{})
	a := registerAgent(t, r, "alpha")

	r.Unregister(ctx, uuid.New())
	assert.Len(t, r.List(), 1)

	r.Unregister(ctx, a.ID)
	r.Unregister(ctx, a.ID)
	_, err := r.Get(a.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = r.Poll(a.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRegistry_UpdateStatus(t *testing.T) {
	r, _ := setupRegistry(t, Options{})
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	a := registerAgent(t, r, "alpha")
	b := registerAgent(t, r, "beta")

	r.now = func() time.Time { return base.Add(time.Minute) }
	assert.True(t, r.UpdateStatus(a.ID, StatusError))
	assert.False(t, r.UpdateStatus(uuid.New(), StatusBusy))

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, base.Add(time.Minute), got.LastSeen)

	available := r.ListAvailable()
	require.Len(t, available, 1)
	assert.Equal(t, b.ID, available[0].ID)
}

func TestRegistry_Poll(t *testing.T) {
	ctx := context.Background()
	r, _ := setupRegistry(t, Options{})
	a := registerAgent(t, r, "alpha")

	for i := 0; i < 3; i++ {
		cmd, err := r.Poll(a.ID)
		require.NoError(t, err)
		assert.Nil(t, cmd)
	}

	first, err := r.Enqueue(ctx, a.ID, Command{Type: CommandPing})
	require.NoError(t, err)
	second, err := r.Enqueue(ctx, a.ID, runCommand(t))
	require.NoError(t, err)

	info, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PendingCommands)

	got, err := r.Poll(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	got, err = r.Poll(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	got, err = r.Poll(a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.Enqueue(ctx, uuid.New(), Command{Type: CommandPing})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("execution command holds the agent busy until answered", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 5 * time.Second})
		a := registerAgent(t, r, "alpha")
		cmd := runCommand(t)

		var (
			wg   sync.WaitGroup
			resp Response
			derr error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, derr = r.Dispatch(ctx, a.ID, cmd)
		}()

		var polled *Command
		require.Eventually(t, func() bool {
			c, err := r.Poll(a.ID)
			if err != nil || c == nil {
				return false
			}
			polled = c
			return true
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, cmd.ID, polled.ID)

		info, err := r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBusy, info.Status)
		assert.Equal(t, string(CommandRunTestCase), info.CurrentTask)
		assert.Empty(t, r.ListAvailable())

		result, _ := json.Marshal(map[string]string{"status": "passed"})
		delivered, err := r.Respond(ctx, a.ID, Response{CommandID: cmd.ID, Success: true, Message: "done", Result: result})
		require.NoError(t, err)
		assert.True(t, delivered)

		wg.Wait()
		require.NoError(t, derr)
		assert.True(t, resp.Success)
		assert.Equal(t, "done", resp.Message)

		info, err = r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusOnline, info.Status)
		assert.Empty(t, info.CurrentTask)
	})

	t.Run("timeout marks the agent as errored and drops the late response", func(t *testing.T) {
		r, log := setupRegistry(t, Options{DefaultTimeout: 30 * time.Millisecond})
		a := registerAgent(t, r, "alpha")
		cmd := runCommand(t)

		resp, err := r.Dispatch(ctx, a.ID, cmd)
		assert.ErrorIs(t, err, ErrCommandTimeout)
		assert.False(t, resp.Success)
		assert.Equal(t, cmd.ID, resp.CommandID)
		assert.Equal(t, ErrCommandTimeout.Error(), resp.Error)

		info, err := r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusError, info.Status)
		assert.Equal(t, 1, info.PendingCommands)

		delivered, err := r.Respond(ctx, a.ID, Response{CommandID: cmd.ID, Success: true})
		require.NoError(t, err)
		assert.False(t, delivered)
		assert.True(t, log.HasMessage("warn", "dropping response without a waiting dispatcher"))
	})

	t.Run("ping leaves the status alone", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 30 * time.Millisecond})
		a := registerAgent(t, r, "alpha")

		_, err := r.Dispatch(ctx, a.ID, Command{Type: CommandPing})
		assert.ErrorIs(t, err, ErrCommandTimeout)

		info, err := r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusOnline, info.Status)
	})

	t.Run("unknown agent", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{})

		resp, err := r.Dispatch(ctx, uuid.New(), runCommand(t))
		assert.ErrorIs(t, err, ErrAgentNotFound)
		assert.False(t, resp.Success)
		assert.Equal(t, ErrAgentNotFound.Error(), resp.Error)
		assert.True(t, IsProtocolError(err))
	})

	t.Run("unregister releases the dispatcher", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 5 * time.Second})
		a := registerAgent(t, r, "alpha")
		cmd := runCommand(t)

		done := make(chan error, 1)
		go func() {
			_, err := r.Dispatch(ctx, a.ID, cmd)
			done <- err
		}()

		require.Eventually(t, func() bool {
			info, err := r.Get(a.ID)
			return err == nil && info.Status == StatusBusy
		}, 2*time.Second, 5*time.Millisecond)
		r.Unregister(ctx, a.ID)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrAgentNotFound)
		case <-time.After(2 * time.Second):
			t.Fatal("dispatch did not return after unregister")
		}
	})

	t.Run("responses for another agent are not delivered", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 500 * time.Millisecond})
		a := registerAgent(t, r, "alpha")
		b := registerAgent(t, r, "beta")
		cmd := runCommand(t)

		done := make(chan error, 1)
		go func() {
			_, err := r.Dispatch(ctx, a.ID, cmd)
			done <- err
		}()
		require.Eventually(t, func() bool {
			info, err := r.Get(a.ID)
			return err == nil && info.Status == StatusBusy
		}, 2*time.Second, 5*time.Millisecond)

		delivered, err := r.Respond(ctx, b.ID, Response{CommandID: cmd.ID, Success: true})
		require.NoError(t, err)
		assert.False(t, delivered)
		assert.ErrorIs(t, <-done, ErrCommandTimeout)
	})

	t.Run("second execution command is refused while one is outstanding", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 5 * time.Second})
		a := registerAgent(t, r, "alpha")
		first := runCommand(t)
		second := runCommand(t)

		done := make(chan error, 1)
		go func() {
			_, err := r.Dispatch(ctx, a.ID, first)
			done <- err
		}()
		require.Eventually(t, func() bool {
			info, err := r.Get(a.ID)
			return err == nil && info.Status == StatusBusy
		}, 2*time.Second, 5*time.Millisecond)

		resp, err := r.Dispatch(ctx, a.ID, second)
		assert.ErrorIs(t, err, ErrAgentBusy)
		assert.False(t, resp.Success)
		assert.Equal(t, second.ID, resp.CommandID)
		assert.True(t, IsProtocolError(err))

		info, err := r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBusy, info.Status)
		assert.Equal(t, 1, info.PendingCommands)

		polled, err := r.Poll(a.ID)
		require.NoError(t, err)
		require.NotNil(t, polled)
		assert.Equal(t, first.ID, polled.ID)

		delivered, err := r.Respond(ctx, a.ID, Response{CommandID: first.ID, Success: true})
		require.NoError(t, err)
		assert.True(t, delivered)
		require.NoError(t, <-done)

		info, err = r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusOnline, info.Status)
		assert.Equal(t, 0, info.PendingCommands)

		// Once the agent is free it takes execution work again.
		go func() {
			_, err := r.Dispatch(ctx, a.ID, second)
			done <- err
		}()
		require.Eventually(t, func() bool {
			c, err := r.Poll(a.ID)
			return err == nil && c != nil && c.ID == second.ID
		}, 2*time.Second, 5*time.Millisecond)
		_, err = r.Respond(ctx, a.ID, Response{CommandID: second.ID, Success: true})
		require.NoError(t, err)
		require.NoError(t, <-done)
	})

	t.Run("ping is delivered while the agent is busy", func(t *testing.T) {
		r, _ := setupRegistry(t, Options{DefaultTimeout: 5 * time.Second})
		a := registerAgent(t, r, "alpha")
		run := runCommand(t)

		done := make(chan error, 1)
		go func() {
			_, err := r.Dispatch(ctx, a.ID, run)
			done <- err
		}()
		require.Eventually(t, func() bool {
			info, err := r.Get(a.ID)
			return err == nil && info.Status == StatusBusy
		}, 2*time.Second, 5*time.Millisecond)

		ping := Command{ID: uuid.New(), Type: CommandPing, TimeoutSeconds: 1}
		pingDone := make(chan error, 1)
		go func() {
			_, err := r.Dispatch(ctx, a.ID, ping)
			pingDone <- err
		}()
		require.Eventually(t, func() bool {
			info, err := r.Get(a.ID)
			return err == nil && info.PendingCommands == 2
		}, 2*time.Second, 5*time.Millisecond)

		for _, id := range []uuid.UUID{run.ID, ping.ID} {
			c, err := r.Poll(a.ID)
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, id, c.ID)
		}
		_, err := r.Respond(ctx, a.ID, Response{CommandID: ping.ID, Success: true, Message: "pong"})
		require.NoError(t, err)
		require.NoError(t, <-pingDone)

		info, err := r.Get(a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBusy, info.Status)

		_, err = r.Respond(ctx, a.ID, Response{CommandID: run.ID, Success: true})
		require.NoError(t, err)
		require.NoError(t, <-done)
	})
}

func TestRegistry_Sweep(t *testing.T) {
	ctx := context.Background()
	r, _ := setupRegistry(t, Options{})
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	r.now = func() time.Time { return base }
	stale := registerAgent(t, r, "stale")
	fresh := registerAgent(t, r, "fresh")

	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	assert.True(t, r.Touch(fresh.ID))
	assert.False(t, r.Touch(uuid.New()))

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	removed := r.Sweep(ctx, 0)
	assert.Equal(t, []uuid.UUID{stale.ID}, removed)

	_, err := r.Get(stale.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)

	removed = r.Sweep(ctx, time.Minute)
	assert.Equal(t, []uuid.UUID{fresh.ID}, removed)
}

func TestCommand(t *testing.T) {
	caseID := uuid.New()
	cmd, err := NewCommand(CommandRunTestCase, RunCasePayload{
		CaseID:        caseID,
		ProjectConfig: map[string]interface{}{"browser": "firefox"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, cmd.ID)
	assert.Contains(t, string(cmd.Payload), `"test_case_id"`)

	var payload RunCasePayload
	require.NoError(t, cmd.DecodePayload(&payload))
	assert.Equal(t, caseID, payload.CaseID)
	assert.Equal(t, "firefox", payload.ProjectConfig["browser"])

	_, err = NewCommand("reboot", nil)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	assert.Error(t, Command{Type: CommandPing}.DecodePayload(&payload))

	assert.True(t, CommandRunModule.IsExecution())
	assert.False(t, CommandPing.IsExecution())
	assert.False(t, CommandShutdown.IsExecution())
	assert.Equal(t, 7*time.Second, Command{TimeoutSeconds: 7}.timeout(time.Minute))
	assert.Equal(t, time.Minute, Command{}.timeout(time.Minute))
}
