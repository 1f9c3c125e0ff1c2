package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/runner"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	capacity  int
	submitted []uuid.UUID
}

func (q *fakeQueue) Submit(ids ...uuid.UUID) (int, error) {
	for i, id := range ids {
		if len(q.submitted) >= q.capacity {
			return i, runner.ErrQueueFull
		}
		q.submitted = append(q.submitted, id)
	}
	return len(ids), nil
}

type apiFixture struct {
	router   *mux.Router
	projects project.Store
	modules  testmodule.Store
	cases    testcase.Store
	runs     testrun.Store
	registry *agent.Registry
	queue    *fakeQueue
}

func setupAPI(t *testing.T) *apiFixture {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db,
		&project.Project{}, &testmodule.Module{},
		&testcase.TestCase{}, &testcase.Step{},
		&testrun.TestRun{}, &testrun.LogEntry{},
	)

	log := logger.NewTestLogger()
	f := &apiFixture{
		projects: project.NewMySQLStore(db, log),
		modules:  testmodule.NewMySQLStore(db, log),
		cases:    testcase.NewMySQLStore(db, log),
		runs:     testrun.NewMySQLStore(db, log),
		registry: agent.NewRegistry(agent.Options{}, log),
		queue:    &fakeQueue{capacity: 10},
	}
	resolver := runner.New(runner.Deps{
		Cases:    f.cases,
		Projects: f.projects,
		Modules:  f.modules,
		Runs:     f.runs,
	}, runner.Options{ReportsDir: t.TempDir()}, log)

	f.router = NewRouter(Handlers{
		Projects:  NewProjectHandler(f.projects, log),
		Modules:   NewModuleHandler(f.modules, f.projects, log),
		TestCases: NewTestCaseHandler(f.cases, f.projects, log),
		Runs:      NewTestRunHandler(f.runs, f.cases, resolver, f.queue, nil, log),
		Agents:    NewAgentHandler(f.registry, f.cases, f.projects, log),
	}, log)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (f *apiFixture) createProject(t *testing.T) *project.Project {
	p := &project.Project{Name: "Shop", BaseURL: "http://app.test"}
	require.NoError(t, f.projects.Create(context.Background(), p))
	return p
}

func (f *apiFixture) createCase(t *testing.T, projectID uuid.UUID, moduleID *uuid.UUID) *testcase.TestCase {
	value := "/login"
	tc := &testcase.TestCase{
		Name:      "login",
		ProjectID: projectID,
		ModuleID:  moduleID,
		Steps:     []testcase.Step{{Position: 1, Operation: "navigate", Value: &value}},
	}
	require.NoError(t, f.cases.Create(context.Background(), tc))
	return tc
}

func TestProjectHandler(t *testing.T) {
	f := setupAPI(t)

	t.Run("create defaults browser and headless", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/projects", map[string]interface{}{
			"name":     "Shop",
			"base_url": "http://app.test",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var got project.Project
		decode(t, w, &got)
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.Equal(t, project.BrowserChromium, got.Browser)
		assert.True(t, got.Headless)
	})

	t.Run("create rejects unknown browser", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/projects", map[string]interface{}{
			"name":    "Shop",
			"browser": "netscape",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update and delete", func(t *testing.T) {
		p := f.createProject(t)

		w := f.do(t, http.MethodPut, "/api/projects/"+p.ID.String(), map[string]interface{}{
			"browser":  "firefox",
			"headless": false,
		})
		require.Equal(t, http.StatusOK, w.Code)
		var got project.Project
		decode(t, w, &got)
		assert.Equal(t, project.BrowserFirefox, got.Browser)
		assert.False(t, got.Headless)

		w = f.do(t, http.MethodDelete, "/api/projects/"+p.ID.String(), nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, http.MethodGet, "/api/projects/"+p.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/projects/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestModuleHandler(t *testing.T) {
	f := setupAPI(t)
	p := f.createProject(t)

	w := f.do(t, http.MethodPost, "/api/projects/"+uuid.New().String()+"/modules", map[string]string{"name": "Auth"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID.String()+"/modules", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID.String()+"/modules", map[string]string{"name": "Auth"})
	require.Equal(t, http.StatusCreated, w.Code)
	var m testmodule.Module
	decode(t, w, &m)

	w = f.do(t, http.MethodPut, "/api/modules/"+m.ID.String(), map[string]string{"name": "Login"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &m)
	assert.Equal(t, "Login", m.Name)

	w = f.do(t, http.MethodGet, "/api/projects/"+p.ID.String()+"/modules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []testmodule.Module `json:"items"`
	}
	decode(t, w, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, m.ID, list.Items[0].ID)
}

func TestTestCaseHandler(t *testing.T) {
	f := setupAPI(t)
	p := f.createProject(t)
	base := "/api/projects/" + p.ID.String() + "/testcases"

	t.Run("legacy aliases are stored as canonical operations", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base, map[string]interface{}{
			"name": "login",
			"steps": []map[string]interface{}{
				{"position": 1, "operation": "goto", "value": "/login"},
				{"position": 2, "operation": "click", "locator": "#submit"},
			},
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var created testcase.TestCase
		decode(t, w, &created)

		w = f.do(t, http.MethodGet, "/api/testcases/"+created.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got testcase.TestCase
		decode(t, w, &got)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, "navigate", got.Steps[0].Operation)
		assert.Equal(t, "click", got.Steps[1].Operation)
	})

	t.Run("steps are validated against the vocabulary", func(t *testing.T) {
		tests := []struct {
			name string
			step map[string]interface{}
		}{
			{name: "unknown operation", step: map[string]interface{}{"position": 1, "operation": "hover", "locator": "#a"}},
			{name: "missing locator", step: map[string]interface{}{"position": 1, "operation": "click"}},
			{name: "missing value", step: map[string]interface{}{"position": 1, "operation": "fill", "locator": "#a"}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				w := f.do(t, http.MethodPost, base, map[string]interface{}{
					"name":  "bad",
					"steps": []map[string]interface{}{tc.step},
				})
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("duplicate positions are rejected", func(t *testing.T) {
		w := f.do(t, http.MethodPost, base, map[string]interface{}{
			"name": "dup",
			"steps": []map[string]interface{}{
				{"position": 1, "operation": "click", "locator": "#a"},
				{"position": 1, "operation": "click", "locator": "#b"},
			},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update replaces steps", func(t *testing.T) {
		tc := f.createCase(t, p.ID, nil)
		w := f.do(t, http.MethodPut, "/api/testcases/"+tc.ID.String(), map[string]interface{}{
			"steps": []map[string]interface{}{
				{"position": 5, "operation": "capture_screenshot"},
			},
		})
		require.Equal(t, http.StatusOK, w.Code)
		var got testcase.TestCase
		decode(t, w, &got)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, 5, got.Steps[0].Position)
	})

	t.Run("keywords route is not shadowed by the id route", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/testcases/keywords", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var defs []map[string]interface{}
		decode(t, w, &defs)
		assert.Len(t, defs, 10)
	})

	t.Run("list by module", func(t *testing.T) {
		m := &testmodule.Module{ProjectID: p.ID, Name: "Auth"}
		require.NoError(t, f.modules.Create(context.Background(), m))
		tc := f.createCase(t, p.ID, &m.ID)

		w := f.do(t, http.MethodGet, "/api/modules/"+m.ID.String()+"/testcases", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Items []testcase.TestCase `json:"items"`
		}
		decode(t, w, &list)
		require.Len(t, list.Items, 1)
		assert.Equal(t, tc.ID, list.Items[0].ID)
	})
}

func TestTestRunHandler_Trigger(t *testing.T) {
	f := setupAPI(t)
	p := f.createProject(t)
	m := &testmodule.Module{ProjectID: p.ID, Name: "Auth"}
	require.NoError(t, f.modules.Create(context.Background(), m))
	first := f.createCase(t, p.ID, &m.ID)
	second := f.createCase(t, p.ID, &m.ID)
	f.createCase(t, p.ID, nil)

	var resp TriggeredResponse

	w := f.do(t, http.MethodPost, "/api/testcases/"+first.ID.String()+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, "triggered", resp.Message)
	assert.Equal(t, 1, resp.Count)

	w = f.do(t, http.MethodPost, "/api/modules/"+m.ID.String()+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID.String()+"/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 3, resp.Count)

	assert.Len(t, f.queue.submitted, 6)
	assert.Contains(t, f.queue.submitted, second.ID)

	w = f.do(t, http.MethodPost, "/api/testcases/"+uuid.New().String()+"/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPost, "/api/modules/"+uuid.New().String()+"/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPost, "/api/projects/"+uuid.New().String()+"/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.queue.capacity = 7
	w = f.do(t, http.MethodPost, "/api/modules/"+m.ID.String()+"/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTestRunHandler_Results(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()
	p := f.createProject(t)
	tc := f.createCase(t, p.ID, nil)

	logPath := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(logPath, []byte("step 1 passed\n"), 0o644))

	start := time.Now().Add(-time.Second)
	run := &testrun.TestRun{
		CaseID:    tc.ID,
		Status:    testrun.StatusFailed,
		Executor:  runner.LocalExecutor,
		StartTime: start,
		EndTime:   time.Now(),
		LogPath:   logPath,
	}
	require.NoError(t, f.runs.Save(ctx, run, []testrun.LogEntry{
		testrun.StepEntry(1, testrun.LevelInfo, "navigated", ""),
		testrun.StepEntry(2, testrun.LevelError, "element not found", ""),
	}))

	w := f.do(t, http.MethodGet, "/api/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		ID     uuid.UUID          `json:"id"`
		Status testrun.Status     `json:"status"`
		Logs   []testrun.LogEntry `json:"logs"`
	}
	decode(t, w, &detail)
	assert.Equal(t, run.ID, detail.ID)
	assert.Equal(t, testrun.StatusFailed, detail.Status)
	require.Len(t, detail.Logs, 2)
	assert.Equal(t, testrun.LevelError, detail.Logs[1].Level)

	w = f.do(t, http.MethodGet, "/api/testcases/"+tc.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []testrun.TestRun `json:"items"`
	}
	decode(t, w, &list)
	require.Len(t, list.Items, 1)

	w = f.do(t, http.MethodGet, "/api/runs/"+run.ID.String()+"/artifacts/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "step 1 passed\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "run.log")

	w = f.do(t, http.MethodGet, "/api/runs/"+run.ID.String()+"/artifacts/trace", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/runs/"+run.ID.String()+"/artifacts/video", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/runs/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAgentHandler(t *testing.T) {
	f := setupAPI(t)

	register := func(t *testing.T, name string) agent.Info {
		w := f.do(t, http.MethodPost, "/api/agents/register", map[string]interface{}{
			"name":     name,
			"hostname": "host-1",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var info agent.Info
		decode(t, w, &info)
		return info
	}

	t.Run("register requires a name", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/agents/register", map[string]string{"hostname": "h"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("static routes are not shadowed by the id route", func(t *testing.T) {
		info := register(t, "runner-a")
		assert.Equal(t, agent.StatusOnline, info.Status)

		w := f.do(t, http.MethodGet, "/api/agents/available", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Items []agent.Info `json:"items"`
		}
		decode(t, w, &list)
		assert.NotEmpty(t, list.Items)
	})

	t.Run("poll returns an empty object when idle", func(t *testing.T) {
		info := register(t, "runner-b")
		w := f.do(t, http.MethodGet, "/api/agents/"+info.ID.String()+"/commands", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{}`, w.Body.String())
	})

	t.Run("run test case on an agent queues a command", func(t *testing.T) {
		info := register(t, "runner-c")
		p := f.createProject(t)
		tc := f.createCase(t, p.ID, nil)

		w := f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/run/testcase/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/run/testcase/"+tc.ID.String(), nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		var ack TriggeredResponse
		decode(t, w, &ack)
		require.NotNil(t, ack.CommandID)

		w = f.do(t, http.MethodGet, "/api/agents/"+info.ID.String()+"/commands", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var cmd agent.Command
		decode(t, w, &cmd)
		assert.Equal(t, *ack.CommandID, cmd.ID)
		assert.Equal(t, agent.CommandRunTestCase, cmd.Type)

		var payload agent.RunCasePayload
		require.NoError(t, cmd.DecodePayload(&payload))
		assert.Equal(t, tc.ID, payload.CaseID)
		assert.Equal(t, "http://app.test", payload.ProjectConfig["base_url"])

		w = f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/responses", agent.Response{CommandID: cmd.ID, Success: true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"delivered":false}`, w.Body.String())
	})

	t.Run("send command waits for the response", func(t *testing.T) {
		info := register(t, "runner-d")
		go func() {
			for i := 0; i < 200; i++ {
				cmd, err := f.registry.Poll(info.ID)
				if err != nil {
					return
				}
				if cmd != nil {
					f.registry.Respond(context.Background(), info.ID, agent.Response{CommandID: cmd.ID, Success: true, Message: "pong"})
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()

		w := f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/command", map[string]interface{}{
			"type":    "ping",
			"timeout": 5,
		})
		require.Equal(t, http.StatusOK, w.Code)
		var resp agent.Response
		decode(t, w, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "pong", resp.Message)
	})

	t.Run("send command times out", func(t *testing.T) {
		info := register(t, "runner-e")
		w := f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/command", map[string]interface{}{
			"type":    "run_test_case",
			"payload": map[string]string{"test_case_id": uuid.New().String()},
			"timeout": 1,
		})
		require.Equal(t, http.StatusGatewayTimeout, w.Code)
		var resp agent.Response
		decode(t, w, &resp)
		assert.False(t, resp.Success)

		got, err := f.registry.Get(info.ID)
		require.NoError(t, err)
		assert.Equal(t, agent.StatusError, got.Status)
	})

	t.Run("send command to a busy agent conflicts", func(t *testing.T) {
		info := register(t, "runner-h")
		running, err := agent.NewCommand(agent.CommandRunTestCase, agent.RunCasePayload{CaseID: uuid.New()})
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := f.registry.Dispatch(context.Background(), info.ID, running)
			done <- err
		}()
		require.Eventually(t, func() bool {
			got, err := f.registry.Get(info.ID)
			return err == nil && got.Status == agent.StatusBusy
		}, 2*time.Second, 5*time.Millisecond)

		w := f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/command", map[string]interface{}{
			"type":    "run_test_case",
			"payload": map[string]string{"test_case_id": uuid.New().String()},
		})
		require.Equal(t, http.StatusConflict, w.Code)
		var resp agent.Response
		decode(t, w, &resp)
		assert.False(t, resp.Success)
		assert.Equal(t, agent.ErrAgentBusy.Error(), resp.Error)

		_, err = f.registry.Respond(context.Background(), info.ID, agent.Response{CommandID: running.ID, Success: true})
		require.NoError(t, err)
		require.NoError(t, <-done)
	})

	t.Run("unknown agent and invalid input", func(t *testing.T) {
		missing := uuid.New().String()
		w := f.do(t, http.MethodPost, "/api/agents/"+missing+"/command", map[string]string{"type": "ping"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = f.do(t, http.MethodPost, "/api/agents/"+missing+"/heartbeat", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = f.do(t, http.MethodGet, "/api/agents/"+missing, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		info := register(t, "runner-f")
		w = f.do(t, http.MethodPost, "/api/agents/"+info.ID.String()+"/command", map[string]string{"type": "reboot"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.do(t, http.MethodPut, "/api/agents/"+info.ID.String()+"/status", map[string]string{"status": "sleeping"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = f.do(t, http.MethodPut, "/api/agents/"+info.ID.String()+"/status", map[string]string{"status": "busy"})
		assert.Equal(t, http.StatusOK, w.Code)
		w = f.do(t, http.MethodPost, "/api/agents/sweep?threshold=soon", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sweep and unregister", func(t *testing.T) {
		info := register(t, "runner-g")
		time.Sleep(5 * time.Millisecond)

		w := f.do(t, http.MethodPost, "/api/agents/sweep?threshold=1ms", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var swept SweepResponse
		decode(t, w, &swept)
		assert.Contains(t, swept.IDs, info.ID.String())

		w = f.do(t, http.MethodDelete, "/api/agents/"+info.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
