package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/browser/browsertest"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/storage"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"github.com/hairizuanbinnoorazman/keyword-runner/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	runner   *Runner
	driver   *browsertest.Driver
	projects project.Store
	cases    testcase.Store
	modules  testmodule.Store
	runs     testrun.Store
	project  *project.Project
	reports  string
}

func setupRunner(t *testing.T) *fixture {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db,
		&project.Project{}, &testmodule.Module{},
		&testcase.TestCase{}, &testcase.Step{},
		&testrun.TestRun{}, &testrun.LogEntry{},
	)

	log := logger.NewTestLogger()
	f := &fixture{
		driver:   browsertest.New(),
		projects: project.NewMySQLStore(db, log),
		cases:    testcase.NewMySQLStore(db, log),
		modules:  testmodule.NewMySQLStore(db, log),
		runs:     testrun.NewMySQLStore(db, log),
		reports:  t.TempDir(),
	}

	f.project = &project.Project{Name: "Shop", BaseURL: "http://app.test"}
	require.NoError(t, f.projects.Create(context.Background(), f.project))

	f.runner = New(Deps{
		Cases:    f.cases,
		Projects: f.projects,
		Modules:  f.modules,
		Runs:     f.runs,
		Driver:   f.driver,
	}, Options{ReportsDir: f.reports}, log)
	return f
}

func strPtr(s string) *string { return &s }

func loginSteps(submitLocator string) []testcase.Step {
	return []testcase.Step{
		{Position: 1, Operation: "navigate", Value: strPtr("/login")},
		{Position: 2, Operation: "fill", Locator: strPtr("#user"), Value: strPtr("bob")},
		{Position: 3, Operation: "click", Locator: strPtr(submitLocator)},
		{Position: 4, Operation: "assert_text_equals", Locator: strPtr("#greeting"), Value: strPtr("Welcome bob")},
	}
}

func (f *fixture) createCase(t *testing.T, name string, moduleID *uuid.UUID, steps []testcase.Step) *testcase.TestCase {
	tc := &testcase.TestCase{Name: name, ProjectID: f.project.ID, ModuleID: moduleID, Steps: steps}
	require.NoError(t, f.cases.Create(context.Background(), tc))
	return tc
}

func TestRunner_RunCase(t *testing.T) {
	ctx := context.Background()

	t.Run("passing case records every step", func(t *testing.T) {
		f := setupRunner(t)
		f.driver.Texts["#greeting"] = "Welcome bob"
		tc := f.createCase(t, "login", nil, loginSteps("#submit"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusPassed, run.Status)
		assert.Equal(t, LocalExecutor, run.Executor)
		assert.GreaterOrEqual(t, run.Duration, 0.0)
		assert.Equal(t, "http://app.test/login", f.driver.URL())

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 4)
		for i, entry := range logs {
			require.NotNil(t, entry.Position)
			assert.Equal(t, i+1, *entry.Position)
			assert.Equal(t, testrun.LevelInfo, entry.Level)
			assert.True(t, strings.HasPrefix(entry.Message, "SUCCESS: "), entry.Message)
			assert.Empty(t, entry.ScreenshotPath)
		}

		stored, err := f.runs.GetByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusPassed, stored.Status)

		assert.Equal(t, []string{run.TracePath}, f.driver.TracePaths())
		assert.FileExists(t, run.TracePath)
		assert.FileExists(t, run.LogPath)
		assert.Equal(t, 1, f.driver.SessionsClosed())
		assert.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(run.TracePath)), "run_"+tc.ID.String()+"_"))
	})

	t.Run("first failure stops the case and captures a screenshot", func(t *testing.T) {
		f := setupRunner(t)
		f.driver.Missing["#submitt"] = true
		tc := f.createCase(t, "login", nil, loginSteps("#submitt"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusFailed, run.Status)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, testrun.LevelInfo, logs[0].Level)
		assert.Equal(t, testrun.LevelInfo, logs[1].Level)
		assert.Equal(t, testrun.LevelError, logs[2].Level)
		assert.True(t, strings.HasPrefix(logs[2].Message, "FAILURE: "), logs[2].Message)
		assert.Equal(t, "step_3_failure.png", filepath.Base(logs[2].ScreenshotPath))
		assert.FileExists(t, logs[2].ScreenshotPath)

		for _, call := range f.driver.Calls() {
			assert.NotEqual(t, "expect_text", call.Op)
		}
		assert.Equal(t, 1, f.driver.SessionsClosed())
		assert.NotEmpty(t, run.TracePath)
	})

	t.Run("case without steps passes", func(t *testing.T) {
		f := setupRunner(t)
		tc := f.createCase(t, "empty", nil, nil)

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusPassed, run.Status)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, logs)
		assert.Len(t, f.driver.TracePaths(), 1)
	})

	t.Run("launch failure is recorded as a critical entry", func(t *testing.T) {
		f := setupRunner(t)
		f.driver.LaunchErr = errors.New("executable doesn't exist")
		tc := f.createCase(t, "login", nil, loginSteps("#submit"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusFailed, run.Status)
		assert.Empty(t, run.TracePath)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, testrun.LevelCritical, logs[0].Level)
		assert.Nil(t, logs[0].Position)
		assert.Contains(t, logs[0].Message, "executable doesn't exist")

		content, err := os.ReadFile(run.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "unexpected error during test run")
		assert.Contains(t, string(content), "executable doesn't exist")
	})

	t.Run("missing case is still recorded", func(t *testing.T) {
		f := setupRunner(t)
		missing := uuid.New()

		run, err := f.runner.RunCase(ctx, missing)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NotNil(t, run)
		assert.Equal(t, testrun.StatusFailed, run.Status)
		assert.Empty(t, f.driver.Launches())

		runs, err := f.runs.ListByCase(ctx, missing, 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, testrun.LevelCritical, logs[0].Level)
	})

	t.Run("driver panic is contained", func(t *testing.T) {
		f := setupRunner(t)
		f.driver.PanicOn = "new_page"
		tc := f.createCase(t, "login", nil, loginSteps("#submit"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusFailed, run.Status)
		assert.Equal(t, 1, f.driver.SessionsClosed())
		assert.Len(t, f.driver.TracePaths(), 1)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, testrun.LevelCritical, logs[0].Level)
		assert.Contains(t, logs[0].Message, "driver crashed")
	})

	t.Run("trace close failure fails the run", func(t *testing.T) {
		f := setupRunner(t)
		f.driver.CloseTraceErr = errors.New("disk full")
		tc := f.createCase(t, "login", nil, loginSteps("#submit"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, testrun.StatusFailed, run.Status)
		assert.Empty(t, run.TracePath)

		logs, err := f.runs.ListLogs(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, logs, 5)
		assert.Equal(t, testrun.LevelCritical, logs[4].Level)
		assert.Contains(t, logs[4].Message, "disk full")
	})

	t.Run("step progress is written to the run log", func(t *testing.T) {
		f := setupRunner(t)
		tc := f.createCase(t, "login", nil, loginSteps("#submit"))

		run, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)

		content, err := os.ReadFile(run.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "starting test case")
	})

	t.Run("project browser settings reach the driver", func(t *testing.T) {
		f := setupRunner(t)
		require.NoError(t, f.projects.Update(ctx, f.project.ID,
			project.SetBrowser(project.BrowserFirefox), project.SetHeadless(true)))
		tc := f.createCase(t, "login", nil, nil)

		_, err := f.runner.RunCase(ctx, tc.ID)
		require.NoError(t, err)

		launches := f.driver.Launches()
		require.Len(t, launches, 1)
		assert.Equal(t, "firefox", launches[0].Kind)
		assert.True(t, launches[0].Headless)
	})
}

func TestRunner_RunCase_PublishesArtifacts(t *testing.T) {
	ctx := context.Background()
	f := setupRunner(t)
	f.driver.Missing["#submitt"] = true
	tc := f.createCase(t, "login", nil, loginSteps("#submitt"))

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f.runner.deps.Storage = store

	run, err := f.runner.RunCase(ctx, tc.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(run.TracePath, "runs/run_"), run.TracePath)
	assert.True(t, strings.HasSuffix(run.TracePath, "/trace.zip"), run.TracePath)
	assert.True(t, strings.HasSuffix(run.LogPath, "/run.log"), run.LogPath)

	ok, err := store.Exists(ctx, run.TracePath)
	require.NoError(t, err)
	assert.True(t, ok)

	logs, err := f.runs.ListLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.True(t, strings.HasSuffix(logs[2].ScreenshotPath, "/screenshots/step_3_failure.png"), logs[2].ScreenshotPath)
	ok, err = store.Exists(ctx, logs[2].ScreenshotPath)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingRunStore struct {
	testrun.Store
}

func (failingRunStore) Save(ctx context.Context, run *testrun.TestRun, entries []testrun.LogEntry) error {
	return fmt.Errorf("%w: database is locked", testrun.ErrPersistenceFailure)
}

func TestRunner_RunCase_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := setupRunner(t)
	tc := f.createCase(t, "login", nil, nil)
	f.runner.deps.Runs = failingRunStore{}

	run, err := f.runner.RunCase(ctx, tc.ID)
	assert.ErrorIs(t, err, testrun.ErrPersistenceFailure)
	require.NotNil(t, run)
	assert.Equal(t, testrun.StatusPassed, run.Status)
}

func TestRunner_RunModule(t *testing.T) {
	ctx := context.Background()
	f := setupRunner(t)

	mod := &testmodule.Module{Name: "Auth", ProjectID: f.project.ID}
	require.NoError(t, f.modules.Create(ctx, mod))
	f.createCase(t, "login", &mod.ID, loginSteps("#submit"))
	f.createCase(t, "logout", &mod.ID, nil)
	f.createCase(t, "outside", nil, nil)

	runs, err := f.runner.RunModule(ctx, mod.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, testrun.StatusPassed, run.Status)
	}

	_, err = f.runner.RunModule(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunner_RunProject(t *testing.T) {
	ctx := context.Background()
	f := setupRunner(t)
	f.driver.Missing["#submitt"] = true

	f.createCase(t, "good", nil, loginSteps("#submit"))
	f.createCase(t, "bad", nil, loginSteps("#submitt"))

	runs, err := f.runner.RunProject(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	statuses := map[testrun.Status]int{}
	for _, run := range runs {
		statuses[run.Status]++
	}
	assert.Equal(t, 1, statuses[testrun.StatusPassed])
	assert.Equal(t, 1, statuses[testrun.StatusFailed])

	_, err = f.runner.RunProject(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := f.runner.CasesForProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
