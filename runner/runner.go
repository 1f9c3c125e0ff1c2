// Package runner owns test runs end to end: it opens an isolated browser
// session, executes a case's steps in order through the keyword dispatcher,
// stops at the first failure, captures the trace and persists the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
	"github.com/hairizuanbinnoorazman/keyword-runner/keyword"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/storage"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when the case, module or project to run, or the
// project owning a case, does not exist.
var ErrNotFound = errors.New("not found")

// LocalExecutor is recorded on runs executed by the coordinator itself.
const LocalExecutor = "local"

const (
	runLogName   = "run.log"
	traceName    = "trace.zip"
	shotsDirName = "screenshots"
	listPageSize = 100
)

// Phase is a stage of a run.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseSessionOpen Phase = "session_open"
	PhaseStepLoop    Phase = "step_loop"
	PhaseTraceClose  Phase = "trace_close"
	PhasePersisted   Phase = "persisted"
)

// Options configures a Runner.
type Options struct {
	// ReportsDir receives one directory per run.
	ReportsDir string

	// LogLevel is the level of each run's run.log.
	LogLevel string

	// Executor is recorded on every run.
	Executor string
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Cases    testcase.Store
	Projects project.Store
	Modules  testmodule.Store
	Runs     testrun.Store
	Driver   browser.Driver

	// Storage is optional. When set, run artifacts are published to it and
	// persisted paths are storage keys.
	Storage storage.BlobStorage
}

// Runner executes test cases.
type Runner struct {
	deps   Deps
	opts   Options
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Runner.
func New(deps Deps, opts Options, log logger.Logger) *Runner {
	if opts.ReportsDir == "" {
		opts.ReportsDir = "reports"
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}
	if opts.Executor == "" {
		opts.Executor = LocalExecutor
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: log,
		tracer: otel.Tracer("keyword-runner/runner"),
		now:    time.Now,
	}
}

// execution is the mutable state of one RunCase call.
type execution struct {
	caseID    uuid.UUID
	start     time.Time
	phase     Phase
	status    testrun.Status
	entries   []testrun.LogEntry
	dir       string
	logPath   string
	tracePath string
	log       logger.Logger

	// closeLog flushes run.log; set once the file is open.
	closeLog func() error
}

func (ex *execution) enter(ctx context.Context, phase Phase) {
	ex.phase = phase
	ex.log.Debug(ctx, "run phase", map[string]interface{}{"phase": string(phase)})
}

// RunCase executes one test case and always persists a run, even when the
// case does not exist or the browser session breaks. The returned error is
// ErrNotFound (the failed run is still recorded) or wraps
// testrun.ErrPersistenceFailure; every other failure is reported through the
// run's status and log.
func (r *Runner) RunCase(ctx context.Context, caseID uuid.UUID) (*testrun.TestRun, error) {
	ctx, span := r.tracer.Start(ctx, "runner.RunCase", trace.WithAttributes(
		attribute.String("case_id", caseID.String()),
		attribute.String("executor", r.opts.Executor),
	))
	defer span.End()

	ex := &execution{
		caseID: caseID,
		start:  r.now(),
		status: testrun.StatusFailed,
		log: r.logger.WithFields(map[string]interface{}{
			"case_id":  caseID.String(),
			"executor": r.opts.Executor,
		}),
	}

	runErr := r.execute(ctx, ex)
	if ex.closeLog != nil {
		if err := ex.closeLog(); err != nil {
			r.logger.Warn(ctx, "failed to close run log", map[string]interface{}{
				"case_id": caseID.String(),
				"error":   err.Error(),
			})
		}
		ex.log = r.logger.WithFields(map[string]interface{}{
			"case_id":  caseID.String(),
			"executor": r.opts.Executor,
		})
	}

	// Persistence must happen even if the caller gave up on the run.
	persistCtx := context.WithoutCancel(ctx)
	if r.deps.Storage != nil && ex.dir != "" {
		r.publish(persistCtx, ex)
	}

	run := &testrun.TestRun{
		CaseID:    caseID,
		Executor:  r.opts.Executor,
		StartTime: ex.start,
		TracePath: ex.tracePath,
		LogPath:   ex.logPath,
	}
	run.Complete(ex.status, r.now())

	if err := r.deps.Runs.Save(persistCtx, run, ex.entries); err != nil {
		r.logger.Error(ctx, "failed to persist test run", map[string]interface{}{
			"case_id": caseID.String(),
			"status":  string(run.Status),
			"error":   err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return run, err
	}
	ex.enter(ctx, PhasePersisted)

	span.SetAttributes(
		attribute.String("run_id", run.ID.String()),
		attribute.String("status", string(run.Status)),
		attribute.Int("entries", len(ex.entries)),
	)
	if run.Status == testrun.StatusFailed {
		span.SetStatus(codes.Error, "run failed")
	}

	r.logger.Info(ctx, "test run finished", map[string]interface{}{
		"case_id":  caseID.String(),
		"run_id":   run.ID.String(),
		"status":   string(run.Status),
		"duration": run.Duration,
	})

	if errors.Is(runErr, ErrNotFound) {
		return run, runErr
	}
	return run, nil
}

// execute runs every phase up to trace close. Any error or panic it ends
// with is recorded once as the run's critical entry. run.log stays open for
// the caller to close.
func (r *Runner) execute(ctx context.Context, ex *execution) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = browser.SessionError("driver panic", fmt.Errorf("%v", rec))
		}
		if err != nil {
			ex.status = testrun.StatusFailed
			ex.entries = append(ex.entries, testrun.CriticalEntry(err.Error()))
			ex.log.Error(ctx, "unexpected error during test run", map[string]interface{}{
				"phase": string(ex.phase),
				"error": err.Error(),
			})
		}
	}()

	ex.enter(ctx, PhaseInit)
	tc, err := r.deps.Cases.GetByID(ctx, ex.caseID)
	if errors.Is(err, testcase.ErrTestCaseNotFound) {
		return fmt.Errorf("%w: test case %s", ErrNotFound, ex.caseID)
	}
	if err != nil {
		return err
	}
	proj, err := r.deps.Projects.GetByID(ctx, tc.ProjectID)
	if errors.Is(err, project.ErrProjectNotFound) {
		return fmt.Errorf("%w: project %s", ErrNotFound, tc.ProjectID)
	}
	if err != nil {
		return err
	}

	ex.dir = filepath.Join(r.opts.ReportsDir, fmt.Sprintf("run_%s_%s", ex.caseID, ex.start.Format("20060102_150405")))
	shotsDir := filepath.Join(ex.dir, shotsDirName)
	if err := os.MkdirAll(shotsDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	logPath := filepath.Join(ex.dir, runLogName)
	fileLog, closeLog, err := logger.NewLogrusFileLogger(r.opts.LogLevel, logPath)
	if err != nil {
		return err
	}
	ex.closeLog = closeLog
	ex.logPath = logPath
	ex.log = logger.Multi(ex.log, fileLog.WithField("case_id", ex.caseID.String()))

	ex.log.Info(ctx, "starting test case", map[string]interface{}{
		"case":    tc.Name,
		"project": proj.Name,
		"browser": string(proj.Browser),
		"steps":   len(tc.Steps),
	})

	ex.enter(ctx, PhaseSessionOpen)
	session, err := r.deps.Driver.Launch(ctx, browser.LaunchOptions{
		Kind:     string(proj.Browser),
		Headless: proj.Headless,
	})
	if err != nil {
		return err
	}
	// Deferred closes run in reverse: the trace is flushed before the session goes away.
	defer func() {
		if cerr := session.Close(ctx); cerr != nil {
			ex.log.Warn(ctx, "failed to close browser session", map[string]interface{}{
				"error": cerr.Error(),
			})
		}
	}()

	bctx, err := session.NewContext(ctx, browser.ContextOptions{IgnoreHTTPSErrors: true})
	if err != nil {
		return err
	}
	tracePath := filepath.Join(ex.dir, traceName)
	defer func() {
		ex.enter(ctx, PhaseTraceClose)
		cerr := bctx.Close(ctx, tracePath)
		if cerr == nil {
			ex.tracePath = tracePath
			return
		}
		if err == nil {
			err = cerr
			return
		}
		ex.log.Warn(ctx, "failed to close traced context", map[string]interface{}{
			"error": cerr.Error(),
		})
	}()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return err
	}

	ex.enter(ctx, PhaseStepLoop)
	dispatcher := keyword.NewDispatcher(page, keyword.Options{
		BaseURL:       proj.BaseURL,
		ScreenshotDir: shotsDir,
	}, ex.log)

	for _, step := range tc.SortedSteps() {
		res := dispatcher.ExecuteStep(ctx, step.KeywordStep())
		level := testrun.LevelInfo
		if !res.Success {
			level = testrun.LevelError
		}
		ex.entries = append(ex.entries, testrun.StepEntry(step.Position, level, res.Message, res.ScreenshotPath))
		if !res.Success {
			ex.log.Info(ctx, "test case failed, skipping remaining steps", map[string]interface{}{
				"position": step.Position,
			})
			return nil
		}
	}

	ex.status = testrun.StatusPassed
	return nil
}

// publish uploads the run directory and rewrites recorded paths to storage
// keys. On failure the local paths are kept.
func (r *Runner) publish(ctx context.Context, ex *execution) {
	prefix := "runs/" + filepath.Base(ex.dir)
	keys, err := storage.PublishDir(ctx, r.deps.Storage, ex.dir, prefix)
	if err != nil {
		r.logger.Warn(ctx, "failed to publish run artifacts", map[string]interface{}{
			"case_id": ex.caseID.String(),
			"dir":     ex.dir,
			"error":   err.Error(),
		})
		return
	}

	rewrite := func(p string) string {
		if key, ok := keys[p]; ok {
			return key
		}
		return p
	}
	ex.tracePath = rewrite(ex.tracePath)
	ex.logPath = rewrite(ex.logPath)
	for i := range ex.entries {
		if ex.entries[i].ScreenshotPath != "" {
			ex.entries[i].ScreenshotPath = rewrite(ex.entries[i].ScreenshotPath)
		}
	}
}

// CasesForModule returns the ids of every case in a module.
func (r *Runner) CasesForModule(ctx context.Context, moduleID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := r.deps.Modules.GetByID(ctx, moduleID); err != nil {
		if errors.Is(err, testmodule.ErrModuleNotFound) {
			return nil, fmt.Errorf("%w: module %s", ErrNotFound, moduleID)
		}
		return nil, err
	}
	cases, err := r.deps.Cases.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(cases))
	for i, tc := range cases {
		ids[i] = tc.ID
	}
	return ids, nil
}

// CasesForProject returns the ids of every case in a project.
func (r *Runner) CasesForProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := r.deps.Projects.GetByID(ctx, projectID); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
		return nil, err
	}

	var ids []uuid.UUID
	for offset := 0; ; offset += listPageSize {
		cases, err := r.deps.Cases.ListByProject(ctx, projectID, listPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, tc := range cases {
			ids = append(ids, tc.ID)
		}
		if len(cases) < listPageSize {
			return ids, nil
		}
	}
}

// RunModule runs every case of a module sequentially.
func (r *Runner) RunModule(ctx context.Context, moduleID uuid.UUID) ([]*testrun.TestRun, error) {
	ids, err := r.CasesForModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return r.runAll(ctx, ids)
}

// RunProject runs every case of a project sequentially.
func (r *Runner) RunProject(ctx context.Context, projectID uuid.UUID) ([]*testrun.TestRun, error) {
	ids, err := r.CasesForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return r.runAll(ctx, ids)
}

func (r *Runner) runAll(ctx context.Context, ids []uuid.UUID) ([]*testrun.TestRun, error) {
	runs := make([]*testrun.TestRun, 0, len(ids))
	var errs []error
	for _, id := range ids {
		run, err := r.RunCase(ctx, id)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return runs, errors.Join(errs...)
}
