package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/runner"
	"github.com/hairizuanbinnoorazman/keyword-runner/storage"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
)

// CaseResolver expands a module or project into its test case ids.
type CaseResolver interface {
	CasesForModule(ctx context.Context, moduleID uuid.UUID) ([]uuid.UUID, error)
	CasesForProject(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}

// RunQueue accepts test cases for background execution.
type RunQueue interface {
	Submit(caseIDs ...uuid.UUID) (int, error)
}

// TestRunHandler triggers runs and serves their results.
type TestRunHandler struct {
	testRunStore  testrun.Store
	testCaseStore testcase.Store
	resolver      CaseResolver
	queue         RunQueue
	storage       storage.BlobStorage
	logger        logger.Logger
}

// NewTestRunHandler creates a new test run handler. blob may be nil, in which
// case artifacts are served from the local run directories.
func NewTestRunHandler(testRunStore testrun.Store, testCaseStore testcase.Store, resolver CaseResolver, queue RunQueue, blob storage.BlobStorage, log logger.Logger) *TestRunHandler {
	return &TestRunHandler{
		testRunStore:  testRunStore,
		testCaseStore: testCaseStore,
		resolver:      resolver,
		queue:         queue,
		storage:       blob,
		logger:        log,
	}
}

// RunDetailResponse is a run with its step log.
type RunDetailResponse struct {
	*testrun.TestRun
	Logs []testrun.LogEntry `json:"logs"`
}

func (h *TestRunHandler) submit(w http.ResponseWriter, r *http.Request, ids []uuid.UUID) {
	queued, err := h.queue.Submit(ids...)
	if err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			h.logger.Warn(r.Context(), "run queue full", map[string]interface{}{
				"requested": len(ids),
				"queued":    queued,
			})
			respondError(w, http.StatusServiceUnavailable,
				fmt.Sprintf("run queue is full: %d of %d test cases queued", queued, len(ids)))
			return
		}
		h.logger.Error(r.Context(), "failed to queue runs", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to queue runs")
		return
	}
	respondJSON(w, http.StatusAccepted, TriggeredResponse{Message: "triggered", Count: queued})
}

// TriggerCase queues one test case.
func (h *TestRunHandler) TriggerCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	if _, err := h.testCaseStore.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get test case", map[string]interface{}{
			"error":   err.Error(),
			"case_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to trigger run")
		return
	}

	h.submit(w, r, []uuid.UUID{id})
}

// TriggerModule queues every test case of a module.
func (h *TestRunHandler) TriggerModule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "module")
	if !ok {
		return
	}
	ids, err := h.resolver.CasesForModule(r.Context(), id)
	h.triggerAll(w, r, ids, err, "module")
}

// TriggerProject queues every test case of a project.
func (h *TestRunHandler) TriggerProject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "project")
	if !ok {
		return
	}
	ids, err := h.resolver.CasesForProject(r.Context(), id)
	h.triggerAll(w, r, ids, err, "project")
}

func (h *TestRunHandler) triggerAll(w http.ResponseWriter, r *http.Request, ids []uuid.UUID, err error, entity string) {
	if err != nil {
		if errors.Is(err, runner.ErrNotFound) {
			respondError(w, http.StatusNotFound, entity+" not found")
			return
		}
		h.logger.Error(r.Context(), "failed to resolve test cases", map[string]interface{}{
			"error":  err.Error(),
			"entity": entity,
		})
		respondError(w, http.StatusInternalServerError, "failed to trigger runs")
		return
	}
	if len(ids) == 0 {
		respondJSON(w, http.StatusAccepted, TriggeredResponse{Message: "no test cases to run"})
		return
	}
	h.submit(w, r, ids)
}

// ListByCase handles listing the runs of a test case, newest first.
func (h *TestRunHandler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	runs, err := h.testRunStore.ListByCase(r.Context(), caseID, limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list test runs", map[string]interface{}{
			"error":   err.Error(),
			"case_id": caseID,
		})
		respondError(w, http.StatusInternalServerError, "failed to list test runs")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, len(runs), limit, offset))
}

func (h *TestRunHandler) getRun(w http.ResponseWriter, r *http.Request) (*testrun.TestRun, bool) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test run")
	if !ok {
		return nil, false
	}

	run, err := h.testRunStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, testrun.ErrTestRunNotFound) {
			respondError(w, http.StatusNotFound, "test run not found")
			return nil, false
		}
		h.logger.Error(r.Context(), "failed to get test run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get test run")
		return nil, false
	}
	return run, true
}

// GetByID handles getting a run together with its log.
func (h *TestRunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	run, ok := h.getRun(w, r)
	if !ok {
		return
	}

	logs, err := h.testRunStore.ListLogs(r.Context(), run.ID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list run logs", map[string]interface{}{
			"error":  err.Error(),
			"run_id": run.ID,
		})
		respondError(w, http.StatusInternalServerError, "failed to get test run")
		return
	}

	respondJSON(w, http.StatusOK, RunDetailResponse{TestRun: run, Logs: logs})
}

// Logs handles listing a run's log entries in order.
func (h *TestRunHandler) Logs(w http.ResponseWriter, r *http.Request) {
	run, ok := h.getRun(w, r)
	if !ok {
		return
	}

	logs, err := h.testRunStore.ListLogs(r.Context(), run.ID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list run logs", map[string]interface{}{
			"error":  err.Error(),
			"run_id": run.ID,
		})
		respondError(w, http.StatusInternalServerError, "failed to list run logs")
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

// DownloadArtifact streams a run's trace archive or log file.
func (h *TestRunHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	run, ok := h.getRun(w, r)
	if !ok {
		return
	}

	var location, contentType string
	switch mux.Vars(r)["kind"] {
	case "trace":
		location, contentType = run.TracePath, "application/zip"
	case "log":
		location, contentType = run.LogPath, "text/plain; charset=utf-8"
	default:
		respondError(w, http.StatusBadRequest, "artifact kind must be trace or log")
		return
	}
	if location == "" {
		respondError(w, http.StatusNotFound, "artifact not recorded for this run")
		return
	}

	reader, err := h.open(r.Context(), location)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) || errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "artifact file not found")
			return
		}
		h.logger.Error(r.Context(), "failed to open artifact", map[string]interface{}{
			"error": err.Error(),
			"path":  location,
		})
		respondError(w, http.StatusInternalServerError, "failed to download artifact")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(location)))

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error(r.Context(), "failed to stream artifact", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *TestRunHandler) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if h.storage != nil {
		return h.storage.Download(ctx, location)
	}
	return os.Open(location)
}
