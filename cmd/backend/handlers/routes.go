package handlers

import (
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
)

// Handlers groups every handler mounted on the router.
type Handlers struct {
	Projects  *ProjectHandler
	Modules   *ModuleHandler
	TestCases *TestCaseHandler
	Runs      *TestRunHandler
	Agents    *AgentHandler
}

// NewRouter mounts the coordinator API. Static path segments are registered
// ahead of the {id} routes that would otherwise shadow them.
func NewRouter(h Handlers, log logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(NewRequestMiddleware(log).Handler)

	router.HandleFunc("/health", HealthHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Projects
	api.HandleFunc("/projects", h.Projects.Create).Methods("POST")
	api.HandleFunc("/projects", h.Projects.List).Methods("GET")
	api.HandleFunc("/projects/{id}", h.Projects.GetByID).Methods("GET")
	api.HandleFunc("/projects/{id}", h.Projects.Update).Methods("PUT")
	api.HandleFunc("/projects/{id}", h.Projects.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{id}/modules", h.Modules.Create).Methods("POST")
	api.HandleFunc("/projects/{id}/modules", h.Modules.ListByProject).Methods("GET")
	api.HandleFunc("/projects/{id}/testcases", h.TestCases.Create).Methods("POST")
	api.HandleFunc("/projects/{id}/testcases", h.TestCases.ListByProject).Methods("GET")
	api.HandleFunc("/projects/{id}/run", h.Runs.TriggerProject).Methods("POST")

	// Modules
	api.HandleFunc("/modules/{id}", h.Modules.GetByID).Methods("GET")
	api.HandleFunc("/modules/{id}", h.Modules.Update).Methods("PUT")
	api.HandleFunc("/modules/{id}", h.Modules.Delete).Methods("DELETE")
	api.HandleFunc("/modules/{id}/testcases", h.TestCases.ListByModule).Methods("GET")
	api.HandleFunc("/modules/{id}/run", h.Runs.TriggerModule).Methods("POST")

	// Test cases
	api.HandleFunc("/testcases/keywords", h.TestCases.Keywords).Methods("GET")
	api.HandleFunc("/testcases/{id}", h.TestCases.GetByID).Methods("GET")
	api.HandleFunc("/testcases/{id}", h.TestCases.Update).Methods("PUT")
	api.HandleFunc("/testcases/{id}", h.TestCases.Delete).Methods("DELETE")
	api.HandleFunc("/testcases/{id}/run", h.Runs.TriggerCase).Methods("POST")
	api.HandleFunc("/testcases/{id}/runs", h.Runs.ListByCase).Methods("GET")

	// Runs
	api.HandleFunc("/runs/{id}", h.Runs.GetByID).Methods("GET")
	api.HandleFunc("/runs/{id}/logs", h.Runs.Logs).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts/{kind}", h.Runs.DownloadArtifact).Methods("GET")

	// Agents
	api.HandleFunc("/agents", h.Agents.List).Methods("GET")
	api.HandleFunc("/agents/register", h.Agents.Register).Methods("POST")
	api.HandleFunc("/agents/available", h.Agents.ListAvailable).Methods("GET")
	api.HandleFunc("/agents/sweep", h.Agents.Sweep).Methods("POST")
	api.HandleFunc("/agents/{id}", h.Agents.GetByID).Methods("GET")
	api.HandleFunc("/agents/{id}", h.Agents.Unregister).Methods("DELETE")
	api.HandleFunc("/agents/{id}/status", h.Agents.UpdateStatus).Methods("PUT")
	api.HandleFunc("/agents/{id}/heartbeat", h.Agents.Heartbeat).Methods("POST")
	api.HandleFunc("/agents/{id}/command", h.Agents.SendCommand).Methods("POST")
	api.HandleFunc("/agents/{id}/commands", h.Agents.Poll).Methods("GET")
	api.HandleFunc("/agents/{id}/responses", h.Agents.Respond).Methods("POST")
	api.HandleFunc("/agents/{id}/run/testcase/{case_id}", h.Agents.RunTestCase).Methods("POST")

	return router
}
