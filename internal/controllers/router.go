package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *DefinitionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows", c.RequireActor(c.handleCreateDefinition))
	mux.HandleFunc("POST /api/workflows/validate", c.RequireActor(c.handleValidateDefinition))
	mux.HandleFunc("POST /api/workflows/{id}/publish", c.RequireActor(c.handlePublishDefinition))
	mux.HandleFunc("GET /api/workflows", c.RequireActor(c.handleGetDefinitions))
	mux.HandleFunc("GET /api/workflows/{id}", c.RequireActor(c.handleGetDefinition))
}
func (c *ExecutionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows/{id}/start", c.RequireActor(c.handleStartExecution))
	mux.HandleFunc("POST /api/workflows/{id}/test", c.RequireActor(c.handleTestExecution))
	mux.HandleFunc("GET /api/workflows/{id}/executions", c.RequireActor(c.handleExecutionHistory))
	mux.HandleFunc("GET /api/executions/{id}", c.RequireActor(c.handleGetExecution))
	mux.HandleFunc("POST /api/executions/{id}/cancel", c.RequireActor(c.handleCancelExecution))
}
func (c *ApprovalsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executions/{id}/approvals", c.RequireActor(c.handleGetApprovalsForExecution))
	mux.HandleFunc("POST /api/executions/{id}/approvals/{nodeId}", c.RequireActor(c.handleRecordDecision))
	mux.HandleFunc("GET /api/approvals", c.RequireActor(c.handleGetPendingApprovals))
}
func (c *EngineController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", c.handleHealth)
	mux.HandleFunc("GET /api/engines", c.RequireActor(c.handleGetEngines))
	mux.HandleFunc("GET /api/overview", c.RequireActor(c.handleGetOverview))
}
