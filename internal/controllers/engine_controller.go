package controllers

import (
	"log/slog"
	"net/http"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/internal/util"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// EngineController serves the operational surface: live engine instances and
// the run overview used by on-call dashboards.
type EngineController struct {
	ActorController
	Manager *engine.Manager
}

func NewEngineController(manager *engine.Manager) *EngineController {
	return &EngineController{Manager: manager}
}

func (c *EngineController) handleGetEngines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	instances, err := c.Manager.GetEngineInstances(20)
	if err != nil {
		slog.Error("Failed to list engine instances", "error", err)
		http.Error(w, "failed to list engines", http.StatusInternalServerError)
		return
	}

	results := make([]models.EngineApiResponse, 0, len(instances))
	for _, inst := range instances {
		results = append(results, models.EngineApiResponse{
			ID:         inst.ID,
			Name:       inst.Name,
			Started:    inst.Started,
			LastActive: inst.LastActive,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(results)
}

// handleHealth serves the unauthenticated liveness probe.
func (c *EngineController) handleHealth(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *EngineController) handleGetOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rows, err := c.Manager.GetExecutionOverview()
	if err != nil {
		slog.Error("Failed to load execution overview", "error", err)
		http.Error(w, "failed to load overview", http.StatusInternalServerError)
		return
	}
	running, err := c.Manager.GetTopRunning(10)
	if err != nil {
		slog.Error("Failed to load running executions", "error", err)
		http.Error(w, "failed to load overview", http.StatusInternalServerError)
		return
	}
	nextUp, err := c.Manager.GetNextToExecute(10)
	if err != nil {
		slog.Error("Failed to load scheduled executions", "error", err)
		http.Error(w, "failed to load overview", http.StatusInternalServerError)
		return
	}

	resp := models.OverviewResponse{
		Workflows: make([]models.WorkflowOverviewRow, 0, len(rows)),
		Running:   make([]models.ExecutionApiResponse, 0, len(*running)),
		NextUp:    make([]models.ExecutionApiResponse, 0, len(*nextUp)),
	}
	for _, row := range rows {
		resp.Workflows = append(resp.Workflows, models.WorkflowOverviewRow{
			WorkflowID:     row.WorkflowID,
			Version:        row.Version,
			PendingCount:   row.PendingCount,
			RunningCount:   row.RunningCount,
			SuccessCount:   row.SuccessCount,
			FailedCount:    row.FailedCount,
			CancelledCount: row.CancelledCount,
		})
	}
	for i := range *running {
		resp.Running = append(resp.Running, mapExecutionToApi(&(*running)[i]))
	}
	for i := range *nextUp {
		resp.NextUp = append(resp.NextUp, mapExecutionToApi(&(*nextUp)[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(resp)
}
