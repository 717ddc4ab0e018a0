package controllers

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// ExecutionsController holds dependencies for the run endpoints: start,
// dry-run, status, history and cancel.
type ExecutionsController struct {
	ActorController
	Manager *engine.Manager
}

func NewExecutionsController(manager *engine.Manager) *ExecutionsController {
	return &ExecutionsController{Manager: manager}
}

func (c *ExecutionsController) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	// an empty body starts the run with the definition's declared defaults
	var req models.StartExecutionRequest
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	executionID, err := c.Manager.StartExecution(r.Context(), id, req.Input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "workflow has no published version", http.StatusNotFound)
			return
		}
		var derr *domain.DefinitionError
		if errors.As(err, &derr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to start execution", "workflowId", id, "error", err)
		http.Error(w, "failed to start execution", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	codec.NewEncoder(w).Encode(models.StartExecutionResponse{ExecutionID: executionID})
}

func (c *ExecutionsController) handleTestExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req models.TestExecutionRequest
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	result, err := c.Manager.TestExecution(r.Context(), id, req.Input, req.MaxNodes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "workflow has no published version", http.StatusNotFound)
			return
		}
		var derr *domain.DefinitionError
		if errors.As(err, &derr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to test execution", "workflowId", id, "error", err)
		http.Error(w, "failed to test execution", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(result)
}

func (c *ExecutionsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ex, rows, err := c.Manager.GetExecutionStatus(id)
	if err != nil {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}

	resp := models.ExecutionStatusResponse{
		Execution: mapExecutionToApi(ex),
		Nodes:     make([]models.NodeExecutionApiResponse, 0, len(*rows)),
	}
	for i := range *rows {
		resp.Nodes = append(resp.Nodes, mapNodeExecutionToApi(&(*rows)[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(resp)
}

func (c *ExecutionsController) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ok, err := c.Manager.CancelExecution(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "execution not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to cancel execution", "executionId", id, "error", err)
		http.Error(w, "failed to cancel execution", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(models.CancelExecutionResponse{OK: ok})
}

func (c *ExecutionsController) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "limit is a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "offset is a non-negative integer", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	execs, err := c.Manager.GetExecutionHistory(id, limit, offset)
	if err != nil {
		slog.Error("Failed to load execution history", "workflowId", id, "error", err)
		http.Error(w, "failed to load execution history", http.StatusInternalServerError)
		return
	}

	resp := models.ExecutionHistoryResponse{
		Results:    len(*execs),
		Offset:     offset,
		Executions: make([]models.ExecutionApiResponse, 0, len(*execs)),
	}
	for i := range *execs {
		resp.Executions = append(resp.Executions, mapExecutionToApi(&(*execs)[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(resp)
}

func mapExecutionToApi(ex *domain.WorkflowExecution) models.ExecutionApiResponse {
	resp := models.ExecutionApiResponse{
		ID:          ex.ID,
		WorkflowID:  ex.WorkflowID,
		Version:     ex.Version,
		Status:      string(ex.Status),
		TriggeredBy: ex.TriggeredBy,
		Team:        ex.Team,
		TriggeredAt: ex.Created,
		Output:      decodeJSONObject(ex.Output),
	}
	if ex.Started.Valid {
		resp.Started = ex.Started.Time
	}
	if ex.Completed.Valid {
		resp.Completed = ex.Completed.Time
	}
	if ex.Error.Valid {
		resp.Error = ex.Error.String
	}
	return resp
}

func mapNodeExecutionToApi(row *domain.NodeExecution) models.NodeExecutionApiResponse {
	resp := models.NodeExecutionApiResponse{
		ID:         row.ID,
		NodeID:     row.NodeID,
		NodeType:   row.NodeType,
		NodeName:   row.NodeName,
		Status:     string(row.Status),
		Input:      decodeJSONObject(row.Input),
		Output:     decodeJSONObject(row.Output),
		DurationMS: row.DurationMS,
		RetryCount: row.RetryCount,
		Retryable:  row.Retryable,
	}
	if row.Branch.Valid {
		resp.Branch = row.Branch.String
	}
	if row.Error.Valid {
		resp.Error = row.Error.String
	}
	if row.Started.Valid {
		resp.Started = row.Started.Time
	}
	if row.Completed.Valid {
		resp.Completed = row.Completed.Time
	}
	return resp
}

func decodeJSONObject(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out map[string]any
	if err := codec.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}
