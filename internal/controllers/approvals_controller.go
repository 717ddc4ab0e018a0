package controllers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// ApprovalsController holds dependencies for the approval gate endpoints:
// the per-run gate list, the decision endpoint and the approver inbox.
type ApprovalsController struct {
	ActorController
	Manager *engine.Manager
}

func NewApprovalsController(manager *engine.Manager) *ApprovalsController {
	return &ApprovalsController{Manager: manager}
}

func (c *ApprovalsController) handleGetApprovalsForExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	gates, err := c.Manager.GetApprovalsForExecution(id)
	if err != nil {
		slog.Error("Failed to load approvals", "executionId", id, "error", err)
		http.Error(w, "failed to load approvals", http.StatusInternalServerError)
		return
	}

	results := make([]models.ApprovalApiResponse, 0, len(*gates))
	for i := range *gates {
		results = append(results, mapApprovalToApi(&(*gates)[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(results)
}

func (c *ApprovalsController) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	nodeID := r.PathValue("nodeId")
	if id == "" || nodeID == "" {
		http.Error(w, "id and nodeId are required", http.StatusBadRequest)
		return
	}

	var req models.ApprovalDecisionRequest
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		http.Error(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	gate, err := c.Manager.RecordApprovalDecision(r.Context(), id, nodeID, req.Decision, req.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no open approval for this node", http.StatusNotFound)
			return
		}
		if errors.Is(err, engine.ErrNotApprover) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		slog.Error("Failed to record approval decision",
			"executionId", id, "nodeId", nodeID, "error", err)
		http.Error(w, "failed to record decision", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(models.ApprovalDecisionResponse{
		Status:     string(gate.Status),
		ApprovedBy: gate.ApprovedBy,
	})
}

func (c *ApprovalsController) handleGetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	gates, err := c.Manager.GetPendingApprovals(r.Context())
	if err != nil {
		slog.Error("Failed to load pending approvals", "error", err)
		http.Error(w, "failed to load pending approvals", http.StatusInternalServerError)
		return
	}

	results := make([]models.ApprovalApiResponse, 0, len(*gates))
	for i := range *gates {
		results = append(results, mapApprovalToApi(&(*gates)[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(results)
}

func mapApprovalToApi(gate *domain.WorkflowApproval) models.ApprovalApiResponse {
	resp := models.ApprovalApiResponse{
		ID:           gate.ID,
		ExecutionID:  gate.ExecutionID,
		NodeID:       gate.NodeID,
		Status:       string(gate.Status),
		Approvers:    gate.Approvers,
		MinApprovals: gate.MinApprovals,
		ApprovedBy:   gate.ApprovedBy,
		OnTimeout:    gate.OnTimeout,
		RequestedAt:  gate.RequestedAt,
		Deadline:     gate.Deadline,
	}
	if gate.Reason.Valid {
		resp.Reason = gate.Reason.String
	}
	if gate.ResolvedAt.Valid {
		resp.ResolvedAt = gate.ResolvedAt.Time
	}
	return resp
}
