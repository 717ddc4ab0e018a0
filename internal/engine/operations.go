package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/driftflow/driftflow/internal/capability"
	"github.com/driftflow/driftflow/internal/nodes"
	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/internal/repository"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
	"github.com/driftflow/driftflow/pkg/driftflow/resolver"
)

// ErrNotApprover rejects decisions from actors outside a gate's approver
// list.
var ErrNotApprover = errors.New("not an approver")

// StartExecution validates and enqueues a run of the latest published
// version of a workflow. The run id comes back immediately; the work happens
// on the worker pool.
func (m *Manager) StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	def, err := m.definitions.FindLatestPublishedByID(workflowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("workflow %s has no published version: %w", workflowID, err)
		}
		return "", err
	}
	graph, _, err := m.parsedGraph(def)
	if err != nil {
		return "", err
	}
	if err := definition.Validate(graph, m.registry.Check()); err != nil {
		return "", err
	}
	vars, err := resolver.EffectiveVariables(graph.Variables, input)
	if err != nil {
		return "", err
	}

	actor := core.ActorFromContext(ctx)
	state := newRunState(vars, input)
	encoded, err := encodeState(state, graph.SecretNames(), secretValues(graph, vars), m.box)
	if err != nil {
		return "", err
	}

	now := m.clock.Now()
	ex := &domain.WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowID:     def.ID,
		Version:        def.Version,
		Status:         domain.ExecutionPending,
		TriggeredBy:    actor.ID,
		Team:           actor.Team,
		Context:        nullString(encoded),
		Created:        now,
		Modified:       now,
		NextActivation: sql.NullTime{Time: now, Valid: true},
	}
	id, err := m.executions.Save(ex)
	if err != nil {
		return "", err
	}
	slog.Info("Queued execution", "executionId", id, "workflowId", def.ID, "version", def.Version, "triggeredBy", actor.ID)
	m.Wakeup()
	return id, nil
}

// CancelExecution requests a cooperative cancel. A run between nodes stops
// before its next node; a suspended run never resumes. Open approval gates
// are closed so they disappear from approver inboxes.
func (m *Manager) CancelExecution(id string) (bool, error) {
	ex, err := m.executions.FindByID(id)
	if err != nil {
		return false, err
	}
	if ex.Status.Terminal() {
		return false, nil
	}
	ok := m.executions.RequestCancel(id)
	if !ok {
		return false, nil
	}
	slog.Info("Execution cancelled", "executionId", id)
	gates, err := m.approvals.FindAllByExecutionID(id)
	if err != nil {
		slog.Error("Failed to load approvals for cancelled execution", "executionId", id, "error", err)
		return true, nil
	}
	for _, gate := range *gates {
		if gate.Status == domain.ApprovalPending {
			m.approvals.ResolveConditional(gate.ID, domain.ApprovalRejected, nullString("execution cancelled"))
		}
	}
	return true, nil
}

// GetExecutionStatus returns the run and its ordered node history.
func (m *Manager) GetExecutionStatus(id string) (*domain.WorkflowExecution, *[]domain.NodeExecution, error) {
	ex, err := m.executions.FindByID(id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := m.nodeExecutions.FindAllByExecutionID(id)
	if err != nil {
		return nil, nil, err
	}
	return ex, rows, nil
}

// GetExecutionHistory returns one page of a workflow's runs, most recent
// first.
func (m *Manager) GetExecutionHistory(workflowID string, limit, offset int) (*[]domain.WorkflowExecution, error) {
	return m.executions.FindByWorkflowID(workflowID, limit, offset)
}

// RecordApprovalDecision applies one approver's decision to the open gate of
// an approval node. When the gate resolves, the parked run is nudged so the
// approval node resumes immediately instead of at its deadline.
func (m *Manager) RecordApprovalDecision(ctx context.Context, executionID, nodeID, decision, reason string) (*domain.WorkflowApproval, error) {
	actor := core.ActorFromContext(ctx)

	for tries := 0; tries < 5; tries++ {
		gate, err := m.approvals.FindOpenByExecutionAndNode(executionID, nodeID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(gate.Approvers, actor.ID) {
			return nil, fmt.Errorf("node %s: actor %s: %w", nodeID, actor.ID, ErrNotApprover)
		}
		if slices.Contains(gate.ApprovedBy, actor.ID) {
			return gate, nil
		}

		status := domain.ApprovalPending
		approvedBy := gate.ApprovedBy
		var reasonNS sql.NullString
		if decision == models.DecisionReject {
			// one rejection resolves the gate no matter how many approvals
			// it already collected
			status = domain.ApprovalRejected
			reasonNS = nullString(reason)
		} else {
			approvedBy = append(slices.Clone(gate.ApprovedBy), actor.ID)
			if len(approvedBy) >= gate.MinApprovals {
				status = domain.ApprovalApproved
			}
		}

		if !m.approvals.RecordDecision(gate.ID, status, approvedBy, reasonNS, gate.ApprovedBy) {
			// lost an optimistic race with another approver; reload and retry
			continue
		}
		slog.Info("Approval decision recorded",
			"executionId", executionID, "nodeId", nodeID, "approvalId", gate.ID,
			"decision", decision, "actor", actor.ID, "status", status)
		if status.Resolved() {
			if err := m.executions.UpdateNextActivationSpecific(executionID, m.clock.Now()); err != nil {
				slog.Error("Failed to nudge execution after decision", "executionId", executionID, "error", err)
			}
			m.Wakeup()
		}
		return m.approvals.FindByID(gate.ID)
	}
	return nil, fmt.Errorf("could not record decision for node %s, too much contention", nodeID)
}

// GetPendingApprovals lists the open gates waiting on the calling actor.
func (m *Manager) GetPendingApprovals(ctx context.Context) (*[]domain.WorkflowApproval, error) {
	actor := core.ActorFromContext(ctx)
	return m.approvals.FindPendingForApprover(actor.ID)
}

// GetApprovalsForExecution lists every gate a run has opened.
func (m *Manager) GetApprovalsForExecution(executionID string) (*[]domain.WorkflowApproval, error) {
	return m.approvals.FindAllByExecutionID(executionID)
}

// TestExecution runs the first maxNodes nodes of the published definition
// against simulated providers. Nothing is persisted, no external system is
// touched, and suspension points resolve immediately.
func (m *Manager) TestExecution(ctx context.Context, workflowID string, input map[string]any, maxNodes int) (*models.TestExecutionResponse, error) {
	def, err := m.definitions.FindLatestPublishedByID(workflowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s has no published version: %w", workflowID, err)
		}
		return nil, err
	}
	graph, order, err := m.parsedGraph(def)
	if err != nil {
		return nil, err
	}
	vars, err := resolver.EffectiveVariables(graph.Variables, input)
	if err != nil {
		return nil, err
	}

	registry := nodes.NewRegistry(nodes.Deps{
		Clock:    m.clock,
		Provider: capability.NewSimulationProvider(),
		Notifier: notify.LogNotifier{},
	})

	if maxNodes <= 0 || maxNodes > len(order) {
		maxNodes = len(order)
	}
	actor := core.ActorFromContext(ctx)
	state := newRunState(vars, input)
	rctx := resolver.NewContext(actor, state.Variables, state.Trigger, state.Outputs)
	outcomes := make(map[string]nodeOutcome)
	resp := &models.TestExecutionResponse{Status: "success"}

	visited := 0
	for _, node := range order {
		if visited >= maxNodes {
			break
		}
		if !nodeActive(graph, node.ID, outcomes) {
			continue
		}
		visited++

		data, _ := resolver.ResolveObject(node.Data, rctx).(map[string]any)
		started := m.clock.Now()

		var result *models.NodeResult
		switch node.Type {
		case definition.NodeApproval:
			result = models.Succeed(map[string]any{"approved": true, "simulated": true})
		case definition.NodeDelay:
			result = models.Succeed(map[string]any{"simulated": true})
		default:
			result = registry.SafeExecute(ctx, &nodes.Request{
				ExecutionID: "test",
				WorkflowID:  workflowID,
				Node:        node,
				Data:        data,
				Vars:        rctx,
				StartedAt:   started,
			})
		}

		entry := models.NodeExecutionApiResponse{
			NodeID:     node.ID,
			NodeType:   string(node.Type),
			NodeName:   node.Label,
			Input:      data,
			Output:     result.Output,
			Started:    started,
			DurationMS: m.clock.Now().Sub(started).Milliseconds(),
		}
		switch {
		case result.Skipped:
			entry.Status = string(domain.NodeSkipped)
		case result.Success:
			branch := result.Branch
			if branch == "" {
				branch = "success"
			}
			entry.Status = string(domain.NodeSuccess)
			entry.Branch = branch
			outcomes[node.ID] = nodeOutcome{status: domain.NodeSuccess, branch: branch}
			if result.Output != nil {
				state.Outputs[node.ID] = result.Output
			}
			for k, v := range result.Vars {
				state.Variables[k] = v
			}
		default:
			entry.Status = string(domain.NodeFailed)
			entry.Error = result.Error
			resp.Status = "failed"
			resp.Error = result.Error
			resp.Nodes = append(resp.Nodes, entry)
			return resp, nil
		}
		resp.Nodes = append(resp.Nodes, entry)
	}
	return resp, nil
}

// GetExecutionOverview returns per-workflow run counts by status.
func (m *Manager) GetExecutionOverview() ([]repository.ExecutionOverviewRow, error) {
	return m.executions.GetExecutionOverview()
}

// GetEngineInstances lists registered engines, most recently active first.
func (m *Manager) GetEngineInstances(limit int) ([]*domain.EngineInstance, error) {
	return m.instances.GetInstancesByLastActive(limit)
}

// GetTopRunning lists the longest-running claimed executions.
func (m *Manager) GetTopRunning(limit int) (*[]domain.WorkflowExecution, error) {
	return m.executions.GetTopRunning(limit)
}

// GetNextToExecute lists unclaimed executions by next activation.
func (m *Manager) GetNextToExecute(limit int) (*[]domain.WorkflowExecution, error) {
	return m.executions.GetNextToExecute(limit)
}
