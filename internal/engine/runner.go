package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/driftflow/driftflow/internal/nodes"
	"github.com/driftflow/driftflow/internal/util"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/resolver"
)

// nodeOutcome is the recorded fate of a finished node, the input to branch
// gating for its downstream nodes.
type nodeOutcome struct {
	status domain.NodeStatus
	branch string
}

// RunExecution drives one claimed run as far as it can go: to completion, to
// a suspension point, to a retry window or to failure. It is re-entered every
// time the run is claimed again, so all progress lives in the node records
// and the persisted context, never in memory.
func (m *Manager) RunExecution(ctx context.Context, ex *domain.WorkflowExecution) {
	logger := slog.With("executionId", ex.ID, "workflowId", ex.WorkflowID)

	def, err := m.definitions.FindByIDAndVersion(ex.WorkflowID, ex.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			m.finishFailed(ex.ID, fmt.Sprintf("definition %s version %d not found", ex.WorkflowID, ex.Version))
			return
		}
		m.releaseForRetry(ex, err)
		return
	}
	graph, order, err := m.parsedGraph(def)
	if err != nil {
		m.finishFailed(ex.ID, err.Error())
		return
	}
	secretNames := graph.SecretNames()

	state, err := decodeState(ex.Context, m.box)
	if err != nil {
		m.finishFailed(ex.ID, fmt.Sprintf("corrupt execution context: %v", err))
		return
	}

	rows, err := m.nodeExecutions.FindAllByExecutionID(ex.ID)
	if err != nil {
		m.releaseForRetry(ex, err)
		return
	}
	latest := make(map[string]*domain.NodeExecution, len(*rows))
	attempts := make(map[string]int, len(*rows))
	outcomes := make(map[string]nodeOutcome, len(*rows))
	for i := range *rows {
		row := &(*rows)[i]
		latest[row.NodeID] = row
		attempts[row.NodeID]++
	}
	for id, row := range latest {
		if row.Status == domain.NodeSuccess || row.Status == domain.NodeSkipped {
			outcomes[id] = nodeOutcome{status: row.Status, branch: row.Branch.String}
		}
	}

	if ex.Status == domain.ExecutionPending {
		m.executions.MarkExecutionStarted(ex.ID)
	}

	actor := core.Actor{ID: ex.TriggeredBy, Team: ex.Team}
	secretVals := secretValues(graph, state.Variables)
	rctx := resolver.NewContext(actor, state.Variables, state.Trigger, state.Outputs)

	for _, node := range order {
		// cancellation is cooperative: it takes effect between nodes
		if cur, err := m.executions.FindByID(ex.ID); err == nil && cur.Status.Terminal() {
			logger.Info("Execution reached a terminal state, stopping", "status", cur.Status)
			return
		}

		last := latest[node.ID]
		attempt := attempts[node.ID]
		resuming := false
		var rowID string
		var startedAt time.Time

		if last != nil {
			switch last.Status {
			case domain.NodeSuccess, domain.NodeSkipped:
				continue
			case domain.NodeFailed:
				if !last.Retryable || attempt > nodeRetries(node) {
					m.finishFailed(ex.ID, nodeFailureMessage(last))
					return
				}
				// budget left, run a fresh attempt
			default:
				if node.Type == definition.NodeApproval || node.Type == definition.NodeDelay {
					// suspension points resume on their open record
					resuming = true
					rowID = last.ID
					startedAt = last.Started.Time
					attempt = last.RetryCount
				} else {
					// an open record for any other type means the engine
					// died mid-node; close it and count the attempt
					m.nodeExecutions.Finalize(last.ID, domain.NodeFailed, sql.NullString{}, sql.NullString{},
						nullString("node interrupted before completion"), 0, true)
					if attempt > nodeRetries(node) {
						m.finishFailed(ex.ID, fmt.Sprintf("node %s interrupted and out of retries", node.ID))
						return
					}
				}
			}
		}

		// nodes on unselected branches are never visited and get no record
		if !resuming && !nodeActive(graph, node.ID, outcomes) {
			continue
		}

		data, _ := resolver.ResolveObject(node.Data, rctx).(map[string]any)

		if !resuming {
			now := m.clock.Now()
			row := &domain.NodeExecution{
				ID:          uuid.NewString(),
				ExecutionID: ex.ID,
				NodeID:      node.ID,
				NodeType:    string(node.Type),
				NodeName:    node.Label,
				Status:      domain.NodeRunning,
				Input:       snapshot(data, secretVals),
				Started:     sql.NullTime{Time: now, Valid: true},
				RetryCount:  attempt,
			}
			if _, err := m.nodeExecutions.Save(row); err != nil {
				m.releaseForRetry(ex, err)
				return
			}
			rowID = row.ID
			startedAt = now
		}

		result := m.registry.SafeExecute(ctx, &nodes.Request{
			ExecutionID: ex.ID,
			WorkflowID:  ex.WorkflowID,
			Node:        node,
			Data:        data,
			Vars:        rctx,
			Attempt:     attempt,
			Resuming:    resuming,
			StartedAt:   startedAt,
		})
		duration := m.clock.Now().Sub(startedAt)

		if result.Suspend {
			logger.Info("Execution suspended", "nodeId", node.ID, "resumeAt", result.ResumeAt)
			if err := m.executions.UpdateNextActivationSpecific(ex.ID, result.ResumeAt); err != nil {
				logger.Error("Failed to park suspended execution", "error", err)
			}
			return
		}

		outSnap := snapshot(result.Output, secretVals)

		if result.Skipped {
			m.nodeExecutions.Finalize(rowID, domain.NodeSkipped, sql.NullString{}, outSnap, sql.NullString{}, duration.Milliseconds(), false)
			outcomes[node.ID] = nodeOutcome{status: domain.NodeSkipped}
			logger.Info("Node skipped", "nodeId", node.ID)
			if result.Output != nil {
				state.Outputs[node.ID] = result.Output
			}
			m.persistState(ex.ID, state, secretNames, secretVals, logger)
			continue
		}

		if !result.Success {
			m.nodeExecutions.Finalize(rowID, domain.NodeFailed, sql.NullString{}, outSnap, nullString(result.Error), duration.Milliseconds(), result.Retryable)
			if result.Retryable && attempt < nodeRetries(node) {
				next := m.clock.Now().Add(retryBackoff(node, attempt))
				logger.Warn("Node failed, scheduling retry", "nodeId", node.ID, "attempt", attempt, "nextActivation", next, "error", result.Error)
				if err := m.executions.IncrementRetryCounterAndSetNextActivation(ex.ID, next); err != nil {
					logger.Error("Failed to schedule retry", "error", err)
				}
				return
			}
			logger.Warn("Node failed, failing execution", "nodeId", node.ID, "error", result.Error)
			m.finishFailed(ex.ID, result.Error)
			return
		}

		branch := result.Branch
		if branch == "" {
			branch = "success"
		}
		m.nodeExecutions.Finalize(rowID, domain.NodeSuccess, nullString(branch), outSnap, sql.NullString{}, duration.Milliseconds(), false)
		outcomes[node.ID] = nodeOutcome{status: domain.NodeSuccess, branch: branch}
		if result.Output != nil {
			state.Outputs[node.ID] = result.Output
		}
		for k, v := range result.Vars {
			state.Variables[k] = v
		}
		if len(result.Vars) > 0 {
			secretVals = secretValues(graph, state.Variables)
		}
		m.persistState(ex.ID, state, secretNames, secretVals, logger)
	}

	output := snapshot(runOutput(order, state.Outputs), secretVals)
	if m.executions.FinishExecution(ex.ID, domain.ExecutionSuccess, output, sql.NullString{}) {
		logger.Info("Execution completed")
	}
}

// nodeActive reports whether a node should run. Roots always run; any other
// node runs when some incoming edge leaves a finished node and the edge label
// matches that node's recorded branch. Unlabeled edges match every branch.
func nodeActive(g *definition.Graph, nodeID string, outcomes map[string]nodeOutcome) bool {
	in := g.IncomingEdges(nodeID)
	if len(in) == 0 {
		return true
	}
	for _, e := range in {
		out, ok := outcomes[e.Source]
		if !ok {
			continue
		}
		if e.Label == "" || e.Label == out.branch {
			return true
		}
	}
	return false
}

func nodeRetries(n *definition.Node) int {
	if n.Data == nil {
		return 0
	}
	return cast.ToInt(n.Data["retries"])
}

// retryBackoff scales the node's retry delay linearly with the attempt
// number.
func retryBackoff(n *definition.Node, attempt int) time.Duration {
	delay := time.Minute
	if s, ok := n.Data["retryDelay"].(string); ok && s != "" {
		if parsed, err := util.ParseInterval(s); err == nil {
			delay = parsed
		}
	}
	return delay * time.Duration(attempt+1)
}

// runOutput is the output of the last node in execution order that produced
// one.
func runOutput(order []*definition.Node, outputs map[string]map[string]any) map[string]any {
	for i := len(order) - 1; i >= 0; i-- {
		if out, ok := outputs[order[i].ID]; ok {
			return out
		}
	}
	return nil
}

func nodeFailureMessage(row *domain.NodeExecution) string {
	if row.Error.Valid && row.Error.String != "" {
		return row.Error.String
	}
	return fmt.Sprintf("node %s failed", row.NodeID)
}

func (m *Manager) parsedGraph(def *domain.WorkflowDefinition) (*definition.Graph, []*definition.Node, error) {
	key := fmt.Sprintf("%s@%d", def.ID, def.Version)
	m.graphMu.RLock()
	cached, ok := m.graphs[key]
	m.graphMu.RUnlock()
	if ok {
		return cached.graph, cached.order, nil
	}
	g, err := definition.Parse([]byte(def.Content), def.Format)
	if err != nil {
		return nil, nil, err
	}
	// the stored row is authoritative for metadata the content omits
	if g.Name == "" {
		g.Name = def.Name
	}
	if g.Trigger == "" {
		g.Trigger = def.Trigger
	}
	if g.Schedule == "" && def.Schedule.Valid {
		g.Schedule = def.Schedule.String
	}
	if g.Version == 0 {
		g.Version = def.Version
	}
	order, err := definition.ExecutionOrder(g)
	if err != nil {
		return nil, nil, err
	}
	m.graphMu.Lock()
	m.graphs[key] = &cachedGraph{graph: g, order: order}
	m.graphMu.Unlock()
	return g, order, nil
}

func (m *Manager) persistState(id string, state *runState, secretNames []string, secretVals []string, logger *slog.Logger) {
	encoded, err := encodeState(state, secretNames, secretVals, m.box)
	if err != nil {
		logger.Error("Failed to encode execution context", "error", err)
		return
	}
	if err := m.executions.SaveExecutionContext(id, encoded); err != nil {
		logger.Error("Failed to persist execution context", "error", err)
	}
}

// finishFailed marks the run failed. The store guard makes the terminal
// transition happen at most once, whoever gets there first.
func (m *Manager) finishFailed(id string, errMsg string) {
	if m.executions.FinishExecution(id, domain.ExecutionFailed, sql.NullString{}, nullString(errMsg)) {
		slog.Info("Execution failed", "executionId", id, "error", errMsg)
	}
}

// releaseForRetry hands the run back to the pool after an infrastructure
// error, with a short delay so a broken dependency gets a moment to recover.
func (m *Manager) releaseForRetry(ex *domain.WorkflowExecution, err error) {
	slog.Error("Execution hit an infrastructure error, releasing claim", "executionId", ex.ID, "error", err)
	next := m.clock.Now().Add(time.Minute)
	if err2 := m.executions.IncrementRetryCounterAndSetNextActivation(ex.ID, next); err2 != nil {
		slog.Error("Failed to release execution", "executionId", ex.ID, "error", err2)
	}
}
