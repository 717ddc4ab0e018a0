package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/internal/util"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

const defaultApprovalTimeout = "24 hours"

// ApprovalExecutor opens a human approval gate on first visit, suspends the
// run until the gate resolves or its deadline passes, and applies the node's
// timeout policy when nobody decided in time.
type ApprovalExecutor struct {
	Clock     core.Clock
	Approvals ApprovalStore
	Notifier  notify.Notifier
}

func (e *ApprovalExecutor) Type() definition.NodeType {
	return definition.NodeApproval
}

func (e *ApprovalExecutor) Validate(n *definition.Node) []error {
	var errs []error

	approvers, err := cast.ToStringSliceE(n.Data["approvers"])
	if err != nil || len(approvers) == 0 {
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "approvers", Reason: "at least one approver is required"})
	}

	if raw, ok := n.Data["minApprovals"]; ok {
		min, err := cast.ToIntE(raw)
		if err != nil || min < 1 {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "minApprovals", Reason: "must be a positive number"})
		} else if len(approvers) > 0 && min > len(approvers) {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "minApprovals", Reason: "cannot exceed the number of approvers"})
		}
	}

	if timeout := dataString(n.Data, "timeout"); timeout != "" {
		if _, err := util.ParseInterval(timeout); err != nil {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "timeout", Reason: err.Error()})
		}
	}

	switch policy := dataString(n.Data, "onTimeout"); policy {
	case "", domain.TimeoutPolicyFail, domain.TimeoutPolicySkip, domain.TimeoutPolicyApprove, domain.TimeoutPolicyNotify:
	default:
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "onTimeout", Reason: fmt.Sprintf("unknown timeout policy %q", policy)})
	}

	return errs
}

func (e *ApprovalExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	gate, err := e.Approvals.FindLatestByExecutionAndNode(req.ExecutionID, req.Node.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		res := models.Fail(&domain.ExecutionError{NodeID: req.Node.ID, Op: "approval", Err: err})
		res.Retryable = true
		return res
	}

	if gate == nil || gate.Status.Resolved() && !req.Resuming {
		// First visit (or a fresh attempt after an explicit re-run): open a
		// new gate and park the run until the deadline.
		return e.open(ctx, req)
	}

	switch gate.Status {
	case domain.ApprovalApproved:
		return models.Succeed(map[string]any{
			"approved":   true,
			"approvedBy": gate.ApprovedBy,
		})
	case domain.ApprovalRejected:
		reason := gate.Reason.String
		if reason == "" {
			reason = "approval rejected"
		}
		return models.Fail(errors.New(reason))
	}

	now := e.Clock.Now().UTC()
	if now.Before(gate.Deadline) {
		// Woken before the deadline without a decision, keep waiting.
		return &models.NodeResult{Suspend: true, ResumeAt: gate.Deadline}
	}

	return e.timeout(ctx, req, gate, now)
}

func (e *ApprovalExecutor) open(ctx context.Context, req *Request) *models.NodeResult {
	approvers, err := cast.ToStringSliceE(req.Data["approvers"])
	if err != nil || len(approvers) == 0 {
		return models.Fail(fmt.Errorf("approval node %s has no approvers", req.Node.ID))
	}

	min := cast.ToInt(req.Data["minApprovals"])
	if min < 1 || min > len(approvers) {
		min = len(approvers)
	}

	timeoutStr := dataString(req.Data, "timeout")
	if timeoutStr == "" {
		timeoutStr = defaultApprovalTimeout
	}
	timeout, err := util.ParseInterval(timeoutStr)
	if err != nil {
		return models.Fail(fmt.Errorf("approval node %s has an invalid timeout: %w", req.Node.ID, err))
	}

	policy := dataString(req.Data, "onTimeout")
	if policy == "" {
		policy = domain.TimeoutPolicyFail
	}

	now := e.Clock.Now().UTC()
	gate := &domain.WorkflowApproval{
		ExecutionID:  req.ExecutionID,
		NodeID:       req.Node.ID,
		Status:       domain.ApprovalPending,
		Approvers:    approvers,
		MinApprovals: min,
		ApprovedBy:   []string{},
		OnTimeout:    policy,
		RequestedAt:  now,
		Deadline:     now.Add(timeout),
	}
	if _, err := e.Approvals.Save(gate); err != nil {
		res := models.Fail(&domain.ExecutionError{NodeID: req.Node.ID, Op: "approval", Err: err})
		res.Retryable = true
		return res
	}

	slog.Info("approval requested",
		"executionId", req.ExecutionID,
		"nodeId", req.Node.ID,
		"approvers", strings.Join(approvers, ","),
		"minApprovals", min,
		"deadline", gate.Deadline)
	e.notifyApprovers(ctx, req, approvers, gate.Deadline)

	return &models.NodeResult{Suspend: true, ResumeAt: gate.Deadline}
}

func (e *ApprovalExecutor) timeout(ctx context.Context, req *Request, gate *domain.WorkflowApproval, now time.Time) *models.NodeResult {
	switch gate.OnTimeout {
	case domain.TimeoutPolicyApprove:
		e.Approvals.ResolveConditional(gate.ID, domain.ApprovalApproved, sql.NullString{String: "auto-approved after timeout", Valid: true})
		return models.Succeed(map[string]any{
			"approved":    true,
			"autoApprove": true,
			"approvedBy":  gate.ApprovedBy,
		})
	case domain.TimeoutPolicySkip:
		e.Approvals.ResolveConditional(gate.ID, domain.ApprovalRejected, sql.NullString{String: "approval timed out", Valid: true})
		return &models.NodeResult{Success: true, Skipped: true, Output: map[string]any{"timedOut": true}}
	case domain.TimeoutPolicyNotify:
		timeoutStr := dataString(req.Data, "timeout")
		if timeoutStr == "" {
			timeoutStr = defaultApprovalTimeout
		}
		timeout, err := util.ParseInterval(timeoutStr)
		if err != nil || timeout <= 0 {
			timeout = 24 * time.Hour
		}
		deadline := now.Add(timeout)
		if err := e.Approvals.ExtendDeadline(gate.ID, deadline); err != nil {
			res := models.Fail(&domain.ExecutionError{NodeID: req.Node.ID, Op: "approval", Err: err})
			res.Retryable = true
			return res
		}
		slog.Info("approval still pending, re-notifying approvers",
			"executionId", req.ExecutionID,
			"nodeId", req.Node.ID,
			"deadline", deadline)
		e.notifyApprovers(ctx, req, gate.Approvers, deadline)
		return &models.NodeResult{Suspend: true, ResumeAt: deadline}
	default:
		e.Approvals.ResolveConditional(gate.ID, domain.ApprovalRejected, sql.NullString{String: "approval timed out", Valid: true})
		return models.Fail(&domain.TimeoutError{
			ExecutionID: req.ExecutionID,
			NodeID:      req.Node.ID,
			Deadline:    gate.Deadline,
		})
	}
}

func (e *ApprovalExecutor) notifyApprovers(ctx context.Context, req *Request, approvers []string, deadline time.Time) {
	subject := dataString(req.Data, "subject")
	if subject == "" {
		subject = fmt.Sprintf("Approval requested for workflow %s", req.WorkflowID)
	}
	body := dataString(req.Data, "message")
	if body == "" {
		body = fmt.Sprintf("Node %s of run %s is waiting for your approval until %s.", req.Node.ID, req.ExecutionID, deadline.Format(time.RFC3339))
	}
	channel := dataString(req.Data, "channel")
	if channel == "" {
		channel = "log"
	}

	for _, approver := range approvers {
		msg := notify.Message{
			ExecutionID: req.ExecutionID,
			WorkflowID:  req.WorkflowID,
			NodeID:      req.Node.ID,
			Channel:     channel,
			Target:      approver,
			Subject:     subject,
			Body:        body,
		}
		if err := e.Notifier.Notify(ctx, msg); err != nil {
			slog.Error("failed to notify approver", "error", err, "approver", approver, "executionId", req.ExecutionID)
		}
	}
}
