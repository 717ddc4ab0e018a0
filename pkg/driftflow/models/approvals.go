package models

import "time"

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ApprovalDecisionRequest records one approver's verdict on a waiting gate.
type ApprovalDecisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type ApprovalApiResponse struct {
	ID           int64     `json:"id"`
	ExecutionID  string    `json:"executionId"`
	NodeID       string    `json:"nodeId"`
	Status       string    `json:"status"`
	Approvers    []string  `json:"approvers"`
	MinApprovals int       `json:"minApprovals"`
	ApprovedBy   []string  `json:"approvedBy,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OnTimeout    string    `json:"onTimeout"`
	RequestedAt  time.Time `json:"requestedAt"`
	Deadline     time.Time `json:"deadline"`
	ResolvedAt   time.Time `json:"resolvedAt,omitempty"`
}

type ApprovalDecisionResponse struct {
	Status     string   `json:"status"`
	ApprovedBy []string `json:"approvedBy,omitempty"`
}
