package domain

import (
	"database/sql"
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed || s == ExecutionCancelled
}

type NodeStatus string

const (
	NodePending NodeStatus = "pending"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
	NodeSkipped NodeStatus = "skipped"
)

func (s NodeStatus) Terminal() bool {
	return s == NodeSuccess || s == NodeFailed || s == NodeSkipped
}

// WorkflowExecution is one run of a published definition.
// Modified is the optimistic lock used by the claim protocol; EngineID is the
// claim itself. NextActivation drives polling pickup for suspended runs.
type WorkflowExecution struct {
	ID             string
	WorkflowID     string
	Version        int
	Status         ExecutionStatus
	TriggeredBy    string
	Team           string
	Context        sql.NullString
	Output         sql.NullString
	Error          sql.NullString
	RetryCount     int
	Created        time.Time
	Modified       time.Time
	NextActivation sql.NullTime
	Started        sql.NullTime
	Completed      sql.NullTime
	EngineID       sql.NullInt64
}

// NodeExecution is the append-only record of one node visit within a run.
type NodeExecution struct {
	ID          string
	ExecutionID string
	NodeID      string
	NodeType    string
	NodeName    string
	Status      NodeStatus
	Branch      sql.NullString
	Input       sql.NullString
	Output      sql.NullString
	Error       sql.NullString
	Started     sql.NullTime
	Completed   sql.NullTime
	DurationMS  int64
	RetryCount  int
	Retryable   bool
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Resolved reports whether a decision or timeout already closed the gate.
func (s ApprovalStatus) Resolved() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

const (
	TimeoutPolicyFail    = "fail"
	TimeoutPolicySkip    = "skip"
	TimeoutPolicyApprove = "approve"
	TimeoutPolicyNotify  = "notify"
)

// WorkflowApproval tracks a pending human decision for one approval node.
// Approvers and ApprovedBy are JSON-encoded string arrays in the store.
type WorkflowApproval struct {
	ID           int64
	ExecutionID  string
	NodeID       string
	Status       ApprovalStatus
	Approvers    []string
	MinApprovals int
	ApprovedBy   []string
	Reason       sql.NullString
	OnTimeout    string
	RequestedAt  time.Time
	Deadline     time.Time
	ResolvedAt   sql.NullTime
}

// EngineInstance is the heartbeat row registered by each running engine
// process, consulted by the stuck-run repair service.
type EngineInstance struct {
	ID         int64
	Name       string
	Started    time.Time
	LastActive time.Time
}
