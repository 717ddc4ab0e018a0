package models

import "time"

// StartExecutionRequest carries the invocation input overlaid onto the
// definition's declared variable defaults.
type StartExecutionRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

type StartExecutionResponse struct {
	ExecutionID string `json:"executionId"`
}

// ExecutionApiResponse is the API projection of one run.
type ExecutionApiResponse struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	Version     int            `json:"version"`
	Status      string         `json:"status"`
	TriggeredBy string         `json:"triggeredBy"`
	Team        string         `json:"team,omitempty"`
	TriggeredAt time.Time      `json:"triggeredAt"`
	Started     time.Time      `json:"startedAt,omitempty"`
	Completed   time.Time      `json:"completedAt,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NodeExecutionApiResponse is one entry of a run's ordered node history.
type NodeExecutionApiResponse struct {
	ID         string         `json:"id"`
	NodeID     string         `json:"nodeId"`
	NodeType   string         `json:"nodeType"`
	NodeName   string         `json:"nodeName,omitempty"`
	Status     string         `json:"status"`
	Branch     string         `json:"branch,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Started    time.Time      `json:"startedAt,omitempty"`
	Completed  time.Time      `json:"completedAt,omitempty"`
	DurationMS int64          `json:"durationMs"`
	RetryCount int            `json:"retryCount"`
	Retryable  bool           `json:"retryable"`
}

// ExecutionStatusResponse is the read-only projection returned by the status
// operation: the run plus its ordered node histories.
type ExecutionStatusResponse struct {
	Execution ExecutionApiResponse       `json:"execution"`
	Nodes     []NodeExecutionApiResponse `json:"nodes"`
}

// ExecutionHistoryResponse is one page of a definition's runs, most recent
// first.
type ExecutionHistoryResponse struct {
	Results    int                    `json:"results"`
	Offset     int                    `json:"offset"`
	Executions []ExecutionApiResponse `json:"executions"`
}

type CancelExecutionResponse struct {
	OK bool `json:"ok"`
}

// TestExecutionRequest runs the first MaxNodes nodes of a published
// definition against sample input without durable side effects.
type TestExecutionRequest struct {
	Input    map[string]any `json:"input,omitempty"`
	MaxNodes int            `json:"maxNodes,omitempty"`
}

type TestExecutionResponse struct {
	Status string                     `json:"status"`
	Error  string                     `json:"error,omitempty"`
	Nodes  []NodeExecutionApiResponse `json:"nodes"`
}
