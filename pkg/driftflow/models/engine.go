package models

import "time"

type EngineApiResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Started    time.Time `json:"started"`
	LastActive time.Time `json:"lastActive"`
}

// WorkflowOverviewRow groups run counts for one workflow version.
type WorkflowOverviewRow struct {
	WorkflowID     string `json:"workflowId"`
	Version        int    `json:"version"`
	PendingCount   int    `json:"pendingCount"`
	RunningCount   int    `json:"runningCount"`
	SuccessCount   int    `json:"successCount"`
	FailedCount    int    `json:"failedCount"`
	CancelledCount int    `json:"cancelledCount"`
}

// OverviewResponse is the operational snapshot: grouped counts per workflow
// version, the longest-running claimed runs, and the runs due next.
type OverviewResponse struct {
	Workflows []WorkflowOverviewRow  `json:"workflows"`
	Running   []ExecutionApiResponse `json:"running"`
	NextUp    []ExecutionApiResponse `json:"nextUp"`
}
