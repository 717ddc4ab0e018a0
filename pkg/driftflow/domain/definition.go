package domain

import (
	"database/sql"
	"time"
)

// WorkflowDefinition is the stored, versioned form of a workflow graph.
// Content holds the serialized graph in the declared Format; it is parsed and
// validated on publish and again (from cache) when a run starts.
type WorkflowDefinition struct {
	ID          string
	Name        string
	Description string
	Version     int
	Trigger     string
	Schedule    sql.NullString
	Format      string
	Content     string
	Published   bool
	Team        string
	CreatedBy   string
	Created     time.Time
	Updated     time.Time
}

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerWebhook   = "webhook"
	TriggerEvent     = "event"
)

func ValidTrigger(t string) bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerWebhook, TriggerEvent:
		return true
	}
	return false
}
