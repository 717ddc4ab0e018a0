package notify

import (
	"context"
	"log/slog"
)

// Message is one outbound notification built by a notification node or by an
// approval gate asking its approvers to act.
type Message struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	Channel     string
	Target      string
	Subject     string
	Body        string
}

// Notifier delivers messages to the outside world. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. It is the default
// when no delivery integration is wired in.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	slog.Info("notification",
		"executionId", msg.ExecutionID,
		"workflowId", msg.WorkflowID,
		"nodeId", msg.NodeID,
		"channel", msg.Channel,
		"target", msg.Target,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
