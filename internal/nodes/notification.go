package nodes

import (
	"context"

	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// NotificationExecutor builds a message from the node configuration and
// hands it to the notifier. Delivery transport and credentials live behind
// the Notifier; this node only decides what to send and records the outcome.
type NotificationExecutor struct {
	Notifier notify.Notifier
}

func (e *NotificationExecutor) Type() definition.NodeType {
	return definition.NodeNotification
}

func (e *NotificationExecutor) Validate(n *definition.Node) []error {
	var errs []error
	if dataString(n.Data, "channel") == "" {
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "channel", Reason: "required"})
	}
	if dataString(n.Data, "message") == "" {
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "message", Reason: "required"})
	}
	return errs
}

func (e *NotificationExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	msg := notify.Message{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		NodeID:      req.Node.ID,
		Channel:     dataString(req.Data, "channel"),
		Target:      dataString(req.Data, "target"),
		Subject:     dataString(req.Data, "subject"),
		Body:        dataString(req.Data, "message"),
	}

	if err := e.Notifier.Notify(ctx, msg); err != nil {
		res := models.Fail(&domain.ExecutionError{NodeID: req.Node.ID, Op: "notify", Err: err})
		res.Retryable = true
		return res
	}

	return models.Succeed(map[string]any{
		"channel": msg.Channel,
		"target":  msg.Target,
		"sent":    true,
	})
}
