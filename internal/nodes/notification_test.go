package nodes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/driftflow/driftflow/pkg/driftflow/definition"
)

func TestNotificationValidate(t *testing.T) {
	ex := &NotificationExecutor{}

	errs := ex.Validate(&definition.Node{ID: "announce", Type: definition.NodeNotification})
	if len(errs) != 2 {
		t.Errorf("Expected channel and message required, got %v", errs)
	}

	errs = ex.Validate(&definition.Node{ID: "announce", Type: definition.NodeNotification,
		Data: map[string]any{"channel": "slack", "message": "done"}})
	if len(errs) != 0 {
		t.Errorf("Expected a valid node, got %v", errs)
	}
}

func TestNotificationBuildsMessage(t *testing.T) {
	notifier := &captureNotifier{}
	ex := &NotificationExecutor{Notifier: notifier}
	data := map[string]any{
		"channel": "slack",
		"target":  "#ops",
		"subject": "migration finished",
		"message": "orders-db migration applied cleanly",
	}

	res := ex.Execute(context.Background(), nodeRequest(definition.NodeNotification, data, time.Now()))

	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if res.Output["sent"] != true || res.Output["target"] != "#ops" {
		t.Errorf("Expected the delivery recorded, got %v", res.Output)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Channel != "slack" || msg.Target != "#ops" {
		t.Errorf("Expected the channel and target forwarded, got %s/%s", msg.Channel, msg.Target)
	}
	if msg.Body != "orders-db migration applied cleanly" {
		t.Errorf("Expected the message body forwarded, got %q", msg.Body)
	}
	if msg.ExecutionID != "run-1" || msg.NodeID != "n1" {
		t.Errorf("Expected the run stamped on the message, got %s/%s", msg.ExecutionID, msg.NodeID)
	}
}

func TestNotificationFailureIsRetryable(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("slack is down")}
	ex := &NotificationExecutor{Notifier: notifier}
	data := map[string]any{"channel": "slack", "message": "done"}

	res := ex.Execute(context.Background(), nodeRequest(definition.NodeNotification, data, time.Now()))

	if res.Success {
		t.Fatal("Expected a failed result")
	}
	if !res.Retryable {
		t.Error("Expected a delivery failure to be retryable")
	}
	if !strings.Contains(res.Error, "slack is down") {
		t.Errorf("Expected the cause preserved, got %q", res.Error)
	}
}
