package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/driftflow/driftflow/pkg/driftflow/definition"
)

func TestTriggerExposesActorAndInput(t *testing.T) {
	ex := &TriggerExecutor{}

	res := ex.Execute(context.Background(), nodeRequest(definition.NodeTrigger, nil, time.Now()))

	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if res.Output["actor"] != "release-bot" || res.Output["team"] != "platform" {
		t.Errorf("Expected the actor exposed, got %v", res.Output)
	}
	if res.Output["tag"] != "v1.4.0" {
		t.Errorf("Expected the trigger input merged, got %v", res.Output)
	}
}
