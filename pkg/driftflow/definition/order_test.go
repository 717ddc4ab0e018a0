package definition

import (
	"errors"
	"testing"

	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

func orderIDs(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestExecutionOrderFollowsEdges(t *testing.T) {
	g := mustParse(t, migrationYAML)
	order, err := ExecutionOrder(g)
	if err != nil {
		t.Fatalf("ExecutionOrder failed: %v", err)
	}

	want := []string{"start", "backup", "check", "gate", "apply", "announce"}
	got := orderIDs(order)
	if len(got) != len(want) {
		t.Fatalf("Expected %d nodes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestExecutionOrderBreaksTiesByDeclaration(t *testing.T) {
	content := `
version: 1
name: fanout
trigger: manual
nodes:
  - id: start
    type: trigger
  - id: second
    type: notification
    data:
      channel: slack
      message: b
  - id: first
    type: notification
    data:
      channel: slack
      message: a
edges:
  - source: start
    target: first
  - source: start
    target: second
`
	g := mustParse(t, content)
	order, err := ExecutionOrder(g)
	if err != nil {
		t.Fatalf("ExecutionOrder failed: %v", err)
	}

	got := orderIDs(order)
	want := []string{"start", "second", "first"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected declaration order to break the tie: want %v, got %v", want, got)
		}
	}
}

func TestExecutionOrderRejectsCycle(t *testing.T) {
	content := `
version: 1
name: loop
trigger: manual
nodes:
  - id: a
    type: trigger
  - id: b
    type: notification
edges:
  - source: a
    target: b
  - source: b
    target: a
`
	g := mustParse(t, content)
	_, err := ExecutionOrder(g)
	if err == nil {
		t.Fatal("Expected a cycle error")
	}
	var cerr *domain.CycleError
	if !errors.As(err, &cerr) {
		t.Errorf("Expected a CycleError, got %T: %v", err, err)
	}
}
