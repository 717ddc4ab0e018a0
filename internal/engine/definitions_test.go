package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

var errTestExplode = errors.New("the real provider must not be called")

func TestCreateDefinitionAssignsSequentialVersions(t *testing.T) {
	m, _, _ := newTestEngine(t, nil)

	req := &models.CreateDefinitionRequest{Format: "yaml", Content: linearFlow}
	first, err := m.CreateDefinition(actorContext(), req)
	if err != nil {
		t.Fatalf("CreateDefinition failed: %v", err)
	}
	if first.Version != 1 || first.Published {
		t.Errorf("expected an unpublished v1 draft, got v%d published=%v", first.Version, first.Published)
	}
	if first.Name != "release-notice" {
		t.Errorf("expected the name from the content, got %q", first.Name)
	}
	if first.CreatedBy != "release-bot" || first.Team != "platform" {
		t.Errorf("expected the actor recorded, got %s/%s", first.CreatedBy, first.Team)
	}

	second, err := m.CreateDefinition(actorContext(), req)
	if err != nil {
		t.Fatalf("CreateDefinition failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same workflow id across versions, got %s and %s", first.ID, second.ID)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	latest, err := m.GetDefinition(first.ID, 0)
	if err != nil || latest.Version != 2 {
		t.Errorf("expected the latest version by default, got %+v (err %v)", latest, err)
	}
	v1, err := m.GetDefinition(first.ID, 1)
	if err != nil || v1.Version != 1 {
		t.Errorf("expected version 1 on request, got %+v (err %v)", v1, err)
	}
}

func TestCreateDefinitionFillsBlanksFromRequest(t *testing.T) {
	m, _, _ := newTestEngine(t, nil)

	content := strings.Replace(linearFlow, "name: release-notice\n", "", 1)
	req := &models.CreateDefinitionRequest{
		Name:        "named-by-request",
		Description: "fills in what the content omits",
		Format:      "yaml",
		Content:     content,
	}
	def, err := m.CreateDefinition(actorContext(), req)
	if err != nil {
		t.Fatalf("CreateDefinition failed: %v", err)
	}
	if def.Name != "named-by-request" {
		t.Errorf("expected the request name, got %q", def.Name)
	}
	if def.Description != "fills in what the content omits" {
		t.Errorf("expected the request description, got %q", def.Description)
	}
}

func TestCreateDefinitionRejectsInvalidContent(t *testing.T) {
	m, _, _ := newTestEngine(t, nil)

	broken := strings.Replace(linearFlow, "operation: set_variable", "operation: teleport", 1)
	if _, err := m.CreateDefinition(actorContext(), &models.CreateDefinitionRequest{Format: "yaml", Content: broken}); err == nil {
		t.Fatal("expected an unknown operation to be rejected")
	}
	if _, err := m.CreateDefinition(actorContext(), &models.CreateDefinitionRequest{Format: "json", Content: "{not json"}); err == nil {
		t.Fatal("expected unparseable content to be rejected")
	}
	if defs, _ := m.GetDefinitions(); len(*defs) != 0 {
		t.Errorf("expected nothing stored after rejected drafts, got %d", len(*defs))
	}
}

func TestPublishDefinitionIsIdempotent(t *testing.T) {
	m, _, _ := newTestEngine(t, nil)

	def, err := m.CreateDefinition(actorContext(), &models.CreateDefinitionRequest{Format: "yaml", Content: linearFlow})
	if err != nil {
		t.Fatalf("CreateDefinition failed: %v", err)
	}

	published, err := m.PublishDefinition(def.ID)
	if err != nil {
		t.Fatalf("PublishDefinition failed: %v", err)
	}
	if !published.Published {
		t.Fatal("expected the definition published")
	}

	again, err := m.PublishDefinition(def.ID)
	if err != nil {
		t.Fatalf("expected re-publishing to be a no-op, got %v", err)
	}
	if !again.Published || again.Version != published.Version {
		t.Errorf("expected the same published version back, got %+v", again)
	}

	if _, err := m.StartExecution(actorContext(), def.ID, map[string]any{"tag": "v1.0.0"}); err != nil {
		t.Errorf("expected the published workflow to be startable, got %v", err)
	}
}

func TestValidateDefinitionContentEnumeratesProblems(t *testing.T) {
	m, _, _ := newTestEngine(t, nil)

	if msgs := m.ValidateDefinitionContent("yaml", linearFlow); msgs != nil {
		t.Errorf("expected clean content to validate, got %v", msgs)
	}

	broken := `
version: 1
name: broken
trigger: manual
nodes:
  - id: check
    type: condition
    data:
      expression: variables.x ==== 1
`
	msgs := m.ValidateDefinitionContent("yaml", broken)
	if len(msgs) != 2 {
		t.Fatalf("expected both problems reported, got %v", msgs)
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "unsupported operator") {
		t.Errorf("expected the expression problem, got %v", msgs)
	}
	if !strings.Contains(joined, "trigger node") {
		t.Errorf("expected the missing trigger problem, got %v", msgs)
	}

	if msgs := m.ValidateDefinitionContent("json", "{not json"); len(msgs) != 1 {
		t.Errorf("expected a single parse problem, got %v", msgs)
	}
}

func TestTestExecutionSimulatesWithoutPersisting(t *testing.T) {
	m, d, clock := newTestEngine(t, failingProvider{err: errTestExplode})
	content := `
version: 1
name: dry-runnable
trigger: manual
nodes:
  - id: start
    type: trigger
  - id: fetch
    type: action
    data:
      operation: query
      target: postgres://inventory
      statement: SELECT count(*) FROM pending_changes
  - id: gate
    type: approval
    data:
      approvers:
        - dba-lead
  - id: announce
    type: notification
    data:
      channel: log
      message: done
edges:
  - source: start
    target: fetch
  - source: fetch
    target: gate
  - source: gate
    target: announce
`
	publishDefinition(t, d, clock, "dry-runnable", content)

	resp, err := m.TestExecution(actorContext(), "dry-runnable", nil, 0)
	if err != nil {
		t.Fatalf("TestExecution failed: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("expected a simulated success, got %s (error %q)", resp.Status, resp.Error)
	}
	if len(resp.Nodes) != 4 {
		t.Fatalf("expected all 4 nodes visited, got %d", len(resp.Nodes))
	}
	for _, entry := range resp.Nodes {
		if entry.Status != "success" {
			t.Errorf("expected node %s simulated successfully, got %s", entry.NodeID, entry.Status)
		}
	}
	if resp.Nodes[1].Output["simulated"] != true {
		t.Errorf("expected the action answered by the simulation provider, got %v", resp.Nodes[1].Output)
	}
	if resp.Nodes[2].Output["simulated"] != true {
		t.Errorf("expected the gate auto-resolved in test mode, got %v", resp.Nodes[2].Output)
	}

	// nothing durable: no run, no node records, no gates
	if len(d.rows) != 0 || len(d.gates) != 0 || len(d.execs) != 0 {
		t.Errorf("expected no persistence from a test run, got rows=%d gates=%d execs=%d", len(d.rows), len(d.gates), len(d.execs))
	}

	limited, err := m.TestExecution(actorContext(), "dry-runnable", nil, 2)
	if err != nil {
		t.Fatalf("TestExecution failed: %v", err)
	}
	if len(limited.Nodes) != 2 {
		t.Errorf("expected the node budget respected, got %d", len(limited.Nodes))
	}
}
