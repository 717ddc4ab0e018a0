package common

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/util"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// The identity every suite request acts as. It is listed as an approver in
// GatedReleaseYAML so the same identity can decide its own gate.
const (
	ActorID   = "release-bot"
	ActorTeam = "platform"
)

// NewRequest builds an API request carrying the test actor headers.
func NewRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := codec.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", ActorID)
	req.Header.Set("X-Actor-Team", ActorTeam)
	return req
}

// WaitForServer polls the health endpoint until the HTTP server answers.
func WaitForServer(t *testing.T, client *http.Client, port int) {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/health", port)
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server on port %d did not become ready", port)
}

func CreateDefinition(t *testing.T, client *http.Client, port int, create models.CreateDefinitionRequest) models.CreateDefinitionResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/workflows", port)
	resp, err := client.Do(NewRequest(t, "POST", url, create))
	if err != nil {
		t.Fatalf("Failed to POST /api/workflows: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d", resp.StatusCode)
	}
	created, err := util.DecodeJSONBodyResponse[models.CreateDefinitionResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}
	slog.Info("Created definition", "workflowId", created.ID, "version", created.Version)
	return created
}

func PublishDefinition(t *testing.T, client *http.Client, port int, workflowID string) models.PublishDefinitionResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/workflows/%s/publish", port, workflowID)
	resp, err := client.Do(NewRequest(t, "POST", url, nil))
	if err != nil {
		t.Fatalf("Failed to POST publish: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	published, err := util.DecodeJSONBodyResponse[models.PublishDefinitionResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode publish response: %v", err)
	}
	return published
}

func StartExecution(t *testing.T, client *http.Client, port int, workflowID string, input map[string]any) models.StartExecutionResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/workflows/%s/start", port, workflowID)
	resp, err := client.Do(NewRequest(t, "POST", url, models.StartExecutionRequest{Input: input}))
	if err != nil {
		t.Fatalf("Failed to POST start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d", resp.StatusCode)
	}
	started, err := util.DecodeJSONBodyResponse[models.StartExecutionResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode start response: %v", err)
	}
	slog.Info("Started execution", "executionId", started.ExecutionID)
	return started
}

func GetExecution(t *testing.T, client *http.Client, port int, executionID string) models.ExecutionStatusResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/executions/%s", port, executionID)
	resp, err := client.Do(NewRequest(t, "GET", url, nil))
	if err != nil {
		t.Fatalf("Failed to GET execution: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	status, err := util.DecodeJSONBodyResponse[models.ExecutionStatusResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode execution response: %v", err)
	}
	return status
}

// AwaitExecutionStatus polls the run until it reports the wanted status. The
// poll runs on wall time even when the engine itself is on a fake clock.
func AwaitExecutionStatus(t *testing.T, client *http.Client, port int, executionID string, want string, timeout time.Duration) models.ExecutionStatusResponse {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last models.ExecutionStatusResponse
	for time.Now().Before(deadline) {
		last = GetExecution(t, client, port, executionID)
		if last.Execution.Status == want {
			return last
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("Expected execution %s to reach %s, last status was %s (error %q)",
		executionID, want, last.Execution.Status, last.Execution.Error)
	return last
}

// AwaitPendingApproval polls the approver inbox until the gate for the given
// run shows up.
func AwaitPendingApproval(t *testing.T, client *http.Client, port int, executionID string, timeout time.Duration) models.ApprovalApiResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/approvals", port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Do(NewRequest(t, "GET", url, nil))
		if err != nil {
			t.Fatalf("Failed to GET /api/approvals: %v", err)
		}
		gates, err := util.DecodeJSONBodyResponse[[]models.ApprovalApiResponse](resp)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to decode approvals response: %v", err)
		}
		for _, gate := range gates {
			if gate.ExecutionID == executionID {
				return gate
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("Expected a pending approval for execution %s", executionID)
	return models.ApprovalApiResponse{}
}

func RecordDecision(t *testing.T, client *http.Client, port int, executionID, nodeID string, decision models.ApprovalDecisionRequest) models.ApprovalDecisionResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/executions/%s/approvals/%s", port, executionID, nodeID)
	resp, err := client.Do(NewRequest(t, "POST", url, decision))
	if err != nil {
		t.Fatalf("Failed to POST decision: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	result, err := util.DecodeJSONBodyResponse[models.ApprovalDecisionResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode decision response: %v", err)
	}
	return result
}
