package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hollis/envoy-ai-agent/internal/tools"
	"github.com/hollis/envoy-ai-agent/internal/workflow"
	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := workflow.NewDirectoryWithDB(db)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}

	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:        "whoami",
		Description: "Report the calling agent",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return `{"agent_id":"` + tools.AgentIDFromContext(ctx) + `"}`, nil
		},
	})

	srv := NewServer("", 0, reg, dir, nil)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestToolExecCarriesAgentIdentity(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest("POST", ts.URL+"/v1/tools/whoami", strings.NewReader(`{}`))
	req.Header.Set("X-Agent-ID", "agent-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Result struct {
			AgentID string `json:"agent_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result.AgentID != "agent-42" {
		t.Errorf("agent id = %q, want agent-42", out.Result.AgentID)
	}
}

func TestToolExecUnknownTool(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/tools/nope", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/workflows", "application/json",
		strings.NewReader(`{"name":"launch prep"}`))
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	var created struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if created.WorkflowID == "" {
		t.Fatal("expected workflow id")
	}

	resp, err = http.Post(ts.URL+"/v1/workflows/"+created.WorkflowID+"/members", "application/json",
		strings.NewReader(`{"agent_id":"a1","name":"Lead","role":"initiator"}`))
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add member status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/v1/workflows/" + created.WorkflowID + "/members")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	defer resp.Body.Close()
	var listed struct {
		Members []workflow.Member `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Members) != 1 || listed.Members[0].AgentID != "a1" {
		t.Errorf("members = %+v", listed.Members)
	}
}

func TestMemberAddValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/workflows/wf-x/members", "application/json",
		strings.NewReader(`{"role":"observer"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
