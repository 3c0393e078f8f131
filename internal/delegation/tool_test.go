package delegation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hollis/envoy-ai-agent/internal/tools"
)

func newToolHarness(t *testing.T) (*tools.Registry, *testHarness) {
	t.Helper()
	h := newTestHarness(t)
	reg := tools.NewRegistry()
	RegisterTools(reg, h.orch)
	return reg, h
}

func leadCtx() context.Context {
	return tools.WithAgentID(context.Background(), "agent-lead")
}

func TestToolsRegistered(t *testing.T) {
	reg, _ := newToolHarness(t)
	for _, name := range []string{ToolDelegate, ToolObserve, ToolContinue, ToolStop, ToolList} {
		if reg.Get(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestDelegateToolRoundTrip(t *testing.T) {
	reg, _ := newToolHarness(t)

	out, err := reg.Execute(leadCtx(), ToolDelegate,
		`{"agent_name":"Research Analyst","task":"Summarize changes","run_in_background":true}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var started StartResult
	if err := json.Unmarshal([]byte(out), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !started.Success {
		t.Fatalf("start failed: %s", started.Error)
	}

	out, err = reg.Execute(leadCtx(), ToolObserve,
		`{"delegation_id":"`+started.DelegationID+`","wait_seconds":10}`)
	if err != nil {
		t.Fatalf("execute observe: %v", err)
	}
	var obs Observation
	if err := json.Unmarshal([]byte(out), &obs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !obs.Completed || obs.LastResponse != "analysis complete" {
		t.Errorf("observation = %+v", obs)
	}
}

func TestDelegateToolCamelCaseAliases(t *testing.T) {
	reg, h := newToolHarness(t)
	h.endpoint.blockFirst = true

	out, err := reg.Execute(leadCtx(), ToolDelegate,
		`{"agentName":"Data Analyst","task":"crunch","runInBackground":true}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var started StartResult
	_ = json.Unmarshal([]byte(out), &started)
	if !started.Success {
		t.Fatalf("aliased start failed: %s", started.Error)
	}

	// "resume" is accepted as the delegation id selector.
	out, err = reg.Execute(leadCtx(), ToolObserve, `{"resume":"`+started.DelegationID+`"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var obs Observation
	_ = json.Unmarshal([]byte(out), &obs)
	if !obs.Success || !obs.Running {
		t.Errorf("observation = %+v", obs)
	}
}

func TestDelegateToolStructuredFailure(t *testing.T) {
	reg, _ := newToolHarness(t)

	// Domain failures come back as JSON results, not handler errors.
	out, err := reg.Execute(leadCtx(), ToolDelegate, `{"agent_name":"Analyst","task":"x"}`)
	if err != nil {
		t.Fatalf("handler should not error: %v", err)
	}
	var res StartResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Error, "ambiguous") {
		t.Errorf("error = %q", res.Error)
	}
	if len(res.Candidates) == 0 {
		t.Error("candidates should be attached for self-correction")
	}
}

func TestListToolShowsCandidates(t *testing.T) {
	reg, _ := newToolHarness(t)

	out, err := reg.Execute(leadCtx(), ToolList, `{}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var list ListResult
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !list.Success || len(list.Candidates) != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestStopToolOwnership(t *testing.T) {
	reg, h := newToolHarness(t)
	h.endpoint.blockFirst = true

	out, _ := reg.Execute(leadCtx(), ToolDelegate,
		`{"agent_name":"Research Analyst","task":"private","run_in_background":true}`)
	var started StartResult
	_ = json.Unmarshal([]byte(out), &started)

	foreign := tools.WithAgentID(context.Background(), "agent-data")
	out, err := reg.Execute(foreign, ToolStop, `{"delegation_id":"`+started.DelegationID+`"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var stop StopResult
	_ = json.Unmarshal([]byte(out), &stop)
	if stop.Success {
		t.Error("foreign stop must report not found")
	}

	out, _ = reg.Execute(leadCtx(), ToolStop, `{"delegation_id":"`+started.DelegationID+`"}`)
	_ = json.Unmarshal([]byte(out), &stop)
	if !stop.Success {
		t.Errorf("owner stop failed: %s", stop.Error)
	}
}
