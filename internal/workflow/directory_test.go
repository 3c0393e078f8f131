package workflow

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestDirectory(t *testing.T) *Directory {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d, err := NewDirectoryWithDB(db)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	return d
}

func seedWorkflow(t *testing.T, d *Directory) string {
	wf, err := d.CreateWorkflow("trip planning")
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	members := []Member{
		{AgentID: "agent-lead", Name: "Lead", Role: RoleInitiator},
		{AgentID: "agent-flights", Name: "Flight Finder", Role: RoleSubagent, Purpose: "searches flights"},
		{AgentID: "agent-hotels", Name: "Hotel Scout", Role: RoleSubagent, Purpose: "finds hotels"},
	}
	for _, m := range members {
		if err := d.AddMember(wf, m); err != nil {
			t.Fatalf("add member %s: %v", m.AgentID, err)
		}
	}
	return wf
}

func TestMembership(t *testing.T) {
	d := setupTestDirectory(t)
	wf := seedWorkflow(t, d)

	m := d.Membership("agent-flights")
	if m == nil {
		t.Fatal("expected membership for agent-flights")
	}
	if m.Workflow != wf {
		t.Errorf("workflow = %q, want %q", m.Workflow, wf)
	}
	if m.Role != RoleSubagent {
		t.Errorf("role = %q, want subagent", m.Role)
	}
	if m.Purpose != "searches flights" {
		t.Errorf("purpose = %q", m.Purpose)
	}

	if d.Membership("agent-unknown") != nil {
		t.Error("expected nil membership for unknown agent")
	}
}

func TestMembersOrder(t *testing.T) {
	d := setupTestDirectory(t)
	wf := seedWorkflow(t, d)

	members := d.Members(wf)
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	if members[0].Role != RoleInitiator {
		t.Errorf("first member role = %q, want initiator", members[0].Role)
	}
}

func TestSubagentsExcludesCaller(t *testing.T) {
	d := setupTestDirectory(t)
	wf := seedWorkflow(t, d)

	subs := d.Subagents(wf, "agent-flights")
	if len(subs) != 1 {
		t.Fatalf("got %d subagents, want 1", len(subs))
	}
	if subs[0].AgentID != "agent-hotels" {
		t.Errorf("subagent = %q, want agent-hotels", subs[0].AgentID)
	}

	// The initiator never appears as a candidate.
	for _, m := range d.Subagents(wf, "") {
		if m.Role == RoleInitiator {
			t.Errorf("initiator %s leaked into subagent list", m.AgentID)
		}
	}
}

func TestAddMemberUpsert(t *testing.T) {
	d := setupTestDirectory(t)
	wf := seedWorkflow(t, d)

	err := d.AddMember(wf, Member{
		AgentID: "agent-hotels", Name: "Hotel Scout v2", Role: RoleSubagent, Purpose: "finds and books hotels",
	})
	if err != nil {
		t.Fatalf("upsert member: %v", err)
	}

	m := d.Membership("agent-hotels")
	if m.Name != "Hotel Scout v2" {
		t.Errorf("name = %q, want updated name", m.Name)
	}
	if len(d.Members(wf)) != 3 {
		t.Error("upsert should not add a duplicate row")
	}
}

func TestAddMemberInvalidRole(t *testing.T) {
	d := setupTestDirectory(t)
	wf := seedWorkflow(t, d)

	if err := d.AddMember(wf, Member{AgentID: "x", Name: "X", Role: "observer"}); err == nil {
		t.Error("expected error for invalid role")
	}
}
