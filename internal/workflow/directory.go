// Package workflow tracks multi-agent workflows and their memberships.
// A workflow groups one initiator agent with the sub-agents it may
// delegate to; the directory is the authority on who belongs where.
package workflow

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Member roles within a workflow.
const (
	RoleInitiator = "initiator"
	RoleSubagent  = "subagent"
)

// Member is one agent's membership in a workflow.
type Member struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Purpose  string `json:"purpose,omitempty"`
	Workflow string `json:"workflow_id"`
}

// Workflow is a named grouping of collaborating agents.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is a SQLite-backed registry of workflows and members.
type Directory struct {
	db *sql.DB
}

// NewDirectory opens (or creates) the directory database at dbPath.
func NewDirectory(dbPath string) (*Directory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Directory{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// NewDirectoryWithDB wraps an existing database handle.
func NewDirectoryWithDB(db *sql.DB) (*Directory, error) {
	d := &Directory{db: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *Directory) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workflow_members (
		workflow_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		purpose TEXT,
		PRIMARY KEY (workflow_id, agent_id),
		FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_members_agent ON workflow_members(agent_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (d *Directory) Close() error {
	return d.db.Close()
}

// CreateWorkflow registers a new workflow and returns its ID.
func (d *Directory) CreateWorkflow(name string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate workflow id: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO workflows (id, name, created_at) VALUES (?, ?, ?)
	`, id.String(), name, time.Now())
	if err != nil {
		return "", fmt.Errorf("create workflow: %w", err)
	}
	return id.String(), nil
}

// AddMember adds an agent to a workflow. Re-adding an existing member
// updates its name, role, and purpose.
func (d *Directory) AddMember(workflowID string, m Member) error {
	if m.Role != RoleInitiator && m.Role != RoleSubagent {
		return fmt.Errorf("invalid role %q", m.Role)
	}

	_, err := d.db.Exec(`
		INSERT INTO workflow_members (workflow_id, agent_id, name, role, purpose)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workflow_id, agent_id) DO UPDATE SET
			name = excluded.name, role = excluded.role, purpose = excluded.purpose
	`, workflowID, m.AgentID, m.Name, m.Role, m.Purpose)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// Membership returns the agent's workflow membership, or nil if the
// agent belongs to no workflow. An agent belongs to at most one.
func (d *Directory) Membership(agentID string) *Member {
	row := d.db.QueryRow(`
		SELECT workflow_id, agent_id, name, role, purpose
		FROM workflow_members WHERE agent_id = ?
	`, agentID)

	var m Member
	var purpose sql.NullString
	if err := row.Scan(&m.Workflow, &m.AgentID, &m.Name, &m.Role, &purpose); err != nil {
		return nil
	}
	m.Purpose = purpose.String
	return &m
}

// Members lists all members of a workflow, initiator first.
func (d *Directory) Members(workflowID string) []Member {
	rows, err := d.db.Query(`
		SELECT workflow_id, agent_id, name, role, purpose
		FROM workflow_members
		WHERE workflow_id = ?
		ORDER BY CASE role WHEN 'initiator' THEN 0 ELSE 1 END, agent_id
	`, workflowID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var purpose sql.NullString
		if err := rows.Scan(&m.Workflow, &m.AgentID, &m.Name, &m.Role, &purpose); err != nil {
			continue
		}
		m.Purpose = purpose.String
		members = append(members, m)
	}
	return members
}

// Subagents lists the workflow's sub-agent members, excluding the given
// agent. Pass the delegator's ID to get its delegation candidates.
func (d *Directory) Subagents(workflowID, excludeAgentID string) []Member {
	var out []Member
	for _, m := range d.Members(workflowID) {
		if m.Role != RoleSubagent || m.AgentID == excludeAgentID {
			continue
		}
		out = append(out, m)
	}
	return out
}
